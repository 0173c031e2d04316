package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subgate/internal/domain"
)

type Sessions struct {
	JWT      *JWTer
	Deny     Denylist
	AdminTTL time.Duration
}

func NewSessions(j *JWTer, deny Denylist, adminTTL time.Duration) *Sessions {
	if deny == nil {
		deny = NewMemoryDenylist()
	}
	return &Sessions{JWT: j, Deny: deny, AdminTTL: adminTTL}
}

func (s *Sessions) Open(subject string, kind Kind) (string, *Claims, error) {
	ttl := s.JWT.TTL
	if kind == KindAdmin && s.AdminTTL > 0 {
		ttl = s.AdminTTL
	}
	return s.JWT.Issue(subject, kind, ttl)
}

// Verify 失败一律返回 domain.ErrUnauthenticated（包装原因）
func (s *Sessions) Verify(ctx context.Context, token string, kind Kind) (*Claims, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	c, err := s.JWT.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if c.Kind != kind || c.Subject == "" {
		return nil, fmt.Errorf("%w: wrong session kind", domain.ErrUnauthenticated)
	}
	revoked, err := s.Deny.Revoked(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("auth.Sessions.Verify: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: session revoked", domain.ErrUnauthenticated)
	}
	return c, nil
}

func (s *Sessions) Close(ctx context.Context, c *Claims) error {
	if c == nil || c.ExpiresAt == nil {
		return errors.New("auth.Sessions.Close: missing claims")
	}
	return s.Deny.Revoke(ctx, c.ID, c.ExpiresAt.Time)
}
