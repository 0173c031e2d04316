package events

import (
	"context"
	"time"
)

const (
	UserRegistered = "user.registered"
	PremiumGranted = "premium.granted"
	PremiumRevoked = "premium.revoked"
)

type Event struct {
	Type           string     `json:"type"`
	UserID         string     `json:"userId"`
	Email          string     `json:"email"`
	Source         string     `json:"source,omitempty"` // admin / payment / signup
	PremiumExpires *time.Time `json:"premiumExpires,omitempty"`
	At             time.Time  `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop 未配置消息队列时使用
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
