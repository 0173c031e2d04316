package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"subgate/internal/core/cache"
	"subgate/internal/core/events"
	"subgate/internal/domain"
	"subgate/pkg/utils"
)

type UserService struct {
	repo     domain.UserRepository
	cache    *cache.Cache
	cacheTTL time.Duration
	events   events.Publisher
	log      *zap.Logger
	policy   domain.Policy
	now      func() time.Time
}

type Option func(*UserService)

func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(s *UserService) { s.cache, s.cacheTTL = c, ttl }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *UserService) {
		if p != nil {
			s.events = p
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *UserService) {
		if l != nil {
			s.log = l
		}
	}
}

func WithPolicy(p domain.Policy) Option { return func(s *UserService) { s.policy = p } }

func WithClock(now func() time.Time) Option { return func(s *UserService) { s.now = now } }

func NewUserService(repo domain.UserRepository, opts ...Option) *UserService {
	s := &UserService{
		repo:     repo,
		cacheTTL: 30 * time.Second,
		events:   events.Nop{},
		log:      zap.NewNop(),
		policy:   domain.DefaultPolicy(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *UserService) Now() time.Time { return s.now().UTC() }

func (s *UserService) Policy() domain.Policy { return s.policy }

// Register 创建账号并开启试用；重复邮箱与非 Gmail 邮箱都不会落库
func (s *UserService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	const op = "service.UserService.Register"
	email = domain.NormalizeEmail(email)
	if err := domain.ValidateSignup(email, password); err != nil {
		return nil, err
	}
	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateEmail
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u := &domain.User{ID: utils.NewID(), Email: email, PasswordHash: hash}
	domain.StartTrial(u, s.Now(), s.policy.TrialPeriod)
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user registered", zap.String("user_id", u.ID), zap.Time("trial_expires", u.TrialExpires))
	s.publish(ctx, events.UserRegistered, u, "signup")
	return u, nil
}

// Authenticate 邮箱不存在 → ErrNotFound；密码不符 → ErrInvalidCredentials
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	const op = "service.UserService.Authenticate"
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, &domain.ValidationError{Field: "email", Msg: "email and password are required"}
	}
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u == nil {
		return nil, domain.ErrNotFound
	}
	if !utils.CheckPassword(password, u.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.UserService.Get: %w", err)
	}
	if u == nil {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

// Access 鉴权门使用：优先读缓存（不含密码 hash），再按当前时间计算权益
func (s *UserService) Access(ctx context.Context, id string) (*domain.User, domain.Access, error) {
	load := func(ctx context.Context) (*domain.User, error) { return s.Get(ctx, id) }
	var u *domain.User
	var err error
	if key, ok := s.userKey(ctx, id); ok {
		u, err = cache.GetOrLoadJSON(s.cache, ctx, key, s.cacheTTL, load)
	} else {
		u, err = load(ctx)
	}
	if err != nil {
		return nil, domain.AccessNone, err
	}
	if u == nil {
		return nil, domain.AccessNone, domain.ErrNotFound
	}
	return u, domain.Evaluate(u, s.Now()), nil
}

type Overview struct {
	Users []domain.User
	Total int64
	Paid  int
}

func (s *UserService) List(ctx context.Context, offset, limit int) (*Overview, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	users, total, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("service.UserService.List: %w", err)
	}
	now := s.Now()
	ov := &Overview{Users: users, Total: total}
	for i := range users {
		if domain.PremiumActive(&users[i], now) {
			ov.Paid++
		}
	}
	return ov, nil
}

// GrantPremium 管理端直接授予：premium_expires = now + 会员期
func (s *UserService) GrantPremium(ctx context.Context, id string) (*domain.User, error) {
	now := s.Now()
	u, err := s.updateEntitlement(ctx, id, func(u *domain.User) error {
		domain.GrantPremium(u, now, s.policy.PremiumPeriod)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("premium granted", zap.String("user_id", id), zap.String("source", "admin"))
	s.publish(ctx, events.PremiumGranted, u, "admin")
	return u, nil
}

func (s *UserService) RevokePremium(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.updateEntitlement(ctx, id, func(u *domain.User) error {
		domain.RevokePremium(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("premium revoked", zap.String("user_id", id), zap.String("source", "admin"))
	s.publish(ctx, events.PremiumRevoked, u, "admin")
	return u, nil
}

// ConfirmPayment 支付渠道回调（已验签）开通会员；每个 paymentRef 只生效一次
func (s *UserService) ConfirmPayment(ctx context.Context, id, paymentRef string) (*domain.User, bool, error) {
	if paymentRef == "" {
		return nil, false, &domain.ValidationError{Field: "payment_ref", Msg: "payment reference is required"}
	}
	now := s.Now()
	u, applied, err := s.repo.ApplyPayment(ctx, id, paymentRef, now, func(u *domain.User) error {
		domain.GrantPremium(u, now, s.policy.PremiumPeriod)
		u.LastPaymentAt = &now
		u.LastPaymentRef = paymentRef
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, domain.ErrNotFound
		}
		return nil, false, fmt.Errorf("service.UserService.ConfirmPayment: %w", err)
	}
	if !applied {
		return u, false, nil
	}
	s.bumpUser(ctx, id)
	s.log.Info("premium granted", zap.String("user_id", id), zap.String("source", "payment"), zap.String("payment_ref", paymentRef))
	s.publish(ctx, events.PremiumGranted, u, "payment")
	return u, true, nil
}

func (s *UserService) updateEntitlement(ctx context.Context, id string, mutate func(*domain.User) error) (*domain.User, error) {
	u, err := s.repo.UpdateEntitlement(ctx, id, mutate)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("service.UserService.updateEntitlement: %w", err)
	}
	s.bumpUser(ctx, id)
	return u, nil
}

// 缓存键带代号：每次写入后代号 +1，写入前已开始的回源只能落到旧代号下，读不到
func (s *UserService) genKey(id string) string { return s.cache.Key("user", id, "gen") }

// userKey 读取当前代号；Redis 不可用时返回 ok=false，调用方直接回源
func (s *UserService) userKey(ctx context.Context, id string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	gen, err := s.cache.Generation(ctx, s.genKey(id))
	if err != nil {
		s.log.Warn("cache generation read failed", zap.String("user_id", id), zap.Error(err))
		return "", false
	}
	return s.cache.Key("user", id, "g"+strconv.FormatInt(gen, 10)), true
}

func (s *UserService) bumpUser(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, s.genKey(id)); err != nil {
		s.log.Warn("cache generation bump failed", zap.String("user_id", id), zap.Error(err))
	}
}

func (s *UserService) publish(ctx context.Context, typ string, u *domain.User, source string) {
	e := events.Event{
		Type:           typ,
		UserID:         u.ID,
		Email:          u.Email,
		Source:         source,
		PremiumExpires: u.PremiumExpires,
		At:             s.Now(),
	}
	// 事件失败不影响主流程
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("publish event failed", zap.String("type", typ), zap.String("user_id", u.ID), zap.Error(err))
	}
}
