package domain

import (
	"context"
	"strings"
	"time"
)

// AllowedEmailSuffix 注册时仅允许 Gmail
const AllowedEmailSuffix = "@gmail.com"

type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	TrialExpires   time.Time  `json:"trialExpires"`
	IsPremium      bool       `json:"isPremium"`
	PremiumExpires *time.Time `json:"premiumExpires,omitempty"`
	LastPaymentAt  *time.Time `json:"lastPaymentAt,omitempty"`
	LastPaymentRef string     `json:"lastPaymentRef,omitempty"`
}

// UserRepository 查不到时 FindBy* 返回 (nil, nil)；UpdateEntitlement/ApplyPayment 返回 ErrNotFound。
// ApplyPayment 对同一 ref 只生效一次
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]User, int64, error)
	UpdateEntitlement(ctx context.Context, id string, mutate func(u *User) error) (*User, error)
	ApplyPayment(ctx context.Context, id, ref string, at time.Time, mutate func(u *User) error) (*User, bool, error)
}

// NormalizeEmail 去空格 + 小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func IsAllowedEmail(email string) bool {
	e := NormalizeEmail(email)
	return len(e) > len(AllowedEmailSuffix) && strings.HasSuffix(e, AllowedEmailSuffix)
}

// ValidateSignup 校验注册入参，email 需已规范化
func ValidateSignup(email, password string) error {
	switch {
	case email == "" || password == "":
		return &ValidationError{Field: "email", Msg: "email and password are required"}
	case !IsAllowedEmail(email):
		return &ValidationError{Field: "email", Msg: "only " + AllowedEmailSuffix + " addresses are allowed"}
	}
	return nil
}
