package user

import (
	"time"

	"subgate/internal/domain"
)

type UserModel struct {
	ID             string     `gorm:"primaryKey;type:varchar(32)"`
	Email          string     `gorm:"uniqueIndex;size:191;not null"`
	PasswordHash   string     `gorm:"size:100;not null"`
	TrialExpires   time.Time  `gorm:"not null"`
	IsPremium      bool       `gorm:"not null;default:false"`
	PremiumExpires *time.Time `gorm:"index"`
	LastPaymentAt  *time.Time
	LastPaymentRef string `gorm:"size:64;not null;default:''"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }

func FromDomain(u *domain.User) *UserModel {
	return &UserModel{
		ID:             u.ID,
		Email:          u.Email,
		PasswordHash:   u.PasswordHash,
		TrialExpires:   u.TrialExpires,
		IsPremium:      u.IsPremium,
		PremiumExpires: u.PremiumExpires,
		LastPaymentAt:  u.LastPaymentAt,
		LastPaymentRef: u.LastPaymentRef,
		CreatedAt:      u.CreatedAt,
	}
}

func (m *UserModel) ToDomain() *domain.User {
	return &domain.User{
		ID:             m.ID,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		CreatedAt:      m.CreatedAt,
		TrialExpires:   m.TrialExpires,
		IsPremium:      m.IsPremium,
		PremiumExpires: m.PremiumExpires,
		LastPaymentAt:  m.LastPaymentAt,
		LastPaymentRef: m.LastPaymentRef,
	}
}
