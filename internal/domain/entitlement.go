package domain

import "time"

type Access string

const (
	AccessTrial   Access = "trial-active"
	AccessPremium Access = "premium-active"
	AccessNone    Access = "no-access"
)

func (a Access) Allowed() bool { return a == AccessTrial || a == AccessPremium }

const (
	DefaultTrialPeriod   = 24 * time.Hour
	DefaultPremiumPeriod = 30 * 24 * time.Hour
)

type Policy struct {
	TrialPeriod   time.Duration
	PremiumPeriod time.Duration
}

func DefaultPolicy() Policy {
	return Policy{TrialPeriod: DefaultTrialPeriod, PremiumPeriod: DefaultPremiumPeriod}
}

func TrialActive(u *User, now time.Time) bool {
	return u.TrialExpires.After(now) && !u.IsPremium
}

func PremiumActive(u *User, now time.Time) bool {
	return u.IsPremium && u.PremiumExpires != nil && u.PremiumExpires.After(now)
}

// Evaluate 纯函数：只读 trial_expires / is_premium / premium_expires
func Evaluate(u *User, now time.Time) Access {
	if u == nil {
		return AccessNone
	}
	switch {
	case TrialActive(u, now):
		return AccessTrial
	case PremiumActive(u, now):
		return AccessPremium
	}
	return AccessNone
}

// StartTrial 新用户：试用期从创建时刻起算
func StartTrial(u *User, now time.Time, period time.Duration) {
	u.CreatedAt = now
	u.TrialExpires = now.Add(period)
	u.IsPremium = false
	u.PremiumExpires = nil
}

func GrantPremium(u *User, now time.Time, period time.Duration) {
	exp := now.Add(period)
	u.IsPremium = true
	u.PremiumExpires = &exp
}

func RevokePremium(u *User) {
	u.IsPremium = false
	u.PremiumExpires = nil
}
