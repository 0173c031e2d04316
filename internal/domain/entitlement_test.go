package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTrialUser(now time.Time) *User {
	u := &User{ID: "u1", Email: "a@gmail.com"}
	StartTrial(u, now, DefaultTrialPeriod)
	return u
}

func TestEvaluate(t *testing.T) {
	future := t0.Add(time.Hour)
	past := t0.Add(-time.Hour)

	tests := []struct {
		name string
		user *User
		want Access
	}{
		{"nil user", nil, AccessNone},
		{"trial running", &User{TrialExpires: future}, AccessTrial},
		{"trial over", &User{TrialExpires: past}, AccessNone},
		{"trial ends exactly now", &User{TrialExpires: t0}, AccessNone},
		{"premium running", &User{TrialExpires: past, IsPremium: true, PremiumExpires: &future}, AccessPremium},
		{"premium over", &User{TrialExpires: past, IsPremium: true, PremiumExpires: &past}, AccessNone},
		{"premium flag without expiry", &User{TrialExpires: past, IsPremium: true}, AccessNone},
		{"expiry without premium flag", &User{TrialExpires: past, PremiumExpires: &future}, AccessNone},
		{"premium flag hides running trial", &User{TrialExpires: future, IsPremium: true, PremiumExpires: &past}, AccessNone},
		{"premium and trial both running", &User{TrialExpires: future, IsPremium: true, PremiumExpires: &future}, AccessPremium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.user, t0)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != AccessNone, got.Allowed())
		})
	}
}

func TestEvaluate_AfterRegistrationIsTrial(t *testing.T) {
	for _, offset := range []time.Duration{0, time.Minute, 23 * time.Hour, DefaultTrialPeriod - time.Nanosecond} {
		u := newTrialUser(t0)
		assert.Equal(t, AccessTrial, Evaluate(u, t0.Add(offset)), "offset %s", offset)
	}
}

func TestEvaluate_TrialLapses(t *testing.T) {
	u := newTrialUser(t0)
	for _, offset := range []time.Duration{DefaultTrialPeriod, DefaultTrialPeriod + time.Second, 90 * 24 * time.Hour} {
		assert.Equal(t, AccessNone, Evaluate(u, t0.Add(offset)), "offset %s", offset)
	}
}

func TestGrantPremium_ActiveForPeriodRegardlessOfTrial(t *testing.T) {
	for _, grantAt := range []time.Duration{0, 2 * time.Hour, 48 * time.Hour, 400 * 24 * time.Hour} {
		u := newTrialUser(t0)
		now := t0.Add(grantAt)
		GrantPremium(u, now, DefaultPremiumPeriod)

		assert.True(t, u.IsPremium)
		if assert.NotNil(t, u.PremiumExpires) {
			assert.Equal(t, now.Add(DefaultPremiumPeriod), *u.PremiumExpires)
		}
		assert.Equal(t, AccessPremium, Evaluate(u, now))
		assert.Equal(t, AccessPremium, Evaluate(u, now.Add(DefaultPremiumPeriod-time.Second)))
		assert.Equal(t, AccessNone, Evaluate(u, now.Add(DefaultPremiumPeriod)))
	}
}

func TestGrantPremium_RepeatedGrantExtends(t *testing.T) {
	u := newTrialUser(t0)
	GrantPremium(u, t0, DefaultPremiumPeriod)
	later := t0.Add(20 * 24 * time.Hour)
	GrantPremium(u, later, DefaultPremiumPeriod)
	assert.Equal(t, later.Add(DefaultPremiumPeriod), *u.PremiumExpires)
}

func TestRevokePremium(t *testing.T) {
	t.Run("trial still running", func(t *testing.T) {
		u := newTrialUser(t0)
		GrantPremium(u, t0, DefaultPremiumPeriod)
		RevokePremium(u)
		assert.False(t, u.IsPremium)
		assert.Nil(t, u.PremiumExpires)
		assert.Equal(t, AccessTrial, Evaluate(u, t0.Add(time.Hour)))
	})
	t.Run("trial over", func(t *testing.T) {
		u := newTrialUser(t0)
		GrantPremium(u, t0, DefaultPremiumPeriod)
		RevokePremium(u)
		assert.Equal(t, AccessNone, Evaluate(u, t0.Add(DefaultTrialPeriod+time.Hour)))
	})
}
