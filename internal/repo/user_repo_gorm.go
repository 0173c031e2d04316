package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"subgate/internal/domain"
	"subgate/internal/feature/payment"
	"subgate/internal/feature/user"
)

type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	const op = "repo.UserRepo.Create"
	m := user.FromDomain(u)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDupKey(err) {
			return fmt.Errorf("%s: %w", op, domain.ErrDuplicateEmail)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	// 回填数据库生成的时间
	u.CreatedAt = m.CreatedAt
	return nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *UserRepo) findOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var m user.UserModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo.UserRepo.findOne: %w", err)
	}
	return m.ToDomain(), nil
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	const op = "repo.UserRepo.List"
	tx := r.db.WithContext(ctx).Model(&user.UserModel{})
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	var rows []user.UserModel
	if err := tx.Offset(offset).Limit(limit).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]domain.User, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, total, nil
}

// UpdateEntitlement 事务内读-改-写，写入只落在权益相关列
func (r *UserRepo) UpdateEntitlement(ctx context.Context, id string, mutate func(u *domain.User) error) (*domain.User, error) {
	const op = "repo.UserRepo.UpdateEntitlement"
	var out *domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := loadUser(tx, id)
		if err != nil {
			return err
		}
		if err := mutate(u); err != nil {
			return err
		}
		if err := saveEntitlement(tx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

var errPaymentSeen = errors.New("payment already applied")

// ApplyPayment 记账 + 改权益在同一事务；ref 已记录过则不改动，返回 applied=false
func (r *UserRepo) ApplyPayment(ctx context.Context, id, ref string, at time.Time, mutate func(u *domain.User) error) (*domain.User, bool, error) {
	const op = "repo.UserRepo.ApplyPayment"
	var out *domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := loadUser(tx, id)
		if err != nil {
			return err
		}
		out = u

		var seen int64
		if err := tx.Model(&payment.PaymentModel{}).Where("ref = ?", ref).Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			return errPaymentSeen
		}
		// 并发同 ref：唯一约束兜底，回滚整个事务
		if err := tx.Create(&payment.PaymentModel{Ref: ref, UserID: id, AppliedAt: at}).Error; err != nil {
			if isDupKey(err) {
				return errPaymentSeen
			}
			return err
		}

		if err := mutate(u); err != nil {
			return err
		}
		return saveEntitlement(tx, u)
	})
	switch {
	case errors.Is(err, errPaymentSeen):
		return out, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return out, true, nil
}

func loadUser(tx *gorm.DB, id string) (*domain.User, error) {
	var m user.UserModel
	if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

func saveEntitlement(tx *gorm.DB, u *domain.User) error {
	return tx.Model(&user.UserModel{}).Where("id = ?", u.ID).Updates(map[string]any{
		"is_premium":       u.IsPremium,
		"premium_expires":  nullTime(u.PremiumExpires),
		"last_payment_at":  nullTime(u.LastPaymentAt),
		"last_payment_ref": u.LastPaymentRef,
	}).Error
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func isDupKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}
