package payment

import "time"

// PaymentModel 已处理的支付单；Ref 唯一，重复回调靠它去重
type PaymentModel struct {
	Ref       string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"index;type:varchar(32);not null"`
	AppliedAt time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (PaymentModel) TableName() string { return "payments" }
