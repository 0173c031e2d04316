package repo

import (
	"gorm.io/gorm"

	"subgate/internal/feature/payment"
	"subgate/internal/feature/user"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&user.UserModel{}, &payment.PaymentModel{})
}
