package database

import (
	"gorm.io/gorm"

	"github.com/Rox-Lvmaohua/qrsignature/internal/domain"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.SignSession{},
		&domain.UserSignature{},
	)
}
