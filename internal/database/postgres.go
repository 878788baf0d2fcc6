package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rox-Lvmaohua/qrsignature/internal/config"
)

// Open connects to the configured postgres instance. TranslateError is on so
// unique-index violations surface as gorm.ErrDuplicatedKey, which the
// signature repository relies on for its conflict check.
func Open(cfg *config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
}
