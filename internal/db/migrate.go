package db

import (
	"tradeflow/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.User{},
		&models.TradeTemplate{},
		&models.TradeOffer{},
		&models.TradeRecord{},
		&models.TxLog{},
		&models.Notification{},
	)
}
