package db

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cloudintake/sentinel/internal/db/models"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := gdb.AutoMigrate(
		&models.Account{},
		&models.ConnectionHealth{},
		&models.UploadTask{},
		&models.Config{},
	); err != nil {
		return nil, err
	}

	ensureAPIKey(gdb)

	return gdb, nil
}

// ensureAPIKey generates the portal API key on first run.
func ensureAPIKey(gdb *gorm.DB) {
	var config models.Config
	result := gdb.Where("key = ?", "api_key").First(&config)

	if result.Error != nil {
		keyBytes := make([]byte, 16)
		rand.Read(keyBytes)
		apiKey := "sk-" + hex.EncodeToString(keyBytes)

		gdb.Create(&models.Config{
			Key:   "api_key",
			Value: apiKey,
		})
		log.Printf("[DB] Generated new API key: %s", apiKey)
	}
}

// GetAPIKey retrieves the portal API key from the database.
func GetAPIKey(gdb *gorm.DB) string {
	var config models.Config
	gdb.Where("key = ?", "api_key").First(&config)
	return config.Value
}
