package db

import (
	"log"
	"os"
	"time"

	"go-ao3/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Migrate creates the schema for every entity the engine persists.
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&models.Work{},
		&models.Chapter{},
		&models.Bookmark{},
		&models.Download{},
		&models.Following{},
		&models.Tag{},
		&models.WorkTag{},
	)
}

func InitDB(databaseURL string) (*gorm.DB, error) {
	// Create a custom logger
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:                 newLogger,
		PrepareStmt:            true, // Enable prepared statement cache
		SkipDefaultTransaction: true, // Skip default transaction for performance
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(conn); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return conn, nil
}
