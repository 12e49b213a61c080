// Package sqlite implements storage.SessionStore on a local SQLite file using gorm.
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Wallet is one row of the wallets table.
type Wallet struct {
	ID         uint      `gorm:"primaryKey"`
	PrivateKey string    `gorm:"uniqueIndex;not null"`
	PublicKey  string    `gorm:"index;not null"`
	ChatID     string    `gorm:"index;not null"`
	Position   int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"index"`
	IsActive   bool      `gorm:"index;not null;default:true"`
}

// TableName overrides the gorm default.
func (Wallet) TableName() string { return "wallets" }

// MonitoringSession is one row of the monitoring_sessions table.
type MonitoringSession struct {
	ID          uint       `gorm:"primaryKey"`
	ChatID      string     `gorm:"uniqueIndex;not null"`
	StartedAt   time.Time  `gorm:"index;not null"`
	StoppedAt   *time.Time `gorm:"index"`
	WalletCount int        `gorm:"not null;default:0"`
}

// TableName overrides the gorm default.
func (MonitoringSession) TableName() string { return "monitoring_sessions" }

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	db, err := gorm.Open(sqlite.Open(path), config)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY under concurrent saves
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Wallet{}, &MonitoringSession{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}

	return db, nil
}
