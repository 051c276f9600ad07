package mysql

import (
	"errors"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNoParseTime is returned for DSNs that would scan DATETIME columns as
// raw bytes instead of time.Time.
var ErrNoParseTime = errors.New("mysql: dsn must set parseTime=true")

// Open creates a GORM *DB backed by MySQL with a connection pool. Duplicate
// key errors are translated to gorm.ErrDuplicatedKey.
func Open(dsn string, maxOpen, maxIdle int, maxLife time.Duration) (*gorm.DB, error) {
	if !strings.Contains(strings.ToLower(dsn), "parsetime=true") {
		return nil, ErrNoParseTime
	}
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               dsn,
		DefaultStringSize: 191, // utf8mb4 index limit
	}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLife)

	return db, nil
}
