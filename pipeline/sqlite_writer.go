package pipeline

import (
	"fmt"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aluiziolira/books-analytics/models"
)

// SQLiteWriter stores records in the books table of a SQLite database. Each
// writer starts from an empty table; records are keyed by detail URL.
type SQLiteWriter struct {
	db   *gorm.DB
	rows int64
	mu   sync.Mutex
}

// NewSQLiteWriter opens (or creates) the database at dsn and prepares the table.
func NewSQLiteWriter(dsn string) (*SQLiteWriter, error) {
	if dsn != ":memory:" {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&models.Book{}); err != nil {
		return nil, fmt.Errorf("migrate books table: %w", err)
	}
	if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Book{}).Error; err != nil {
		return nil, fmt.Errorf("clear books table: %w", err)
	}

	return &SQLiteWriter{db: db}, nil
}

// Write upserts books by URL.
func (sw *SQLiteWriter) Write(books []*models.Book) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if len(books) == 0 {
		return nil
	}
	result := sw.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&books)
	if result.Error != nil {
		return fmt.Errorf("insert books: %w", result.Error)
	}
	sw.rows += result.RowsAffected
	return nil
}

// Close releases the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sqlDB, err := sw.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite handle: %w", err)
	}
	return sqlDB.Close()
}

// Validate checks that the books table is reachable.
func (sw *SQLiteWriter) Validate() error {
	var count int64
	if err := sw.db.Model(&models.Book{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count books: %w", err)
	}
	return nil
}
