// Package metadatastore implements C4: relational records for brains,
// sources (by kind), chat sessions, and chat messages, over gorm + sqlite
// with WAL journaling and a busy-timeout, following the teacher's
// internal/data/db/postgres.go bootstrap idiom adapted to a single-file
// embedded database per spec §5/§6.
package metadatastore

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/graphbrain/kgqa/internal/platform/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New opens (creating if absent) the sqlite database file at path, with
// WAL journaling and a 30s busy-timeout covering transient writer
// contention (spec §5).
func New(log *logger.Logger, path string) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("metadatastore: logger required")
	}
	if path == "" {
		path = "sqlite.db"
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=30000", path)

	gormLog := gormlogger.New(
		newGormWriter(log),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("metadatastore: open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("metadatastore: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // single-writer discipline; readers share the same WAL-mode handle

	if err := db.AutoMigrate(
		&BrainRow{}, &PdfRow{}, &TextFileRow{}, &MdFileRow{}, &DocxFileRow{}, &MemoRow{},
		&ChatSessionRow{}, &ChatRow{}, &CounterRow{},
	); err != nil {
		return nil, fmt.Errorf("metadatastore: automigrate: %w", err)
	}

	return &Service{db: db, log: log.With("service", "MetadataStore")}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }
