// Package store persists folders, documents and carriers in a relational
// database and keeps page, signature and artifact bytes in badger.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/ddtscan/internal/config"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// DefaultPageTTL bounds how long spilled session pages survive a crash.
const DefaultPageTTL = 24 * time.Hour

// Store provides unified access to the relational database and BadgerDB
type Store struct {
	db      *gorm.DB
	badger  *badger.DB
	pageTTL time.Duration
	logger  *zap.Logger
}

// New opens both databases and migrates the schema
func New(cfg *config.Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := openDB(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&Folder{},
		&Document{},
		&Page{},
		&Carrier{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(64 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	pageTTL := DefaultPageTTL
	if ttl := time.Duration(cfg.Scanner.SessionTTLMinutes) * time.Minute; ttl > 0 {
		pageTTL = 2 * ttl
	}

	log.Info("Store opened",
		zap.String("driver", db.Dialector.Name()),
		zap.String("badger", badgerPath))

	return &Store{
		db:      db,
		badger:  badgerDB,
		pageTTL: pageTTL,
		logger:  log,
	}, nil
}

func openDB(cfg *config.StorageConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialector.Name(), err)
	}
	return db, nil
}

func dialectorFor(cfg *config.StorageConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.PostgresDSN), nil
	case "", "sqlite":
		sqlitePath := cfg.SQLitePath
		if sqlitePath == "" {
			sqlitePath = filepath.Join(cfg.DataDir, "ddtscan.db")
		}

		sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}

		sqliteDB.SetMaxOpenConns(10)
		sqliteDB.SetMaxIdleConns(5)
		sqliteDB.SetConnMaxLifetime(time.Hour)
		return sqlite.Dialector{Conn: sqliteDB}, nil
	}
	return nil, apperrors.ErrConfigInvalid.Withf("unknown storage driver %q", cfg.Driver)
}

// Close closes all database connections
func (s *Store) Close() error {
	var errs []error
	if sqlDB, err := s.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	errs = append(errs, s.badger.Close())
	return errors.Join(errs...)
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Badger returns the BadgerDB instance
func (s *Store) Badger() *badger.DB {
	return s.badger
}

// RunGC rewrites value log files until badger reports nothing left to
// reclaim and returns how many files were rewritten.
func (s *Store) RunGC(discardRatio float64) (int, error) {
	n := 0
	for {
		err := s.badger.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrNotFound.Withf("%s", what)
	}
	return err
}

// ==================== Blob Methods (BadgerDB) ====================

func (s *Store) setBlob(key string, value []byte, ttl time.Duration) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *Store) getBlob(key string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	if err != nil {
		return nil, notFound(err, key)
	}
	return val, nil
}

func (s *Store) deleteBlobs(keys ...string) error {
	wb := s.badger.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := wb.Delete([]byte(k)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *Store) deletePrefix(prefix string) error {
	var keys []string
	err := s.badger.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.deleteBlobs(keys...)
}

// ==================== Session Page Methods (BadgerDB) ====================

// PutPage spills an accumulated session page. Entries expire so a crashed
// session does not leak pages.
func (s *Store) PutPage(_ context.Context, key string, data []byte) error {
	return s.setBlob(key, data, s.pageTTL)
}

func (s *Store) GetPage(_ context.Context, key string) ([]byte, error) {
	return s.getBlob(key)
}

func (s *Store) DeletePages(_ context.Context, prefix string) error {
	return s.deletePrefix(prefix)
}

// ==================== Artifact Methods (BadgerDB) ====================

func artifactBlobKey(key string) string {
	return "artifact:" + key
}

func (s *Store) PutArtifact(_ context.Context, key string, data []byte) error {
	return s.setBlob(artifactBlobKey(key), data, 0)
}

func (s *Store) GetArtifact(_ context.Context, key string) ([]byte, error) {
	return s.getBlob(artifactBlobKey(key))
}
