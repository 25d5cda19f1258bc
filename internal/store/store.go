// Package store persists sessions, their messages and the artifacts their
// turns produced in sqlite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tejas96/sdlc-agents-sub000/internal/cachemanager"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/workflow"
)

// InMemory opens a private in-memory database.
const InMemory = ":memory:"

const sessionTTL = 10 * time.Minute

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned for unknown sessions.
var ErrNotFound = errors.New("session not found")

// Store is the sqlite-backed session store. It is safe for concurrent use.
type Store struct {
	db       *sql.DB
	sessions *cachemanager.ReadThroughCache[string, workflow.Session, string]
	now      func() time.Time
}

// Open opens the database at path, creating it and applying migrations as
// needed. Pass InMemory for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	}

	log.Debug(log.CatStore, "Opening database", "path", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.ErrorErr(log.CatStore, "Failed to open database", err, "path", path)
		return nil, err
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		log.ErrorErr(log.CatStore, "Failed to ping database", err, "path", path)
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info(log.CatStore, "Connected to database", "path", path)
	return newStore(db), nil
}

func newStore(db *sql.DB) *Store {
	s := &Store{db: db, now: time.Now}
	cache := cachemanager.NewInMemoryCacheManager[string, workflow.Session]("sessions",
		cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	s.sessions = cachemanager.NewReadThroughCache[string, workflow.Session, string](cache, s.loadSession, false)
	return s
}

// migrateUp applies the embedded migrations. The migrate instance is not
// closed because closing it closes db.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	version, _, _ := m.Version()
	log.Debug(log.CatStore, "schema ready", "version", version)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) stamp() int64 {
	return s.now().UnixMilli()
}
