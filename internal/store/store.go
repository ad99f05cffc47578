// Package store provides SQLite storage for recognition history, sign
// bindings and settings.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

//go:embed migrations/*.sql
var migrationFS embed.FS

// pragmas are applied by the driver to every pooled connection.
const pragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Store is a migrated SQLite database.
type Store struct {
	db       *sql.DB
	path     string
	migrator *migrate.Migrate
}

// New opens the database at dbPath, creating it if needed, and brings the
// schema up to date.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	m, err := newMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("migrate up: %w", err)
	}

	return &Store{db: db, path: dbPath, migrator: m}, nil
}

// newMigrator reads the embedded migrations. The migrator shares db and is
// never closed on its own, since that would close db too.
func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{logger.Default()}
	return m, nil
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion() (uint, error) {
	version, dirty, err := s.migrator.Version()
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

type migrateLogger struct {
	logger.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.Debugf("migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}
