package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/comicsub/internal/log"
)

//go:embed sql/*.sql
var schemaFiles embed.FS

// Schema applies the dataset schema to a SQLite database.
type Schema struct {
	db     *sql.DB
	logger log.Logger
}

// NewSchema returns the schema handler of db.
func NewSchema(db *sql.DB, logger log.Logger) (*Schema, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Schema{
		db:     db,
		logger: logger.WithValues(log.Kv{"svc": "sqlite.Schema"}),
	}, nil
}

// Apply migrates the schema to the latest version and returns it. Applying an
// up to date schema is a noop.
func (s *Schema) Apply() (uint, error) {
	var version uint
	err := s.with(func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not apply schema: %w", err)
		}

		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("could not get schema version: %w", err)
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty", v)
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debugf("Dataset schema at version %d", version)
	return version, nil
}

// Drop removes the dataset tables.
func (s *Schema) Drop() error {
	return s.with(func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not drop schema: %w", err)
		}
		return nil
	})
}

func (s *Schema) with(f func(m *migrate.Migrate) error) error {
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(schemaFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not read schema files: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warningf("Could not close schema files: %s", err)
		}
	}()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	return f(m)
}
