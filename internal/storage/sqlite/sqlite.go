package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/storage"
	"github.com/slok/comicsub/internal/storage/sqlite/migrations"
)

// datasetID is the row of the single stored dataset.
const datasetID = 1

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
	// Now is used to get the current time.
	Now func() time.Time
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
	now    func() time.Time
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	schema, err := migrations.NewSchema(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create schema: %w", err)
	}
	if _, err := schema.Apply(); err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger, now: cfg.Now}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// GetDataset returns the stored dataset.
func (r *Repository) GetDataset(ctx context.Context) (*model.Dataset, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM datasets WHERE id = ?`, datasetID).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			d := model.NewDataset()
			return &d, nil
		}
		return nil, fmt.Errorf("could not query dataset: %w", err)
	}

	d, err := storage.DecodeDataset([]byte(doc))
	if err != nil {
		r.logger.Warningf("Stored dataset is corrupt, using an empty one: %s", err)
		empty := model.NewDataset()
		return &empty, nil
	}

	return d, nil
}

// SaveDataset replaces the stored dataset.
func (r *Repository) SaveDataset(ctx context.Context, d model.Dataset) error {
	doc, err := storage.EncodeDataset(d)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO datasets (id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, datasetID, string(doc), r.now().Unix()); err != nil {
		return fmt.Errorf("could not store dataset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit dataset: %w", err)
	}

	r.logger.Debugf("Dataset saved with %d comics", len(d.AllComics))
	return nil
}
