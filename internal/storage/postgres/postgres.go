package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/storage"
)

const datasetID = 1

const schema = `
	CREATE TABLE IF NOT EXISTS comicsub_datasets (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		document JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)
`

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool returns a checked Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// RepositoryConfig is the configuration for the Postgres repository.
type RepositoryConfig struct {
	DB     DB
	Logger log.Logger
	// Now is used to get the current time.
	Now func() time.Time
}

func (c *RepositoryConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Postgres"})
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Repository is a Postgres implementation of storage.Repository.
type Repository struct {
	db     DB
	logger log.Logger
	now    func() time.Time
}

// NewRepository creates a new Postgres repository, the schema is created if missing.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if _, err := cfg.DB.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("could not create schema: %w", err)
	}

	return &Repository{db: cfg.DB, logger: cfg.Logger, now: cfg.Now}, nil
}

// GetDataset returns the stored dataset.
func (r *Repository) GetDataset(ctx context.Context) (*model.Dataset, error) {
	var doc string
	err := r.db.QueryRow(ctx, `SELECT document::text FROM comicsub_datasets WHERE id = $1`, datasetID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		d := model.NewDataset()
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
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

	query := `
		INSERT INTO comicsub_datasets (id, document, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (id) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Exec(ctx, query, datasetID, string(doc), r.now().UTC()); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}

	r.logger.Debugf("Dataset saved with %d comics", len(d.AllComics))
	return nil
}
