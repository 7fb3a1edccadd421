package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/storage"
)

// RepositoryConfig is the configuration for the JSON file repository.
type RepositoryConfig struct {
	Path   string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.File"})
	return nil
}

// Repository stores the dataset as a JSON document on a file.
type Repository struct {
	path   string
	mu     sync.Mutex
	logger log.Logger
}

// NewRepository creates a new file repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create data directory: %w", err)
	}

	return &Repository{path: cfg.Path, logger: cfg.Logger}, nil
}

// GetDataset reads the dataset file. Missing and corrupt files return an empty dataset.
func (r *Repository) GetDataset(ctx context.Context) (*model.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d := model.NewDataset()
			return &d, nil
		}
		return nil, fmt.Errorf("could not read dataset: %w", err)
	}

	d, err := storage.DecodeDataset(data)
	if err != nil {
		r.logger.Warningf("Dataset file %s is corrupt, using an empty one: %s", r.path, err)
		empty := model.NewDataset()
		return &empty, nil
	}

	return d, nil
}

// SaveDataset replaces the dataset file atomically.
func (r *Repository) SaveDataset(ctx context.Context, d model.Dataset) error {
	data, err := storage.EncodeDataset(d)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("could not write dataset: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("could not replace dataset: %w", err)
	}
	r.logger.Debugf("Dataset saved at %s with %d comics", r.path, len(d.AllComics))

	return nil
}
