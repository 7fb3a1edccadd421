package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	// Dataset is the initial dataset, an empty one is used if missing.
	Dataset *model.Dataset
	Logger  log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Dataset == nil {
		d := model.NewDataset()
		c.Dataset = &d
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	dataset model.Dataset
	saves   int
	mu      sync.RWMutex
	logger  log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		dataset: cfg.Dataset.Copy(),
		logger:  cfg.Logger,
	}, nil
}

// GetDataset returns a copy of the stored dataset.
func (r *Repository) GetDataset(ctx context.Context) (*model.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := r.dataset.Copy()
	return &d, nil
}

// SaveDataset replaces the stored dataset.
func (r *Repository) SaveDataset(ctx context.Context, d model.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dataset = d.Copy()
	r.saves++
	r.logger.Debugf("Dataset saved with %d comics", len(d.AllComics))

	return nil
}

// Saves returns the number of times the dataset has been saved.
func (r *Repository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}
