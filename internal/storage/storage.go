package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/slok/comicsub/internal/model"
)

// Repository is the interface for the dataset persistence. The dataset is
// always read and written as a whole document.
type Repository interface {
	// GetDataset returns the stored dataset, an empty skeleton when nothing
	// has been stored yet or the stored document is corrupt.
	GetDataset(ctx context.Context) (*model.Dataset, error)
	// SaveDataset replaces the stored dataset.
	SaveDataset(ctx context.Context, d model.Dataset) error
}

// EncodeDataset returns the JSON document of a dataset.
func EncodeDataset(d model.Dataset) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(d.Copy()); err != nil {
		return nil, fmt.Errorf("could not encode dataset: %w", err)
	}
	return b.Bytes(), nil
}

// DecodeDataset decodes a dataset JSON document, corrupt documents return an
// error wrapping model.ErrNotValid.
func DecodeDataset(data []byte) (*model.Dataset, error) {
	var d model.Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("could not decode dataset: %w: %w", err, model.ErrNotValid)
	}

	d = d.Copy()
	return &d, nil
}
