package postgres_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/storage/postgres"
)

type fakeRow struct {
	doc *string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.doc == nil {
		return pgx.ErrNoRows
	}
	*(dest[0].(*string)) = *r.doc
	return nil
}

// fakeDB keeps the last stored document.
type fakeDB struct {
	doc     *string
	execErr error
	queries []string
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	if strings.Contains(sql, "INSERT INTO comicsub_datasets") {
		doc := args[1].(string)
		f.doc = &doc
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{doc: f.doc}
}

func TestNewRepositoryCreatesSchema(t *testing.T) {
	db := &fakeDB{}
	_, err := postgres.NewRepository(context.Background(), postgres.RepositoryConfig{DB: db, Logger: log.Noop})
	require.NoError(t, err)

	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0], "CREATE TABLE IF NOT EXISTS comicsub_datasets")
}

func TestNewRepositorySchemaError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("boom")}
	_, err := postgres.NewRepository(context.Background(), postgres.RepositoryConfig{DB: db, Logger: log.Noop})
	assert.Error(t, err)
}

func TestRepositoryDataset(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	db := &fakeDB{}
	repo, err := postgres.NewRepository(ctx, postgres.RepositoryConfig{DB: db, Logger: log.Noop})
	require.NoError(err)

	got, err := repo.GetDataset(ctx)
	require.NoError(err)
	assert.Equal(model.NewDataset(), *got)

	d := model.Dataset{
		AllComics:     []model.Comic{{ID: "1", Name: "A"}},
		UpdatedComics: []model.Comic{},
		LastUpdated:   "2024-01-01 00:00:00",
	}
	require.NoError(repo.SaveDataset(ctx, d))

	got, err = repo.GetDataset(ctx)
	require.NoError(err)
	assert.Equal(d, *got)

	corrupt := "[1, 2"
	db.doc = &corrupt
	got, err = repo.GetDataset(ctx)
	require.NoError(err)
	assert.Equal(model.NewDataset(), *got)
}

func TestRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("COMICSUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COMICSUB_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	repo, err := postgres.NewRepository(ctx, postgres.RepositoryConfig{DB: pool, Logger: log.Noop})
	require.NoError(t, err)

	d := model.Dataset{
		AllComics:     []model.Comic{{ID: "1", Name: "A", Tags: []string{"x"}}},
		UpdatedComics: []model.Comic{{ID: "1", Name: "A", Tags: []string{"x"}}},
		LastUpdated:   "2024-01-01 00:00:00",
	}
	require.NoError(t, repo.SaveDataset(ctx, d))

	got, err := repo.GetDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, d, *got)
}
