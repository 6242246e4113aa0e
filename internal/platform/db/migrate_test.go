package db

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"github.com/parkwise/parkwise/migrations"
)

// offlineDB never connects; the provider only reads sources until Up runs.
func offlineDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("pgx", "postgres://parkwise@127.0.0.1:1/parkwise")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

func TestNewMigratorOrdersSources(t *testing.T) {
	fsys := fstest.MapFS{
		"00002_returns.sql": {Data: []byte("-- +goose Up\nSELECT 2;\n")},
		"00001_init.sql":    {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"README.md":         {Data: []byte("docs")},
	}
	provider, err := NewMigrator(offlineDB(t), fsys)
	require.NoError(t, err)

	sources := provider.ListSources()
	require.Len(t, sources, 2)
	require.Equal(t, int64(1), sources[0].Version)
	require.Equal(t, int64(2), sources[1].Version)
}

func TestNewMigratorRejectsDuplicateVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"00001_init.sql":  {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"00001_again.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
	}
	_, err := NewMigrator(offlineDB(t), fsys)
	require.Error(t, err)
}

func TestEmbeddedSchemaLoads(t *testing.T) {
	provider, err := NewMigrator(offlineDB(t), migrations.Files)
	require.NoError(t, err)
	sources := provider.ListSources()
	require.NotEmpty(t, sources)
	require.Equal(t, int64(1), sources[0].Version)
}
