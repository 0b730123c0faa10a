package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	catalogapp "github.com/zjrosen/lineage/internal/catalog/application"
	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
)

// setupTestDB opens a fresh database in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "lineage.db"))
	require.NoError(t, err, "NewDB should succeed")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// setupCatalogDB opens a fresh database with the built-in catalog synced.
func setupCatalogDB(t *testing.T) (*DB, *catalog.Registry) {
	t.Helper()
	db := setupTestDB(t)
	reg, err := catalogapp.NewService(catalogapp.CatalogFS(), catalogapp.DefaultCatalogPath).
		Load(context.Background(), db.CatalogRepository())
	require.NoError(t, err, "built-in catalog should sync")
	return db, reg
}

var qiime = catalog.SoftwareRef{Name: "QIIME", Version: "1.9.1"}

func mustCommand(t *testing.T, reg *catalog.Registry, name string) *catalog.Command {
	t.Helper()
	cmd, err := reg.LookupCommand(qiime, name)
	require.NoError(t, err)
	return cmd
}
