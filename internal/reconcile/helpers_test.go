package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	catalogapp "github.com/zjrosen/lineage/internal/catalog/application"
	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/infrastructure/sqlite"
	"github.com/zjrosen/lineage/internal/legacy/sqlsource"
	"github.com/zjrosen/lineage/internal/provenance/domain"
	"github.com/zjrosen/lineage/internal/testutil"
)

var runClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *sqlite.DB
	reg    *catalog.Registry
	source *sqlsource.Source
	legacy *sql.DB
	engine *Engine
}

// newFixture builds a legacy database with build, a fresh provenance store
// with the built-in catalog, and an engine wired to both.
func newFixture(t testutil.T, dir string, build func(*testutil.Builder), opts ...Option) *fixture {
	t.Helper()
	legacyPath := filepath.Join(dir, "legacy.db")
	ldb := testutil.OpenLegacyDB(t, legacyPath)
	build(testutil.NewBuilder(t, ldb))

	store, err := sqlite.NewDB(filepath.Join(dir, "lineage.db"))
	require.NoError(t, err)
	reg, err := catalogapp.NewService(catalogapp.CatalogFS(), catalogapp.DefaultCatalogPath).
		Load(context.Background(), store.CatalogRepository())
	require.NoError(t, err)

	src := sqlsource.New(ldb, sqlsource.DriverSQLite)
	opts = append([]Option{
		WithFiles(store.FileStore(dir)),
		WithRuns(store.RunRepository()),
		WithClock(func() time.Time { return runClock }),
		WithPolicy(fastPolicy()),
	}, opts...)
	engine, err := New(reg, store, src, opts...)
	require.NoError(t, err)

	return &fixture{store: store, reg: reg, source: src, legacy: ldb, engine: engine}
}

func (f *fixture) close() {
	_ = f.store.Close()
	_ = f.legacy.Close()
}

func setup(t *testing.T, build func(*testutil.Builder), opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, t.TempDir(), build, opts...)
	t.Cleanup(f.close)
	return f
}

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.RetryBackoff = time.Millisecond
	return p
}

func (f *fixture) counts(t testutil.T) domain.RowCounts {
	t.Helper()
	c, err := f.store.Reader().CountRows(context.Background())
	require.NoError(t, err)
	return c
}

func (f *fixture) artifactsOfType(t *testing.T, typ string) []*domain.Artifact {
	t.Helper()
	all, err := f.store.Reader().ListArtifacts(context.Background())
	require.NoError(t, err)
	var out []*domain.Artifact
	for _, a := range all {
		if a.Type() == typ {
			out = append(out, a)
		}
	}
	return out
}

func (f *fixture) jobsOf(t *testing.T, command string) []*domain.ProcessingJob {
	t.Helper()
	cmd, err := f.reg.LookupCommand(DefaultPolicy().Software, command)
	require.NoError(t, err)
	all, err := f.store.Reader().ListJobs(context.Background())
	require.NoError(t, err)
	var out []*domain.ProcessingJob
	for _, j := range all {
		if j.CommandID() == cmd.ID() {
			out = append(out, j)
		}
	}
	return out
}

func (f *fixture) legacyRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.legacy.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n))
	return n
}

func skipKinds(r *Report) map[int64]string {
	out := make(map[int64]string, len(r.Skips))
	for _, s := range r.Skips {
		out[s.JobID] = s.Kind
	}
	return out
}
