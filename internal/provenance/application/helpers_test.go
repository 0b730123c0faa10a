package application

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	catalogapp "github.com/zjrosen/lineage/internal/catalog/application"
	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/infrastructure/sqlite"
	"github.com/zjrosen/lineage/internal/provenance/domain"
)

var (
	ts    = time.Unix(1_450_000_000, 0)
	qiime = catalog.SoftwareRef{Name: "QIIME", Version: "1.9.1"}
)

func setupDB(t *testing.T) (*sqlite.DB, *catalog.Registry) {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "lineage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg, err := catalogapp.NewService(catalogapp.CatalogFS(), catalogapp.DefaultCatalogPath).
		Load(context.Background(), db.CatalogRepository())
	require.NoError(t, err)
	return db, reg
}

func mustCommand(t *testing.T, reg *catalog.Registry, name string) *catalog.Command {
	t.Helper()
	cmd, err := reg.LookupCommand(qiime, name)
	require.NoError(t, err)
	return cmd
}

// memRepo is an in-memory domain.Repository used where a real database would
// make property tests slow.
type memRepo struct {
	artifacts map[int64]*domain.Artifact
	jobs      map[int64]*domain.ProcessingJob
	logs      map[int64]*domain.LogEntry
	files     map[int64]*domain.FileRef
	analyses  map[int64][]int64
	seq       int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		artifacts: map[int64]*domain.Artifact{},
		jobs:      map[int64]*domain.ProcessingJob{},
		logs:      map[int64]*domain.LogEntry{},
		files:     map[int64]*domain.FileRef{},
		analyses:  map[int64][]int64{},
	}
}

func (m *memRepo) next() int64 {
	m.seq++
	return m.seq
}

func (m *memRepo) InsertArtifact(_ context.Context, a *domain.Artifact) error {
	a.SetID(m.next())
	m.artifacts[a.ID()] = a
	return nil
}

func (m *memRepo) FindArtifact(_ context.Context, id int64) (*domain.Artifact, error) {
	a, ok := m.artifacts[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "artifact", ID: id}
	}
	return a, nil
}

func (m *memRepo) ArtifactType(ctx context.Context, id int64) (string, error) {
	a, err := m.FindArtifact(ctx, id)
	if err != nil {
		return "", err
	}
	return a.Type(), nil
}

func (m *memRepo) InsertParentEdge(_ context.Context, childID, parentID int64) error {
	m.artifacts[childID].AddParent(parentID)
	return nil
}

func (m *memRepo) HasAncestor(_ context.Context, id, ancestorID int64) (bool, error) {
	seen := map[int64]bool{}
	stack := slices.Clone(m.artifacts[id].Parents())
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == ancestorID {
			return true, nil
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, m.artifacts[cur].Parents()...)
	}
	return false, nil
}

func (m *memRepo) InsertJob(_ context.Context, j *domain.ProcessingJob) error {
	j.SetID(m.next())
	m.jobs[j.ID()] = j
	return nil
}

func (m *memRepo) FindJob(_ context.Context, id int64) (*domain.ProcessingJob, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "processing job", ID: id}
	}
	return j, nil
}

func (m *memRepo) UpdateJobStatus(_ context.Context, j *domain.ProcessingJob) error {
	m.jobs[j.ID()] = j
	return nil
}

func (m *memRepo) InsertLog(_ context.Context, e *domain.LogEntry) error {
	e.ID = m.next()
	m.logs[e.ID] = e
	return nil
}

func (m *memRepo) FindLog(_ context.Context, id int64) (*domain.LogEntry, error) {
	e, ok := m.logs[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "log", ID: id}
	}
	return e, nil
}

func (m *memRepo) FindLogByLegacyID(_ context.Context, legacyID int64) (*domain.LogEntry, error) {
	for _, e := range m.logs {
		if e.LegacyID == legacyID {
			return e, nil
		}
	}
	return nil, &domain.NotFoundError{Entity: "log", ID: legacyID}
}

func (m *memRepo) SaveFile(_ context.Context, f *domain.FileRef) error {
	for _, existing := range m.files {
		if f.LegacyID != 0 && existing.LegacyID == f.LegacyID {
			f.ID = existing.ID
			return nil
		}
	}
	f.ID = m.next()
	cp := *f
	m.files[f.ID] = &cp
	return nil
}

func (m *memRepo) LinkAnalysis(_ context.Context, analysisID, artifactID int64) error {
	if slices.Contains(m.analyses[analysisID], artifactID) {
		return domain.ErrDuplicateLink
	}
	m.analyses[analysisID] = append(m.analyses[analysisID], artifactID)
	return nil
}

func (m *memRepo) AnalysisLinked(_ context.Context, analysisID int64) (bool, error) {
	return len(m.analyses[analysisID]) > 0, nil
}

// memRegistry loads the built-in catalog and numbers its commands without a
// database.
func memRegistry(t require.TestingT) *catalog.Registry {
	reg, err := catalogapp.LoadCatalog(catalogapp.CatalogFS(), catalogapp.DefaultCatalogPath)
	require.NoError(t, err)
	for i, cmd := range reg.Commands() {
		cmd.SetID(int64(i + 1))
	}
	reg.Freeze()
	return reg
}
