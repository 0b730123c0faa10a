package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/provenance/domain"
)

var ts = time.Unix(1_450_000_000, 0)

func TestProvenanceRepository_ArtifactRoundTrip(t *testing.T) {
	db, reg := setupCatalogDB(t)
	ctx := context.Background()
	rare := mustCommand(t, reg, "Single Rarefaction")

	var rootID, jobID, childID int64
	err := db.WithinTx(ctx, func(repo domain.Repository) error {
		file := &domain.FileRef{LegacyID: 11, Path: "1_analysis.biom", Role: "biom", Checksum: "42"}
		require.NoError(t, repo.SaveFile(ctx, file))

		root := domain.NewArtifact("BIOM", domain.VisibilitySandbox, []domain.FileRef{*file}, ts)
		require.NoError(t, repo.InsertArtifact(ctx, root))
		rootID = root.ID()

		job := domain.NewProcessingJob(rare.ID(), catalog.Binding{
			"biom_table": catalog.ArtifactValue(rootID),
			"depth":      catalog.IntegerValue(1000),
		}, domain.JobSuccess, 0, ts)
		require.NoError(t, repo.InsertJob(ctx, job))
		jobID = job.ID()

		child := domain.NewDerivedArtifact("BIOM", jobID, "rarefied_table", []int64{rootID}, domain.VisibilitySandbox, nil, ts)
		require.NoError(t, repo.InsertArtifact(ctx, child))
		childID = child.ID()
		return nil
	})
	require.NoError(t, err)

	reader := db.Reader()
	all, err := reader.ListArtifacts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	root := all[0]
	require.Equal(t, rootID, root.ID())
	require.True(t, root.IsRoot())
	require.Len(t, root.Files(), 1)
	require.Equal(t, int64(11), root.Files()[0].LegacyID)
	require.Equal(t, ts, root.CreatedAt())

	child := all[1]
	require.Equal(t, childID, child.ID())
	require.Equal(t, jobID, child.ProducingJobID())
	require.Equal(t, "rarefied_table", child.OutputSlot())
	require.Equal(t, []int64{rootID}, child.Parents())

	jobs, err := reader.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, catalog.ArtifactValue(rootID), jobs[0].Binding()["biom_table"])
	require.Equal(t, domain.JobSuccess, jobs[0].Status())
}

func TestProvenanceRepository_HasAncestor(t *testing.T) {
	db, _ := setupCatalogDB(t)
	ctx := context.Background()

	err := db.WithinTx(ctx, func(repo domain.Repository) error {
		// a <- b <- c, plus a <- d
		ids := make([]int64, 4)
		for i := range ids {
			a := domain.NewArtifact("BIOM", domain.VisibilitySandbox, nil, ts)
			require.NoError(t, repo.InsertArtifact(ctx, a))
			ids[i] = a.ID()
		}
		a, b, c, d := ids[0], ids[1], ids[2], ids[3]
		require.NoError(t, repo.InsertParentEdge(ctx, b, a))
		require.NoError(t, repo.InsertParentEdge(ctx, c, b))
		require.NoError(t, repo.InsertParentEdge(ctx, d, a))
		require.NoError(t, repo.InsertParentEdge(ctx, d, a), "duplicate edges are ignored")

		for _, tc := range []struct {
			from, to int64
			want     bool
		}{
			{c, a, true},
			{c, b, true},
			{a, c, false},
			{d, b, false},
			{a, a, false},
		} {
			got, err := repo.HasAncestor(ctx, tc.from, tc.to)
			require.NoError(t, err)
			require.Equal(t, tc.want, got, "HasAncestor(%d, %d)", tc.from, tc.to)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestProvenanceRepository_ErrorJobNeedsLog(t *testing.T) {
	db, reg := setupCatalogDB(t)
	ctx := context.Background()
	beta := mustCommand(t, reg, "Beta Diversity")

	err := db.WithinTx(ctx, func(repo domain.Repository) error {
		return repo.InsertJob(ctx, domain.NewProcessingJob(beta.ID(), catalog.Binding{}, domain.JobError, 0, ts))
	})
	require.Error(t, err, "the schema rejects an error job without a log reference")

	err = db.WithinTx(ctx, func(repo domain.Repository) error {
		entry := &domain.LogEntry{LegacyID: 3, Time: ts, Msg: "Unknown error (migrated)"}
		if err := repo.InsertLog(ctx, entry); err != nil {
			return err
		}
		found, err := repo.FindLogByLegacyID(ctx, 3)
		require.NoError(t, err)
		require.Equal(t, entry.ID, found.ID)
		return repo.InsertJob(ctx, domain.NewProcessingJob(beta.ID(), catalog.Binding{}, domain.JobError, entry.ID, ts))
	})
	require.NoError(t, err)
}

func TestProvenanceRepository_LinkAnalysis(t *testing.T) {
	db, _ := setupCatalogDB(t)
	ctx := context.Background()

	err := db.WithinTx(ctx, func(repo domain.Repository) error {
		a := domain.NewArtifact("BIOM", domain.VisibilitySandbox, nil, ts)
		require.NoError(t, repo.InsertArtifact(ctx, a))

		linked, err := repo.AnalysisLinked(ctx, 7)
		require.NoError(t, err)
		require.False(t, linked)

		require.NoError(t, repo.LinkAnalysis(ctx, 7, a.ID()))
		linked, err = repo.AnalysisLinked(ctx, 7)
		require.NoError(t, err)
		require.True(t, linked)

		err = repo.LinkAnalysis(ctx, 7, a.ID())
		require.ErrorIs(t, err, domain.ErrDuplicateLink, "the unique key rejects a second identical link")
		return nil
	})
	require.NoError(t, err)
}

func TestProvenanceRepository_SaveFileByLegacyID(t *testing.T) {
	db, _ := setupCatalogDB(t)
	ctx := context.Background()

	err := db.WithinTx(ctx, func(repo domain.Repository) error {
		first := &domain.FileRef{LegacyID: 5, Path: "a.biom", Role: "biom"}
		require.NoError(t, repo.SaveFile(ctx, first))
		again := &domain.FileRef{LegacyID: 5, Path: "a.biom", Role: "biom"}
		require.NoError(t, repo.SaveFile(ctx, again))
		require.Equal(t, first.ID, again.ID, "a legacy file is imported once")
		return nil
	})
	require.NoError(t, err)
}

func TestDB_WithinTxRollsBack(t *testing.T) {
	db, _ := setupCatalogDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithinTx(ctx, func(repo domain.Repository) error {
		require.NoError(t, repo.InsertArtifact(ctx, domain.NewArtifact("BIOM", domain.VisibilitySandbox, nil, ts)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	counts, err := db.Reader().CountRows(ctx)
	require.NoError(t, err)
	require.Zero(t, counts.Artifacts, "a failed unit of work leaves nothing behind")
}

func TestDB_RehearseNeverCommits(t *testing.T) {
	db, _ := setupCatalogDB(t)
	ctx := context.Background()

	var inside domain.RowCounts
	err := db.Rehearse(ctx, func(repo domain.Repository) error {
		require.NoError(t, repo.InsertArtifact(ctx, domain.NewArtifact("BIOM", domain.VisibilitySandbox, nil, ts)))
		var err error
		inside, err = repo.(domain.Reader).CountRows(ctx)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, inside.Artifacts, "the rehearsal sees its own writes")

	counts, err := db.Reader().CountRows(ctx)
	require.NoError(t, err)
	require.Zero(t, counts.Artifacts)
}

func TestProvenanceRepository_NotFound(t *testing.T) {
	db, _ := setupCatalogDB(t)
	ctx := context.Background()

	err := db.WithinTx(ctx, func(repo domain.Repository) error {
		_, err := repo.FindArtifact(ctx, 999)
		require.True(t, domain.IsNotFound(err))
		_, err = repo.FindJob(ctx, 999)
		require.True(t, domain.IsNotFound(err))
		_, err = repo.FindLogByLegacyID(ctx, 999)
		require.True(t, domain.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}
