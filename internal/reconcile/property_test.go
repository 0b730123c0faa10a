package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/lineage/internal/testutil"
)

// legacyDataset draws a small legacy database: every analysis has at least
// one root table and every job belongs to at most one analysis.
func legacyDataset(r *rapid.T) (func(*testutil.Builder), int) {
	analyses := rapid.IntRange(1, 3).Draw(r, "analyses")
	roots := make(map[int64][]string, analyses)
	fileID := int64(1000)
	var steps []func(*testutil.Builder)

	for a := int64(1); a <= int64(analyses); a++ {
		n := rapid.IntRange(1, 2).Draw(r, fmt.Sprintf("roots_%d", a))
		var opts []testutil.AnalysisOption
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("%d_analysis_%d.biom", a, i)
			roots[a] = append(roots[a], name)
			fileID++
			opts = append(opts, testutil.RootFile(testutil.File(fileID, name, "biom")))
		}
		steps = append(steps, func(b *testutil.Builder) { b.WithAnalysis(a, opts...) })
	}

	jobs := rapid.IntRange(0, 6).Draw(r, "jobs")
	for j := int64(1); j <= int64(jobs); j++ {
		analysis := rapid.Int64Range(0, int64(analyses)).Draw(r, fmt.Sprintf("analysis_%d", j))
		code := rapid.SampledFrom([]int{1, 2, 3, 9}).Draw(r, fmt.Sprintf("code_%d", j))

		var blob string
		switch rapid.IntRange(0, 4).Draw(r, fmt.Sprintf("options_%d", j)) {
		case 0:
			blob = ""
		case 1:
			blob = `{"tree_fp":"/x/tree.nwk"}`
		case 2:
			blob = `{"otu_table_fp":`
		default:
			src := "elsewhere.biom"
			if analysis != 0 {
				src = rapid.SampledFrom(roots[analysis]).Draw(r, fmt.Sprintf("source_%d", j))
			}
			blob = fmt.Sprintf(`{"--otu_table_fp":"/qiita/%s","num_steps":5}`, src)
		}

		opts := []testutil.JobOption{testutil.Options(blob)}
		if analysis != 0 {
			opts = append(opts, testutil.InAnalysis(analysis))
		}
		if rapid.Bool().Draw(r, fmt.Sprintf("result_%d", j)) {
			fileID++
			opts = append(opts, testutil.Result(testutil.File(fileID, fmt.Sprintf("job_%d.txt", j), "plain_text")))
		} else if rapid.Bool().Draw(r, fmt.Sprintf("log_%d", j)) {
			opts = append(opts, testutil.ErrorLog(j, "failed"))
		}
		steps = append(steps, func(b *testutil.Builder) { b.WithJob(j, code, opts...) })
	}

	return func(b *testutil.Builder) {
		for _, step := range steps {
			step(b)
		}
		b.Build()
	}, jobs
}

func TestRun_Properties(t *testing.T) {
	base := t.TempDir()
	iteration := 0

	rapid.Check(t, func(r *rapid.T) {
		iteration++
		dir := filepath.Join(base, fmt.Sprint(iteration))
		require.NoError(r, os.MkdirAll(dir, 0o700))

		build, jobs := legacyDataset(r)
		f := newFixture(r, dir, build)
		defer f.close()
		ctx := context.Background()

		report, err := f.engine.Run(ctx, Options{})
		require.NoError(r, err)
		require.Empty(r, report.Failures)

		problems, err := Verify(ctx, f.store.Reader(), f.reg)
		require.NoError(r, err)
		require.Empty(r, problems, "a migrated store satisfies every graph invariant")

		counts := f.counts(r)
		transferred := counts.Jobs - report.Placeholder.Jobs
		skipped := 0
		for _, s := range report.Skips {
			if s.JobID != 0 {
				skipped++
			}
		}
		require.Equal(r, jobs, len(report.Pruned)+skipped+transferred, "every legacy job is pruned, skipped or transferred exactly once")

		again, err := f.engine.Run(ctx, Options{})
		require.NoError(r, err)
		require.Equal(r, counts, f.counts(r), "a second run inserts nothing")
		require.Len(r, again.AlreadyMigrated, len(report.Migrated))
	})
}
