package presentation

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	catalogapp "github.com/zjrosen/lineage/internal/catalog/application"
	"github.com/zjrosen/lineage/internal/runs"
)

func TestFromRegistry_FiltersSoftware(t *testing.T) {
	reg, err := catalogapp.LoadCatalog(catalogapp.CatalogFS(), catalogapp.DefaultCatalogPath)
	require.NoError(t, err)

	all := FromRegistry(reg, "")
	qiime := FromRegistry(reg, "QIIME")
	require.Greater(t, len(all.Commands), len(qiime.Commands))
	require.Len(t, qiime.Commands, 4)
	require.Equal(t, len(all.ArtifactTypes), len(qiime.ArtifactTypes), "types are never filtered")

	rare := qiime.Commands[0]
	require.Equal(t, "Single Rarefaction", rare.Name)
	require.Equal(t, `artifact:["BIOM"]`, rare.Parameters[0].Type)
	require.Nil(t, rare.Parameters[0].Default)
	require.Equal(t, "1000", *rare.Parameters[1].Default)
	require.Equal(t, []OutputDTO{{Name: "rarefied_table", ArtifactType: "BIOM"}}, rare.Outputs)
	require.Len(t, rare.Fingerprint, 64)
}

func TestFormatter_Runs(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rs := []*runs.Run{{RunID: "r1", Outcome: runs.OutcomePartial, StartedAt: at, FinishedAt: at, Report: json.RawMessage(`{"skips":[]}`)}}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).FormatRuns(FromRuns(rs, false)))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "partial", out[0]["outcome"])
	require.NotContains(t, out[0], "report")
	require.NotContains(t, out[0], "cleaned_at")

	buf.Reset()
	require.NoError(t, NewFormatter(&buf).FormatRuns(FromRuns(rs, true)))
	require.Contains(t, buf.String(), `"skips": []`)
}
