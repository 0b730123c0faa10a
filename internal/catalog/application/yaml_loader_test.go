package catalog

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/lineage/internal/catalog/domain"
)

func catalogFS(content string) fstest.MapFS {
	return fstest.MapFS{
		"catalog.yaml": &fstest.MapFile{Data: []byte(content)},
	}
}

const minimalCatalog = `
artifact_types:
  - name: BIOM
    file_roles: [biom]
  - name: distance_matrix
    file_roles: [plain_text]
software:
  - name: QIIME
    version: "1.9.1"
    commands:
      - name: Beta Diversity
        parameters:
          - name: biom_table
            type: 'artifact:["BIOM"]'
          - name: tree
            type: string
            default: ""
        outputs:
          - name: distance_matrix
            artifact_type: distance_matrix
`

func TestLoadCatalog(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		wantCommands int
		wantErr      error
		errContains  string
	}{
		{
			name:         "valid minimal catalog",
			yamlContent:  minimalCatalog,
			wantCommands: 1,
		},
		{
			name: "unknown output type",
			yamlContent: `
artifact_types:
  - name: BIOM
software:
  - name: QIIME
    version: "1.9.1"
    commands:
      - name: Summarize Taxa
        parameters:
          - name: biom_table
            type: 'artifact:["BIOM"]'
        outputs:
          - name: taxa_summary
            artifact_type: taxa_summary
`,
			wantErr: catalog.ErrUnknownType,
		},
		{
			name: "duplicate command",
			yamlContent: `
artifact_types:
  - name: BIOM
software:
  - name: QIIME
    version: "1.9.1"
    commands:
      - name: A
      - name: A
`,
			wantErr: catalog.ErrDuplicateCommand,
		},
		{
			name: "bad parameter type",
			yamlContent: `
software:
  - name: QIIME
    version: "1.9.1"
    commands:
      - name: A
        parameters:
          - name: x
            type: matrix
`,
			wantErr:     catalog.ErrInvalidParameter,
			errContains: `parameter "x"`,
		},
		{
			name:        "invalid yaml",
			yamlContent: "artifact_types: [",
			errContains: "parse catalog.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := LoadCatalog(catalogFS(tt.yamlContent), "catalog.yaml")
			if tt.wantErr != nil || tt.errContains != "" {
				require.Error(t, err)
				if tt.wantErr != nil {
					require.ErrorIs(t, err, tt.wantErr)
				}
				if tt.errContains != "" {
					require.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			require.Len(t, reg.Commands(), tt.wantCommands)
			require.False(t, reg.Frozen(), "LoadCatalog should not freeze the registry")
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(fstest.MapFS{}, "nope.yaml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "read nope.yaml")
}

func TestLoadCatalog_RequiredDefaultsToNoDefault(t *testing.T) {
	reg, err := LoadCatalog(catalogFS(minimalCatalog), "catalog.yaml")
	require.NoError(t, err)

	cmd, err := reg.LookupCommand(catalog.SoftwareRef{Name: "QIIME", Version: "1.9.1"}, "Beta Diversity")
	require.NoError(t, err)

	table, ok := cmd.Parameter("biom_table")
	require.True(t, ok)
	require.True(t, table.Required(), "a parameter without default is required")

	tree, ok := cmd.Parameter("tree")
	require.True(t, ok)
	require.False(t, tree.Required(), "a parameter with a default is optional")
	d, ok := tree.DefaultText()
	require.True(t, ok)
	require.Equal(t, "", d, "an empty default is still a default")
}

func TestBuiltinCatalog(t *testing.T) {
	reg, err := LoadCatalog(CatalogFS(), DefaultCatalogPath)
	require.NoError(t, err, "the embedded catalog must always load")

	qiime := catalog.SoftwareRef{Name: "QIIME", Version: "1.9.1"}
	expected := map[string]string{
		"Single Rarefaction": "BIOM",
		"Summarize Taxa":     "taxa_summary",
		"Beta Diversity":     "distance_matrix",
		"Alpha Rarefaction":  "rarefaction_curves",
	}
	for name, outType := range expected {
		cmd, err := reg.LookupCommand(qiime, name)
		require.NoError(t, err, "missing command %q", name)
		require.Len(t, cmd.Outputs(), 1, "%q should declare one output", name)
		require.Equal(t, outType, cmd.Outputs()[0].ArtifactType())

		p, ok := cmd.Parameter("biom_table")
		require.True(t, ok, "%q should take a biom_table", name)
		require.True(t, p.Type().AcceptsArtifactType("BIOM"))
	}

	rare, err := reg.LookupCommand(qiime, "Single Rarefaction")
	require.NoError(t, err)
	depth, ok := rare.Parameter("depth")
	require.True(t, ok)
	d, ok := depth.Default()
	require.True(t, ok)
	require.Equal(t, catalog.IntegerValue(1000), d)

	_, err = reg.LookupCommand(catalog.SoftwareRef{Name: "Qiita", Version: "alpha"}, "copy_artifact")
	require.NoError(t, err)
}

type fakeRepo struct {
	types    []string
	software map[catalog.SoftwareRef]int64
	commands map[string]int64
	failWith error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{software: map[catalog.SoftwareRef]int64{}, commands: map[string]int64{}}
}

func (f *fakeRepo) SaveArtifactType(_ context.Context, at *catalog.ArtifactType) error {
	f.types = append(f.types, at.Name())
	return nil
}

func (f *fakeRepo) SaveSoftware(_ context.Context, ref catalog.SoftwareRef) (int64, error) {
	if id, ok := f.software[ref]; ok {
		return id, nil
	}
	id := int64(len(f.software) + 1)
	f.software[ref] = id
	return id, nil
}

func (f *fakeRepo) SaveCommand(_ context.Context, softwareID int64, cmd *catalog.Command) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	key := cmd.Software().String() + "/" + cmd.Name()
	if id, ok := f.commands[key]; ok {
		return id, nil
	}
	id := int64(len(f.commands) + 100)
	f.commands[key] = id
	return id, nil
}

func TestService_Load(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(CatalogFS(), DefaultCatalogPath)

	reg, err := svc.Load(context.Background(), repo)
	require.NoError(t, err)
	require.True(t, reg.Frozen(), "Load should freeze the registry")
	require.Len(t, repo.types, len(reg.ArtifactTypes()))

	for _, cmd := range reg.Commands() {
		require.NotZero(t, cmd.ID(), "command %q should have a persistent id", cmd.Name())
		found, err := reg.LookupCommandByID(cmd.ID())
		require.NoError(t, err)
		require.Same(t, cmd, found)
	}
}

func TestService_LoadSignatureChanged(t *testing.T) {
	repo := newFakeRepo()
	repo.failWith = catalog.ErrSignatureChanged

	_, err := NewService(CatalogFS(), DefaultCatalogPath).Load(context.Background(), repo)
	require.ErrorIs(t, err, catalog.ErrSignatureChanged)
}
