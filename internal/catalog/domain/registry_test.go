package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var qiime = SoftwareRef{Name: "QIIME", Version: "1.9.1"}

func strptr(s string) *string { return &s }

// newTestRegistry registers BIOM and distance_matrix types plus the QIIME software.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	_, err := r.RegisterArtifactType("BIOM", "BIOM table", "biom", "directory", "log")
	require.NoError(t, err)
	_, err = r.RegisterArtifactType("distance_matrix", "Distance matrix", "plain_text", "directory")
	require.NoError(t, err)
	require.NoError(t, r.RegisterSoftware(qiime))
	return r
}

func mustParam(t *testing.T, name string, typ string, required bool, def *string) *Parameter {
	t.Helper()
	pt, err := ParseParameterType(typ)
	require.NoError(t, err)
	p, err := NewParameter(name, pt, required, def)
	require.NoError(t, err)
	return p
}

func mustOutput(t *testing.T, name, at string) *Output {
	t.Helper()
	o, err := NewOutput(name, at)
	require.NoError(t, err)
	return o
}

func registerBeta(t *testing.T, r *Registry) *Command {
	t.Helper()
	cmd, err := r.RegisterCommand(qiime, "Beta Diversity", "beta diversity",
		[]*Parameter{
			mustParam(t, "biom_table", `artifact:["BIOM"]`, true, nil),
			mustParam(t, "tree", "string", false, strptr("")),
			mustParam(t, "metric", "string", false, strptr("binary_jaccard")),
		},
		[]*Output{mustOutput(t, "distance_matrix", "distance_matrix")},
	)
	require.NoError(t, err)
	return cmd
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := newTestRegistry(t)
	cmd := registerBeta(t, r)

	found, err := r.LookupCommand(qiime, "Beta Diversity")
	require.NoError(t, err)
	require.Same(t, cmd, found, "lookup should return the registered command")
	require.Len(t, r.Commands(), 1)
	require.Equal(t, []SoftwareRef{qiime}, r.Software())
}

func TestRegistry_UnknownTypeInParameter(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterCommand(qiime, "Summarize Taxa", "",
		[]*Parameter{mustParam(t, "biom_table", `artifact:["OTU table"]`, true, nil)},
		[]*Output{mustOutput(t, "taxa_summary", "BIOM")},
	)
	require.ErrorIs(t, err, ErrUnknownType)

	var rve *RegistryValidationError
	require.True(t, errors.As(err, &rve), "should be a RegistryValidationError")
}

func TestRegistry_UnknownTypeInOutput(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterCommand(qiime, "Summarize Taxa", "",
		[]*Parameter{mustParam(t, "biom_table", `artifact:["BIOM"]`, true, nil)},
		[]*Output{mustOutput(t, "taxa_summary", "taxa_summary")},
	)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistry_DuplicateCommand(t *testing.T) {
	r := newTestRegistry(t)
	registerBeta(t, r)

	_, err := r.RegisterCommand(qiime, "Beta Diversity", "", nil,
		[]*Output{mustOutput(t, "distance_matrix", "distance_matrix")})
	require.ErrorIs(t, err, ErrDuplicateCommand)

	// Same name under a new software version is a new command.
	next := SoftwareRef{Name: "QIIME", Version: "2.0"}
	require.NoError(t, r.RegisterSoftware(next))
	_, err = r.RegisterCommand(next, "Beta Diversity", "", nil,
		[]*Output{mustOutput(t, "distance_matrix", "distance_matrix")})
	require.NoError(t, err, "new software version should accept the same command name")
}

func TestRegistry_UnknownSoftware(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterCommand(SoftwareRef{Name: "mothur", Version: "1"}, "cluster", "", nil, nil)
	require.ErrorIs(t, err, ErrUnknownSoftware)
}

func TestRegistry_DuplicateArtifactType(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterArtifactType("BIOM", "again")
	require.ErrorIs(t, err, ErrDuplicateType)
}

func TestRegistry_DuplicateParameterName(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterCommand(qiime, "x", "",
		[]*Parameter{
			mustParam(t, "depth", "integer", true, nil),
			mustParam(t, "depth", "integer", true, nil),
		}, nil)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRegistry_Freeze(t *testing.T) {
	r := newTestRegistry(t)
	r.Freeze()
	require.True(t, r.Frozen())

	_, err := r.RegisterArtifactType("taxa_summary", "")
	require.ErrorIs(t, err, ErrRegistryFrozen)
	_, err = r.RegisterCommand(qiime, "late", "", nil, nil)
	require.ErrorIs(t, err, ErrRegistryFrozen)

	// Lookups keep working.
	_, err = r.ArtifactType("BIOM")
	require.NoError(t, err)
}

func TestRegistry_LookupCommandByID(t *testing.T) {
	r := newTestRegistry(t)
	cmd := registerBeta(t, r)

	_, err := r.LookupCommandByID(0)
	require.ErrorIs(t, err, ErrUnknownCommand, "unpersisted commands have no id")

	cmd.SetID(42)
	found, err := r.LookupCommandByID(42)
	require.NoError(t, err)
	require.Same(t, cmd, found)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LookupCommand(qiime, "nope")
	require.ErrorIs(t, err, ErrUnknownCommand)
	_, err = r.ArtifactType("nope")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestArtifactType_Accepts(t *testing.T) {
	r := newTestRegistry(t)
	at, err := r.ArtifactType("BIOM")
	require.NoError(t, err)
	require.True(t, at.Accepts("biom"))
	require.False(t, at.Accepts("plain_text"))
	require.Equal(t, []FileRole{"biom", "directory", "log"}, at.Roles())
}
