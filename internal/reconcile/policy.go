package reconcile

import (
	"fmt"
	"time"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
)

// Names of the built-in catalog entries the migration relies on.
const (
	RarefactionCommand = "Single Rarefaction"
	RootArtifactType   = "BIOM"

	tableParameter = "biom_table"
	depthParameter = "depth"
)

// DefaultRarefactionDepth is the depth given to every synthesized
// rarefaction job. The legacy platform never recorded the real depth, so the
// value is a placeholder for operators to correct.
const DefaultRarefactionDepth = 1000

// GenericErrorMessage is the log message synthesized for failed legacy jobs
// that carry no log of their own.
const GenericErrorMessage = "Unknown error (migrated)"

// Policy holds the tunable parts of the migration.
type Policy struct {
	// Software owns the rarefaction command and the downstream targets.
	Software catalog.SoftwareRef

	// RarefactionDepth is the placeholder depth of the implicit rarefaction.
	RarefactionDepth int64

	// RootFileRole selects which analysis files become root artifacts.
	RootFileRole string

	// Workers > 1 migrates analyses concurrently, one unit of work each.
	Workers int

	// RetryBackoff is the wait before retrying a failed unit of work.
	RetryBackoff time.Duration
}

// DefaultPolicy returns the policy the legacy platform implied.
func DefaultPolicy() Policy {
	return Policy{
		Software:         catalog.SoftwareRef{Name: "QIIME", Version: "1.9.1"},
		RarefactionDepth: DefaultRarefactionDepth,
		RootFileRole:     "biom",
		Workers:          1,
		RetryBackoff:     250 * time.Millisecond,
	}
}

// Target is the command a legacy command code maps to and the output slot
// its result file fills.
type Target struct {
	Command string
	Output  string
}

// legacyCommands is the static table of legacy command codes.
var legacyCommands = map[int]Target{
	1: {Command: "Summarize Taxa", Output: "taxa_summary"},
	2: {Command: "Beta Diversity", Output: "distance_matrix"},
	3: {Command: "Alpha Rarefaction", Output: "rarefaction_curves"},
}

// LegacyCommands returns a copy of the command code table.
func LegacyCommands() map[int]Target {
	out := make(map[int]Target, len(legacyCommands))
	for k, v := range legacyCommands {
		out[k] = v
	}
	return out
}

// optionNames maps legacy option names (dashes stripped) to parameter names.
// Options not listed here are not recoverable and take the declared default.
var optionNames = map[string]string{
	"tree_fp":           "tree",
	"tree":              "tree",
	"metrics":           "metric",
	"metric":            "metric",
	"num_steps":         "num_steps",
	"min_rare_depth":    "min_rare_depth",
	"max_rare_depth":    "max_rare_depth",
	"metadata_category": "metadata_category",
	"category":          "metadata_category",
	"sort":              "sort",
}

// resolved is a Target bound to catalog entries.
type resolved struct {
	command *catalog.Command
	output  *catalog.Output
}

// resolvePolicy checks that the catalog provides every command the migration
// writes and returns them. It fails before any data is read.
func resolvePolicy(reg *catalog.Registry, p Policy) (resolved, map[int]resolved, error) {
	if !reg.Frozen() {
		return resolved{}, nil, fmt.Errorf("catalog must be frozen before reconciliation")
	}
	if _, err := reg.ArtifactType(RootArtifactType); err != nil {
		return resolved{}, nil, err
	}

	rare, err := resolveTarget(reg, p.Software, Target{Command: RarefactionCommand, Output: "rarefied_table"})
	if err != nil {
		return resolved{}, nil, err
	}
	if rare.output.ArtifactType() != RootArtifactType {
		return resolved{}, nil, &catalog.RegistryValidationError{
			Kind: catalog.ErrUnknownType,
			Msg:  fmt.Sprintf("%s must yield %s, not %s", RarefactionCommand, RootArtifactType, rare.output.ArtifactType()),
		}
	}
	for _, name := range []string{tableParameter, depthParameter} {
		if _, ok := rare.command.Parameter(name); !ok {
			return resolved{}, nil, &catalog.RegistryValidationError{
				Kind: catalog.ErrInvalidParameter,
				Msg:  fmt.Sprintf("%s has no %q parameter", RarefactionCommand, name),
			}
		}
	}

	targets := make(map[int]resolved, len(legacyCommands))
	for code, t := range legacyCommands {
		r, err := resolveTarget(reg, p.Software, t)
		if err != nil {
			return resolved{}, nil, fmt.Errorf("legacy command %d: %w", code, err)
		}
		param, ok := r.command.Parameter(tableParameter)
		if !ok || !param.Type().AcceptsArtifactType(RootArtifactType) {
			return resolved{}, nil, &catalog.RegistryValidationError{
				Kind: catalog.ErrInvalidParameter,
				Msg:  fmt.Sprintf("%s must take a %s %q parameter", t.Command, RootArtifactType, tableParameter),
			}
		}
		targets[code] = r
	}
	return rare, targets, nil
}

func resolveTarget(reg *catalog.Registry, sw catalog.SoftwareRef, t Target) (resolved, error) {
	cmd, err := reg.LookupCommand(sw, t.Command)
	if err != nil {
		return resolved{}, err
	}
	if cmd.ID() == 0 {
		return resolved{}, fmt.Errorf("command %q is not persisted", t.Command)
	}
	out, ok := cmd.Output(t.Output)
	if !ok {
		return resolved{}, &catalog.RegistryValidationError{
			Kind: catalog.ErrUnknownType,
			Msg:  fmt.Sprintf("%s has no output %q", t.Command, t.Output),
		}
	}
	return resolved{command: cmd, output: out}, nil
}
