package presentation

import (
	"encoding/json"
	"time"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/runs"
)

// CatalogDTO represents the command catalog for presentation
type CatalogDTO struct {
	ArtifactTypes []ArtifactTypeDTO `json:"artifact_types"`
	Commands      []CommandDTO      `json:"commands"`
}

// ArtifactTypeDTO represents an artifact type and the file roles it accepts
type ArtifactTypeDTO struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	FileRoles   []string `json:"file_roles"`
}

// CommandDTO represents a command signature
type CommandDTO struct {
	ID          int64          `json:"id"`
	Software    string         `json:"software"`
	Version     string         `json:"version"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  []ParameterDTO `json:"parameters"`
	Outputs     []OutputDTO    `json:"outputs"`
	Fingerprint string         `json:"fingerprint"`
}

// ParameterDTO represents one parameter of a command
type ParameterDTO struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Required bool    `json:"required"`
	Default  *string `json:"default,omitempty"`
}

// OutputDTO represents one output slot of a command
type OutputDTO struct {
	Name         string `json:"name"`
	ArtifactType string `json:"artifact_type"`
}

// FromCommand converts a catalog command to a DTO.
func FromCommand(cmd *catalog.Command) CommandDTO {
	params := make([]ParameterDTO, 0, len(cmd.Parameters()))
	for _, p := range cmd.Parameters() {
		dto := ParameterDTO{Name: p.Name(), Type: p.Type().String(), Required: p.Required()}
		if d, ok := p.DefaultText(); ok {
			dto.Default = &d
		}
		params = append(params, dto)
	}
	outputs := make([]OutputDTO, 0, len(cmd.Outputs()))
	for _, o := range cmd.Outputs() {
		outputs = append(outputs, OutputDTO{Name: o.Name(), ArtifactType: o.ArtifactType()})
	}
	return CommandDTO{
		ID:          cmd.ID(),
		Software:    cmd.Software().Name,
		Version:     cmd.Software().Version,
		Name:        cmd.Name(),
		Description: cmd.Description(),
		Parameters:  params,
		Outputs:     outputs,
		Fingerprint: cmd.Fingerprint(),
	}
}

// FromRegistry converts the registry to a DTO. A non-empty software name
// keeps only the commands of that package.
func FromRegistry(reg *catalog.Registry, software string) CatalogDTO {
	dto := CatalogDTO{ArtifactTypes: make([]ArtifactTypeDTO, 0), Commands: make([]CommandDTO, 0)}
	for _, at := range reg.ArtifactTypes() {
		roles := make([]string, 0, len(at.Roles()))
		for _, r := range at.Roles() {
			roles = append(roles, string(r))
		}
		dto.ArtifactTypes = append(dto.ArtifactTypes, ArtifactTypeDTO{Name: at.Name(), Description: at.Description(), FileRoles: roles})
	}
	for _, cmd := range reg.Commands() {
		if software != "" && cmd.Software().Name != software {
			continue
		}
		dto.Commands = append(dto.Commands, FromCommand(cmd))
	}
	return dto
}

// RunDTO represents a recorded migration run
type RunDTO struct {
	RunID          string          `json:"run_id"`
	DryRun         bool            `json:"dry_run"`
	Outcome        runs.Outcome    `json:"outcome"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	CleanedAt      *time.Time      `json:"cleaned_at,omitempty"`
	Report         json.RawMessage `json:"report,omitempty"`
}

// FromRuns converts recorded runs to DTOs. Reports are included only when
// withReport is set.
func FromRuns(rs []*runs.Run, withReport bool) []RunDTO {
	dtos := make([]RunDTO, len(rs))
	for i, r := range rs {
		dtos[i] = RunDTO{
			RunID:          r.RunID,
			DryRun:         r.DryRun,
			Outcome:        r.Outcome,
			StartedAt:      r.StartedAt,
			FinishedAt:     r.FinishedAt,
			AcknowledgedAt: r.AcknowledgedAt,
			CleanedAt:      r.CleanedAt,
		}
		if withReport {
			dtos[i].Report = r.Report
		}
	}
	return dtos
}
