package domain

import (
	"slices"
	"time"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
)

// FileRef is a file attached to an artifact. LegacyID is the identifier the
// file had in the legacy platform, or 0 for files created after migration.
type FileRef struct {
	ID       int64
	LegacyID int64
	Path     string
	Role     catalog.FileRole
	Checksum string
}

// Artifact is a typed, provenance-tracked data product. An artifact without a
// producing job is a root artifact.
type Artifact struct {
	id             int64
	artifactType   string
	producingJobID int64
	outputSlot     string
	parents        []int64
	visibility     Visibility
	files          []FileRef
	createdAt      time.Time
}

// NewArtifact creates a root artifact, not yet persisted.
func NewArtifact(artifactType string, visibility Visibility, files []FileRef, createdAt time.Time) *Artifact {
	return &Artifact{
		artifactType: artifactType,
		visibility:   visibility,
		files:        slices.Clone(files),
		createdAt:    createdAt,
	}
}

// NewDerivedArtifact creates an artifact produced by a job output slot.
func NewDerivedArtifact(artifactType string, jobID int64, slot string, parents []int64, visibility Visibility, files []FileRef, createdAt time.Time) *Artifact {
	a := NewArtifact(artifactType, visibility, files, createdAt)
	a.producingJobID = jobID
	a.outputSlot = slot
	a.parents = normalizeIDs(parents)
	return a
}

// ReconstituteArtifact recreates an artifact from persisted data.
func ReconstituteArtifact(id int64, artifactType string, producingJobID int64, outputSlot string, parents []int64, visibility Visibility, files []FileRef, createdAt time.Time) *Artifact {
	return &Artifact{
		id:             id,
		artifactType:   artifactType,
		producingJobID: producingJobID,
		outputSlot:     outputSlot,
		parents:        normalizeIDs(parents),
		visibility:     visibility,
		files:          slices.Clone(files),
		createdAt:      createdAt,
	}
}

func normalizeIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func (a *Artifact) ID() int64 { return a.id }
func (a *Artifact) SetID(id int64) { a.id = id }
func (a *Artifact) Type() string { return a.artifactType }
func (a *Artifact) ProducingJobID() int64 { return a.producingJobID }
func (a *Artifact) OutputSlot() string { return a.outputSlot }
func (a *Artifact) Parents() []int64 { return slices.Clone(a.parents) }
func (a *Artifact) Visibility() Visibility { return a.visibility }
func (a *Artifact) Files() []FileRef { return slices.Clone(a.files) }
func (a *Artifact) CreatedAt() time.Time { return a.createdAt }
func (a *Artifact) IsRoot() bool { return a.producingJobID == 0 }

// HasParent reports whether id is a direct parent.
func (a *Artifact) HasParent(id int64) bool {
	_, ok := slices.BinarySearch(a.parents, id)
	return ok
}

// AddParent records a parent edge on the in-memory entity.
func (a *Artifact) AddParent(id int64) {
	a.parents = normalizeIDs(append(a.parents, id))
}
