package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/provenance/domain"
)

// ArtifactModel represents the database row for the artifact table.
type ArtifactModel struct {
	ID             int64
	ArtifactType   string
	ProducingJobID *int64  // nullable, NULL for root artifacts
	OutputSlot     *string // nullable, set iff ProducingJobID is
	Visibility     string
	CreatedAt      int64 // Unix timestamp
}

func toArtifactModel(a *domain.Artifact) *ArtifactModel {
	m := &ArtifactModel{
		ID:           a.ID(),
		ArtifactType: a.Type(),
		Visibility:   string(a.Visibility()),
		CreatedAt:    a.CreatedAt().Unix(),
	}
	if !a.IsRoot() {
		jobID := a.ProducingJobID()
		slot := a.OutputSlot()
		m.ProducingJobID = &jobID
		m.OutputSlot = &slot
	}
	return m
}

func (m *ArtifactModel) toDomain(parents []int64, files []domain.FileRef) *domain.Artifact {
	var jobID int64
	var slot string
	if m.ProducingJobID != nil {
		jobID = *m.ProducingJobID
	}
	if m.OutputSlot != nil {
		slot = *m.OutputSlot
	}
	return domain.ReconstituteArtifact(
		m.ID,
		m.ArtifactType,
		jobID,
		slot,
		parents,
		domain.Visibility(m.Visibility),
		files,
		time.Unix(m.CreatedAt, 0),
	)
}

// JobModel represents the database row for the processing_job table.
type JobModel struct {
	ID        int64
	CommandID int64
	Binding   string // JSON encoded catalog.Binding
	Status    string
	LogID     *int64 // nullable
	CreatedAt int64  // Unix timestamp
}

func toJobModel(j *domain.ProcessingJob) (*JobModel, error) {
	binding, err := json.Marshal(j.Binding())
	if err != nil {
		return nil, fmt.Errorf("encode binding: %w", err)
	}
	m := &JobModel{
		ID:        j.ID(),
		CommandID: j.CommandID(),
		Binding:   string(binding),
		Status:    string(j.Status()),
		CreatedAt: j.CreatedAt().Unix(),
	}
	if j.HasLog() {
		logID := j.LogID()
		m.LogID = &logID
	}
	return m, nil
}

func (m *JobModel) toDomain() (*domain.ProcessingJob, error) {
	var binding catalog.Binding
	if err := json.Unmarshal([]byte(m.Binding), &binding); err != nil {
		return nil, fmt.Errorf("decode binding of job %d: %w", m.ID, err)
	}
	var logID int64
	if m.LogID != nil {
		logID = *m.LogID
	}
	return domain.ReconstituteProcessingJob(
		m.ID,
		m.CommandID,
		binding,
		domain.JobStatus(m.Status),
		logID,
		time.Unix(m.CreatedAt, 0),
	), nil
}

// FileModel represents the database row for the filepath table.
type FileModel struct {
	ID         int64
	LegacyID   *int64 // nullable
	Path       string
	Role       string
	Checksum   string
	DetachedAt *int64 // Unix timestamp, nullable
}

func (m *FileModel) toDomain() domain.FileRef {
	f := domain.FileRef{
		ID:       m.ID,
		Path:     m.Path,
		Role:     catalog.FileRole(m.Role),
		Checksum: m.Checksum,
	}
	if m.LegacyID != nil {
		f.LegacyID = *m.LegacyID
	}
	return f
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface{ Scan(...any) error }

const artifactColumns = `id, artifact_type, producing_job_id, output_slot, visibility, created_at`

func scanArtifact(s scanner) (*ArtifactModel, error) {
	var m ArtifactModel
	err := s.Scan(&m.ID, &m.ArtifactType, &m.ProducingJobID, &m.OutputSlot, &m.Visibility, &m.CreatedAt)
	return &m, err
}

const jobColumns = `id, command_id, binding, status, log_id, created_at`

func scanJob(s scanner) (*JobModel, error) {
	var m JobModel
	err := s.Scan(&m.ID, &m.CommandID, &m.Binding, &m.Status, &m.LogID, &m.CreatedAt)
	return &m, err
}

const fileColumns = `f.id, f.legacy_id, f.path, f.role, f.checksum, f.detached_at`

func scanFile(s scanner) (*FileModel, error) {
	var m FileModel
	err := s.Scan(&m.ID, &m.LegacyID, &m.Path, &m.Role, &m.Checksum, &m.DetachedAt)
	return &m, err
}

func scanLog(s scanner) (*domain.LogEntry, error) {
	var (
		e        domain.LogEntry
		legacyID sql.NullInt64
		ts       int64
	)
	if err := s.Scan(&e.ID, &legacyID, &ts, &e.Msg); err != nil {
		return nil, err
	}
	e.LegacyID = legacyID.Int64
	e.Time = time.Unix(ts, 0)
	return &e, nil
}
