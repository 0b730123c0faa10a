package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zjrosen/lineage/internal/provenance/domain"
)

// provenanceRepository implements domain.Repository and domain.Reader.
type provenanceRepository struct {
	q querier
}

func newProvenanceRepository(q querier) *provenanceRepository {
	return &provenanceRepository{q: q}
}

var (
	_ domain.Repository = (*provenanceRepository)(nil)
	_ domain.Reader     = (*provenanceRepository)(nil)
)

func (r *provenanceRepository) InsertArtifact(ctx context.Context, a *domain.Artifact) error {
	m := toArtifactModel(a)
	result, err := r.q.ExecContext(ctx,
		`INSERT INTO artifact (artifact_type, producing_job_id, output_slot, visibility, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ArtifactType, m.ProducingJobID, m.OutputSlot, m.Visibility, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, parent := range a.Parents() {
		if err := r.InsertParentEdge(ctx, id, parent); err != nil {
			return err
		}
	}
	for _, f := range a.Files() {
		if f.ID == 0 {
			return fmt.Errorf("artifact file %q has not been saved", f.Path)
		}
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO artifact_filepath (artifact_id, filepath_id) VALUES (?, ?)`, id, f.ID,
		); err != nil {
			return fmt.Errorf("failed to link file %d: %w", f.ID, err)
		}
	}

	a.SetID(id)
	return nil
}

func (r *provenanceRepository) FindArtifact(ctx context.Context, id int64) (*domain.Artifact, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifact WHERE id = ?`, id)
	m, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "artifact", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find artifact: %w", err)
	}

	parents, err := r.parentsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	files, err := r.filesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.toDomain(parents, files), nil
}

func (r *provenanceRepository) parentsOf(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT parent_id FROM artifact_parent WHERE artifact_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list parents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var parents []int64
	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan parent: %w", err)
		}
		parents = append(parents, p)
	}
	return parents, rows.Err()
}

func (r *provenanceRepository) filesOf(ctx context.Context, id int64) ([]domain.FileRef, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM filepath f
		 JOIN artifact_filepath af ON af.filepath_id = f.id
		 WHERE af.artifact_id = ? ORDER BY f.id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []domain.FileRef
	for rows.Next() {
		m, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, m.toDomain())
	}
	return files, rows.Err()
}

func (r *provenanceRepository) ArtifactType(ctx context.Context, id int64) (string, error) {
	var typ string
	err := r.q.QueryRowContext(ctx, `SELECT artifact_type FROM artifact WHERE id = ?`, id).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &domain.NotFoundError{Entity: "artifact", ID: id}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read artifact type: %w", err)
	}
	return typ, nil
}

func (r *provenanceRepository) InsertParentEdge(ctx context.Context, childID, parentID int64) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO artifact_parent (artifact_id, parent_id) VALUES (?, ?)
		 ON CONFLICT (artifact_id, parent_id) DO NOTHING`,
		childID, parentID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert parent edge %d -> %d: %w", childID, parentID, err)
	}
	return nil
}

// HasAncestor walks parent edges upward from id with a recursive CTE.
func (r *provenanceRepository) HasAncestor(ctx context.Context, id, ancestorID int64) (bool, error) {
	var found bool
	err := r.q.QueryRowContext(ctx,
		`WITH RECURSIVE ancestors(id) AS (
			SELECT parent_id FROM artifact_parent WHERE artifact_id = ?
			UNION
			SELECT p.parent_id FROM artifact_parent p JOIN ancestors a ON p.artifact_id = a.id
		)
		SELECT EXISTS (SELECT 1 FROM ancestors WHERE id = ?)`,
		id, ancestorID,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to walk ancestors of %d: %w", id, err)
	}
	return found, nil
}

func (r *provenanceRepository) InsertJob(ctx context.Context, j *domain.ProcessingJob) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	result, err := r.q.ExecContext(ctx,
		`INSERT INTO processing_job (command_id, binding, status, log_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.CommandID, m.Binding, m.Status, m.LogID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	j.SetID(id)
	return nil
}

func (r *provenanceRepository) FindJob(ctx context.Context, id int64) (*domain.ProcessingJob, error) {
	m, err := scanJob(r.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_job WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "job", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return m.toDomain()
}

func (r *provenanceRepository) UpdateJobStatus(ctx context.Context, j *domain.ProcessingJob) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE processing_job SET status = ?, log_id = ? WHERE id = ?`,
		string(j.Status()), nullableID(j.LogID()), j.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (r *provenanceRepository) InsertLog(ctx context.Context, e *domain.LogEntry) error {
	result, err := r.q.ExecContext(ctx,
		`INSERT INTO logging (legacy_id, time, msg) VALUES (?, ?, ?)`,
		nullableID(e.LegacyID), e.Time.Unix(), e.Msg,
	)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

func (r *provenanceRepository) FindLog(ctx context.Context, id int64) (*domain.LogEntry, error) {
	e, err := scanLog(r.q.QueryRowContext(ctx, `SELECT id, legacy_id, time, msg FROM logging WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "log", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find log entry: %w", err)
	}
	return e, nil
}

func (r *provenanceRepository) FindLogByLegacyID(ctx context.Context, legacyID int64) (*domain.LogEntry, error) {
	e, err := scanLog(r.q.QueryRowContext(ctx, `SELECT id, legacy_id, time, msg FROM logging WHERE legacy_id = ?`, legacyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "legacy log", ID: legacyID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find log entry: %w", err)
	}
	return e, nil
}

func (r *provenanceRepository) SaveFile(ctx context.Context, f *domain.FileRef) error {
	if f.LegacyID != 0 {
		var id int64
		err := r.q.QueryRowContext(ctx, `SELECT id FROM filepath WHERE legacy_id = ?`, f.LegacyID).Scan(&id)
		if err == nil {
			f.ID = id
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to find file: %w", err)
		}
	}
	result, err := r.q.ExecContext(ctx,
		`INSERT INTO filepath (legacy_id, path, role, checksum) VALUES (?, ?, ?, ?)`,
		nullableID(f.LegacyID), f.Path, string(f.Role), f.Checksum,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	f.ID = id
	return nil
}

func (r *provenanceRepository) LinkAnalysis(ctx context.Context, analysisID, artifactID int64) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO analysis_artifact (analysis_id, artifact_id) VALUES (?, ?)`, analysisID, artifactID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Violation(domain.ErrDuplicateLink, "analysis %d, artifact %d", analysisID, artifactID)
		}
		return fmt.Errorf("failed to link analysis: %w", err)
	}
	return nil
}

func (r *provenanceRepository) AnalysisLinked(ctx context.Context, analysisID int64) (bool, error) {
	var linked bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM analysis_artifact WHERE analysis_id = ?)`, analysisID,
	).Scan(&linked)
	if err != nil {
		return false, fmt.Errorf("failed to check analysis link: %w", err)
	}
	return linked, nil
}

// ListArtifacts loads every artifact with its edges and files in three queries.
func (r *provenanceRepository) ListArtifacts(ctx context.Context) ([]*domain.Artifact, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+artifactColumns+` FROM artifact ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	var models []*ArtifactModel
	for rows.Next() {
		m, err := scanArtifact(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		models = append(models, m)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	parents := make(map[int64][]int64)
	edgeRows, err := r.q.QueryContext(ctx, `SELECT artifact_id, parent_id FROM artifact_parent`)
	if err != nil {
		return nil, fmt.Errorf("failed to list parent edges: %w", err)
	}
	for edgeRows.Next() {
		var child, parent int64
		if err := edgeRows.Scan(&child, &parent); err != nil {
			_ = edgeRows.Close()
			return nil, fmt.Errorf("failed to scan parent edge: %w", err)
		}
		parents[child] = append(parents[child], parent)
	}
	_ = edgeRows.Close()
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	files := make(map[int64][]domain.FileRef)
	fileRows, err := r.q.QueryContext(ctx,
		`SELECT af.artifact_id, `+fileColumns+` FROM filepath f
		 JOIN artifact_filepath af ON af.filepath_id = f.id ORDER BY f.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact files: %w", err)
	}
	for fileRows.Next() {
		var (
			artifactID int64
			m          FileModel
		)
		if err := fileRows.Scan(&artifactID, &m.ID, &m.LegacyID, &m.Path, &m.Role, &m.Checksum, &m.DetachedAt); err != nil {
			_ = fileRows.Close()
			return nil, fmt.Errorf("failed to scan artifact file: %w", err)
		}
		files[artifactID] = append(files[artifactID], m.toDomain())
	}
	_ = fileRows.Close()
	if err := fileRows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.Artifact, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain(parents[m.ID], files[m.ID]))
	}
	return out, nil
}

func (r *provenanceRepository) ListJobs(ctx context.Context) ([]*domain.ProcessingJob, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+jobColumns+` FROM processing_job ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.ProcessingJob
	for rows.Next() {
		m, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		j, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *provenanceRepository) CountRows(ctx context.Context) (domain.RowCounts, error) {
	var c domain.RowCounts
	err := r.q.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM artifact),
		(SELECT COUNT(*) FROM processing_job),
		(SELECT COUNT(*) FROM artifact_parent),
		(SELECT COUNT(*) FROM analysis_artifact),
		(SELECT COUNT(*) FROM logging),
		(SELECT COUNT(*) FROM filepath)`,
	).Scan(&c.Artifacts, &c.Jobs, &c.ParentEdges, &c.AnalysisLinks, &c.Logs, &c.Files)
	if err != nil {
		return c, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}
