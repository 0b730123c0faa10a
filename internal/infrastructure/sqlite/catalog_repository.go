package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
)

// catalogRepository implements catalog.Repository using SQLite.
type catalogRepository struct {
	q querier
}

func newCatalogRepository(q querier) *catalogRepository {
	return &catalogRepository{q: q}
}

var _ catalog.Repository = (*catalogRepository)(nil)

// SaveArtifactType inserts the type, or checks that the stored one has the
// same description and file roles. Stored types never change: artifacts
// already reference them.
func (r *catalogRepository) SaveArtifactType(ctx context.Context, at *catalog.ArtifactType) error {
	encoded, err := json.Marshal(at.Roles())
	if err != nil {
		return fmt.Errorf("encode file roles: %w", err)
	}
	roles := string(encoded)

	var storedDescription, storedRoles string
	err = r.q.QueryRowContext(ctx,
		`SELECT description, file_roles FROM artifact_type WHERE name = ?`, at.Name(),
	).Scan(&storedDescription, &storedRoles)
	switch {
	case err == nil:
		if storedDescription != at.Description() || storedRoles != roles {
			msg := fmt.Sprintf("%q is stored with roles %s and description %q, catalog has roles %s and description %q",
				at.Name(), storedRoles, storedDescription, roles, at.Description())
			return &catalog.RegistryValidationError{Kind: catalog.ErrTypeChanged, Msg: msg}
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to find artifact type: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO artifact_type (name, description, file_roles) VALUES (?, ?, ?)`,
		at.Name(), at.Description(), roles,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact type: %w", err)
	}
	return nil
}

func (r *catalogRepository) SaveSoftware(ctx context.Context, ref catalog.SoftwareRef) (int64, error) {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO software (name, version) VALUES (?, ?) ON CONFLICT (name, version) DO NOTHING`,
		ref.Name, ref.Version,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert software: %w", err)
	}
	var id int64
	err = r.q.QueryRowContext(ctx,
		`SELECT id FROM software WHERE name = ? AND version = ?`, ref.Name, ref.Version,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read software id: %w", err)
	}
	return id, nil
}

func (r *catalogRepository) SaveCommand(ctx context.Context, softwareID int64, cmd *catalog.Command) (int64, error) {
	var (
		id          int64
		fingerprint string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, fingerprint FROM command WHERE software_id = ? AND name = ?`,
		softwareID, cmd.Name(),
	).Scan(&id, &fingerprint)
	switch {
	case err == nil:
		if fingerprint != cmd.Fingerprint() {
			return 0, &catalog.RegistryValidationError{
				Kind: catalog.ErrSignatureChanged,
				Msg:  fmt.Sprintf("%q of %s is stored with a different signature; register a new software version instead", cmd.Name(), cmd.Software()),
			}
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("failed to find command: %w", err)
	}

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO command (software_id, name, description, signature, fingerprint) VALUES (?, ?, ?, ?, ?)`,
		softwareID, cmd.Name(), cmd.Description(), string(cmd.SignatureJSON()), cmd.Fingerprint(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert command: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}
