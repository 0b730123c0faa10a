package catalog

import "context"

// Repository persists the catalog so stored jobs can reference stable
// command ids. All Save methods are idempotent on the natural key.
type Repository interface {
	// SaveArtifactType inserts the type if no type with the same name exists.
	SaveArtifactType(ctx context.Context, at *ArtifactType) error

	// SaveSoftware returns the id of the (name, version) row, inserting it if needed.
	SaveSoftware(ctx context.Context, ref SoftwareRef) (int64, error)

	// SaveCommand returns the id of the command, inserting it if needed.
	// Returns an error wrapping ErrSignatureChanged when a command with the
	// same (software, name) is stored with a different fingerprint.
	SaveCommand(ctx context.Context, softwareID int64, cmd *Command) (int64, error)
}
