// Package catalog defines the type registry and command catalog: artifact types,
// software packages, and the typed signatures of the commands they provide.
//
// The package is pure domain code. Persistence assigns command ids; everything
// else is immutable once registered so that historical jobs keep resolving to the
// exact signature they were executed with.
package catalog

import "sort"

// FileRole names the role a file plays inside an artifact (e.g. "biom", "log").
type FileRole string

// ArtifactType is a named kind of data product together with the file roles
// an artifact of this type may carry.
type ArtifactType struct {
	name        string
	description string
	roles       map[FileRole]struct{}
}

// NewArtifactType creates an artifact type. The name must be non-empty.
func NewArtifactType(name, description string, roles ...FileRole) (*ArtifactType, error) {
	if name == "" {
		return nil, validationf(ErrUnknownType, "artifact type name cannot be empty")
	}
	set := make(map[FileRole]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return &ArtifactType{name: name, description: description, roles: set}, nil
}

// Name returns the artifact type name.
func (t *ArtifactType) Name() string {
	return t.name
}

// Description returns the human-readable description.
func (t *ArtifactType) Description() string {
	return t.description
}

// Roles returns the accepted file roles in sorted order.
func (t *ArtifactType) Roles() []FileRole {
	out := make([]FileRole, 0, len(t.roles))
	for r := range t.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Accepts reports whether a file with the given role may be attached to an
// artifact of this type.
func (t *ArtifactType) Accepts(role FileRole) bool {
	_, ok := t.roles[role]
	return ok
}
