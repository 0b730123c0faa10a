package catalog

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/log"
)

// Service loads the command catalog and keeps the store in sync with it.
type Service struct {
	fsys fs.FS
	path string
}

// NewService creates a service reading the catalog at path from fsys.
func NewService(fsys fs.FS, path string) *Service {
	return &Service{fsys: fsys, path: path}
}

// Load parses the catalog, persists every artifact type, software package and
// command through repo, assigns the persistent command ids and freezes the
// registry. Any validation failure aborts before data is touched.
func (s *Service) Load(ctx context.Context, repo catalog.Repository) (*catalog.Registry, error) {
	reg, err := LoadCatalog(s.fsys, s.path)
	if err != nil {
		return nil, err
	}
	if err := Sync(ctx, reg, repo); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}

// Sync persists the registry content through repo and assigns command ids.
func Sync(ctx context.Context, reg *catalog.Registry, repo catalog.Repository) error {
	for _, at := range reg.ArtifactTypes() {
		if err := repo.SaveArtifactType(ctx, at); err != nil {
			return fmt.Errorf("save artifact type %q: %w", at.Name(), err)
		}
	}

	softwareIDs := make(map[catalog.SoftwareRef]int64)
	for _, ref := range reg.Software() {
		id, err := repo.SaveSoftware(ctx, ref)
		if err != nil {
			return fmt.Errorf("save software %s: %w", ref, err)
		}
		softwareIDs[ref] = id
	}

	for _, cmd := range reg.Commands() {
		id, err := repo.SaveCommand(ctx, softwareIDs[cmd.Software()], cmd)
		if err != nil {
			return fmt.Errorf("save command %q of %s: %w", cmd.Name(), cmd.Software(), err)
		}
		cmd.SetID(id)
		log.Debug(log.CatCatalog, "command synced", "software", cmd.Software().String(), "command", cmd.Name(), "id", id)
	}
	return nil
}
