package catalog

import (
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/log"
)

// CatalogFile is the root structure of a catalog YAML file.
type CatalogFile struct {
	ArtifactTypes []ArtifactTypeDef `yaml:"artifact_types"`
	Software      []SoftwareDef     `yaml:"software"`
}

// ArtifactTypeDef defines one artifact type.
type ArtifactTypeDef struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	FileRoles   []string `yaml:"file_roles"` // Accepted file roles
}

// SoftwareDef groups the commands of one software version.
type SoftwareDef struct {
	Name     string       `yaml:"name"`
	Version  string       `yaml:"version"`
	Commands []CommandDef `yaml:"commands"`
}

// CommandDef defines one command signature.
type CommandDef struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  []ParameterDef `yaml:"parameters"`
	Outputs     []OutputDef    `yaml:"outputs"`
}

// ParameterDef defines one command parameter.
type ParameterDef struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`     // "integer", "string", ... or artifact:["BIOM"]
	Default  *string `yaml:"default"`  // Textual default, nil when none
	Required *bool   `yaml:"required"` // Defaults to true when no default is given
}

// OutputDef defines one output slot.
type OutputDef struct {
	Name         string `yaml:"name"`
	ArtifactType string `yaml:"artifact_type"`
}

// LoadCatalog reads the catalog at path from fsys and registers its content
// into a new registry. Artifact types are registered first so commands may
// reference any type declared in the same file. The returned registry is not
// frozen.
func LoadCatalog(fsys fs.FS, path string) (*catalog.Registry, error) {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var file CatalogFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	reg, err := buildRegistry(file)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	log.Debug(log.CatCatalog, "loaded catalog",
		"path", path,
		"artifactTypes", len(file.ArtifactTypes),
		"commands", len(reg.Commands()))
	return reg, nil
}

func buildRegistry(file CatalogFile) (*catalog.Registry, error) {
	reg := catalog.NewRegistry()

	for _, def := range file.ArtifactTypes {
		roles := make([]catalog.FileRole, 0, len(def.FileRoles))
		for _, r := range def.FileRoles {
			roles = append(roles, catalog.FileRole(r))
		}
		if _, err := reg.RegisterArtifactType(def.Name, def.Description, roles...); err != nil {
			return nil, err
		}
	}

	for _, sw := range file.Software {
		ref := catalog.SoftwareRef{Name: sw.Name, Version: sw.Version}
		if err := reg.RegisterSoftware(ref); err != nil {
			return nil, err
		}
		for _, def := range sw.Commands {
			params, outputs, err := buildSignature(def)
			if err != nil {
				return nil, fmt.Errorf("command %q of %s: %w", def.Name, ref, err)
			}
			if _, err := reg.RegisterCommand(ref, def.Name, def.Description, params, outputs); err != nil {
				return nil, err
			}
		}
	}

	return reg, nil
}

// buildSignature converts parameter and output definitions into domain values.
func buildSignature(def CommandDef) ([]*catalog.Parameter, []*catalog.Output, error) {
	params := make([]*catalog.Parameter, 0, len(def.Parameters))
	for _, pd := range def.Parameters {
		ptype, err := catalog.ParseParameterType(pd.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("parameter %q: %w", pd.Name, err)
		}
		required := pd.Default == nil
		if pd.Required != nil {
			required = *pd.Required
		}
		p, err := catalog.NewParameter(pd.Name, ptype, required, pd.Default)
		if err != nil {
			return nil, nil, err
		}
		params = append(params, p)
	}

	outputs := make([]*catalog.Output, 0, len(def.Outputs))
	for _, od := range def.Outputs {
		o, err := catalog.NewOutput(od.Name, od.ArtifactType)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, o)
	}
	return params, outputs, nil
}
