package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SoftwareRef identifies a software package by name and version.
type SoftwareRef struct {
	Name    string
	Version string
}

// String returns "name version".
func (s SoftwareRef) String() string {
	return s.Name + " " + s.Version
}

// Command is a typed computational operation owned by a software package.
// The signature is immutable once created; only the persistence id is set later.
type Command struct {
	id          int64
	software    SoftwareRef
	name        string
	description string
	parameters  []*Parameter
	outputs     []*Output
}

// ID returns the persistent command id (0 until persisted).
func (c *Command) ID() int64 { return c.id }

// SetID assigns the persistent id. Used by the persistence layer only.
func (c *Command) SetID(id int64) { c.id = id }

// Software returns the owning software package.
func (c *Command) Software() SoftwareRef { return c.software }

// Name returns the command name.
func (c *Command) Name() string { return c.name }

// Description returns the command description.
func (c *Command) Description() string { return c.description }

// Parameters returns the ordered parameter list.
func (c *Command) Parameters() []*Parameter {
	return append([]*Parameter(nil), c.parameters...)
}

// Outputs returns the output slots.
func (c *Command) Outputs() []*Output {
	return append([]*Output(nil), c.outputs...)
}

// Parameter finds a parameter by name.
func (c *Command) Parameter(name string) (*Parameter, bool) {
	for _, p := range c.parameters {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// Output finds an output slot by name.
func (c *Command) Output(name string) (*Output, bool) {
	for _, o := range c.outputs {
		if o.name == name {
			return o, true
		}
	}
	return nil, false
}

// Bind builds a complete binding from the supplied values: unknown names and
// type mismatches are rejected, missing parameters take their declared default,
// and a missing required parameter without default is an error.
func (c *Command) Bind(values map[string]Value) (Binding, error) {
	b := make(Binding, len(c.parameters))
	for name, v := range values {
		p, ok := c.Parameter(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q for command %q", ErrUnknownParameter, name, c.name)
		}
		if !v.Matches(p.ptype) {
			return nil, fmt.Errorf("%w: %q expects %s, got %s", ErrValueType, name, p.ptype, v.Kind())
		}
		b[name] = v
	}
	for _, p := range c.parameters {
		if _, ok := b[p.name]; ok {
			continue
		}
		if d, ok := p.Default(); ok {
			b[p.name] = d
			continue
		}
		if p.required {
			return nil, fmt.Errorf("%w: %q for command %q", ErrMissingParameter, p.name, c.name)
		}
	}
	return b, nil
}

// Validate checks an already built binding against the signature without
// filling defaults.
func (c *Command) Validate(b Binding) error {
	for _, name := range b.Names() {
		p, ok := c.Parameter(name)
		if !ok {
			return fmt.Errorf("%w: %q for command %q", ErrUnknownParameter, name, c.name)
		}
		if v := b[name]; !v.Matches(p.ptype) {
			return fmt.Errorf("%w: %q expects %s, got %s", ErrValueType, name, p.ptype, v.Kind())
		}
	}
	for _, p := range c.parameters {
		if _, ok := b[p.name]; !ok && p.required {
			return fmt.Errorf("%w: %q for command %q", ErrMissingParameter, p.name, c.name)
		}
	}
	return nil
}

type signatureParam struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Required bool    `json:"required"`
	Default  *string `json:"default,omitempty"`
}

type signatureOutput struct {
	Name         string `json:"name"`
	ArtifactType string `json:"artifact_type"`
}

type signature struct {
	Software   string            `json:"software"`
	Version    string            `json:"version"`
	Name       string            `json:"name"`
	Parameters []signatureParam  `json:"parameters"`
	Outputs    []signatureOutput `json:"outputs"`
}

// SignatureJSON returns the canonical JSON encoding of the command signature.
func (c *Command) SignatureJSON() []byte {
	sig := signature{
		Software:   c.software.Name,
		Version:    c.software.Version,
		Name:       c.name,
		Parameters: make([]signatureParam, 0, len(c.parameters)),
		Outputs:    make([]signatureOutput, 0, len(c.outputs)),
	}
	for _, p := range c.parameters {
		sp := signatureParam{Name: p.name, Type: p.ptype.String(), Required: p.required}
		if d, ok := p.DefaultText(); ok {
			sp.Default = &d
		}
		sig.Parameters = append(sig.Parameters, sp)
	}
	for _, o := range c.outputs {
		sig.Outputs = append(sig.Outputs, signatureOutput{Name: o.name, ArtifactType: o.artifactType})
	}
	// Only strings, bools and slices of them: Marshal cannot fail.
	data, _ := json.Marshal(sig)
	return data
}

// Fingerprint returns a stable hash of the signature. Two commands with the
// same fingerprint accept exactly the same bindings and produce the same outputs.
func (c *Command) Fingerprint() string {
	sum := sha256.Sum256(c.SignatureJSON())
	return hex.EncodeToString(sum[:])
}
