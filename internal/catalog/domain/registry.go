package catalog

import "sync"

type commandKey struct {
	software SoftwareRef
	name     string
}

// Registry holds the artifact types, software packages and command signatures
// known to the platform. Registration is append-only; once Freeze is called
// the registry is read-only and safe for concurrent lookups.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	types    map[string]*ArtifactType
	typeSeq  []string
	software []SoftwareRef
	commands map[commandKey]*Command
	cmdSeq   []commandKey
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]*ArtifactType),
		commands: make(map[commandKey]*Command),
	}
}

// RegisterArtifactType adds a new artifact type. Registering a name twice fails
// with ErrDuplicateType.
func (r *Registry) RegisterArtifactType(name, description string, roles ...FileRole) (*ArtifactType, error) {
	at, err := NewArtifactType(name, description, roles...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return nil, validationf(ErrRegistryFrozen, "cannot register artifact type %q", name)
	}
	if _, ok := r.types[name]; ok {
		return nil, validationf(ErrDuplicateType, "%q", name)
	}
	r.types[name] = at
	r.typeSeq = append(r.typeSeq, name)
	return at, nil
}

// RegisterSoftware declares a software package. Re-declaring an existing
// package is a no-op.
func (r *Registry) RegisterSoftware(ref SoftwareRef) error {
	if ref.Name == "" || ref.Version == "" {
		return validationf(ErrUnknownSoftware, "software needs a name and a version, got %q", ref.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return validationf(ErrRegistryFrozen, "cannot register software %q", ref.String())
	}
	for _, s := range r.software {
		if s == ref {
			return nil
		}
	}
	r.software = append(r.software, ref)
	return nil
}

// RegisterCommand adds a command signature to a registered software package.
// It fails with ErrUnknownType when a parameter or output references an
// unregistered artifact type and with ErrDuplicateCommand when the software
// already provides a command with the same name. There is no way to change
// an existing signature: a new signature needs a new software version.
func (r *Registry) RegisterCommand(software SoftwareRef, name, description string, params []*Parameter, outputs []*Output) (*Command, error) {
	if name == "" {
		return nil, validationf(ErrInvalidCommand, "command name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil, validationf(ErrRegistryFrozen, "cannot register command %q", name)
	}
	if !r.hasSoftwareLocked(software) {
		return nil, validationf(ErrUnknownSoftware, "%q (command %q)", software.String(), name)
	}
	key := commandKey{software: software, name: name}
	if _, ok := r.commands[key]; ok {
		return nil, validationf(ErrDuplicateCommand, "%q already provides %q", software.String(), name)
	}

	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, dup := seen[p.name]; dup {
			return nil, validationf(ErrInvalidParameter, "command %q declares parameter %q twice", name, p.name)
		}
		seen[p.name] = struct{}{}
		for _, at := range p.ptype.artifactTypes {
			if _, ok := r.types[at]; !ok {
				return nil, validationf(ErrUnknownType, "parameter %q of command %q references %q", p.name, name, at)
			}
		}
	}
	seenOut := make(map[string]struct{}, len(outputs))
	for _, o := range outputs {
		if _, dup := seenOut[o.name]; dup {
			return nil, validationf(ErrInvalidCommand, "command %q declares output %q twice", name, o.name)
		}
		seenOut[o.name] = struct{}{}
		if _, ok := r.types[o.artifactType]; !ok {
			return nil, validationf(ErrUnknownType, "output %q of command %q references %q", o.name, name, o.artifactType)
		}
	}

	cmd := &Command{
		software:    software,
		name:        name,
		description: description,
		parameters:  append([]*Parameter(nil), params...),
		outputs:     append([]*Output(nil), outputs...),
	}
	r.commands[key] = cmd
	r.cmdSeq = append(r.cmdSeq, key)
	return cmd, nil
}

func (r *Registry) hasSoftwareLocked(ref SoftwareRef) bool {
	for _, s := range r.software {
		if s == ref {
			return true
		}
	}
	return false
}

// LookupCommand returns the command registered under (software, name).
func (r *Registry) LookupCommand(software SoftwareRef, name string) (*Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[commandKey{software: software, name: name}]
	if !ok {
		return nil, validationf(ErrUnknownCommand, "%q in %q", name, software.String())
	}
	return cmd, nil
}

// LookupCommandByID returns the command with the given persistent id.
func (r *Registry) LookupCommandByID(id int64) (*Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.cmdSeq {
		if cmd := r.commands[k]; cmd.id == id && id != 0 {
			return cmd, nil
		}
	}
	return nil, validationf(ErrUnknownCommand, "id %d", id)
}

// ArtifactType returns the registered artifact type with the given name.
func (r *Registry) ArtifactType(name string) (*ArtifactType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.types[name]
	if !ok {
		return nil, validationf(ErrUnknownType, "%q", name)
	}
	return at, nil
}

// ArtifactTypes returns all artifact types in registration order.
func (r *Registry) ArtifactTypes() []*ArtifactType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ArtifactType, 0, len(r.typeSeq))
	for _, n := range r.typeSeq {
		out = append(out, r.types[n])
	}
	return out
}

// Software returns the registered software packages in registration order.
func (r *Registry) Software() []SoftwareRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SoftwareRef(nil), r.software...)
}

// Commands returns all commands in registration order.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.cmdSeq))
	for _, k := range r.cmdSeq {
		out = append(out, r.commands[k])
	}
	return out
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
