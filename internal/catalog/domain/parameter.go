package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PrimitiveKind is the type of a non-artifact parameter.
type PrimitiveKind string

const (
	KindInteger PrimitiveKind = "integer"
	KindFloat   PrimitiveKind = "float"
	KindString  PrimitiveKind = "string"
	KindBoolean PrimitiveKind = "boolean"
)

// IsValid returns true if the kind is a recognized primitive.
func (k PrimitiveKind) IsValid() bool {
	switch k {
	case KindInteger, KindFloat, KindString, KindBoolean:
		return true
	default:
		return false
	}
}

const artifactTypePrefix = "artifact:"

// ParameterType is either a primitive kind or an artifact type constraint
// listing the artifact types accepted for the parameter.
type ParameterType struct {
	primitive     PrimitiveKind
	artifactTypes []string
}

// PrimitiveType returns a primitive parameter type.
func PrimitiveType(kind PrimitiveKind) ParameterType {
	return ParameterType{primitive: kind}
}

// ArtifactParameterType returns an artifact-typed parameter type accepting any
// of the given artifact types.
func ArtifactParameterType(types ...string) ParameterType {
	return ParameterType{artifactTypes: append([]string(nil), types...)}
}

// ParseParameterType parses the textual type used in catalog files:
// a primitive name ("integer") or `artifact:["BIOM","Demultiplexed"]`.
func ParseParameterType(s string) (ParameterType, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, artifactTypePrefix); ok {
		var types []string
		if err := json.Unmarshal([]byte(rest), &types); err != nil {
			return ParameterType{}, validationf(ErrInvalidParameter, "malformed artifact type list %q", rest)
		}
		if len(types) == 0 {
			return ParameterType{}, validationf(ErrInvalidParameter, "artifact parameter must accept at least one type")
		}
		return ArtifactParameterType(types...), nil
	}
	kind := PrimitiveKind(s)
	if !kind.IsValid() {
		return ParameterType{}, validationf(ErrInvalidParameter, "unknown parameter type %q", s)
	}
	return PrimitiveType(kind), nil
}

// IsArtifact reports whether the parameter references an artifact.
func (t ParameterType) IsArtifact() bool {
	return len(t.artifactTypes) > 0
}

// Primitive returns the primitive kind (empty for artifact types).
func (t ParameterType) Primitive() PrimitiveKind {
	return t.primitive
}

// ArtifactTypes returns the accepted artifact type names.
func (t ParameterType) ArtifactTypes() []string {
	return append([]string(nil), t.artifactTypes...)
}

// AcceptsArtifactType reports whether an artifact of the named type may be
// bound to this parameter.
func (t ParameterType) AcceptsArtifactType(name string) bool {
	for _, at := range t.artifactTypes {
		if at == name {
			return true
		}
	}
	return false
}

// String renders the type in catalog-file syntax.
func (t ParameterType) String() string {
	if t.IsArtifact() {
		b, _ := json.Marshal(t.artifactTypes)
		return artifactTypePrefix + string(b)
	}
	return string(t.primitive)
}

// Parameter is one named input of a command signature.
type Parameter struct {
	name         string
	ptype        ParameterType
	required     bool
	defaultValue string
	hasDefault   bool
}

// NewParameter creates a parameter. defaultValue is optional and, when set,
// must parse as the parameter's primitive type; artifact parameters cannot
// carry defaults.
func NewParameter(name string, ptype ParameterType, required bool, defaultValue *string) (*Parameter, error) {
	if name == "" {
		return nil, validationf(ErrInvalidParameter, "parameter name cannot be empty")
	}
	if !ptype.IsArtifact() && !ptype.Primitive().IsValid() {
		return nil, validationf(ErrInvalidParameter, "parameter %q has no type", name)
	}
	p := &Parameter{name: name, ptype: ptype, required: required}
	if defaultValue != nil {
		if ptype.IsArtifact() {
			return nil, validationf(ErrInvalidParameter, "artifact parameter %q cannot have a default", name)
		}
		if _, err := ParseValue(ptype.Primitive(), *defaultValue); err != nil {
			return nil, validationf(ErrInvalidParameter, "default for %q: %v", name, err)
		}
		p.defaultValue = *defaultValue
		p.hasDefault = true
	}
	return p, nil
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.name }

// Type returns the parameter type.
func (p *Parameter) Type() ParameterType { return p.ptype }

// Required returns whether a binding must supply the parameter.
func (p *Parameter) Required() bool { return p.required }

// DefaultText returns the textual default and whether one is declared.
func (p *Parameter) DefaultText() (string, bool) { return p.defaultValue, p.hasDefault }

// Default returns the declared default as a typed value.
func (p *Parameter) Default() (Value, bool) {
	if !p.hasDefault {
		return Value{}, false
	}
	// Validated in NewParameter.
	v, err := ParseValue(p.ptype.Primitive(), p.defaultValue)
	if err != nil {
		return Value{}, false
	}
	return v, true
}

// Output is one named output slot of a command and the artifact type it yields.
type Output struct {
	name         string
	artifactType string
}

// NewOutput creates an output slot.
func NewOutput(name, artifactType string) (*Output, error) {
	if name == "" {
		return nil, validationf(ErrInvalidCommand, "output name cannot be empty")
	}
	if artifactType == "" {
		return nil, validationf(ErrUnknownType, "output %q has no artifact type", name)
	}
	return &Output{name: name, artifactType: artifactType}, nil
}

// Name returns the output slot name.
func (o *Output) Name() string { return o.name }

// ArtifactType returns the declared artifact type of the slot.
func (o *Output) ArtifactType() string { return o.artifactType }

func (p *Parameter) String() string {
	return fmt.Sprintf("%s:%s", p.name, p.ptype)
}
