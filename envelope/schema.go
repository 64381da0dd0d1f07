package envelope

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator checks raw frames against the embedded JSON Schema documents.
// Schemas are compiled once in NewValidator; a Validator is safe for
// concurrent use.
type Validator struct {
	kinds     map[Kind]*jsonschema.Schema
	transport *jsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()

	names := []string{"connection", "message", "close", "transport"}
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaURL(name), doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	v := &Validator{kinds: make(map[Kind]*jsonschema.Schema, 3)}
	for _, k := range []Kind{KindConnection, KindMessage, KindClose} {
		compiled, err := c.Compile(schemaURL(string(k)))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", k, err)
		}
		v.kinds[k] = compiled
	}

	compiled, err := c.Compile(schemaURL("transport"))
	if err != nil {
		return nil, fmt.Errorf("compile schema transport: %w", err)
	}
	v.transport = compiled

	return v, nil
}

// ValidateFrame checks data against the schema registered for kind.
func (v *Validator) ValidateFrame(kind Kind, data []byte) error {
	s, ok := v.kinds[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrDecode, kind)
	}
	return validate(s, data)
}

// ValidateTransport checks data against the transport envelope schema.
func (v *Validator) ValidateTransport(data []byte) error {
	return validate(v.transport, data)
}

func validate(s *jsonschema.Schema, data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := s.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func schemaURL(name string) string {
	return "chatrelay://schema/" + name + ".json"
}
