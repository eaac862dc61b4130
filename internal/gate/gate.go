// Package gate validates inbound tool arguments against per-operation JSON
// Schemas before they touch the store. It is the outer half of the two-layer
// contract: the gate rejects malformed shapes, the persistence layer rejects
// malformed content.
package gate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Gate holds one compiled schema per operation name. Compile once at startup;
// Validate is safe for concurrent use.
type Gate struct {
	schemas map[string]*jsonschema.Schema
}

// RejectionError describes why an argument payload failed its schema. The
// operation name is carried so transport layers can map it to a request.
type RejectionError struct {
	Operation string
	Message   string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("arguments for %s rejected: %s", e.Operation, e.Message)
}

// New compiles every registered operation schema. A schema that does not
// compile is a programming error and fails startup.
func New() (*Gate, error) {
	g := &Gate{schemas: make(map[string]*jsonschema.Schema, len(operationSchemas))}
	for op, schemaJSON := range operationSchemas {
		// jsonschema.UnmarshalJSON keeps numbers as json.Number, which the
		// validator requires.
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s schema: %w", op, err)
		}
		c := jsonschema.NewCompiler()
		resource := op + ".json"
		if err := c.AddResource(resource, doc); err != nil {
			return nil, fmt.Errorf("add %s schema resource: %w", op, err)
		}
		schema, err := c.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", op, err)
		}
		g.schemas[op] = schema
	}
	return g, nil
}

// Operations returns the names the gate knows about, for capability listing.
func (g *Gate) Operations() []string {
	out := make([]string, 0, len(g.schemas))
	for op := range g.schemas {
		out = append(out, op)
	}
	return out
}

// SchemaJSON returns the raw schema text for an operation, or "" when the
// operation is unknown. Used for tool capability advertisement.
func SchemaJSON(operation string) string {
	return operationSchemas[operation]
}

// Validate checks raw JSON arguments against the operation's schema. Unknown
// operations are rejected rather than passed through unchecked.
func (g *Gate) Validate(operation string, raw json.RawMessage) error {
	schema, ok := g.schemas[operation]
	if !ok {
		return &RejectionError{Operation: operation, Message: "unknown operation"}
	}
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return &RejectionError{Operation: operation, Message: fmt.Sprintf("invalid JSON: %s", err)}
	}
	if err := schema.Validate(parsed); err != nil {
		return &RejectionError{Operation: operation, Message: err.Error()}
	}
	return nil
}
