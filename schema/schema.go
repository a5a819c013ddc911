// Package schema validates records against JSON Schemas registered per
// collection.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError lists every violation found in a record.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "schema validation failed: " + strings.Join(e.Violations, "; ")
}

// Check reports whether a schema document compiles.
func Check(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		return fmt.Errorf("invalid json schema: %w", err)
	}
	return nil
}

// Validate checks a record against a JSON Schema. A nil schema accepts
// everything.
func Validate(schema map[string]any, doc map[string]any) error {
	if schema == nil {
		return nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("invalid json schema: %w", err)
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate record: %w", err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{}
	for _, re := range result.Errors() {
		verr.Violations = append(verr.Violations, re.String())
	}
	return verr
}
