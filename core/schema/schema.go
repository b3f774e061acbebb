/*Package schema validates documents against resource-declared JSON schemas.
 */
package schema

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// FieldError is one field-level validation failure
type FieldError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

// ValidationError reports that a document does not conform to its resource's
// payload schema. It carries field-level details for the caller to correct.
type ValidationError struct {
	SchemaID string       `json:"schema_id"`
	Details  []FieldError `json:"details"`
}

func (e *ValidationError) Error() string {
	msg := "document is not valid against schema " + e.SchemaID + ":"
	for _, d := range e.Details {
		msg += fmt.Sprintf("\n- %s: %s", d.Field, d.Description)
	}
	return msg
}

// Validator is a utility to validate documents against compiled schemas
type Validator struct {
	schemaValidators map[string]*gojsonschema.Schema
}

// NewValidator creates a new Validator from a mapping of schema identifiers
// to raw JSON schemas. All schemas are compiled once, at construction.
func NewValidator(schemas map[string]json.RawMessage) (*Validator, error) {
	validator := Validator{schemaValidators: make(map[string]*gojsonschema.Schema)}
	for id, raw := range schemas {
		sl := gojsonschema.NewSchemaLoader()
		schema, err := sl.Compile(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s: %s", id, err)
		}
		validator.schemaValidators[id] = schema
	}
	return &validator, nil
}

// HasSchema returns true if schemaID is known
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.schemaValidators[schemaID]
	return ok
}

// ValidateDocument validates the given document against schemaID. It returns
// nil if the document is valid, a *ValidationError with field-level details
// if it is not, and a plain error if schemaID is unknown.
func (v *Validator) ValidateDocument(document interface{}, schemaID string) error {
	return v.validate(gojsonschema.NewGoLoader(document), schemaID)
}

// ValidateString validates the given raw json against schemaID, with the same
// semantics as ValidateDocument.
func (v *Validator) ValidateString(json, schemaID string) error {
	return v.validate(gojsonschema.NewStringLoader(json), schemaID)
}

func (v *Validator) validate(loader gojsonschema.JSONLoader, schemaID string) error {

	schema, ok := v.schemaValidators[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s", schemaID)
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s: %s", schemaID, err)
	}

	if !result.Valid() {
		verr := &ValidationError{SchemaID: schemaID}
		for _, e := range result.Errors() {
			verr.Details = append(verr.Details, FieldError{
				Field:       e.Field(),
				Description: e.Description(),
			})
		}
		return verr
	}
	return nil
}
