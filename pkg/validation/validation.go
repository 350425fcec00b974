// Package validation checks record content against a JSON schema.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/drafts/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrValidationFailed = errors.New("validation failed")

const rootField = "(root)"

// FieldError is a single schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Error is returned by strict validation.
type Error struct {
	Errors []FieldError
}

func (e *Error) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, fieldErr := range e.Errors {
		messages = append(messages, fieldErr.String())
	}

	return fmt.Sprintf("%v: %s", ErrValidationFailed, strings.Join(messages, "; "))
}

func (e *Error) Unwrap() error {
	return ErrValidationFailed
}

func IsValidationFailed(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// SchemaValidator validates content against a compiled JSON schema.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

func NewSchemaValidator(schema map[string]any) (*SchemaValidator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &SchemaValidator{schema: compiled}, nil
}

// NewDefaultValidator validates against DefaultSchema.
func NewDefaultValidator() *SchemaValidator {
	validator, err := NewSchemaValidator(DefaultSchema())
	if err != nil {
		panic(err)
	}

	return validator
}

// Validate checks data. In strict mode any violation fails the call. In lenient mode
// the call never fails: invalid top-level fields are dropped from the returned copy and
// the violations are reported alongside it.
func (v *SchemaValidator) Validate(data map[string]any, strict bool) (map[string]any, []FieldError, error) {
	validated := models.CloneData(data)

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(validated))
	if err != nil {
		if strict {
			return nil, nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}

		return map[string]any{}, []FieldError{{Field: rootField, Type: "invalid_document", Message: err.Error()}}, nil
	}

	if result.Valid() {
		return validated, nil, nil
	}

	fieldErrors := make([]FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		fieldErrors = append(fieldErrors, toFieldError(desc))
	}

	if strict {
		return nil, fieldErrors, &Error{Errors: fieldErrors}
	}

	for _, fieldErr := range fieldErrors {
		key, _, _ := strings.Cut(fieldErr.Field, ".")
		if key != rootField {
			delete(validated, key)
		}
	}

	return validated, fieldErrors, nil
}

func toFieldError(desc gojsonschema.ResultError) FieldError {
	field := desc.Field()

	if desc.Type() == "required" {
		if property, ok := desc.Details()["property"].(string); ok {
			if field == rootField {
				field = property
			} else {
				field = field + "." + property
			}
		}
	}

	return FieldError{
		Field:   field,
		Type:    desc.Type(),
		Message: desc.Description(),
	}
}
