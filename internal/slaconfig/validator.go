package slaconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks snapshots against a JSON schema
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator creates a new validator with the given schema file
func NewValidator(schemaPath string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	// The draft is auto-detected from the $schema field
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// Validate checks one snapshot. It returns ValidationErrors on failure.
func (v *Validator) Validate(snapshot map[string]any) error {
	if errs := v.validate("", snapshot); len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}

// ValidateDirectory loads and validates all snapshot files in a directory
func (v *Validator) ValidateDirectory(dirPath string) []ValidationError {
	files, loadErrors := LoadFromDirectory(dirPath)

	var allErrors []ValidationError
	allErrors = append(allErrors, loadErrors...)

	for _, f := range files {
		allErrors = append(allErrors, v.validate(f.File, f.Snapshot)...)
	}

	return allErrors
}

// ValidateFile loads and validates a single snapshot file
func (v *Validator) ValidateFile(filePath string) []ValidationError {
	snapshot, err := LoadSnapshot(filePath)
	if err != nil {
		return []ValidationError{{File: filePath, Message: err.Error()}}
	}
	return v.validate(filePath, snapshot)
}

func (v *Validator) validate(file string, snapshot map[string]any) []ValidationError {
	if snapshot == nil {
		snapshot = map[string]any{}
	}

	err := v.schema.Validate(snapshot)
	if err == nil {
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) {
		return extractSchemaErrors(file, validationErr)
	}
	return []ValidationError{{File: file, Message: err.Error()}}
}

// extractSchemaErrors flattens a schema error tree into its leaf errors
func extractSchemaErrors(file string, err *jsonschema.ValidationError) []ValidationError {
	if len(err.Causes) == 0 {
		path := strings.Join(err.InstanceLocation, ".")
		if path == "" {
			path = "(root)"
		}
		return []ValidationError{{
			File:    file,
			Path:    path,
			Message: err.Error(),
		}}
	}

	var errs []ValidationError
	for _, cause := range err.Causes {
		errs = append(errs, extractSchemaErrors(file, cause)...)
	}
	return errs
}
