package slaconfig

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

const schemaPath = "../../schemas/sla_config_v1.json"

func mustNewValidator(t *testing.T) *Validator {
	t.Helper()

	validator, err := NewValidator(schemaPath)
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	return validator
}

func TestValidator_ValidateDirectory_ValidFiles(t *testing.T) {
	validator := mustNewValidator(t)

	errs := validator.ValidateDirectory("testdata/valid")

	if len(errs) != 0 {
		t.Errorf("expected no errors, got %d:", len(errs))
		for _, err := range errs {
			t.Logf("  %v", err)
		}
	}
}

func TestValidator_ValidateDirectory_InvalidFiles(t *testing.T) {
	validator := mustNewValidator(t)

	errs := validator.ValidateDirectory("testdata/invalid")

	if len(errs) == 0 {
		t.Fatal("expected validation errors, got none")
	}

	errorsByFile := make(map[string][]ValidationError)
	for _, err := range errs {
		base := filepath.Base(err.File)
		errorsByFile[base] = append(errorsByFile[base], err)
	}

	thresholdErrs := errorsByFile["negative-threshold.yaml"]
	if len(thresholdErrs) < 2 {
		t.Fatalf("expected errors for threshold_minutes and thresholds.P2, got %v", thresholdErrs)
	}

	paths := make(map[string]bool)
	for _, err := range thresholdErrs {
		paths[err.Path] = true
	}
	for _, expected := range []string{"threshold_minutes", "thresholds.P2"} {
		if !paths[expected] {
			t.Errorf("expected an error at %s, got paths %v", expected, paths)
		}
	}

	listErrs := errorsByFile["not-an-object.yaml"]
	if len(listErrs) != 1 || !strings.Contains(listErrs[0].Message, "failed to parse snapshot") {
		t.Errorf("expected a parse error for not-an-object.yaml, got %v", listErrs)
	}
}

func TestValidator_Validate(t *testing.T) {
	validator := mustNewValidator(t)

	if err := validator.Validate(map[string]any{"threshold_minutes": 30.0, "owner": "sre"}); err != nil {
		t.Errorf("expected valid snapshot, got %v", err)
	}

	if err := validator.Validate(nil); err != nil {
		t.Errorf("expected empty snapshot to be valid, got %v", err)
	}

	err := validator.Validate(map[string]any{"severity": ""})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(verrs) != 1 || verrs[0].Path != "severity" {
		t.Errorf("expected one error at severity, got %v", verrs)
	}
}

func TestValidator_ValidateFile_Missing(t *testing.T) {
	validator := mustNewValidator(t)

	errs := validator.ValidateFile("testdata/does-not-exist.yaml")
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
}

func TestNewValidator_MissingSchema(t *testing.T) {
	if _, err := NewValidator("testdata/missing-schema.json"); err == nil {
		t.Error("expected error for missing schema")
	}
}

func TestLoadSnapshot_NormalizesNumbers(t *testing.T) {
	snapshot, err := LoadSnapshot("testdata/valid/p1.yaml")
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}

	if snapshot["threshold_minutes"] != 30.0 {
		t.Errorf("expected float64 30, got %#v", snapshot["threshold_minutes"])
	}

	thresholds, ok := snapshot["thresholds"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested object, got %T", snapshot["thresholds"])
	}
	if thresholds["P2"] != 120.0 {
		t.Errorf("expected float64 120, got %#v", thresholds["P2"])
	}
}

func TestParseSnapshot_Empty(t *testing.T) {
	snapshot, err := ParseSnapshot([]byte(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot == nil || len(snapshot) != 0 {
		t.Errorf("expected empty snapshot, got %v", snapshot)
	}
}
