package slaconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFromDirectory discovers and loads all snapshot files from a directory
func LoadFromDirectory(dirPath string) ([]SnapshotFile, []ValidationError) {
	var snapshots []SnapshotFile
	var errors []ValidationError

	files, err := discoverSnapshotFiles(dirPath)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    dirPath,
			Message: fmt.Sprintf("failed to read directory: %v", err),
		})
		return nil, errors
	}

	for _, file := range files {
		snapshot, err := LoadSnapshot(file)
		if err != nil {
			errors = append(errors, ValidationError{
				File:    file,
				Message: err.Error(),
			})
			continue
		}
		snapshots = append(snapshots, SnapshotFile{
			Snapshot: snapshot,
			File:     file,
		})
	}

	return snapshots, errors
}

// discoverSnapshotFiles finds all *.yaml, *.yml and *.json files in a directory
func discoverSnapshotFiles(dirPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml", ".json":
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// LoadSnapshot reads a YAML or JSON file into a snapshot.
// Values come back in their JSON form (numbers as float64).
func LoadSnapshot(filePath string) (map[string]any, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes YAML (or JSON, which is valid YAML) into a snapshot
func ParseSnapshot(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if raw == nil {
		return map[string]any{}, nil
	}

	// Round-trip through JSON so the snapshot matches what the API stores
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("snapshot is not JSON compatible: %w", err)
	}

	var snapshot map[string]any
	if err := json.Unmarshal(encoded, &snapshot); err != nil {
		return nil, fmt.Errorf("snapshot is not JSON compatible: %w", err)
	}

	return snapshot, nil
}
