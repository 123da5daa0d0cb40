package storage

import (
	"encoding/json"
	"fmt"

	"github.com/samijaber1/aegis-sla/internal/diff"
	"github.com/samijaber1/aegis-sla/internal/sla"
)

// VersionColumns holds the JSON-encoded columns of a version row
type VersionColumns struct {
	Snapshot []byte
	Diff     []byte
}

// EncodeVersionColumns marshals the structured columns of v
func EncodeVersionColumns(v *NewConfigVersion) (VersionColumns, error) {
	snapshot := v.ConfigSnapshot
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	d := v.Diff
	if d == nil {
		d = diff.Diff{}
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return VersionColumns{}, fmt.Errorf("failed to marshal config snapshot: %w", err)
	}
	diffJSON, err := json.Marshal(d)
	if err != nil {
		return VersionColumns{}, fmt.Errorf("failed to marshal diff: %w", err)
	}

	return VersionColumns{Snapshot: snapshotJSON, Diff: diffJSON}, nil
}

// DecodeVersionColumns fills the structured fields of v from raw JSON
func DecodeVersionColumns(v *ConfigVersion, snapshotJSON, diffJSON []byte) error {
	if err := json.Unmarshal(snapshotJSON, &v.ConfigSnapshot); err != nil {
		return fmt.Errorf("failed to unmarshal config snapshot: %w", err)
	}
	if v.ConfigSnapshot == nil {
		v.ConfigSnapshot = map[string]any{}
	}

	v.Diff = diff.Diff{}
	if len(diffJSON) > 0 {
		if err := json.Unmarshal(diffJSON, &v.Diff); err != nil {
			return fmt.Errorf("failed to unmarshal diff: %w", err)
		}
	}
	return nil
}

// EncodeTracePayload marshals a trace payload column
func EncodeTracePayload(p sla.TracePayload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trace payload: %w", err)
	}
	return raw, nil
}

// DecodeTraceColumns fills the structured fields of t from raw columns
func DecodeTraceColumns(t *SlaTrace, branch string, payloadJSON []byte) error {
	b, err := sla.ParseBranch(branch)
	if err != nil {
		return err
	}
	t.DecisionBranch = b

	if err := json.Unmarshal(payloadJSON, &t.TracePayload); err != nil {
		return fmt.Errorf("failed to unmarshal trace payload: %w", err)
	}
	return nil
}
