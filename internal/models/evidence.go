package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// EvidenceRef points at a stored artifact (photo, video, camera capture)
// supporting a violation. The artifact itself lives outside this service.
type EvidenceRef struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// Evidence is the list of evidence references stored as a JSONB column.
type Evidence []EvidenceRef

// Scan implements sql.Scanner for reading the JSONB evidence column.
func (e *Evidence) Scan(value interface{}) error {
	if value == nil {
		*e = Evidence{}
		return nil
	}

	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan Evidence: %w", err)
	}

	var refs []EvidenceRef
	if err := json.Unmarshal(bytes, &refs); err != nil {
		return fmt.Errorf("failed to unmarshal evidence: %w", err)
	}
	if refs == nil {
		refs = []EvidenceRef{}
	}

	*e = refs
	return nil
}

// Value implements driver.Valuer. An empty list is stored as "[]", never NULL.
func (e Evidence) Value() (driver.Value, error) {
	if len(e) == 0 {
		return "[]", nil
	}
	bytes, err := json.Marshal([]EvidenceRef(e))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence: %w", err)
	}
	return string(bytes), nil
}

// Conditions records the circumstances at the stop.
type Conditions struct {
	Weather     string `json:"weather,omitempty"`
	RoadSurface string `json:"roadSurface,omitempty"`
	Traffic     string `json:"traffic,omitempty"`
	Lighting    string `json:"lighting,omitempty"`
}

// Scan implements sql.Scanner for reading the JSONB conditions column.
func (c *Conditions) Scan(value interface{}) error {
	if value == nil {
		*c = Conditions{}
		return nil
	}

	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan Conditions: %w", err)
	}

	var out Conditions
	if err := json.Unmarshal(bytes, &out); err != nil {
		return fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	*c = out
	return nil
}

// Value implements driver.Valuer.
func (c Conditions) Value() (driver.Value, error) {
	bytes, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	return string(bytes), nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("expected []byte or string, got %T", value)
	}
}
