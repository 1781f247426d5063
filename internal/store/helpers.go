package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything that looks like a file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// encodeRecords marshals a record slice for a JSON text column. A nil slice
// encodes as an empty array so a failed category reads back as empty, not null.
func encodeRecords(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode records: %w", err)
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

// decodeRecords unmarshals a JSON text column into the given slice pointer.
func decodeRecords(data string, dst interface{}) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("failed to decode records: %w", err)
	}
	return nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
