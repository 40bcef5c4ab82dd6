package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Document is an opaque, tagged key-value document — package_details and
// proof_of_delivery carry whatever shape the client sends, with no schema
// imposed beyond "it's JSON" (spec.md §9).
type Document map[string]any

// Value implements driver.Valuer so a Document can be written straight to
// a jsonb column.
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for reading a jsonb column back.
func (d *Document) Scan(src any) error {
	if src == nil {
		*d = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("domain: cannot scan %T into Document", src)
	}
	if len(raw) == 0 {
		*d = nil
		return nil
	}
	return json.Unmarshal(raw, d)
}
