// Package catalog persists the relational record of every indexed photo.
// It backs cheap dedup checks and library statistics; vectors live in the
// index package.
package catalog

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Photo is the relational record for one indexed photo. ID is the
// deterministic UUID derived from the canonical path, shared with the
// vector index so the two stores stay in lockstep.
type Photo struct {
	ID        string      `gorm:"type:text;primaryKey" json:"id"`
	Path      string      `gorm:"type:text;not null;uniqueIndex:idx_photos_path" json:"path"`
	OCRText   string      `gorm:"type:text" json:"ocr_text"`
	Faces     StringArray `gorm:"type:text" json:"faces"`
	Caption   string      `gorm:"type:text" json:"caption,omitempty"`
	Perf      string      `gorm:"type:text" json:"perf,omitempty"`
	IndexedAt time.Time   `gorm:"autoCreateTime" json:"indexed_at"`
}

// TableName returns the database table name for Photo.
func (Photo) TableName() string {
	return "photos"
}
