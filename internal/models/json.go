package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"CERT-PDF/internal/processor"
)

// FieldList stores a template's ordered fields as a JSON column.
type FieldList []processor.Field

func (l FieldList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *FieldList) Scan(value any) error {
	return scanJSON(value, l)
}

// PageSizeList stores per-page dimensions in points.
type PageSizeList []processor.PageSize

func (l PageSizeList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *PageSizeList) Scan(value any) error {
	return scanJSON(value, l)
}

// StringList stores a list of strings as a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StringList) Scan(value any) error {
	return scanJSON(value, l)
}

// AppearanceJSON stores a course's appearance defaults.
type AppearanceJSON processor.Appearance

func (a AppearanceJSON) Value() (driver.Value, error) {
	b, err := json.Marshal(processor.Appearance(a))
	return string(b), err
}

func (a *AppearanceJSON) Scan(value any) error {
	var app processor.Appearance
	if err := scanJSON(value, &app); err != nil {
		return err
	}
	*a = AppearanceJSON(app)
	return nil
}

func scanJSON(value any, dst any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
