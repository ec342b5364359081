package template

import "encoding/json"

// FieldType classifies an input-schema field
type FieldType string

const (
	FieldTypeText       FieldType = "text"
	FieldTypeCredential FieldType = "credential"
)

// InputField is one entry of a template's declared input schema. Inputs are
// matched to fields by Label; Placeholder is the token substituted into the
// document.
type InputField struct {
	Label       string    `json:"label"`
	Placeholder string    `json:"placeholder"`
	Type        FieldType `json:"type"`
}

// ParseSchema parses the stored input-schema JSON into its ordered fields.
func ParseSchema(raw string) ([]InputField, error) {
	if raw == "" {
		return nil, nil
	}
	var fields []InputField
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
