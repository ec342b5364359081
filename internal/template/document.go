package template

import (
	"encoding/json"
	"strings"
)

// Document is a templated text blob: the serialized workflow definition with
// its placeholder tokens. Substitution is global literal substring
// replacement over the whole blob, not a structural operation. That means a
// placeholder occurring multiple times is replaced everywhere, and a
// placeholder that is a textual prefix of another one is replaced inside it
// too. This contract is load-bearing: existing templates depend on it, so it
// must not be "fixed" into semantic templating.
type Document string

// Replace returns a copy of the document with every literal occurrence of
// placeholder substituted by value.
func (d Document) Replace(placeholder, value string) Document {
	return Document(strings.ReplaceAll(string(d), placeholder, value))
}

// Decode parses the document into the generic map form the engine client
// consumes. Named lets the caller override the workflow name shown in the
// engine UI.
func (d Document) Decode() (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(d), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Named decodes the document and sets its display name.
func (d Document) Named(name string) (map[string]interface{}, error) {
	doc, err := d.Decode()
	if err != nil {
		return nil, err
	}
	doc["name"] = name
	return doc, nil
}
