package template

import "testing"

func TestDocumentReplaceAllOccurrences(t *testing.T) {
	doc := Document(`{"a":"CITY","b":"CITY and CITY"}`)
	got := doc.Replace("CITY", "Berlin")
	want := `{"a":"Berlin","b":"Berlin and Berlin"}`
	if string(got) != want {
		t.Errorf("Replace = %q, want %q", got, want)
	}
}

// Substitution is literal substring replacement: a placeholder that is a
// textual prefix of another placeholder is replaced inside it too. Existing
// templates depend on this, so the behavior is pinned here.
func TestDocumentReplaceLiteralPrefixCollision(t *testing.T) {
	doc := Document(`{"a":"NAME","b":"NAME_FULL"}`)
	got := doc.Replace("NAME", "x")
	want := `{"a":"x","b":"x_FULL"}`
	if string(got) != want {
		t.Errorf("Replace = %q, want %q", got, want)
	}
}

func TestDocumentNamed(t *testing.T) {
	doc := Document(`{"name":"original","nodes":[]}`)
	decoded, err := doc.Named("renamed")
	if err != nil {
		t.Fatalf("Named failed: %v", err)
	}
	if decoded["name"] != "renamed" {
		t.Errorf("name = %v, want renamed", decoded["name"])
	}
}

func TestDocumentDecodeInvalid(t *testing.T) {
	if _, err := Document("not json").Decode(); err == nil {
		t.Error("Decode of invalid JSON should fail")
	}
}
