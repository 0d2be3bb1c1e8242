package store

import "testing"

func TestVectorFromJSON(t *testing.T) {
	got := vectorFromJSON([]byte("[0.1,0.2,0.3]"))
	if got != "[0.1,0.2,0.3]" {
		t.Fatalf("vectorFromJSON = %q", got)
	}
}

func TestParseVector(t *testing.T) {
	vec := parseVector("[0.5, 1, -2.25]")
	if len(vec) != 3 {
		t.Fatalf("parsed %d components, want 3", len(vec))
	}
	if vec[0] != 0.5 || vec[1] != 1 || vec[2] != -2.25 {
		t.Fatalf("parseVector = %v", vec)
	}
}

func TestParseVectorEmpty(t *testing.T) {
	if vec := parseVector("[]"); vec != nil {
		t.Fatalf("empty vector should parse to nil, got %v", vec)
	}
	if vec := parseVector(""); vec != nil {
		t.Fatalf("empty string should parse to nil, got %v", vec)
	}
}

func TestParseVectorSkipsGarbage(t *testing.T) {
	vec := parseVector("[1, oops, 3]")
	if len(vec) != 2 || vec[0] != 1 || vec[1] != 3 {
		t.Fatalf("parseVector with garbage = %v", vec)
	}
}
