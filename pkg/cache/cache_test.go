package cache

import (
	"strings"
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"lowercase", "Derivatives", "derivatives"},
		{"punctuation stripped", "what is a derivative?", "what is a derivative"},
		{"whitespace collapsed", "  chain   rule \t basics ", "chain rule basics"},
		{"mixed", "Explain: The Chain-Rule!!", "explain the chainrule"},
		{"digits kept", "calc 101", "calc 101"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeQuery(tt.query); got != tt.want {
				t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestKeyDeterminism(t *testing.T) {
	// Queries that normalize identically must share a key.
	a := PlanKey("What is a Derivative?")
	b := PlanKey("what  is a derivative")
	if a != b {
		t.Fatalf("equivalent queries produced different keys: %q vs %q", a, b)
	}

	if c := PlanKey("integrals"); c == a {
		t.Fatalf("distinct queries collided: %q", c)
	}
}

func TestKeyLayout(t *testing.T) {
	pk := PlanKey("derivatives")
	if !strings.HasPrefix(pk, "cache:plan:") {
		t.Errorf("plan key = %q, want cache:plan: prefix", pk)
	}
	hash := strings.TrimPrefix(pk, "cache:plan:")
	if len(hash) != hashWidth {
		t.Errorf("hash width = %d, want %d", len(hash), hashWidth)
	}

	ck := ChunkKey("derivatives", 2)
	if ck != "cache:chunk:"+hash+":step:2" {
		t.Errorf("chunk key = %q", ck)
	}
}

func TestVersionBumpChangesEveryHash(t *testing.T) {
	for _, q := range []string{"derivatives", "linear algebra", "fourier series"} {
		if hashWithVersion("v1", q) == hashWithVersion("v2", q) {
			t.Errorf("version bump did not change hash for %q", q)
		}
	}
}

func TestChunkKeyPerStep(t *testing.T) {
	if ChunkKey("derivatives", 0) == ChunkKey("derivatives", 1) {
		t.Fatal("chunk keys for different steps collided")
	}
}
