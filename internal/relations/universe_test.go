package relations

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildUniverse(t *testing.T) {
	u := BuildUniverse([]string{
		"Dragonlance Chronicles",
		"Dragonlance Chronicles Legends",
		"Cosmere - Mistborn",
		"Cosmere: Mistborn: Era Two",
		"Discworld",
	})

	tests := []struct {
		key  string
		want []string
	}{
		{"dragonlance chronicles legends", []string{"dragonlance chronicles"}},
		{"cosmere - mistborn", []string{"cosmere"}},
		{"cosmere mistborn era two", []string{"cosmere"}},
		{"discworld", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, u.Ancestors(tt.key)); diff != "" {
			t.Fatalf("Ancestors(%q) mismatch (-want +got):\n%s", tt.key, diff)
		}
	}
}

func TestUniverseRefusesCycles(t *testing.T) {
	u := NewUniverse()
	if !u.Link("b", "a") || !u.Link("c", "b") {
		t.Fatal("expected links to succeed")
	}
	if u.Link("a", "c") {
		t.Fatal("cycle must be refused")
	}
	if u.Link("c", "a") {
		t.Fatal("second parent must be refused")
	}
	if got := u.Root("c"); got != "a" {
		t.Fatalf("Root = %q, want a", got)
	}
	if !u.Related("a", "c") || u.Related("b", "z") {
		t.Fatal("unexpected Related result")
	}
	want := []UniverseEdge{{Child: "b", Parent: "a"}, {Child: "c", Parent: "b"}}
	if diff := cmp.Diff(want, u.Edges()); diff != "" {
		t.Fatalf("edges mismatch (-want +got):\n%s", diff)
	}
}
