package similarity

import (
	"math"
	"testing"
)

func TestSimilarIsSymmetricAndReflexive(t *testing.T) {
	svc := New()
	pairs := [][2]string{
		{"Brandon Sanderson", "B. Sanderson"},
		{"Liu Cixin", "Cixin Liu"},
		{"Robert Jordan", "Brandon Sanderson"},
		{"", "Terry Pratchett"},
		{"Kate Reading", "Kate  Reading."},
	}
	for _, pair := range pairs {
		ab := svc.Similar(pair[0], pair[1])
		ba := svc.Similar(pair[1], pair[0])
		if ab != ba {
			t.Fatalf("Similar(%q, %q) = %v but reversed = %v", pair[0], pair[1], ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("Similar(%q, %q) = %v outside [0,1]", pair[0], pair[1], ab)
		}
		for _, value := range pair {
			if got := svc.Similar(value, value); got != 1 {
				t.Fatalf("Similar(%q, %q) = %v, want 1", value, value, got)
			}
		}
	}
}

func TestSimilarNameOrderVariants(t *testing.T) {
	svc := New()
	if got := svc.Similar("Liu Cixin", "Cixin Liu"); got != 1 {
		t.Fatalf("expected name-order variants to score 1, got %v", got)
	}
	if got := svc.Similar("Robert Jordan", "Brandon Sanderson"); got >= IdentityThreshold {
		t.Fatalf("expected distinct authors below threshold, got %v", got)
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"abc", "abc", 1},
		{"abc", "abd", 2.0 * 2 / 6},
		{"kitten", "sitting", 2.0 * 4 / 13},
	}
	for _, tt := range tests {
		if got := Ratio(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSemanticallyEqual(t *testing.T) {
	svc := New()
	long := "A sweeping tale of magic, honor and war set on a storm-ravaged world where ancient oaths bind the fate of kingdoms."
	tests := []struct {
		name string
		a, b string
		kind Kind
		want bool
	}{
		{"year vs date", "2023", "2023-01-01", KindYear, true},
		{"year vs prose date", "January 2023", "2023", KindYear, true},
		{"different years", "2022", "2023-01-01", KindYear, false},
		{"no year", "unknown", "2023", KindYear, false},
		{"text whitespace", " Title ", "Title", KindText, true},
		{"text punctuation", "Title!", "Title", KindText, true},
		{"text differs", "Tor", "Tor Books", KindText, false},
		{"both blank", "", "  ", KindText, true},
		{"one blank", "", "Tor", KindText, false},
		{"isbn hyphens", "978-0-7653-2635-5", "9780765326355", KindIdentifier, true},
		{"asin case", "b00abc1234", "B00ABC1234", KindIdentifier, true},
		{"asin differs", "B00ABC1234", "B00ABC1235", KindIdentifier, false},
		{"sequence equal", "1", "1.0", KindSequence, true},
		{"sequence comma", "1,5", "1.5", KindSequence, true},
		{"sequence differs", "1", "1.5", KindSequence, false},
		{"description formatting", long, "  " + long + "  ", KindDescription, true},
		{"description near identical", long, long[:len(long)-1] + "!", KindDescription, true},
		{"description differs", long, "A short tale.", KindDescription, false},
		{"name order", "Liu Cixin", "Cixin Liu", KindName, true},
		{"list order", "Fantasy, Epic", "epic,fantasy", KindList, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.SemanticallyEqual(tt.a, tt.b, tt.kind); got != tt.want {
				t.Fatalf("SemanticallyEqual(%q, %q, %s) = %v, want %v", tt.a, tt.b, tt.kind, got, tt.want)
			}
			if got := svc.SemanticallyEqual(tt.b, tt.a, tt.kind); got != tt.want {
				t.Fatalf("SemanticallyEqual is not symmetric for %q / %q", tt.a, tt.b)
			}
		})
	}
}

func TestEqualLists(t *testing.T) {
	svc := New()
	if !svc.EqualLists([]string{"Fantasy", "Epic Fantasy"}, []string{"epic fantasy", "fantasy", "Fantasy!"}) {
		t.Fatal("expected normalized sets to be equal")
	}
	if svc.EqualLists([]string{"Fantasy"}, []string{"Fantasy", "Science Fiction"}) {
		t.Fatal("expected subset to be unequal")
	}
}

func TestExtractYear(t *testing.T) {
	if year, ok := ExtractYear("Published 1954-07-29"); !ok || year != 1954 {
		t.Fatalf("ExtractYear = %d, %v", year, ok)
	}
	if _, ok := ExtractYear("n/a"); ok {
		t.Fatal("expected no year")
	}
}
