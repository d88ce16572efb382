package metadata

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fullRecord() Record {
	seq := 1.0
	return Record{
		ID:              "li_1",
		Title:           "The Way of Kings",
		Subtitle:        "Book One",
		Authors:         []string{"Brandon Sanderson"},
		Series:          "The Stormlight Archive",
		SeriesSequence:  &seq,
		Description:     "Roshar is a world of stone and storms.",
		PublicationYear: "2010",
		Narrator:        "Kate Reading",
		ISBN:            "9780765326355",
		ASIN:            "B003P2WO5E",
		Publisher:       "Macmillan Audio",
		Language:        "English",
		Genres:          []string{"Fantasy"},
		Tags:            []string{"epic"},
	}
}

func TestScoreBounds(t *testing.T) {
	if got := Score(Record{ID: "empty"}); got != 0 {
		t.Fatalf("empty record scored %v, want 0", got)
	}
	if got := Score(fullRecord()); got != 1 {
		t.Fatalf("full record scored %v, want 1", got)
	}
}

func TestScoreCountsZeroSequence(t *testing.T) {
	zero := 0.0
	withZero := Record{ID: "a", SeriesSequence: &zero}
	without := Record{ID: "a"}
	if Score(withZero) <= Score(without) {
		t.Fatalf("sequence 0 should count as present: %v vs %v", Score(withZero), Score(without))
	}
}

func TestScoreIgnoresBlankValues(t *testing.T) {
	r := Record{ID: "a", Title: "  ", Authors: []string{"", " "}, Genres: []string{}}
	if got := Score(r); got != 0 {
		t.Fatalf("blank values scored %v, want 0", got)
	}
}

func TestScoreWeights(t *testing.T) {
	r := Record{ID: "a", Title: "Dune", Authors: []string{"Frank Herbert"}}
	want := Round(2.0 / 9.5)
	if got := Score(r); got != want {
		t.Fatalf("Score = %v, want %v", got, want)
	}
}

func TestMissingFieldsOrder(t *testing.T) {
	r := fullRecord()
	r.Tags = nil
	r.Series = ""
	got := MissingFields(r)
	want := []Field{FieldSeries, FieldTags}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MissingFields mismatch (-want +got):\n%s", diff)
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	src := fullRecord()
	var dst Record
	for _, f := range Fields() {
		if err := dst.Set(f, src.Get(f)); err != nil {
			t.Fatalf("Set(%s): %v", f, err)
		}
	}
	dst.ID = src.ID
	if diff := cmp.Diff(src, dst); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestSetSequenceFromText(t *testing.T) {
	var r Record
	if err := r.Set(FieldSeriesSequence, TextValue("2,5")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if r.SeriesSequence == nil || *r.SeriesSequence != 2.5 {
		t.Fatalf("sequence = %v, want 2.5", r.SeriesSequence)
	}
	if err := r.Set(FieldSeriesSequence, TextValue("two")); err == nil {
		t.Fatal("expected parse error")
	}
	if err := r.Set(Field("nope"), TextValue("x")); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"text", TextValue("Tor"), `"Tor"`},
		{"list", ListValue([]string{"Fantasy", "Epic"}), `["Fantasy","Epic"]`},
		{"number", NumberValue(0), `0`},
		{"empty", Value{}, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Fatalf("marshal = %s, want %s", data, tt.want)
			}
			var back Value
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !back.Equal(tt.value) {
				t.Fatalf("round trip = %#v, want %#v", back, tt.value)
			}
		})
	}
}

func TestIdentifierCount(t *testing.T) {
	r := fullRecord()
	if got := r.IdentifierCount(); got != 2 {
		t.Fatalf("IdentifierCount = %d, want 2", got)
	}
	r.ASIN = ""
	if got := r.IdentifierCount(); got != 1 {
		t.Fatalf("IdentifierCount = %d, want 1", got)
	}
}

func TestCheckRecord(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Record)
		want   int
	}{
		{"valid", func(*Record) {}, 0},
		{"missing id and title", func(r *Record) { r.ID = ""; r.Title = "" }, 2},
		{"year out of range", func(r *Record) { r.PublicationYear = "3021" }, 1},
		{"free form year ignored", func(r *Record) { r.PublicationYear = "2010-05-01" }, 0},
		{"score out of range", func(r *Record) { r.Completeness = 1.5 }, 1},
		{"blank authors", func(r *Record) { r.Authors = []string{" "} }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := fullRecord()
			r.Completeness = Score(r)
			tt.mutate(&r)
			if got := CheckRecord(r); len(got) != tt.want {
				t.Fatalf("CheckRecord = %v, want %d problems", got, tt.want)
			}
		})
	}
}
