package metadata

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Record is a snapshot of one audiobook's metadata as read from the library.
type Record struct {
	ID              string    `json:"id" yaml:"id"`
	Title           string    `json:"title" yaml:"title"`
	Subtitle        string    `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Authors         []string  `json:"authors,omitempty" yaml:"authors,omitempty"`
	Series          string    `json:"series,omitempty" yaml:"series,omitempty"`
	SeriesSequence  *float64  `json:"series_sequence,omitempty" yaml:"series_sequence,omitempty"`
	Description     string    `json:"description,omitempty" yaml:"description,omitempty"`
	PublicationYear string    `json:"publication_year,omitempty" yaml:"publication_year,omitempty"`
	Narrator        string    `json:"narrator,omitempty" yaml:"narrator,omitempty"`
	ISBN            string    `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	ASIN            string    `json:"asin,omitempty" yaml:"asin,omitempty"`
	Publisher       string    `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Language        string    `json:"language,omitempty" yaml:"language,omitempty"`
	Genres          []string  `json:"genres,omitempty" yaml:"genres,omitempty"`
	Tags            []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`

	Completeness float64  `json:"completeness" yaml:"completeness"`
	RelatedIDs   []string `json:"related_ids,omitempty" yaml:"related_ids,omitempty"`
	NeedsReview  bool     `json:"needs_review,omitempty" yaml:"needs_review,omitempty"`
}

// Get returns the value of field. Unknown fields yield an empty value.
func (r Record) Get(field Field) Value {
	switch field {
	case FieldTitle:
		return TextValue(r.Title)
	case FieldSubtitle:
		return TextValue(r.Subtitle)
	case FieldAuthors:
		return ListValue(r.Authors)
	case FieldSeries:
		return TextValue(r.Series)
	case FieldSeriesSequence:
		if r.SeriesSequence == nil {
			return Value{}
		}
		return NumberValue(*r.SeriesSequence)
	case FieldDescription:
		return TextValue(r.Description)
	case FieldPublicationYear:
		return TextValue(r.PublicationYear)
	case FieldNarrator:
		return TextValue(r.Narrator)
	case FieldISBN:
		return TextValue(r.ISBN)
	case FieldASIN:
		return TextValue(r.ASIN)
	case FieldPublisher:
		return TextValue(r.Publisher)
	case FieldLanguage:
		return TextValue(r.Language)
	case FieldGenres:
		return ListValue(r.Genres)
	case FieldTags:
		return ListValue(r.Tags)
	default:
		return Value{}
	}
}

// Set replaces the value of field.
func (r *Record) Set(field Field, v Value) error {
	switch field {
	case FieldTitle:
		r.Title = v.Text
	case FieldSubtitle:
		r.Subtitle = v.Text
	case FieldAuthors:
		r.Authors = listOf(v)
	case FieldSeries:
		r.Series = v.Text
	case FieldSeriesSequence:
		n, err := numberOf(v)
		if err != nil {
			return fmt.Errorf("set %s: %w", field, err)
		}
		r.SeriesSequence = n
	case FieldDescription:
		r.Description = v.Text
	case FieldPublicationYear:
		r.PublicationYear = v.Text
	case FieldNarrator:
		r.Narrator = v.Text
	case FieldISBN:
		r.ISBN = v.Text
	case FieldASIN:
		r.ASIN = v.Text
	case FieldPublisher:
		r.Publisher = v.Text
	case FieldLanguage:
		r.Language = v.Text
	case FieldGenres:
		r.Genres = listOf(v)
	case FieldTags:
		r.Tags = listOf(v)
	default:
		return fmt.Errorf("unknown metadata field %q", field)
	}
	return nil
}

func listOf(v Value) []string {
	if v.List != nil {
		return slices.Clone(v.List)
	}
	if strings.TrimSpace(v.Text) == "" {
		return nil
	}
	return []string{v.Text}
}

func numberOf(v Value) (*float64, error) {
	if v.Number != nil {
		n := *v.Number
		return &n, nil
	}
	text := strings.TrimSpace(v.Text)
	if text == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
	if err != nil {
		return nil, fmt.Errorf("parse sequence %q: %w", text, err)
	}
	return &n, nil
}

// Has reports whether field carries a non-empty value.
func (r Record) Has(field Field) bool {
	return !r.Get(field).IsEmpty()
}

// IdentifierCount is the number of populated ISBN/ASIN identifiers.
func (r Record) IdentifierCount() int {
	count := 0
	if r.Has(FieldISBN) {
		count++
	}
	if r.Has(FieldASIN) {
		count++
	}
	return count
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Authors = slices.Clone(r.Authors)
	out.Genres = slices.Clone(r.Genres)
	out.Tags = slices.Clone(r.Tags)
	out.RelatedIDs = slices.Clone(r.RelatedIDs)
	if r.SeriesSequence != nil {
		n := *r.SeriesSequence
		out.SeriesSequence = &n
	}
	return out
}

// DisplayName is a short human label for logs and tables.
func (r Record) DisplayName() string {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return r.ID
	}
	return title
}

// SortByID orders records by id, the processing order of every phase.
func SortByID(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// Index maps record ids to their position in records.
func Index(records []Record) map[string]int {
	out := make(map[string]int, len(records))
	for i, r := range records {
		out[r.ID] = i
	}
	return out
}
