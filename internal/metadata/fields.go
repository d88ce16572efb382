package metadata

import (
	"fmt"

	"harmony/internal/similarity"
)

// Field names a metadata attribute of a record.
type Field string

const (
	FieldTitle           Field = "title"
	FieldSubtitle        Field = "subtitle"
	FieldAuthors         Field = "authors"
	FieldSeries          Field = "series"
	FieldSeriesSequence  Field = "series_sequence"
	FieldDescription     Field = "description"
	FieldPublicationYear Field = "publication_year"
	FieldNarrator        Field = "narrator"
	FieldISBN            Field = "isbn"
	FieldASIN            Field = "asin"
	FieldPublisher       Field = "publisher"
	FieldLanguage        Field = "language"
	FieldGenres          Field = "genres"
	FieldTags            Field = "tags"
)

type fieldSpec struct {
	weight    float64
	kind      similarity.Kind
	list      bool
	protected bool
}

var fieldOrder = []Field{
	FieldTitle,
	FieldAuthors,
	FieldSeries,
	FieldDescription,
	FieldISBN,
	FieldASIN,
	FieldPublicationYear,
	FieldNarrator,
	FieldPublisher,
	FieldGenres,
	FieldSeriesSequence,
	FieldSubtitle,
	FieldLanguage,
	FieldTags,
}

var fieldSpecs = map[Field]fieldSpec{
	FieldTitle:           {weight: 1.0, kind: similarity.KindText, protected: true},
	FieldAuthors:         {weight: 1.0, kind: similarity.KindName, list: true},
	FieldSeries:          {weight: 0.9, kind: similarity.KindText},
	FieldDescription:     {weight: 0.9, kind: similarity.KindDescription, protected: true},
	FieldISBN:            {weight: 0.8, kind: similarity.KindIdentifier, protected: true},
	FieldASIN:            {weight: 0.8, kind: similarity.KindIdentifier, protected: true},
	FieldPublicationYear: {weight: 0.7, kind: similarity.KindYear},
	FieldNarrator:        {weight: 0.7, kind: similarity.KindName},
	FieldPublisher:       {weight: 0.6, kind: similarity.KindText},
	FieldGenres:          {weight: 0.5, kind: similarity.KindList, list: true},
	FieldSeriesSequence:  {weight: 0.5, kind: similarity.KindSequence},
	FieldSubtitle:        {weight: 0.4, kind: similarity.KindText},
	FieldLanguage:        {weight: 0.4, kind: similarity.KindText},
	FieldTags:            {weight: 0.3, kind: similarity.KindList, list: true},
}

// Fields returns every known field in descending weight order.
func Fields() []Field {
	out := make([]Field, len(fieldOrder))
	copy(out, fieldOrder)
	return out
}

// ParseField validates a field name.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if _, ok := fieldSpecs[f]; !ok {
		return "", fmt.Errorf("unknown metadata field %q", name)
	}
	return f, nil
}

// Weight is the field's completeness importance.
func (f Field) Weight() float64 { return fieldSpecs[f].weight }

// Kind is the semantic comparison rule for the field.
func (f Field) Kind() similarity.Kind { return fieldSpecs[f].kind }

// IsList reports whether the field holds a list of strings.
func (f Field) IsList() bool { return fieldSpecs[f].list }

// Protected fields are book specific and are never overwritten by a
// cross-record merge.
func (f Field) Protected() bool { return fieldSpecs[f].protected }

func (f Field) String() string { return string(f) }

// ProtectedFields lists the fields that must survive a run unchanged.
func ProtectedFields() []Field {
	return []Field{FieldTitle, FieldDescription, FieldISBN, FieldASIN}
}

// totalWeight is the denominator of every completeness score.
func totalWeight() float64 {
	var total float64
	for _, f := range fieldOrder {
		total += fieldSpecs[f].weight
	}
	return total
}
