package testsupport

import (
	"harmony/internal/metadata"
)

// RecordOption customizes a record built by NewRecord.
type RecordOption func(*metadata.Record)

// NewRecord builds a record from id, title and opts. Completeness is
// computed after the options run.
func NewRecord(id, title string, opts ...RecordOption) metadata.Record {
	rec := metadata.Record{ID: id, Title: title}
	for _, opt := range opts {
		opt(&rec)
	}
	rec.Completeness = metadata.Score(rec)
	return rec
}

// Authors sets the author list.
func Authors(names ...string) RecordOption {
	return func(r *metadata.Record) { r.Authors = names }
}

// Series sets the series name and an optional sequence. A negative sequence
// leaves the sequence unset.
func Series(name string, sequence float64) RecordOption {
	return func(r *metadata.Record) {
		r.Series = name
		if sequence >= 0 {
			seq := sequence
			r.SeriesSequence = &seq
		}
	}
}

// Publisher sets the publisher.
func Publisher(name string) RecordOption {
	return func(r *metadata.Record) { r.Publisher = name }
}

// Genres sets the genre list.
func Genres(genres ...string) RecordOption {
	return func(r *metadata.Record) { r.Genres = genres }
}

// Identifiers sets the ISBN and ASIN.
func Identifiers(isbn, asin string) RecordOption {
	return func(r *metadata.Record) {
		r.ISBN = isbn
		r.ASIN = asin
	}
}

// Description sets the description and publication year.
func Description(text, year string) RecordOption {
	return func(r *metadata.Record) {
		r.Description = text
		r.PublicationYear = year
	}
}
