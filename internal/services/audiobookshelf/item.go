package audiobookshelf

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"harmony/internal/metadata"
)

// Library is one Audiobookshelf library.
type Library struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
}

type librariesResponse struct {
	Libraries []Library `json:"libraries"`
}

type itemsResponse struct {
	Results []libraryItem `json:"results"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Page    int           `json:"page"`
}

type libraryItem struct {
	ID        string   `json:"id"`
	UpdatedAt int64    `json:"updatedAt"`
	Tags      []string `json:"tags"`
	Media     struct {
		Tags     []string     `json:"tags"`
		Metadata itemMetadata `json:"metadata"`
	} `json:"media"`
}

type itemMetadata struct {
	Title         string     `json:"title"`
	Subtitle      string     `json:"subtitle"`
	Authors       nameList   `json:"authors"`
	AuthorName    string     `json:"authorName"`
	Series        nameList   `json:"series"`
	SeriesName    string     `json:"seriesName"`
	Sequence      flexString `json:"sequence"`
	Description   string     `json:"description"`
	PublishedYear flexString `json:"publishedYear"`
	Narrator      string     `json:"narrator"`
	Narrators     nameList   `json:"narrators"`
	NarratorName  string     `json:"narratorName"`
	ISBN          string     `json:"isbn"`
	ASIN          string     `json:"asin"`
	Publisher     string     `json:"publisher"`
	Language      string     `json:"language"`
	Genres        []string   `json:"genres"`
}

// namedEntry is an author, series or narrator reference. The API returns
// either a plain string or an object with a name and, for series, a sequence.
type namedEntry struct {
	Name     string
	Sequence string
}

type nameList []namedEntry

func (n *nameList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(nameList, 0, len(raw))
	for _, entry := range raw {
		var name string
		if err := json.Unmarshal(entry, &name); err == nil {
			out = append(out, namedEntry{Name: name})
			continue
		}
		var obj struct {
			Name     string     `json:"name"`
			Sequence flexString `json:"sequence"`
		}
		if err := json.Unmarshal(entry, &obj); err != nil {
			return err
		}
		out = append(out, namedEntry{Name: obj.Name, Sequence: string(obj.Sequence)})
	}
	*n = out
	return nil
}

func (n nameList) names() []string {
	out := make([]string, 0, len(n))
	for _, entry := range n {
		if name := strings.TrimSpace(entry.Name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*f = flexString(num.String())
	return nil
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSequence(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// toRecord converts an API item into a metadata record.
func (it libraryItem) toRecord() metadata.Record {
	md := it.Media.Metadata
	rec := metadata.Record{
		ID:              it.ID,
		Title:           strings.TrimSpace(md.Title),
		Subtitle:        strings.TrimSpace(md.Subtitle),
		Description:     md.Description,
		PublicationYear: strings.TrimSpace(string(md.PublishedYear)),
		ISBN:            strings.TrimSpace(md.ISBN),
		ASIN:            strings.TrimSpace(md.ASIN),
		Publisher:       strings.TrimSpace(md.Publisher),
		Language:        strings.TrimSpace(md.Language),
		Genres:          md.Genres,
	}
	if it.UpdatedAt > 0 {
		rec.UpdatedAt = time.UnixMilli(it.UpdatedAt).UTC()
	}

	rec.Authors = md.Authors.names()
	if len(rec.Authors) == 0 {
		rec.Authors = splitNames(md.AuthorName)
	}

	if len(md.Series) > 0 {
		rec.Series = strings.TrimSpace(md.Series[0].Name)
		rec.SeriesSequence = parseSequence(md.Series[0].Sequence)
	} else {
		rec.Series = strings.TrimSpace(md.SeriesName)
	}
	if rec.SeriesSequence == nil {
		rec.SeriesSequence = parseSequence(string(md.Sequence))
	}

	switch {
	case strings.TrimSpace(md.Narrator) != "":
		rec.Narrator = strings.TrimSpace(md.Narrator)
	case len(md.Narrators) > 0:
		rec.Narrator = strings.Join(md.Narrators.names(), ", ")
	default:
		rec.Narrator = strings.TrimSpace(md.NarratorName)
	}

	rec.Tags = it.Media.Tags
	if len(rec.Tags) == 0 {
		rec.Tags = it.Tags
	}
	rec.Completeness = metadata.Score(rec)
	return rec
}

// updatePayload builds the PATCH body that writes field from rec.
func updatePayload(rec metadata.Record, field metadata.Field) (map[string]any, error) {
	var (
		key   string
		value any
	)
	switch field {
	case metadata.FieldTitle, metadata.FieldSubtitle, metadata.FieldDescription,
		metadata.FieldISBN, metadata.FieldASIN, metadata.FieldPublisher, metadata.FieldLanguage:
		key, value = string(field), rec.Get(field).Text
	case metadata.FieldPublicationYear:
		key, value = "publishedYear", rec.PublicationYear
	case metadata.FieldAuthors:
		authors := make([]map[string]string, 0, len(rec.Authors))
		for _, name := range rec.Authors {
			authors = append(authors, map[string]string{"name": name})
		}
		key, value = "authors", authors
	case metadata.FieldSeries, metadata.FieldSeriesSequence:
		series := []map[string]string{}
		if strings.TrimSpace(rec.Series) != "" {
			entry := map[string]string{"name": rec.Series}
			if rec.SeriesSequence != nil {
				entry["sequence"] = strconv.FormatFloat(*rec.SeriesSequence, 'f', -1, 64)
			}
			series = append(series, entry)
		}
		key, value = "series", series
	case metadata.FieldNarrator:
		key, value = "narrators", nonNil(splitNames(rec.Narrator))
	case metadata.FieldGenres:
		key, value = "genres", nonNil(rec.Genres)
	case metadata.FieldTags:
		return map[string]any{"tags": nonNil(rec.Tags)}, nil
	default:
		return nil, errUnsupportedField(field)
	}
	return map[string]any{"metadata": map[string]any{key: value}}, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
