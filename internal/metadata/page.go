package metadata

// Page is one batch of records read from a library. Next is empty on the
// final page. Total is the number of records in the whole listing, zero when
// the library cannot tell.
type Page struct {
	Records []Record
	Next    string
	Total   int
}
