// Package compare classifies metadata discrepancies inside a relationship
// group. It only reports; choosing the authoritative value belongs to the
// merge package.
package compare
