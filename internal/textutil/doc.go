// Package textutil provides the text normalization shared by the matching
// packages, plus filename sanitization for report output.
//
// Normalize is the single definition of "formatting-only difference": two
// strings with the same normalized form are the same value. Diacritics and
// case are folded with golang.org/x/text, punctuation is removed (hyphens and
// underscores survive) and whitespace is collapsed.
package textutil
