// Package similarity decides whether two metadata values name the same thing.
//
// Two questions are kept apart. Similar answers "is this the same
// person or series" with a tolerant fuzzy score used for identity decisions.
// SemanticallyEqual answers "would changing one value into the other be a
// meaningful edit" with rules chosen per field kind: strict for identifiers,
// lenient for prose and dates. Formatting-only differences never count as a
// semantic difference.
package similarity
