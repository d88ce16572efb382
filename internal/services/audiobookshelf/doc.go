// Package audiobookshelf reads and updates audiobook metadata through the
// Audiobookshelf REST API.
//
// The Client lists book libraries, pages through their items with a bounded
// number of concurrent requests, and converts each item into a
// metadata.Record. Writes go through the per-item metadata PATCH endpoint one
// field at a time so every change can be audited on its own.
//
// HTTP failures are tagged with services markers: network errors, 5xx and 429
// responses are transient; other 4xx responses are validation failures.
package audiobookshelf
