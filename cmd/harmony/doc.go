// Command harmony harmonizes audiobook metadata across an Audiobookshelf
// library.
//
// The default run previews every change without touching the library;
// --apply writes the changes back. Interrupted runs resume from the last
// checkpoint kept in the cache database.
package main
