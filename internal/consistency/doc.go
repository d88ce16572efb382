// Package consistency checks harmonized groups after changes are applied.
// Failures are reported, never corrected.
package consistency
