// Package report defines the completion report produced by a harmonization
// run and writes it to disk as JSON or YAML.
package report
