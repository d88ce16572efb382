package textutil

import "strings"

var unsafeFileChars = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName makes name safe to use as a single path element. Path
// separators, colons and asterisks become dashes, other reserved characters
// are dropped and runs of whitespace become one underscore.
func SanitizeFileName(name string) string {
	name = unsafeFileChars.Replace(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "_")
}
