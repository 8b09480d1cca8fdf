// Package validation provides input sanitization and request schema validation
// for user-supplied data. Schema rules are declared with go-playground/validator
// struct tags; Struct() runs them and converts the first violation into a
// human-readable message suitable for returning to API clients verbatim.
package validation

import (
	"regexp"
	"strings"
)

// scriptTagRe matches complete <script>...</script> blocks, case-insensitively,
// including blocks whose body contains other tags.
var scriptTagRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)

// Sanitize trims surrounding whitespace and removes script tag blocks from
// user-supplied text. It runs after schema validation, so the stored value may
// be shorter than the validated minimum if the input contained markup.
func Sanitize(s string) string {
	return strings.TrimSpace(scriptTagRe.ReplaceAllString(s, ""))
}
