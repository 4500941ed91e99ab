package report

import (
	"strconv"
	"strings"
)

// Escape renders s for embedding in a double-quoted string. Backslash and
// quote are escaped, control and non-printable characters get their symbolic
// form (\n, \t, \x01, \u2028) and printable UTF-8 is kept as is.
// The result is valid inside YAML double-quoted scalars. Invalid UTF-8 is
// replaced with U+FFFD, as YAML has no escape for raw bytes.
func Escape(s string) string {
	q := strconv.Quote(strings.ToValidUTF8(s, "\uFFFD"))
	return q[1 : len(q)-1]
}

// Unescape reverses Escape.
func Unescape(s string) (string, error) {
	return strconv.Unquote(`"` + s + `"`)
}
