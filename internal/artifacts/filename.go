package artifacts

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"
)

const maxNameLen = 128

var (
	unsafeChars   = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	underscores   = regexp.MustCompile(`_+`)
	underscoreDot = regexp.MustCompile(`_+\.`)
	dotUnderscore = regexp.MustCompile(`\._+`)
)

// ConstructFilename builds a unique artifact path of the form
//
//	<dir>/<testcase>/<yyyymmdd>/<HHMMSS.mmm>-<base>.<ext>
//
// The base is reduced to file name safe characters. Test case and base are
// shortened so that neither path element exceeds 128 characters.
func ConstructFilename(dir, testcase, base, ext string, now time.Time) string {
	ext = "." + strings.TrimPrefix(ext, ".")
	safe := unsafeChars.ReplaceAllString(base, "_")
	safe = underscores.ReplaceAllString(safe, "_")
	safe = underscoreDot.ReplaceAllString(safe, ".")
	safe = dotUnderscore.ReplaceAllString(safe, ".")

	date := timefmt.Format(now, "%Y%m%d")
	clock := timefmt.Format(now, "%H%M%S") + fmt.Sprintf(".%03d", now.Nanosecond()/int(time.Millisecond))
	fixed := len(clock) + len(ext) + 1

	return dir +
		"/" + truncate(testcase, maxNameLen) +
		"/" + date +
		"/" + clock + "-" + truncate(safe, maxNameLen-fixed) + ext
}

func truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}
