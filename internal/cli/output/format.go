package output

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

func Size(bytes int64) string {
	if bytes < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

func Ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// Truncate shortens s to at most max terminal columns, marking the cut
// with "...".
func Truncate(s string, max int) string {
	if runewidth.StringWidth(s) <= max {
		return s
	}
	if max <= 3 {
		return "..."[:max]
	}
	return runewidth.Truncate(s, max, "...")
}
