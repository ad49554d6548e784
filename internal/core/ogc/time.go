package ogc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// TimeExpression renders the OGC time period for a start/end pair.
// An empty time0 passes time1 through unchanged; an empty time1 means
// "until today".
func TimeExpression(time0, time1 string, exact bool, now time.Time) string {
	switch {
	case exact:
		return fmt.Sprintf("%s/%s/P1D", time0, time0)
	case time0 == "":
		return time1
	case time1 == "":
		return fmt.Sprintf("%s/%s/P1D", time0, now.Format(DateLayout))
	default:
		return fmt.Sprintf("%s/%s/P1D", time0, time1)
	}
}

// TimeName shortens a time expression for display: "start/end", with "-"
// for an open side and "-/-" when no time is set at all.
func TimeName(expr string, exact bool) string {
	parts := strings.Split(expr, "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	if exact {
		parts = parts[:1]
	}
	if len(parts) == 1 {
		if parts[0] == "" {
			parts[0] = "-/-"
		}
		return parts[0]
	}
	if parts[0] == "" {
		parts[0] = "-"
	}
	if parts[1] == "" {
		parts[1] = "-"
	}
	return strings.Join(parts, "/")
}

// ParseDate normalises a Y-M-D date to YYYY-MM-DD. Blank input is valid
// and yields "". ok is false when s is not a calendar date.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	parts := strings.Split(s, "-")
	if len(parts) < 3 {
		return "", false
	}
	var ymd [3]int
	for i := range ymd {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return "", false
		}
		ymd[i] = n
	}
	if ymd[0] < 1 || ymd[0] > 9999 {
		return "", false
	}
	d := time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, time.UTC)
	// time.Date normalises overflow, so a changed field means an invalid date
	if d.Year() != ymd[0] || int(d.Month()) != ymd[1] || d.Day() != ymd[2] {
		return "", false
	}
	return d.Format(DateLayout), true
}

// MonthInterval returns first/last/P1D for a calendar month.
func MonthInterval(year int, month time.Month) string {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return fmt.Sprintf("%s/%s/P1D", first.Format(DateLayout), last.Format(DateLayout))
}
