package printer

import (
	"fmt"
	"time"

	"github.com/slok/comicsub/internal/model"
)

// TimeAgo returns a human-readable relative time string.
// Examples: "5 seconds ago", "2 minutes ago", "3 hours ago".
func TimeAgo(t time.Time) string {
	diff := time.Since(t)

	// Handle future times
	if diff < 0 {
		return "in the future"
	}

	switch {
	case diff < time.Minute:
		return plural(int(diff.Seconds()), "second")
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FetchAgo returns the relative time of a fetch timestamp written by the
// application, "-" if it's missing or it's not valid.
func FetchAgo(fetchTime string) string {
	t, err := time.ParseInLocation(model.FetchTimeLayout, fetchTime, time.Local)
	if err != nil {
		return "-"
	}
	return TimeAgo(t)
}
