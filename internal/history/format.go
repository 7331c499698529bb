package history

import (
	"fmt"
	"strings"
	"time"
)

// FormatTable renders records for the terminal, one line per session.
func FormatTable(records []Record) string {
	if len(records) == 0 {
		return "No sessions recorded.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %-5s %-12s %-12s %-20s %-9s %s\n", "ID", "ITER", "MODE", "STATUS", "STARTED", "DURATION", "SUMMARY")
	for _, r := range records {
		dur := "-"
		if d := r.Duration(); d > 0 {
			dur = d.Round(time.Second).String()
		}
		fmt.Fprintf(&b, "%-5d %-5d %-12s %-12s %-20s %-9s %s\n",
			r.ID, r.Iteration, r.Mode, r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			dur, oneLine(r.Payload, 60))
	}
	return b.String()
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
