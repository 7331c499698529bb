package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	label := result.SessionID
	if label == "" {
		label = "all sessions"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", label)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Session: %s | %s–%s UTC\n", label,
		formatDateTime(result.Summary.FirstTimestamp), formatTimeOnly(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%-10s %-6s %-5s %-40s %s\n",
			formatTimeOnly(e.Timestamp),
			strings.ToUpper(e.Decision),
			truncate(e.Source, 5),
			truncate(e.Command, 40),
			e.Reason)
	}

	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "Summary: %d total, %d allow, %d deny\n",
		result.Summary.Total, result.Summary.AllowCount, result.Summary.DenyCount)

	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
