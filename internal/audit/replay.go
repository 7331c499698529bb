package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ReplayFilter selects entries for replay. Empty fields match everything.
type ReplayFilter struct {
	SessionID string
	Decision  string
}

// ReplaySummary holds decision counts for a replayed selection.
type ReplaySummary struct {
	Total          int    `json:"total"`
	AllowCount     int    `json:"allow_count"`
	DenyCount      int    `json:"deny_count"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	SessionID string        `json:"session_id,omitempty"`
	Entries   []Entry       `json:"entries"`
	Summary   ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
// Malformed lines are skipped; Verify is the tool for detecting them.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{SessionID: filter.SessionID}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if filter.SessionID != "" && entry.SessionID != filter.SessionID {
			continue
		}
		if filter.Decision != "" && entry.Decision != filter.Decision {
			continue
		}

		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return result, nil
}

// Tail returns the last n entries of the log, oldest first.
func Tail(path string, n int) ([]Entry, error) {
	result, err := Replay(path, ReplayFilter{})
	if err != nil {
		return nil, err
	}
	entries := result.Entries
	if n >= 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func updateSummary(s *ReplaySummary, entry Entry) {
	s.Total++

	switch entry.Decision {
	case DecisionAllow:
		s.AllowCount++
	case DecisionDeny:
		s.DenyCount++
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
