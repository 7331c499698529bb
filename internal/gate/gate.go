package gate

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lists holds the raw blocklist fragments and allowlisted program names.
type Lists struct {
	Blocklist []string `yaml:"blocklist"`
	Allowlist []string `yaml:"allowlist"`
}

// Decision is the outcome of evaluating one command. Reason is empty when allowed.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Gate classifies shell command strings. A Gate is immutable once built.
type Gate struct {
	blocklist []pattern
	allowed   map[string]bool
}

type pattern struct {
	text  string
	lower string
}

// New builds a Gate from raw lists.
func New(l Lists) *Gate {
	g := &Gate{allowed: make(map[string]bool, len(l.Allowlist))}
	for _, p := range l.Blocklist {
		if p == "" {
			continue
		}
		g.blocklist = append(g.blocklist, pattern{text: p, lower: strings.ToLower(p)})
	}
	for _, name := range l.Allowlist {
		if name != "" {
			g.allowed[name] = true
		}
	}
	return g
}

// NewDefault creates a Gate with the built-in lists.
func NewDefault() *Gate {
	return New(DefaultLists)
}

// Load reads lists from a YAML file. An empty path or a missing file yields the
// default lists. An empty section in the file keeps the default for that section.
func Load(path string) (*Gate, error) {
	if path == "" {
		return NewDefault(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, fmt.Errorf("gate: read %s: %w", path, err)
	}

	var l Lists
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("gate: parse %s: %w", path, err)
	}
	if len(l.Blocklist) == 0 {
		l.Blocklist = DefaultLists.Blocklist
	}
	if len(l.Allowlist) == 0 {
		l.Allowlist = DefaultLists.Allowlist
	}
	return New(l), nil
}

var std = NewDefault()

// Evaluate classifies command using the default lists.
func Evaluate(command string) Decision {
	return std.Evaluate(command)
}

// Evaluate classifies command. The blocklist is checked before the allowlist
// and always wins.
func (g *Gate) Evaluate(command string) Decision {
	if strings.TrimSpace(command) == "" {
		return Decision{Reason: "empty command"}
	}

	if pattern, blocked := g.blockedPattern(command); blocked {
		return Decision{Reason: "contains blocked pattern: " + pattern}
	}

	base := BaseCommand(command)
	if base == "" {
		return Decision{Reason: "could not parse command"}
	}

	if g.allowed[base] {
		return Decision{Allowed: true}
	}
	return Decision{Reason: fmt.Sprintf("command '%s' is not in allowlist", base)}
}

// Allowed returns the sorted allowlist.
func (g *Gate) Allowed() []string {
	names := make([]string, 0, len(g.allowed))
	for name := range g.allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Blocklist returns the blocklist fragments as configured.
func (g *Gate) Blocklist() []string {
	out := make([]string, len(g.blocklist))
	for i, p := range g.blocklist {
		out[i] = p.text
	}
	return out
}

func (g *Gate) blockedPattern(command string) (string, bool) {
	lower := strings.ToLower(command)
	for _, p := range g.blocklist {
		if strings.Contains(lower, p.lower) {
			return p.text, true
		}
	}
	if p := pipeToShell(lower); p != "" {
		return p, true
	}
	return "", false
}

// BaseCommand extracts the program name a command invokes: leading NAME=value
// assignments are skipped and any directory prefix is dropped.
// "NODE_ENV=test /usr/bin/node x.js" yields "node". Returns "" if nothing remains.
func BaseCommand(command string) string {
	for _, tok := range strings.Fields(command) {
		if strings.Contains(tok, "=") && !strings.HasPrefix(tok, "-") {
			continue
		}
		if i := strings.LastIndex(tok, "/"); i >= 0 {
			return tok[i+1:]
		}
		return tok
	}
	return ""
}

// pipeToShell detects a downloader piped into a shell, e.g. "curl https://x | sh".
// The shell may be given by path or through env: "curl x | /usr/bin/env bash".
// Returns the canonical "<downloader> | <shell>" pattern, or "".
func pipeToShell(cmd string) string {
	if !strings.Contains(cmd, "|") {
		return ""
	}
	shells := map[string]bool{"sh": true, "bash": true, "zsh": true, "fish": true, "dash": true, "ksh": true}
	downloaders := []string{"curl", "wget"}

	parts := strings.Split(cmd, "|")
	downloader := ""
	for i := 0; i < len(parts)-1; i++ {
		for _, d := range downloaders {
			if strings.Contains(parts[i], d) {
				downloader = d
			}
		}
		if downloader == "" {
			continue
		}
		if shell := launchedProgram(parts[i+1]); shells[shell] {
			return downloader + " | " + shell
		}
	}
	return ""
}

// launchers run the program named after them.
var launchers = map[string]bool{"env": true, "exec": true, "command": true, "nohup": true}

// launchedProgram is BaseCommand that also looks through launchers and quotes:
// "/usr/bin/env -i FOO=1 'bash'" yields "bash".
func launchedProgram(segment string) string {
	fields := strings.Fields(segment)
	for i := 0; i < len(fields); i++ {
		base := BaseCommand(strings.Trim(fields[i], `"'`))
		if base == "" {
			continue
		}
		if !launchers[base] {
			return base
		}
		for i+1 < len(fields) && strings.HasPrefix(fields[i+1], "-") {
			i++
			switch fields[i] {
			case "-u", "-C", "--unset", "--chdir":
				i++
			}
		}
	}
	return ""
}
