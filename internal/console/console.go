// Package console writes the operator stream: plain text grouped by
// banners, coloured when the destination is a terminal.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	Red    = "\033[0;31m"
	Green  = "\033[0;32m"
	Cyan   = "\033[0;36m"
	Yellow = "\033[1;33m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Reset  = "\033[0m"
)

// ruleWidth is the width of session separators.
const ruleWidth = 60

// Printer writes to the operator stream.
type Printer struct {
	w     io.Writer
	color bool
}

// New returns a Printer for w. Colour is on only when w is a terminal and
// NO_COLOR is unset.
func New(w io.Writer) *Printer {
	return &Printer{w: w, color: isTerminal(w) && os.Getenv("NO_COLOR") == ""}
}

// NewPlain returns a Printer that never emits colour codes.
func NewPlain(w io.Writer) *Printer {
	return &Printer{w: w}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Writer returns the underlying stream.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Color reports whether colour codes are written.
func (p *Printer) Color() bool {
	return p.color
}

// Paint wraps s in the given colour codes when colour is on.
func (p *Printer) Paint(s string, codes ...string) string {
	if !p.color || len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + Reset
}

// Printf writes formatted text as is.
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

// Println writes a line.
func (p *Printer) Println(args ...any) {
	fmt.Fprintln(p.w, args...)
}

// Banner writes "=== TITLE ===".
func (p *Printer) Banner(title string, codes ...string) {
	fmt.Fprintln(p.w, p.Paint("=== "+title+" ===", append([]string{Bold}, codes...)...))
}

// Rule writes a full-width separator line.
func (p *Printer) Rule() {
	fmt.Fprintln(p.w, strings.Repeat("=", ruleWidth))
}

// Section writes a titled block between two rules, preceded by a blank line.
func (p *Printer) Section(lines ...string) {
	fmt.Fprintln(p.w)
	p.Rule()
	for _, l := range lines {
		fmt.Fprintln(p.w, l)
	}
	p.Rule()
}

// OK, Warn, Fail and Note write a single coloured line.
func (p *Printer) OK(format string, args ...any) {
	fmt.Fprintln(p.w, p.Paint(fmt.Sprintf(format, args...), Green))
}

func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, p.Paint(fmt.Sprintf(format, args...), Yellow))
}

func (p *Printer) Fail(format string, args ...any) {
	fmt.Fprintln(p.w, p.Paint(fmt.Sprintf(format, args...), Red))
}

func (p *Printer) Note(format string, args ...any) {
	fmt.Fprintln(p.w, p.Paint(fmt.Sprintf(format, args...), Dim))
}
