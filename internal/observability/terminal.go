package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TermWidth returns the width of the terminal attached to f, or 80.
func TermWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

const banner = `
   __ __ ____  _____  __  ___
  / //_// __ \/  _/ \/ / / _ |
 / ,<  / /_/ // / \  / / __ |
/_/|_|/_/ |_/___/ /_/ /_/ |_|

   >> SCENARIO EXECUTION ENGINE <<
`

// PrintBanner writes the centred banner to w. Colour is used only when w is
// a terminal.
func PrintBanner(w io.Writer) {
	width := 80
	color, reset := "", ""
	if f, ok := w.(*os.File); ok && IsTerminal(f) {
		width = TermWidth(f)
		color, reset = colorNeonCyan, colorReset
	}

	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), color, l, reset)
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
