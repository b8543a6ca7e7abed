package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/term"
)

// columnGap is the space between columns.
const columnGap = 2

// Table renders column-aligned output. Rows are buffered until Flush so
// column widths fit every cell; when writing to a terminal, the widest
// columns are narrowed and their cells wrapped to fit the screen.
// Empty tables produce no output.
type Table struct {
	w       io.Writer
	headers []string
	prefix  string
	rows    [][]string

	// Width caps the total line width; zero means the terminal width, or
	// unlimited when stdout is not a terminal.
	Width int
}

// NewTable creates a table writing to stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table writing to w.
func NewTableTo(w io.Writer, headers ...string) *Table {
	return &Table{w: w, headers: headers}
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
// Useful for indenting sub-tables within larger output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// Row buffers a row. Missing trailing cells are empty.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Flush writes the table. If no rows were added, nothing is printed.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := visualLen(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	if limit := t.limit(); limit > 0 {
		widths = capWidths(widths, t.headers, limit, visualLen(t.prefix))
	}

	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	t.writeRow(t.headers, widths)
	t.writeRow(dividers, widths)
	for _, row := range t.rows {
		t.writeRow(row, widths)
	}
	t.rows = nil
}

func (t *Table) limit() int {
	if t.Width > 0 {
		return t.Width
	}
	f, ok := t.w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// writeRow writes one logical row, which may span several lines when cells
// wrap.
func (t *Table) writeRow(row []string, widths []int) {
	cells := make([][]string, len(widths))
	lines := 1
	for i := range widths {
		v := ""
		if i < len(row) {
			v = row[i]
		}
		cells[i] = wrapCell(v, widths[i])
		if len(cells[i]) > lines {
			lines = len(cells[i])
		}
	}
	for l := 0; l < lines; l++ {
		var b strings.Builder
		b.WriteString(t.prefix)
		for i, cell := range cells {
			s := ""
			if l < len(cell) {
				s = cell[l]
			}
			if i < len(cells)-1 {
				s += strings.Repeat(" ", widths[i]-visualLen(s)+columnGap)
			}
			b.WriteString(s)
		}
		fmt.Fprintln(t.w, strings.TrimRight(b.String(), " "))
	}
}

// capWidths narrows the widest columns until the line fits within total,
// never below the header width of a column.
func capWidths(widths []int, headers []string, total, prefix int) []int {
	out := append([]int(nil), widths...)
	floor := make([]int, len(out))
	for i := range out {
		if i < len(headers) {
			floor[i] = visualLen(headers[i])
		}
	}
	lineWidth := func() int {
		n := prefix
		for _, w := range out {
			n += w
		}
		return n + columnGap*(len(out)-1)
	}
	for lineWidth() > total {
		widest := -1
		for i, w := range out {
			if w > floor[i] && (widest < 0 || w > out[widest]) {
				widest = i
			}
		}
		if widest < 0 {
			break
		}
		out[widest]--
	}
	return out
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visualLen is the printed width of s, not counting ANSI color sequences.
func visualLen(s string) int {
	return len([]rune(ansiEscape.ReplaceAllString(s, "")))
}

// wrapCell splits s into lines no wider than width, breaking at spaces and
// hard-breaking words that do not fit on a line of their own. A cell that
// fits is returned unchanged.
func wrapCell(s string, width int) []string {
	if width <= 0 || visualLen(s) <= width {
		return []string{s}
	}
	plain := ansiEscape.ReplaceAllString(s, "")

	var lines []string
	line := ""
	for _, word := range strings.Fields(plain) {
		for len([]rune(word)) > width {
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			r := []rune(word)
			lines = append(lines, string(r[:width]))
			word = string(r[width:])
		}
		switch {
		case line == "":
			line = word
		case len([]rune(line))+1+len([]rune(word)) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
