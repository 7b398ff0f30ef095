// Package clifmt renders command output for humans.
package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const defaultTableWidth = 100

var (
	headerStyle  = color.New(color.FgCyan, color.Bold)
	keyStyle     = color.New(color.Bold)
	dimStyle     = color.New(color.FgHiBlack)
	successStyle = color.New(color.FgGreen)
	warnStyle    = color.New(color.FgYellow)
)

func Headerf(format string, args ...any) string { return headerStyle.Sprintf(format, args...) }
func Key(s string) string                       { return keyStyle.Sprint(s) }
func Dim(s string) string                       { return dimStyle.Sprint(s) }
func Success(s string) string                   { return successStyle.Sprint(s) }
func Warn(s string) string                      { return warnStyle.Sprint(s) }

type TableOptions struct {
	Title     string
	Headers   []string
	Rows      [][]string
	EmptyText string
	// Width caps the last column. Zero uses the terminal width when out is a
	// terminal.
	Width int
}

// PrintTable writes rows as left aligned columns. The last column is
// truncated to fit the available width.
func PrintTable(out io.Writer, opts TableOptions) {
	if out == nil {
		out = os.Stdout
	}
	if title := strings.TrimSpace(opts.Title); title != "" {
		fmt.Fprintln(out, Headerf("%s (%d)", title, len(opts.Rows)))
	}
	if len(opts.Rows) == 0 {
		emptyText := strings.TrimSpace(opts.EmptyText)
		if emptyText == "" {
			emptyText = "No entries."
		}
		fmt.Fprintln(out, Warn(emptyText))
		return
	}

	cols := len(opts.Headers)
	widths := make([]int, cols)
	for i, h := range opts.Headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range opts.Rows {
		for i := 0; i < cols && i < len(row); i++ {
			if w := utf8.RuneCountInString(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}
	if cols > 0 {
		used := 0
		for i := 0; i < cols-1; i++ {
			used += widths[i] + 2
		}
		if last := tableWidth(out, opts.Width) - used; last > 8 && widths[cols-1] > last {
			widths[cols-1] = last
		}
	}

	header := make([]string, cols)
	rule := make([]string, cols)
	for i, h := range opts.Headers {
		header[i] = Key(padRightRunes(h, widths[i]))
		rule[i] = Dim(strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(out, strings.Join(header, "  "))
	fmt.Fprintln(out, strings.Join(rule, "  "))
	for _, row := range opts.Rows {
		cells := make([]string, cols)
		for i := 0; i < cols; i++ {
			v := ""
			if i < len(row) {
				v = truncateRunes(row[i], widths[i])
			}
			cells[i] = padRightRunes(v, widths[i])
		}
		if cols > 0 {
			cells[0] = Success(cells[0])
		}
		fmt.Fprintln(out, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func tableWidth(out io.Writer, width int) int {
	if width > 0 {
		return width
	}
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if w, _, err := term.GetSize(int(file.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return defaultTableWidth
}

func padRightRunes(s string, width int) string {
	missing := width - utf8.RuneCountInString(s)
	if missing <= 0 {
		return s
	}
	return s + strings.Repeat(" ", missing)
}

func truncateRunes(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width == 1 {
		return string(runes[:1])
	}
	return string(runes[:width-1]) + "…"
}
