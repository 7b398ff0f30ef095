package clifmt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestPrintTable(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	PrintTable(&buf, TableOptions{
		Title:   "Channels",
		Headers: []string{"ID", "NAME"},
		Rows: [][]string{
			{"C1", "-abc-1234-website"},
			{"C22", "-xyz-0001-a-very-long-channel-name"},
		},
		Width: 25,
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("line count mismatch: got %d want 5\n%s", len(lines), buf.String())
	}
	if lines[0] != "Channels (2)" {
		t.Fatalf("title mismatch: got %q", lines[0])
	}
	if lines[2] != "C1   -abc-1234-website" {
		t.Fatalf("row mismatch: got %q", lines[2])
	}
	if !strings.HasSuffix(lines[4], "…") {
		t.Fatalf("long cell should be truncated: got %q", lines[4])
	}

	buf.Reset()
	PrintTable(&buf, TableOptions{Headers: []string{"ID"}, EmptyText: "Nothing synced."})
	if got := strings.TrimSpace(buf.String()); got != "Nothing synced." {
		t.Fatalf("empty output mismatch: got %q", got)
	}
}
