package catalog

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
)

// previewColumn is one column of the console table. width caps the cell's
// display width.
type previewColumn struct {
	header string
	width  int
	value  func(Row) string
}

var previewColumns = []previewColumn{
	{"PMID", 10, func(r Row) string { return r.PMID }},
	{"Category", 16, func(r Row) string { return r.Category }},
	{"Date", 12, func(r Row) string { return r.PublicationDate }},
	{"Type", 18, func(r Row) string { return r.PrimaryType }},
	{"FT", 3, func(r Row) string {
		if r.HasFullText {
			return "yes"
		}
		return "-"
	}},
	{"Title", 60, func(r Row) string { return r.Title }},
}

// WritePreview prints the first limit rows as a table. Cells are truncated by
// display width so wide characters keep the columns aligned.
func WritePreview(w io.Writer, rows []Row, limit int) error {
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}

	header := make([]string, len(previewColumns))
	for i, col := range previewColumns {
		header[i] = col.header
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range rows[:limit] {
		cells := make([]string, len(previewColumns))
		for i, col := range previewColumns {
			cell := strings.Join(strings.Fields(col.value(r)), " ")
			cells[i] = runewidth.Truncate(cell, col.width, "…")
		}
		table.Append(cells)
	}
	table.Render()

	if rest := len(rows) - limit; rest > 0 {
		if _, err := fmt.Fprintf(w, "... %d more\n", rest); err != nil {
			return err
		}
	}
	return nil
}
