// Package stats contains statistics calculations and reporting.
package stats

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

type column struct {
	title string
	right bool
}

// table is a plain-text grid sized to its widest cell per column.
type table struct {
	cols []column
	rows [][]string
}

func newTable(cols ...column) *table {
	return &table{cols: cols}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

// lines renders the header followed by each row. Missing cells render blank.
func (t *table) lines() []string {
	if len(t.cols) == 0 {
		return nil
	}
	widths := make([]int, len(t.cols))
	for i, c := range t.cols {
		widths[i] = runewidth.StringWidth(c.title)
	}
	for _, row := range t.rows {
		for i := range widths {
			widths[i] = max(widths[i], runewidth.StringWidth(cellAt(row, i)))
		}
	}

	titles := make([]string, len(t.cols))
	for i, c := range t.cols {
		titles[i] = c.title
	}
	out := []string{t.join(titles, widths)}
	for _, row := range t.rows {
		out = append(out, t.join(row, widths))
	}
	return out
}

func (t *table) join(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := cellAt(cells, i)
		if t.cols[i].right {
			parts[i] = runewidth.FillLeft(cell, w)
		} else {
			parts[i] = runewidth.FillRight(cell, w)
		}
	}
	return strings.Join(parts, " ")
}

func cellAt(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}
