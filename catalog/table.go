package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/poiesic/plexrec/core"
)

// titleSampleSize bounds how many non-empty values are inspected when
// guessing the title column.
const titleSampleSize = 10

// column aliases, in priority order.
var (
	descriptionColumns = []string{"description", "overview", "plot", "synopsis"}
	genreColumns       = []string{"genres", "genre"}
	ratingColumns      = []string{"rating", "score", "vote_average"}
)

// table is a header plus rectangular rows of raw cell text.
type table struct {
	header []string
	rows   [][]string
}

var errTooManyFields = errors.New("row has more fields than header")

// parseCSV reads text as a header row followed by data rows. Short rows are
// padded; rows wider than the header are an error.
func parseCSV(text string) (*table, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &table{}, nil
	}
	if err != nil {
		return nil, err
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	t := &table{header: header}
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("line %d: %w", line, errTooManyFields)
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// parsePlain is used when text is not valid CSV. Non-empty trimmed lines are
// kept; if the first line has commas the lines are retried as CSV, otherwise
// every line after the first is a title (a single line is the title itself).
func parsePlain(text string) *table {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return &table{header: []string{"title"}}
	}
	if strings.Contains(lines[0], ",") {
		if t, err := parseCSV(strings.Join(lines, "\n")); err == nil {
			return t
		}
	}
	titles := lines
	if len(lines) > 1 {
		titles = lines[1:]
	}
	t := &table{header: []string{"title"}}
	for _, title := range titles {
		t.rows = append(t.rows, []string{title})
	}
	return t
}

// titleColumn picks the column holding titles: an explicit "title" header,
// else the first column whose leading non-empty values are not numbers,
// else the first column. Returns -1 for a table without columns.
func (t *table) titleColumn() int {
	if len(t.header) == 0 {
		return -1
	}
	if i := t.column("title"); i >= 0 {
		return i
	}
	for col := range t.header {
		if t.looksTextual(col) {
			return col
		}
	}
	return 0
}

func (t *table) looksTextual(col int) bool {
	seen := 0
	for _, row := range t.rows {
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return false
		}
		seen++
		if seen == titleSampleSize {
			break
		}
	}
	return seen > 0
}

// column returns the index of the first header equal to one of names,
// honoring the order of names.
func (t *table) column(names ...string) int {
	for _, name := range names {
		for i, h := range t.header {
			if h == name {
				return i
			}
		}
	}
	return -1
}

// items converts the table into catalog items. Rows with an empty title are
// dropped and positions are assigned densely.
func (t *table) items() []core.Item {
	titleCol := t.titleColumn()
	if titleCol < 0 {
		return nil
	}
	idCol := t.column("id")
	descCol := t.column(descriptionColumns...)
	genreCol := t.column(genreColumns...)
	yearCol := t.column("year")
	ratingCol := t.column(ratingColumns...)
	popCol := t.column("popularity")

	known := map[int]bool{titleCol: true}
	for _, c := range []int{idCol, descCol, genreCol, yearCol, ratingCol, popCol} {
		if c >= 0 {
			known[c] = true
		}
	}

	items := make([]core.Item, 0, len(t.rows))
	for _, row := range t.rows {
		title := strings.TrimSpace(row[titleCol])
		if title == "" {
			continue
		}
		pos := len(items)
		it := core.Item{
			Position:    pos,
			OrigIndex:   pos,
			Title:       title,
			Description: cell(row, descCol),
			Genres:      cell(row, genreCol),
			Year:        cell(row, yearCol),
			Rating:      number(row, ratingCol),
			Popularity:  number(row, popCol),
			ID:          cell(row, idCol),
		}
		if it.ID == "" {
			it.ID = core.IDFromContent(title).String()
		}
		for i, h := range t.header {
			if known[i] || h == "" {
				continue
			}
			if it.Extra == nil {
				it.Extra = make(map[string]string)
			}
			it.Extra[h] = strings.TrimSpace(row[i])
		}
		items = append(items, it)
	}
	return items
}

func cell(row []string, col int) string {
	if col < 0 {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// number parses a numeric cell leniently; anything unparsable is missing.
func number(row []string, col int) *float64 {
	v := cell(row, col)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
