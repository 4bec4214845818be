package catalog

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/poiesic/plexrec/core"
)

// CleanReport describes one normalized catalog file.
type CleanReport struct {
	Kind     core.Kind
	Encoding string // encoding the file was read with
	Rows     int    // rows written
}

// Clean rewrites the catalog for kind as UTF-8 without a byte order mark,
// with "title" as the first column and empty-title rows removed. Other
// columns keep their lowercased headers and order. A missing file yields
// core.ErrCatalogUnavailable and nothing is written.
func (l *Loader) Clean(ctx context.Context, kind core.Kind) (*CleanReport, error) {
	t, enc, err := l.read(ctx, kind)
	if err != nil {
		return nil, err
	}

	titleCol := t.titleColumn()
	header := []string{"title"}
	var rest []int
	for i, h := range t.header {
		if i == titleCol {
			continue
		}
		if h == "title" {
			h = "title_" + strconv.Itoa(i)
		}
		header = append(header, h)
		rest = append(rest, i)
	}

	path := l.Path(kind)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".clean-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return nil, err
	}
	rows := 0
	for _, row := range t.rows {
		if titleCol < 0 {
			break
		}
		title := strings.TrimSpace(row[titleCol])
		if title == "" {
			continue
		}
		out := make([]string, 0, len(header))
		out = append(out, title)
		for _, i := range rest {
			out = append(out, row[i])
		}
		if err := w.Write(out); err != nil {
			tmp.Close()
			return nil, err
		}
		rows++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, err
	}

	l.logger.Info("normalized catalog", "kind", kind, "encoding", enc, "rows", rows, "path", path)
	return &CleanReport{Kind: kind, Encoding: enc, Rows: rows}, nil
}
