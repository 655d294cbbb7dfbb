package rank

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
)

// Rank artifact location.
const (
	DefaultDir = "ranking"
	RanksFile  = "pages_ranked.csv"
)

// WriteCSV writes one "id,rank" row per node, preceded by a header.
func WriteCSV(w io.Writer, ranks []float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "rank"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for id, r := range ranks {
		if err := cw.Write([]string{strconv.Itoa(id), strconv.FormatFloat(r, 'g', -1, 64)}); err != nil {
			return fmt.Errorf("write row %d: %w", id, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) ([]float64, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read csv: missing header")
	}
	ranks := make([]float64, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != 2 {
			return nil, fmt.Errorf("row %d: expected 2 columns, got %d", i+1, len(row))
		}
		id, err := strconv.Atoi(row[0])
		if err != nil || id != i {
			return nil, fmt.Errorf("row %d: expected id %d, got %q", i+1, i, row[0])
		}
		if ranks[i], err = strconv.ParseFloat(row[1], 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return ranks, nil
}

// WriteArtifact stores the rank table at path in blobs.
func WriteArtifact(ctx context.Context, blobs crawler.BlobStore, path string, ranks []float64) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, ranks); err != nil {
		return "", err
	}
	uri, err := blobs.PutObject(ctx, path, "text/csv; charset=utf-8", &buf)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return uri, nil
}
