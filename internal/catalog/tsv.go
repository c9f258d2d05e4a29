package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// TSV column names of the photo dataset.
const (
	ColumnPhotoID          = "photo_id"
	ColumnAIDescription    = "ai_description"
	ColumnPhotoDescription = "photo_description"
)

const importBatch = 500

// ImportStats reports a TSV import.
type ImportStats struct {
	Rows     int `json:"rows"`
	Imported int `json:"imported"`
	// NoText counts rows with neither description column filled.
	NoText int `json:"no_text"`
}

// ParseTSV reads a tab-separated photo table with a header row and calls fn for every row
// that has a description. ai_description is preferred over photo_description.
func ParseTSV(r io.Reader, fn func(Description) error) (ImportStats, error) {
	var stats ImportStats
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))] = i
	}
	idCol, ok := col[ColumnPhotoID]
	if !ok {
		return stats, fmt.Errorf("missing %s column", ColumnPhotoID)
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++
		if idCol >= len(rec) || strings.TrimSpace(rec[idCol]) == "" {
			stats.NoText++
			continue
		}
		d := Description{PhotoID: strings.TrimSpace(rec[idCol])}
		if text := field(rec, ColumnAIDescription); text != "" {
			d.Text, d.Source = text, ColumnAIDescription
		} else if text := field(rec, ColumnPhotoDescription); text != "" {
			d.Text, d.Source = text, ColumnPhotoDescription
		} else {
			stats.NoText++
			continue
		}
		if err := fn(d); err != nil {
			return stats, err
		}
		stats.Imported++
	}
	return stats, nil
}

// Import loads a TSV stream into the catalog in batches.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (ImportStats, error) {
	batch := make([]Description, 0, importBatch)
	stats, err := ParseTSV(r, func(d Description) error {
		batch = append(batch, d)
		if len(batch) < importBatch {
			return nil
		}
		if err := c.Put(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	})
	if err != nil {
		return stats, err
	}
	if len(batch) > 0 {
		if err := c.Put(ctx, batch); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// ImportFile is Import for a file path.
func (c *Catalog) ImportFile(ctx context.Context, path string) (ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return c.Import(ctx, f)
}
