package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// MaxFileSize caps a single data file at 100MB.
const MaxFileSize = 100 * 1024 * 1024

// ReadCSV parses CSV content into a table. The first record is the header.
// Ragged rows are tolerated: short rows are padded, long rows truncated.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i, col := range header {
		header[i] = strings.TrimSpace(col)
	}

	table := New(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row %d: %w", table.NumRows()+2, err)
		}
		table.AppendRow(record)
	}
	return table, nil
}

// LoadFile loads a CSV file from disk, enforcing the per-file size cap.
func LoadFile(path string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%s exceeds the %dMB file limit", filepath.Base(path), MaxFileSize/(1024*1024))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	table, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return table, nil
}

// LoadFiles loads several CSV files concurrently. Result order matches the
// input path order; the first error aborts the load.
func LoadFiles(ctx context.Context, paths []string) ([]*Table, error) {
	tables := make([]*Table, len(paths))
	g, _ := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			t, err := LoadFile(path)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}
