package ingest

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const elementsSheet = "Elements"

// RawRow is one spreadsheet row keyed by the header of its column.
type RawRow map[string]string

// ReadRows extracts the element rows from an uploaded workbook. The first row
// of the sheet is treated as the header.
func ReadRows(content []byte) ([]RawRow, error) {
	excelFile, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("error opening Excel file: %v", err)
	}
	defer excelFile.Close()

	rows, err := excelFile.GetRows(elementsSheet)
	if err != nil {
		return nil, fmt.Errorf("error reading sheet %q: %v", elementsSheet, err)
	}

	if len(rows) < 2 {
		zap.S().Named("ingest").Infof("sheet %q has no data rows", elementsSheet)
		return []RawRow{}, nil
	}

	header := rows[0]
	out := make([]RawRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		raw := make(RawRow, len(header))
		for i, key := range header {
			if i < len(row) {
				raw[key] = row[i]
			}
		}
		out = append(out, raw)
	}

	return out, nil
}

// ChunkRows splits rows into fixed-size batches, the unit of atomicity for
// the upload session.
func ChunkRows(rows []RawRow, batchSize int) [][]RawRow {
	if batchSize <= 0 {
		batchSize = len(rows)
	}

	chunks := [][]RawRow{}
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
