// Package export renders datasets as CSV or JSON, describes them with a
// YAML manifest and publishes both to a directory or an S3 bucket.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ortho-cohortgen/internal/domain"
)

// Output formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// CSVWriter streams records as CSV rows under the schema's header. The
// header is written before the first record, or by Flush if none came.
type CSVWriter struct {
	w       *csv.Writer
	schema  domain.TableSchema
	started bool
}

// NewCSVWriter creates a CSV writer for schema.
func NewCSVWriter(w io.Writer, schema domain.TableSchema) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), schema: schema}
}

// Write appends one record.
func (c *CSVWriter) Write(r domain.CaseRecord) error {
	if err := c.header(); err != nil {
		return err
	}
	return c.w.Write(r.Row(c.schema.Fields))
}

// Flush writes any buffered data.
func (c *CSVWriter) Flush() error {
	if err := c.header(); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) header() error {
	if c.started {
		return nil
	}
	c.started = true
	if err := c.w.Write(c.schema.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteCSV writes records as CSV with a header row.
func WriteCSV(w io.Writer, schema domain.TableSchema, records []domain.CaseRecord) error {
	cw := NewCSVWriter(w, schema)
	for i, r := range records {
		if err := cw.Write(r); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return cw.Flush()
}

// WriteJSON writes records as a JSON array of objects keyed by the schema's
// column names. Numeric fields are JSON numbers printed exactly as in CSV.
func WriteJSON(w io.Writer, schema domain.TableSchema, records []domain.CaseRecord) error {
	rows := make([]map[string]interface{}, len(records))
	for i, r := range records {
		values := r.Row(schema.Fields)
		row := make(map[string]interface{}, len(values))
		for j, col := range schema.Columns {
			if j < len(schema.Fields) && schema.Fields[j].IsNumeric() {
				row[col] = json.Number(values[j])
				continue
			}
			row[col] = values[j]
		}
		rows[i] = row
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}

// Write renders records in format.
func Write(w io.Writer, format string, schema domain.TableSchema, records []domain.CaseRecord) error {
	switch format {
	case "", FormatCSV:
		return WriteCSV(w, schema, records)
	case FormatJSON:
		return WriteJSON(w, schema, records)
	default:
		return domain.NewConfigurationError("export.format", fmt.Sprintf("unsupported format %q", format))
	}
}

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	if format == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// Extension returns the file extension of format.
func Extension(format string) string {
	if format == FormatJSON {
		return FormatJSON
	}
	return FormatCSV
}
