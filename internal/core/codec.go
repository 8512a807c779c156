package core

// codec.go converts between delimited text and records.
//
// Decoding is strict about shape (every row must have as many fields as the
// header) and lenient about content (cells that fail typed parsing are kept
// as strings). Encoding mirrors the export of the original feature table:
// the first record's keys plus derived latitude/longitude columns, calendar
// dates for date fields, no quoting.

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Column names appended to every export.
const (
	LatitudeColumn  = "latitude"
	LongitudeColumn = "longitude"
)

// DefaultDateLayout matches the en-US short date form, e.g. 3/7/2024.
const DefaultDateLayout = "1/2/2006"

// Decode parses CSV text into records typed by the dataset's field specs.
// The first row is the header. Header names are matched case-insensitively
// against the field specs and renamed to the spec's spelling; unknown
// columns are kept as text. On error no records are returned.
func Decode(r io.Reader, def DatasetDefinition) ([]Record, error) {
	// Strip a UTF-8/UTF-16 BOM and replace invalid bytes.
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1 // checked below so the error carries the line
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	raw, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MalformedInputError{Reason: "empty file"}
	}
	if err != nil {
		return nil, csvError(err)
	}

	header, types, err := canonicalHeader(raw, def)
	if err != nil {
		return nil, err
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}

		if len(row) != len(header) {
			line, _ := cr.FieldPos(0)
			return nil, &MalformedInputError{
				Line:   line,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(header), len(row)),
			}
		}

		rec := NewRecord(len(header))
		for i, name := range header {
			rec.Set(name, ParseCell(row[i], types[i]))
		}
		records = append(records, rec)
	}

	return records, nil
}

// canonicalHeader cleans header names, maps them to field spec names and
// checks for duplicates and the identifier column.
func canonicalHeader(raw []string, def DatasetDefinition) ([]string, []FieldType, error) {
	header := make([]string, len(raw))
	types := make([]FieldType, len(raw))
	seen := make(map[string]int, len(raw))

	for i, h := range raw {
		name := strings.Trim(strings.TrimSpace(h), `"`)
		if name == "" {
			return nil, nil, &MalformedInputError{Line: 1, Reason: fmt.Sprintf("column %d has no name", i+1)}
		}

		types[i] = FieldText
		if spec, ok := def.Spec(name); ok {
			name = spec.Name
			types[i] = spec.Type
		}

		k := strings.ToLower(name)
		if prev, dup := seen[k]; dup {
			return nil, nil, &MalformedInputError{
				Line:   1,
				Reason: fmt.Sprintf("duplicate column %q (columns %d and %d)", name, prev+1, i+1),
			}
		}
		seen[k] = i
		header[i] = name
	}

	if _, ok := seen[strings.ToLower(def.IdentifierField)]; !ok {
		return nil, nil, &MalformedInputError{
			Line:   1,
			Reason: fmt.Sprintf("missing required column %q", def.IdentifierField),
		}
	}
	return header, types, nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &MalformedInputError{Line: pe.Line, Err: pe.Err}
	}
	return &MalformedInputError{Err: err}
}

// EncodeOptions controls how records are rendered as text.
type EncodeOptions struct {
	DateFields []string       // fields rendered as calendar dates
	DateLayout string         // time layout for date fields; DefaultDateLayout if empty
	Location   *time.Location // zone dates are shown in; UTC if nil
}

// ExportOptions returns the encode options for a dataset.
func ExportOptions(def DatasetDefinition, layout string, loc *time.Location) EncodeOptions {
	return EncodeOptions{
		DateFields: def.DateFields,
		DateLayout: layout,
		Location:   loc,
	}
}

func (o EncodeOptions) isDate(name string) bool {
	for _, f := range o.DateFields {
		if f == name {
			return true
		}
	}
	return false
}

func (o EncodeOptions) formatDate(t time.Time) string {
	layout := o.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	loc := o.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(layout)
}

// Encode renders records as CSV text. The header is the first record's keys
// followed by latitude and longitude. Rows are joined with "\n" and there is
// no trailing newline. An empty slice encodes to "".
//
// Cells are not quoted or escaped; values containing commas or newlines
// produce text that will not decode back to the same records.
func Encode(records []Record, opts EncodeOptions) string {
	if len(records) == 0 {
		return ""
	}

	var sb strings.Builder
	writeRows(&sb, records, opts)
	return sb.String()
}

// WriteCSV streams the same text Encode returns to w.
func WriteCSV(w io.Writer, records []Record, opts EncodeOptions) error {
	if len(records) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	writeRows(bw, records, opts)
	return bw.Flush()
}

func writeRows(w io.StringWriter, records []Record, opts EncodeOptions) {
	keys := records[0].Keys()

	header := make([]string, 0, len(keys)+2)
	header = append(header, keys...)
	header = append(header, LatitudeColumn, LongitudeColumn)
	w.WriteString(strings.Join(header, ","))

	cells := make([]string, len(header))
	for _, rec := range records {
		for i, k := range keys {
			cells[i] = encodeCell(rec.Value(k), opts.isDate(k), opts)
		}
		lat, lon := "", ""
		if rec.Position != nil {
			lat = formatNumber(rec.Position.Y)
			lon = formatNumber(rec.Position.X)
		}
		cells[len(keys)] = lat
		cells[len(keys)+1] = lon

		w.WriteString("\n")
		w.WriteString(strings.Join(cells, ","))
	}
}

func encodeCell(v Value, isDate bool, opts EncodeOptions) string {
	if isDate {
		switch v.Kind() {
		case KindDate:
			t, _ := v.AsDate()
			return opts.formatDate(t)
		case KindNumber:
			n, _ := v.AsNumber()
			return opts.formatDate(time.UnixMilli(int64(n)))
		}
	}
	return v.String()
}
