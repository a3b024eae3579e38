// Package export writes and reads the CSV download of a filtered view.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/signwatch/service/transfer"
)

const (
	// TimeLayout renders transfer times in exported rows.
	TimeLayout = "2006-01-02 15:04:05 MST"

	// ContentType is the media type the file is served with.
	ContentType = "text/csv"

	filenamePrefix = "sign_transactions_"
)

// Header is the first row of every export.
var Header = []string{"Tx Hash", "Time", "From", "To", "Amount", "Token Symbol"}

// Row is one exported transfer as read back from a file.
type Row struct {
	Hash        string
	Time        time.Time
	From        string
	To          string
	Amount      decimal.Decimal
	TokenSymbol string
}

// Filename names an export taken at now, e.g. sign_transactions_2025-01-31.csv.
// The date is taken in UTC.
func Filename(now time.Time) string {
	return filenamePrefix + now.UTC().Format("2006-01-02") + ".csv"
}

// WriteCSV writes the header and one row per record, in the given order.
// Times are rendered in loc (UTC when nil) and amounts as derived decimals.
func WriteCSV(w io.Writer, records []transfer.Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Hash,
			r.Time().In(loc).Format(TimeLayout),
			r.From,
			r.To,
			r.Amount().String(),
			r.TokenSymbol,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row for %s: %w", r.Hash, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV parses a file produced by WriteCSV with UTC times.
func ReadCSV(r io.Reader) ([]Row, error) {
	return ReadCSVInLocation(r, time.UTC)
}

// ReadCSVInLocation parses a file produced by WriteCSV with times rendered in
// loc. Zone abbreviations are only meaningful relative to loc, so it must be
// the location used when writing. Columns are located by header name.
func ReadCSVInLocation(r io.Reader, loc *time.Location) ([]Row, error) {
	if loc == nil {
		loc = time.UTC
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read the first line of the CSV: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	cols := make([]int, len(Header))
	for i, name := range Header {
		pos, ok := idx[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("CSV is missing required column %q from available columns: [%s]",
				name, strings.Join(header, ", "))
		}
		cols[i] = pos
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV record: %w", err)
		}

		field := func(col int) string {
			return strings.TrimSpace(record[cols[col]])
		}

		ts, err := time.ParseInLocation(TimeLayout, field(1), loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse time %q: %w", line, field(1), err)
		}
		amount, err := decimal.NewFromString(field(4))
		if err != nil {
			return nil, fmt.Errorf("line %d: parse amount %q: %w", line, field(4), err)
		}

		rows = append(rows, Row{
			Hash:        field(0),
			Time:        ts,
			From:        field(2),
			To:          field(3),
			Amount:      amount,
			TokenSymbol: field(5),
		})
	}

	return rows, nil
}
