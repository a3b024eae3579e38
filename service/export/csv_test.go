package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/signwatch/service/transfer"
)

func sampleRecords() []transfer.Record {
	return []transfer.Record{
		{
			Hash: "0xb", From: "0xfromb", To: "0xtob",
			Value: "2000000000000000000", TokenDecimal: "18", TokenSymbol: "SIGN", TimeStamp: "2000",
		},
		{
			Hash: "0xa", From: "0xfroma", To: "0xtoa",
			Value: "1234567", TokenDecimal: "6", TokenSymbol: "SIGN", TimeStamp: "1700000000",
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords(), time.UTC))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Tx Hash,Time,From,To,Amount,Token Symbol", lines[0])
	assert.Equal(t, "0xb,1970-01-01 00:33:20 UTC,0xfromb,0xtob,2,SIGN", lines[1])
	assert.Equal(t, "0xa,2023-11-14 22:13:20 UTC,0xfroma,0xtoa,1.234567,SIGN", lines[2])
}

func TestWriteCSV_EmptyViewWritesHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, nil))
	assert.Equal(t, "Tx Hash,Time,From,To,Amount,Token Symbol\n", buf.String())
}

func TestWriteCSV_QuotesFieldsWithCommas(t *testing.T) {
	records := []transfer.Record{{Hash: "0xc", Value: "1", TokenDecimal: "0", TokenSymbol: "A,B", TimeStamp: "0"}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records, time.UTC))
	assert.Contains(t, buf.String(), `"A,B"`)

	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A,B", rows[0].TokenSymbol)
}

func TestRoundTrip(t *testing.T) {
	locations := []*time.Location{time.UTC, time.FixedZone("EST", -5*60*60)}

	for _, loc := range locations {
		t.Run(loc.String(), func(t *testing.T) {
			records := sampleRecords()

			var buf bytes.Buffer
			require.NoError(t, WriteCSV(&buf, records, loc))

			rows, err := ReadCSVInLocation(&buf, loc)
			require.NoError(t, err)
			require.Len(t, rows, len(records))

			for i, r := range records {
				assert.Equal(t, r.Hash, rows[i].Hash)
				assert.True(t, r.Time().Equal(rows[i].Time), "time %s vs %s", r.Time(), rows[i].Time)
				assert.Equal(t, r.From, rows[i].From)
				assert.Equal(t, r.To, rows[i].To)
				assert.True(t, r.Amount().Equal(rows[i].Amount), "amount %s vs %s", r.Amount(), rows[i].Amount)
				assert.Equal(t, r.TokenSymbol, rows[i].TokenSymbol)
			}
		})
	}
}

func TestReadCSV_ReorderedColumns(t *testing.T) {
	input := "Amount,Tx Hash,Token Symbol,To,From,Time\n" +
		"1.5,0xa,SIGN,0xto,0xfrom,2024-01-02 03:04:05 UTC\n"

	rows, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0xa", rows[0].Hash)
	assert.Equal(t, "0xfrom", rows[0].From)
	assert.Equal(t, "1.5", rows[0].Amount.String())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), rows[0].Time)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty", input: "", wantErr: "first line"},
		{name: "missing column", input: "Tx Hash,Time\n", wantErr: "missing required column"},
		{name: "bad time", input: "Tx Hash,Time,From,To,Amount,Token Symbol\n0xa,yesterday,f,t,1,S\n", wantErr: "parse time"},
		{name: "bad amount", input: "Tx Hash,Time,From,To,Amount,Token Symbol\n0xa,2024-01-02 03:04:05 UTC,f,t,x,S\n", wantErr: "parse amount"},
		{name: "short row", input: "Tx Hash,Time,From,To,Amount,Token Symbol\n0xa,b\n", wantErr: "read CSV record"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "sign_transactions_2025-03-09.csv", Filename(now))

	// The date is taken in UTC regardless of the input zone.
	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Equal(t, "sign_transactions_2025-03-09.csv", Filename(now.In(tokyo)))
}
