package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brojonat/signwatch/service/transfer"
)

func TestApply_Scenario(t *testing.T) {
	records := scenarioRecords()

	tests := []struct {
		name     string
		query    Query
		expected []string
	}{
		{name: "amount ascending", query: Query{SortBy: SortByAmount, SortOrder: SortAsc}, expected: []string{"a", "b"}},
		{name: "amount descending", query: Query{SortBy: SortByAmount, SortOrder: SortDesc}, expected: []string{"b", "a"}},
		{name: "timestamp descending", query: Query{SortBy: SortByTimestamp, SortOrder: SortDesc}, expected: []string{"b", "a"}},
		{name: "timestamp ascending", query: Query{SortBy: SortByTimestamp, SortOrder: SortAsc}, expected: []string{"a", "b"}},
		{name: "default query", query: DefaultQuery(), expected: []string{"b", "a"}},
		{name: "min amount", query: Query{MinAmount: "1.5"}, expected: []string{"b"}},
		{name: "max amount", query: Query{MaxAmount: "1.5"}, expected: []string{"a"}},
		{name: "inclusive bounds", query: Query{MinAmount: "1", MaxAmount: "2", SortOrder: SortAsc}, expected: []string{"a", "b"}},
		{name: "empty range", query: Query{MinAmount: "3"}, expected: []string{}},
		{name: "search by hash", query: Query{Search: "B"}, expected: []string{"b"}},
		{name: "search by sender", query: Query{Search: "0xFROMa"}, expected: []string{"a"}},
		{name: "search by recipient", query: Query{Search: "0xto"}, expected: []string{"b", "a"}},
		{name: "search then bound", query: Query{Search: "0xto", MinAmount: "1.5"}, expected: []string{"b"}},
		{name: "search without match", query: Query{Search: "zzz"}, expected: []string{}},
		{name: "unparseable bound ignored", query: Query{MinAmount: "lots"}, expected: []string{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, hashes(Apply(records, tt.query)))
		})
	}
}

func TestApply_Idempotent(t *testing.T) {
	records := append(scenarioRecords(), rec("c", "1500000000000000000", "18", "1500"))
	q := Query{Search: "0x", MinAmount: "0.5", SortBy: SortByAmount, SortOrder: SortDesc}

	first := Apply(records, q)
	second := Apply(records, q)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"b", "c", "a"}, hashes(first))
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	records := scenarioRecords()
	Apply(records, Query{SortBy: SortByTimestamp, SortOrder: SortDesc})
	assert.Equal(t, []string{"a", "b"}, hashes(records))
}

func TestApply_StableForEqualKeys(t *testing.T) {
	records := []transfer.Record{
		rec("first", "1", "0", "100"),
		rec("second", "1", "0", "100"),
		rec("third", "1", "0", "100"),
	}
	assert.Equal(t, []string{"first", "second", "third"}, hashes(Apply(records, Query{SortBy: SortByAmount, SortOrder: SortDesc})))
	assert.Equal(t, []string{"first", "second", "third"}, hashes(Apply(records, Query{SortBy: SortByTimestamp, SortOrder: SortAsc})))
}

func TestApply_ExactDecimalComparison(t *testing.T) {
	// Both values exceed float64 precision but differ in the last digit.
	records := []transfer.Record{
		rec("small", "100000000000000000000000001", "18", "1"),
		rec("large", "100000000000000000000000002", "18", "2"),
	}
	got := Apply(records, Query{SortBy: SortByAmount, SortOrder: SortDesc})
	assert.Equal(t, []string{"large", "small"}, hashes(got))

	got = Apply(records, Query{MinAmount: "100000000.000000000000000002"})
	assert.Equal(t, []string{"large"}, hashes(got))
}

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		wantErr string
	}{
		{name: "default", query: DefaultQuery()},
		{name: "zero value", query: Query{}},
		{name: "bounds", query: Query{MinAmount: "1.5", MaxAmount: " 10 "}},
		{name: "bad min", query: Query{MinAmount: "abc"}, wantErr: "min_amount"},
		{name: "bad max", query: Query{MaxAmount: "1..2"}, wantErr: "max_amount"},
		{name: "bad sort field", query: Query{SortBy: "hash"}, wantErr: "sort_by"},
		{name: "bad sort order", query: Query{SortOrder: "up"}, wantErr: "sort_order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
