package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/itchyny/gojq"
	"go.yaml.in/yaml/v3"

	"github.com/brojonat/signwatch/service/transfer"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatCSV   = "csv"
)

// recordView is the CLI's representation of a transfer, used for JSON/YAML
// output and as the input document for --must-jq filters.
type recordView struct {
	Hash         string  `json:"hash" yaml:"hash"`
	From         string  `json:"from" yaml:"from"`
	To           string  `json:"to" yaml:"to"`
	Value        string  `json:"value" yaml:"value"`
	TokenDecimal string  `json:"token_decimal" yaml:"token_decimal"`
	TokenSymbol  string  `json:"token_symbol" yaml:"token_symbol"`
	BlockNumber  string  `json:"block_number,omitempty" yaml:"block_number,omitempty"`
	Timestamp    int64   `json:"timestamp" yaml:"timestamp"`
	Time         string  `json:"time" yaml:"time"`
	Amount       string  `json:"amount" yaml:"amount"`
	AmountValue  float64 `json:"amount_value" yaml:"amount_value"`
}

func toRecordView(r transfer.Record) recordView {
	return recordView{
		Hash:         r.Hash,
		From:         r.From,
		To:           r.To,
		Value:        r.Value,
		TokenDecimal: r.TokenDecimal,
		TokenSymbol:  r.TokenSymbol,
		BlockNumber:  r.BlockNumber,
		Timestamp:    r.Unix(),
		Time:         r.Time().Format("2006-01-02 15:04:05 MST"),
		Amount:       r.Amount().String(),
		AmountValue:  r.AmountFloat(),
	}
}

// checkFormat rejects formats other than the allowed ones.
func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(allowed, ", "))
}

// writeStructured writes v as indented JSON or YAML.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// compileJQ parses and compiles each filter expression.
func compileJQ(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// matchesJQ reports whether every filter evaluates to a truthy first result
// against the record.
func matchesJQ(r recordView, filters []*gojq.Code) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	// gojq only understands plain JSON values, so round-trip through encoding/json.
	data, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, err
	}

	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, err
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func printRecordTable(w io.Writer, records []recordView) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No transfers")
		return
	}
	fmt.Fprintf(w, "%-21s  %-23s  %-13s  %-13s  %s\n", "TX HASH", "TIME", "FROM", "TO", "AMOUNT")
	for _, r := range records {
		fmt.Fprintf(w, "%-21s  %-23s  %-13s  %-13s  %s %s\n",
			transfer.Shorten(r.Hash, 10, 8),
			r.Time,
			transfer.Shorten(r.From, 6, 4),
			transfer.Shorten(r.To, 6, 4),
			r.Amount,
			r.TokenSymbol,
		)
	}
}
