package main

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/signwatch/service/export"
)

// csvSummary describes the contents of an exported CSV file.
type csvSummary struct {
	File          string    `json:"file" yaml:"file"`
	Rows          int       `json:"rows" yaml:"rows"`
	TotalAmount   string    `json:"total_amount" yaml:"total_amount"`
	AverageAmount string    `json:"average_amount" yaml:"average_amount"`
	Largest       string    `json:"largest" yaml:"largest"`
	LargestHash   string    `json:"largest_hash,omitempty" yaml:"largest_hash,omitempty"`
	Earliest      time.Time `json:"earliest,omitempty" yaml:"earliest,omitempty"`
	Latest        time.Time `json:"latest,omitempty" yaml:"latest,omitempty"`
	Symbols       []string  `json:"symbols" yaml:"symbols"`
}

func summarizeRows(file string, rows []export.Row) csvSummary {
	s := csvSummary{
		File:          file,
		Rows:          len(rows),
		TotalAmount:   "0",
		AverageAmount: "0",
		Largest:       "0",
		Symbols:       []string{},
	}
	if len(rows) == 0 {
		return s
	}

	total := decimal.Zero
	largest := rows[0]
	seen := map[string]bool{}
	s.Earliest, s.Latest = rows[0].Time, rows[0].Time
	for _, r := range rows {
		total = total.Add(r.Amount)
		if r.Amount.GreaterThan(largest.Amount) {
			largest = r
		}
		if r.Time.Before(s.Earliest) {
			s.Earliest = r.Time
		}
		if r.Time.After(s.Latest) {
			s.Latest = r.Time
		}
		if !seen[r.TokenSymbol] {
			seen[r.TokenSymbol] = true
			s.Symbols = append(s.Symbols, r.TokenSymbol)
		}
	}

	s.TotalAmount = total.String()
	s.AverageAmount = total.Div(decimal.NewFromInt(int64(len(rows)))).String()
	s.Largest = largest.Amount.String()
	s.LargestHash = largest.Hash
	return s
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarize an exported CSV file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "timezone",
				Usage: "Time zone the file's timestamps were written in",
				Value: "UTC",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, json or yaml",
				Value:   formatTable,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("csv file is required")
			}
			file := c.Args().Get(0)

			format := c.String("format")
			if c.Bool("json") {
				format = formatJSON
			}
			if err := checkFormat(format, formatTable, formatJSON, formatYAML); err != nil {
				return err
			}

			loc, err := time.LoadLocation(c.String("timezone"))
			if err != nil {
				return fmt.Errorf("unknown time zone %q: %w", c.String("timezone"), err)
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", file, err)
			}
			defer f.Close()

			rows, err := export.ReadCSVInLocation(f, loc)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			summary := summarizeRows(file, rows)
			if format != formatTable {
				return writeStructured(c.App.Writer, format, summary)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "File:     %s\n", summary.File)
			fmt.Fprintf(out, "Rows:     %d\n", summary.Rows)
			fmt.Fprintf(out, "Total:    %s\n", summary.TotalAmount)
			fmt.Fprintf(out, "Average:  %s\n", summary.AverageAmount)
			if summary.Rows > 0 {
				fmt.Fprintf(out, "Largest:  %s (%s)\n", summary.Largest, summary.LargestHash)
				fmt.Fprintf(out, "From:     %s\n", summary.Earliest.Format(time.RFC3339))
				fmt.Fprintf(out, "To:       %s\n", summary.Latest.Format(time.RFC3339))
				fmt.Fprintf(out, "Symbols:  %v\n", summary.Symbols)
			}
			return nil
		},
	}
}
