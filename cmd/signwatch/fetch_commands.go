package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/signwatch/service/config"
	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/etherscan"
	"github.com/brojonat/signwatch/service/export"
	"github.com/brojonat/signwatch/service/transfer"
)

// etherscanFlags are shared by the commands that query Etherscan directly.
func etherscanFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "Etherscan API key",
			EnvVars: []string{"ETHERSCAN_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "api-url",
			Usage:   "Etherscan API URL",
			EnvVars: []string{"ETHERSCAN_API_URL"},
			Value:   etherscan.DefaultBaseURL,
		},
		&cli.StringFlag{
			Name:    "contract",
			Aliases: []string{"c"},
			Usage:   "Token contract address",
			EnvVars: []string{"CONTRACT_ADDRESS"},
			Value:   config.DefaultContractAddress,
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Number of newest transfers to fetch",
			Value: 100,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: 30 * time.Second,
		},
	}
}

// viewFlags select the filtered, sorted view of the fetched records.
func viewFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "search",
			Usage: "Case-insensitive substring of hash, sender or recipient",
		},
		&cli.StringFlag{
			Name:  "min-amount",
			Usage: "Inclusive lower bound on the token amount",
		},
		&cli.StringFlag{
			Name:  "max-amount",
			Usage: "Inclusive upper bound on the token amount",
		},
		&cli.StringFlag{
			Name:  "sort-by",
			Usage: "Sort field: timestamp or amount",
			Value: string(dashboard.SortByTimestamp),
		},
		&cli.StringFlag{
			Name:  "sort-order",
			Usage: "Sort order: asc or desc",
			Value: string(dashboard.SortDesc),
		},
	}
}

func queryFromFlags(c *cli.Context) (dashboard.Query, error) {
	q := dashboard.Query{
		Search:    c.String("search"),
		MinAmount: c.String("min-amount"),
		MaxAmount: c.String("max-amount"),
		SortBy:    dashboard.SortField(c.String("sort-by")),
		SortOrder: dashboard.SortOrder(c.String("sort-order")),
	}
	if err := q.Validate(); err != nil {
		return q, err
	}
	return q, nil
}

// fetchRecords queries Etherscan once with the shared flags.
func fetchRecords(c *cli.Context) ([]transfer.Record, error) {
	apiKey := c.String("api-key")
	if apiKey == "" {
		return nil, fmt.Errorf("api-key is required (set ETHERSCAN_API_KEY env var or use --api-key)")
	}
	contract := c.String("contract")
	if err := config.ValidateContractAddress(contract); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	timeout := c.Duration("timeout")
	cl := etherscan.NewClient(&http.Client{Timeout: timeout}, c.String("api-url"), apiKey, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	records, err := cl.FetchTokenTransfers(ctx, contract, c.Int("limit"))
	if err != nil {
		return nil, err
	}
	return records, nil
}

func fetchCommand() *cli.Command {
	flags := append(etherscanFlags(), viewFlags()...)
	flags = append(flags,
		&cli.StringSliceFlag{
			Name:    "must-jq",
			Aliases: []string{"jq"},
			Usage:   "jq filter expression that must evaluate to true for each transfer (can be specified multiple times, all must match)",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: table, json, yaml or csv",
			Value:   formatTable,
		},
	)

	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch the newest transfers directly from Etherscan",
		Description: `Fetch the newest token transfers from Etherscan, apply the same filters
the dashboard uses, and print them.

Each transfer is exposed to --must-jq as a JSON object with the fields
hash, from, to, value, token_decimal, token_symbol, timestamp, time,
amount (decimal string) and amount_value (number).

Example:
  signwatch fetch --min-amount 1000 --must-jq '.to | startswith("0x00")' --format yaml`,
		Flags: flags,
		Action: func(c *cli.Context) error {
			format := c.String("format")
			if c.Bool("json") {
				format = formatJSON
			}
			if err := checkFormat(format, formatTable, formatJSON, formatYAML, formatCSV); err != nil {
				return err
			}

			q, err := queryFromFlags(c)
			if err != nil {
				return err
			}
			filters, err := compileJQ(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			records, err := fetchRecords(c)
			if err != nil {
				return fmt.Errorf("failed to fetch transfers: %w", err)
			}

			view := dashboard.Apply(records, q)
			matched := make([]transfer.Record, 0, len(view))
			for _, r := range view {
				ok, err := matchesJQ(toRecordView(r), filters)
				if err != nil {
					return fmt.Errorf("jq filter failed on %s: %w", r.Hash, err)
				}
				if ok {
					matched = append(matched, r)
				}
			}

			out := c.App.Writer
			switch format {
			case formatCSV:
				return export.WriteCSV(out, matched, time.UTC)
			case formatJSON, formatYAML:
				views := make([]recordView, len(matched))
				for i, r := range matched {
					views[i] = toRecordView(r)
				}
				return writeStructured(out, format, views)
			default:
				views := make([]recordView, len(matched))
				for i, r := range matched {
					views[i] = toRecordView(r)
				}
				printRecordTable(out, views)
				fmt.Fprintf(out, "\n%d of %d transfers, total volume %s\n",
					len(matched), len(records), transfer.TotalVolume(records).String())
				return nil
			}
		},
	}
}

func exportCommand() *cli.Command {
	flags := append(etherscanFlags(), viewFlags()...)
	flags = append(flags, &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output file (default: sign_transactions_YYYY-MM-DD.csv, - for stdout)",
	})

	return &cli.Command{
		Name:  "export",
		Usage: "Fetch transfers from Etherscan and write them as CSV",
		Flags: flags,
		Action: func(c *cli.Context) error {
			q, err := queryFromFlags(c)
			if err != nil {
				return err
			}

			records, err := fetchRecords(c)
			if err != nil {
				return fmt.Errorf("failed to fetch transfers: %w", err)
			}
			view := dashboard.Apply(records, q)

			output := c.String("output")
			if output == "-" {
				return export.WriteCSV(c.App.Writer, view, time.UTC)
			}
			if output == "" {
				output = export.Filename(time.Now())
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := export.WriteCSV(f, view, time.UTC); err != nil {
				f.Close()
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			fmt.Fprintf(c.App.ErrWriter, "✓ Wrote %d transfers to %s\n", len(view), output)
			return nil
		},
	}
}
