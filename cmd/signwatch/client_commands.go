package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/signwatch/client"
	"github.com/brojonat/signwatch/service/transfer"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "Dashboard server commands (HTTP API)",
		Subcommands: []*cli.Command{
			clientTransactionsCommand(),
			clientStatsCommand(),
			clientStatusCommand(),
			clientRefreshCommand(),
			clientAutoRefreshCommand(),
			clientClearNotificationsCommand(),
			clientDismissErrorCommand(),
			clientExportCommand(),
		},
	}
}

func newHTTPClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func listOptionsFromFlags(c *cli.Context) client.ListOptions {
	return client.ListOptions{
		Search:    c.String("search"),
		MinAmount: c.String("min-amount"),
		MaxAmount: c.String("max-amount"),
		SortBy:    c.String("sort-by"),
		SortOrder: c.String("sort-order"),
		Page:      c.Int("page"),
		PageSize:  c.Int("page-size"),
	}
}

func clientViewFlags() []cli.Flag {
	return append(viewFlags(),
		&cli.IntFlag{
			Name:  "page",
			Usage: "Page number (1-based)",
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Rows per page: 10, 20, 50 or 100",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: table, json or yaml",
			Value:   formatTable,
		},
	)
}

func outputFormat(c *cli.Context) (string, error) {
	format := c.String("format")
	if format == "" {
		format = formatTable
	}
	if c.Bool("json") {
		format = formatJSON
	}
	return format, checkFormat(format, formatTable, formatJSON, formatYAML)
}

func clientTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "transactions",
		Aliases: []string{"txns"},
		Usage:   "List one page of the server's filtered transfers",
		Flags:   clientViewFlags(),
		Action: func(c *cli.Context) error {
			format, err := outputFormat(c)
			if err != nil {
				return err
			}

			page, err := newHTTPClient(c).Transactions(context.Background(), listOptionsFromFlags(c))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if format != formatTable {
				return writeStructured(c.App.Writer, format, page)
			}

			out := c.App.Writer
			if len(page.Items) == 0 {
				fmt.Fprintln(out, "No transfers")
				return nil
			}
			fmt.Fprintf(out, "%-21s  %-20s  %-13s  %-13s  %s\n", "TX HASH", "TIME", "FROM", "TO", "AMOUNT")
			for _, t := range page.Items {
				fmt.Fprintf(out, "%-21s  %-20s  %-13s  %-13s  %s %s\n",
					transfer.Shorten(t.Hash, 10, 8),
					t.Time.UTC().Format("2006-01-02 15:04:05"),
					transfer.Shorten(t.From, 6, 4),
					transfer.Shorten(t.To, 6, 4),
					t.Amount,
					t.TokenSymbol,
				)
			}
			fmt.Fprintf(out, "\nShowing %d-%d of %d (page %d of %d)\n",
				page.StartIndex+1, page.EndIndex, page.TotalItems, page.Page, max(page.TotalPages, 1))
			return nil
		},
	}
}

func clientStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show summary statistics for the server's filtered transfers",
		Flags: clientViewFlags(),
		Action: func(c *cli.Context) error {
			format, err := outputFormat(c)
			if err != nil {
				return err
			}

			stats, err := newHTTPClient(c).Stats(context.Background(), listOptionsFromFlags(c))
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			if format != formatTable {
				return writeStructured(c.App.Writer, format, stats)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Total Transactions:  %d\n", stats.TotalTransactions)
			fmt.Fprintf(out, "Total Volume:        %s\n", stats.TotalVolume)
			fmt.Fprintf(out, "Average Amount:      %s\n", stats.AverageAmount)
			fmt.Fprintf(out, "Largest Transaction: %s\n", stats.LargestTransaction)
			fmt.Fprintf(out, "Last Update:         %s (%ds ago)\n", stats.LastUpdate.Format(time.RFC3339), stats.SecondsSinceUpdate)
			fmt.Fprintf(out, "Avg Rate:            %.1f/h\n", stats.AvgRatePerHour)
			return nil
		},
	}
}

func printStatus(c *cli.Context, st *client.Status) error {
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	if format != formatTable {
		return writeStructured(c.App.Writer, format, st)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Contract:      %s\n", st.ContractAddress)
	fmt.Fprintf(out, "Records:       %d (volume %s)\n", st.RecordCount, st.TotalVolume)
	if st.LeadHash != "" {
		fmt.Fprintf(out, "Lead:          %s\n", st.LeadHash)
	}
	fmt.Fprintf(out, "Last Update:   %s (%ds ago)\n", st.LastUpdate.Format(time.RFC3339), st.SecondsSinceUpdate)
	fmt.Fprintf(out, "Poller:        %s\n", st.PollerState)
	if st.AutoRefresh {
		fmt.Fprintf(out, "Auto-refresh:  on (every %s)\n", st.PollInterval)
	} else {
		fmt.Fprintf(out, "Auto-refresh:  off\n")
	}
	fmt.Fprintf(out, "Notifications: %d\n", st.Notifications)
	if st.Error != "" {
		fmt.Fprintf(out, "Error:         %s\n", st.Error)
	}
	return nil
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: table, json or yaml",
		Value:   formatTable,
	}
}

func clientStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the server's record set and poller state",
		Flags: []cli.Flag{formatFlag()},
		Action: func(c *cli.Context) error {
			st, err := newHTTPClient(c).Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			return printStatus(c, st)
		},
	}
}

func clientRefreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Ask the server to fetch immediately",
		Flags: []cli.Flag{formatFlag()},
		Action: func(c *cli.Context) error {
			st, err := newHTTPClient(c).Refresh(context.Background())
			if err != nil {
				return fmt.Errorf("failed to refresh: %w", err)
			}
			return printStatus(c, st)
		},
	}
}

func clientAutoRefreshCommand() *cli.Command {
	return &cli.Command{
		Name:      "auto-refresh",
		Usage:     "Turn the server's refresh schedule on or off",
		ArgsUsage: "on|off",
		Action: func(c *cli.Context) error {
			var enabled bool
			switch c.Args().First() {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("expected on or off")
			}

			if err := newHTTPClient(c).SetAutoRefresh(context.Background(), enabled); err != nil {
				return fmt.Errorf("failed to set auto-refresh: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Auto-refresh %s\n", c.Args().First())
			return nil
		},
	}
}

func clientClearNotificationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear-notifications",
		Usage: "Reset the server's new-transaction counter",
		Action: func(c *cli.Context) error {
			if err := newHTTPClient(c).ClearNotifications(context.Background()); err != nil {
				return fmt.Errorf("failed to clear notifications: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Notifications cleared")
			return nil
		},
	}
}

func clientDismissErrorCommand() *cli.Command {
	return &cli.Command{
		Name:  "dismiss-error",
		Usage: "Clear the server's error banner",
		Action: func(c *cli.Context) error {
			if err := newHTTPClient(c).DismissError(context.Background()); err != nil {
				return fmt.Errorf("failed to dismiss error: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Error dismissed")
			return nil
		},
	}
}

func clientExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Download the server's filtered transfers as CSV",
		Flags: append(viewFlags(), &cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output file (default: the server's suggested name, - for stdout)",
		}),
		Action: func(c *cli.Context) error {
			opts := listOptionsFromFlags(c)
			cl := newHTTPClient(c)

			output := c.String("output")
			if output == "-" {
				_, err := cl.Export(context.Background(), opts, c.App.Writer)
				return err
			}

			tmp, err := os.CreateTemp(".", ".signwatch-export-*.csv")
			if err != nil {
				return fmt.Errorf("failed to create temp file: %w", err)
			}
			defer os.Remove(tmp.Name())

			filename, err := cl.Export(context.Background(), opts, tmp)
			if closeErr := tmp.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return fmt.Errorf("failed to export: %w", err)
			}

			if output == "" {
				output = filename
			}
			if output == "" {
				return fmt.Errorf("server did not suggest a filename; use --output")
			}
			if err := os.Rename(tmp.Name(), output); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			fmt.Fprintf(c.App.ErrWriter, "✓ Saved %s\n", output)
			return nil
		},
	}
}
