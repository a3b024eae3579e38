package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/signwatch/client"
)

// watchedUpdate is the subset of an update event the CLI prints.
type watchedUpdate struct {
	Kind          string `json:"kind"`
	DataVersion   uint64 `json:"data_version"`
	RecordCount   int    `json:"record_count"`
	TotalVolume   string `json:"total_volume"`
	LeadHash      string `json:"lead_hash"`
	Novel         bool   `json:"novel"`
	Error         string `json:"error"`
	Notifications int    `json:"notifications"`
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream dashboard updates via SSE (HTTP)",
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			jsonOutput := c.Bool("json")

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))
			cl := client.NewClient(serverURL, nil, logger)

			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "Watching %s (Ctrl+C to stop)\n\n", serverURL)
			}

			err := cl.Watch(ctx, func(ev client.Event) error {
				return printWatchEvent(c.App.Writer, ev, jsonOutput)
			})
			if err != nil {
				return fmt.Errorf("watch failed: %w", err)
			}
			return nil
		},
	}
}

func printWatchEvent(w io.Writer, ev client.Event, jsonOutput bool) error {
	if jsonOutput {
		line, err := json.Marshal(map[string]interface{}{
			"event": ev.Name,
			"data":  ev.Data,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(line))
		return nil
	}

	switch ev.Name {
	case "connected":
		var info map[string]interface{}
		if err := json.Unmarshal(ev.Data, &info); err == nil {
			fmt.Fprintf(w, "Connected: contract %v, data version %v\n", info["contract_address"], info["data_version"])
		}
	case "update":
		var u watchedUpdate
		if err := json.Unmarshal(ev.Data, &u); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
			return nil
		}
		switch {
		case u.Error != "":
			fmt.Fprintf(w, "[%s] error: %s (keeping %d records)\n", u.Kind, u.Error, u.RecordCount)
		case u.Novel:
			fmt.Fprintf(w, "[%s] new lead %s: %d records, volume %s, %d new\n", u.Kind, u.LeadHash, u.RecordCount, u.TotalVolume, u.Notifications)
		default:
			fmt.Fprintf(w, "[%s] v%d: %d records, volume %s\n", u.Kind, u.DataVersion, u.RecordCount, u.TotalVolume)
		}
	default:
		fmt.Fprintf(w, "%s: %s\n", ev.Name, string(ev.Data))
	}
	return nil
}
