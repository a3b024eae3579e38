package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/metrics"
)

const (
	sseKeepaliveInterval = 10 * time.Second
	sseSubscriberBuffer  = 16
)

// updateEvent is the payload of an SSE "update" event.
type updateEvent struct {
	Kind          dashboard.UpdateKind `json:"kind"`
	DataVersion   uint64               `json:"data_version"`
	RecordCount   int                  `json:"record_count"`
	TotalVolume   string               `json:"total_volume"`
	LeadHash      string               `json:"lead_hash,omitempty"`
	Novel         bool                 `json:"novel"`
	LastUpdate    time.Time            `json:"last_update"`
	Error         string               `json:"error,omitempty"`
	Notifications int                  `json:"notifications"`
}

func updateToEvent(u dashboard.Update) updateEvent {
	return updateEvent{
		Kind:          u.Kind,
		DataVersion:   u.Snapshot.Version,
		RecordCount:   len(u.Snapshot.Records),
		TotalVolume:   u.Snapshot.TotalVolume.String(),
		LeadHash:      u.Snapshot.LeadHash,
		Novel:         u.Result.Novel,
		LastUpdate:    u.Snapshot.LastUpdate,
		Error:         u.Snapshot.Error,
		Notifications: u.Snapshot.Notifications,
	}
}

// handleStream returns a handler that streams store updates as Server-Sent Events.
// GET /api/v1/stream
// Each connection subscribes to the store directly; closing shutdown ends all streams.
func handleStream(store *dashboard.Store, contract string, shutdown <-chan struct{}, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		updates, unsubscribe := store.Subscribe(sseSubscriberBuffer)
		defer unsubscribe()

		m.RecordSSEConnectionChange(1)
		defer m.RecordSSEConnectionChange(-1)

		logger.DebugContext(r.Context(), "SSE client connected",
			"remote_addr", r.RemoteAddr,
		)

		// Send initial connection event with the current state
		snap := store.Snapshot()
		connected, _ := json.Marshal(map[string]interface{}{
			"contract_address": contract,
			"data_version":     snap.Version,
			"notifications":    snap.Notifications,
		})
		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
		flusher.Flush()
		m.RecordSSEEventSent("connected")

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				// Send keepalive comment to prevent timeout
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case u, ok := <-updates:
				if !ok {
					return
				}
				data, err := json.Marshal(updateToEvent(u))
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal update event",
						"error", err,
					)
					continue
				}

				fmt.Fprintf(w, "event: update\ndata: %s\n\n", data)
				flusher.Flush()
				m.RecordSSEEventSent("update")

				logger.DebugContext(r.Context(), "sent update event",
					"kind", u.Kind,
					"data_version", u.Snapshot.Version,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-shutdown:
				return
			}
		}
	})
}
