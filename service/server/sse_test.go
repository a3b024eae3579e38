package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/transfer"
)

type sseEvent struct {
	name string
	data string
}

// readEvents parses SSE frames from the body and sends them on the returned channel.
func readEvents(t *testing.T, resp *http.Response) <-chan sseEvent {
	t.Helper()
	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		var ev sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.name != "":
				events <- ev
				ev = sseEvent{}
			}
		}
	}()
	return events
}

func nextEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SSE event")
		return sseEvent{}
	}
}

func TestStream_DeliversStoreUpdates(t *testing.T) {
	store := dashboard.NewStore()
	shutdown := make(chan struct{})
	srv := httptest.NewServer(handleStream(store, testContract, shutdown, nil, testLogger()))
	defer srv.Close()
	defer close(shutdown)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp)

	connected := nextEvent(t, events)
	assert.Equal(t, "connected", connected.name)
	assert.Contains(t, connected.data, testContract)

	store.ApplyFetch([]transfer.Record{testRecord("0xaaa", "1000000000000000000", "1000")}, nil)

	ev := nextEvent(t, events)
	require.Equal(t, "update", ev.name)
	var payload updateEvent
	require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
	assert.Equal(t, dashboard.UpdateFetched, payload.Kind)
	assert.Equal(t, uint64(1), payload.DataVersion)
	assert.Equal(t, 1, payload.RecordCount)
	assert.True(t, payload.Novel)
	assert.Equal(t, "0xaaa", payload.LeadHash)

	store.ApplyFetch(nil, errors.New("API error: rate limited"))

	ev = nextEvent(t, events)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
	assert.Equal(t, dashboard.UpdateFetchFailed, payload.Kind)
	assert.Equal(t, "API error: rate limited", payload.Error)
	assert.Equal(t, 1, payload.RecordCount)
}

func TestStream_EndsOnShutdown(t *testing.T) {
	store := dashboard.NewStore()
	shutdown := make(chan struct{})
	srv := httptest.NewServer(handleStream(store, testContract, shutdown, nil, testLogger()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp)
	assert.Equal(t, "connected", nextEvent(t, events).name)

	close(shutdown)

	select {
	case _, ok := <-events:
		assert.False(t, ok, "expected stream to end")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after shutdown")
	}
}

func TestUpdateToEvent(t *testing.T) {
	u := dashboard.Update{
		Kind: dashboard.UpdateNotifications,
		Snapshot: dashboard.Snapshot{
			Version:       4,
			Notifications: 0,
			LeadHash:      "0xabc",
		},
	}
	ev := updateToEvent(u)
	assert.Equal(t, dashboard.UpdateNotifications, ev.Kind)
	assert.Equal(t, uint64(4), ev.DataVersion)
	assert.Equal(t, "0", ev.TotalVolume)
	assert.False(t, ev.Novel)
}
