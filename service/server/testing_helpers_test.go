package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/signwatch/service/config"
	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/poller"
	"github.com/brojonat/signwatch/service/transfer"
)

const testContract = "0x868fced65edbf0056c4163515dd840e9f287a4c3"

// fakePoller records calls made by the handlers.
type fakePoller struct {
	mu          sync.Mutex
	refreshErr  error
	refreshes   int
	autoRefresh bool
	state       poller.State
	onRefresh   func()
}

func (f *fakePoller) RefreshNow(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	if f.onRefresh != nil {
		f.onRefresh()
	}
	return nil
}

func (f *fakePoller) SetAutoRefresh(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoRefresh = enabled
}

func (f *fakePoller) AutoRefresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoRefresh
}

func (f *fakePoller) State() poller.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return poller.StateIdle
	}
	return f.state
}

func (f *fakePoller) Interval() time.Duration { return time.Minute }

func (f *fakePoller) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:      ":0",
		ContractAddress: testContract,
		ExplorerBaseURL: transfer.DefaultExplorerBaseURL,
		DefaultPageSize: 20,
		DisplayLocation: time.UTC,
	}
}

func testRecord(hash, value, ts string) transfer.Record {
	return transfer.Record{
		Hash:         hash,
		From:         "0xfrom" + hash,
		To:           "0xto" + hash,
		Value:        value,
		TokenDecimal: "18",
		TokenSymbol:  "SIGN",
		TimeStamp:    ts,
	}
}

// seededStore holds a (1 SIGN at t=1000), b (2 SIGN at t=2000) and c (5 SIGN at t=3000).
func seededStore(t *testing.T) *dashboard.Store {
	t.Helper()
	store := dashboard.NewStore()
	store.ApplyFetch([]transfer.Record{
		testRecord("0xccc", "5000000000000000000", "3000"),
		testRecord("0xbbb", "2000000000000000000", "2000"),
		testRecord("0xaaa", "1000000000000000000", "1000"),
	}, nil)
	return store
}

func newTestServer(t *testing.T, store *dashboard.Store, p Poller) *Server {
	t.Helper()
	s := New(testConfig(), store, p, nil, testLogger())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}
