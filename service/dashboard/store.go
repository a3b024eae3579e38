package dashboard

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/signwatch/service/metrics"
	"github.com/brojonat/signwatch/service/transfer"
)

// UpdateKind says what changed in an Update.
type UpdateKind string

const (
	UpdateFetched        UpdateKind = "fetched"
	UpdateFetchFailed    UpdateKind = "fetch_failed"
	UpdateErrorDismissed UpdateKind = "error_dismissed"
	UpdateNotifications  UpdateKind = "notifications_cleared"
)

// Snapshot is an immutable view of the store. The Records slice is never
// written to after the snapshot is published.
type Snapshot struct {
	Records       []transfer.Record
	TotalVolume   decimal.Decimal
	LastUpdate    time.Time
	LeadHash      string
	Error         string
	Version       uint64
	Notifications int
}

// ApplyResult describes the effect of a single ApplyFetch.
type ApplyResult struct {
	Replaced    bool
	NewLeadHash string
	Novel       bool
}

// Update is delivered to subscribers after the state has been fully replaced.
type Update struct {
	Kind     UpdateKind
	Snapshot Snapshot
	Result   ApplyResult
}

// Store holds the most recent successful batch of transfers together with the
// error slot and the new-transaction counter. A batch is always replaced as a
// whole.
type Store struct {
	mu            sync.RWMutex
	snap          Snapshot
	notifications *Notifications

	subMu       sync.Mutex
	subscribers map[int]chan Update
	nextSubID   int

	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithMetrics records store gauges on m.
func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty store. LastUpdate starts at construction time.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		notifications: &Notifications{},
		subscribers:   make(map[int]chan Update),
		now:           time.Now,
		logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap = Snapshot{
		Records:     []transfer.Record{},
		TotalVolume: decimal.Zero,
		LastUpdate:  s.now(),
	}
	return s
}

// ApplyFetch folds the outcome of one fetch into the store.
//
// On success the record set is replaced (even when empty), volume is
// recomputed, the error slot is cleared and Version is bumped. A batch whose
// first hash differs from the previous lead is novel and increments the
// notification counter. On failure only the error slot changes.
func (s *Store) ApplyFetch(records []transfer.Record, fetchErr error) ApplyResult {
	s.mu.Lock()

	if fetchErr != nil {
		s.snap.Error = fetchErr.Error()
		snap := s.snap
		s.mu.Unlock()

		s.logger.Warn("fetch failed, keeping previous records",
			"error", fetchErr,
			"count", len(snap.Records),
		)
		s.publish(Update{Kind: UpdateFetchFailed, Snapshot: snap})
		return ApplyResult{}
	}

	published := make([]transfer.Record, len(records))
	copy(published, records)

	result := ApplyResult{Replaced: true}
	if len(published) > 0 && published[0].Hash != s.snap.LeadHash {
		result.Novel = true
		result.NewLeadHash = published[0].Hash
		s.snap.LeadHash = published[0].Hash
		s.snap.Notifications = s.notifications.OnNovelty()
	}

	s.snap.Records = published
	s.snap.TotalVolume = transfer.TotalVolume(published)
	s.snap.LastUpdate = s.now()
	s.snap.Error = ""
	s.snap.Version++
	snap := s.snap
	s.mu.Unlock()

	s.metrics.RecordStoreReplaced(len(snap.Records), snap.TotalVolume.InexactFloat64())
	if result.Novel {
		s.metrics.RecordNovelty(snap.Notifications)
		s.logger.Info("new lead transaction",
			"lead_hash", result.NewLeadHash,
			"count", len(snap.Records),
			"notifications", snap.Notifications,
		)
	}

	s.publish(Update{Kind: UpdateFetched, Snapshot: snap, Result: result})
	return result
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Version returns the identity of the current record set.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Version
}

// DismissError clears the error slot without touching the records.
func (s *Store) DismissError() {
	s.mu.Lock()
	if s.snap.Error == "" {
		s.mu.Unlock()
		return
	}
	s.snap.Error = ""
	snap := s.snap
	s.mu.Unlock()

	s.publish(Update{Kind: UpdateErrorDismissed, Snapshot: snap})
}

// ClearNotifications resets the new-transaction counter to zero.
func (s *Store) ClearNotifications() {
	s.mu.Lock()
	s.notifications.Clear()
	s.snap.Notifications = 0
	snap := s.snap
	s.mu.Unlock()

	s.metrics.SetNotifications(0)
	s.publish(Update{Kind: UpdateNotifications, Snapshot: snap})
}

// Subscribe registers for updates. Delivery is non-blocking: a subscriber
// whose buffer is full misses that update. The returned func unsubscribes
// and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			s.logger.Debug("subscriber buffer full, dropping update", "subscriber", id, "kind", u.Kind)
		}
	}
}
