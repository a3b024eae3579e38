// Package poller drives the fetch schedule: one fetch at start, then one per
// interval while auto-refresh is on, never two at once.
package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/etherscan"
	"github.com/brojonat/signwatch/service/metrics"
	natspkg "github.com/brojonat/signwatch/service/nats"
	"github.com/brojonat/signwatch/service/transfer"
)

const (
	// DefaultInterval is the time between scheduled fetches.
	DefaultInterval = 60 * time.Second
	// DefaultPageSize is the number of transfers requested per fetch.
	DefaultPageSize = 100
)

// ErrFetchInFlight is returned by RefreshNow when a fetch is already running.
var ErrFetchInFlight = errors.New("a fetch is already in progress")

// Trigger names what started a fetch.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// State is the poller's fetch state.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// Fetcher retrieves the newest transfers of a contract.
type Fetcher interface {
	FetchTokenTransfers(ctx context.Context, contractAddress string, pageSize int) ([]transfer.Record, error)
}

// Store receives fetch outcomes.
type Store interface {
	ApplyFetch(records []transfer.Record, err error) dashboard.ApplyResult
	Snapshot() dashboard.Snapshot
}

// Options configures a Poller.
type Options struct {
	ContractAddress string
	PageSize        int
	Interval        time.Duration
	// FetchTimeout bounds each fetch; zero means no timeout.
	FetchTimeout time.Duration
	AutoRefresh  bool

	// Publisher, when set, receives an event for every novel fetch.
	Publisher natspkg.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Poller runs fetches against a Fetcher and applies the results to a Store.
type Poller struct {
	fetcher Fetcher
	store   Store
	opts    Options

	inFlight    atomic.Bool
	autoRefresh atomic.Bool

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	toggle   chan struct{}
	done     chan struct{}
	started  bool
	stopped  bool

	logger *slog.Logger
}

// New creates a Poller. Zero-valued options take their defaults.
func New(fetcher Fetcher, store Store, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	p := &Poller{
		fetcher: fetcher,
		store:   store,
		opts:    opts,
		toggle:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger.With("contract", opts.ContractAddress),
	}
	p.autoRefresh.Store(opts.AutoRefresh)
	return p
}

// Start performs the initial fetch and then runs the schedule in a goroutine
// until ctx is done or Stop is called. It returns once the initial fetch has
// been applied. Calling Start more than once has no effect.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.opts.Metrics.SetAutoRefresh(p.autoRefresh.Load())
	p.fetch(p.ctx, TriggerStart)

	go p.run()
}

// Stop cancels the schedule and waits for the loop to exit. A fetch that is
// running when Stop is called is cancelled through its context.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	started := p.started
	cancel := p.cancel
	p.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-p.done
}

// SetAutoRefresh turns the fixed-interval schedule on or off. Disabling does
// not interrupt a fetch in progress; enabling restarts the interval without
// fetching immediately.
func (p *Poller) SetAutoRefresh(enabled bool) {
	if p.autoRefresh.Swap(enabled) == enabled {
		return
	}
	p.opts.Metrics.SetAutoRefresh(enabled)
	p.logger.Info("auto-refresh changed", "enabled", enabled)

	// The loop reads the current value, so one pending signal is enough.
	select {
	case p.toggle <- struct{}{}:
	default:
	}
}

// AutoRefresh reports whether the schedule is enabled.
func (p *Poller) AutoRefresh() bool {
	return p.autoRefresh.Load()
}

// RefreshNow runs a fetch on the caller's goroutine. It returns
// ErrFetchInFlight without fetching if another fetch is running. Fetch
// failures are not returned; they land in the store's error slot.
func (p *Poller) RefreshNow(ctx context.Context) error {
	if !p.fetch(ctx, TriggerManual) {
		return ErrFetchInFlight
	}
	return nil
}

// State reports whether a fetch is currently running.
func (p *Poller) State() State {
	if p.inFlight.Load() {
		return StateFetching
	}
	return StateIdle
}

// Interval returns the schedule period.
func (p *Poller) Interval() time.Duration {
	return p.opts.Interval
}

func (p *Poller) run() {
	defer close(p.done)

	var ticker *time.Ticker
	var tick <-chan time.Time
	startTicker := func() {
		ticker = time.NewTicker(p.opts.Interval)
		tick = ticker.C
	}
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
		}
		ticker, tick = nil, nil
	}
	defer stopTicker()

	if p.autoRefresh.Load() {
		startTicker()
	}

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info("poller stopped")
			return

		case <-p.toggle:
			stopTicker()
			if p.autoRefresh.Load() {
				startTicker()
			}

		case <-tick:
			p.fetch(p.ctx, TriggerSchedule)
		}
	}
}

// fetch runs one fetch cycle unless another is in flight. It reports whether
// the cycle ran.
func (p *Poller) fetch(ctx context.Context, trigger Trigger) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.opts.Metrics.RecordPollSkipped(string(trigger))
		p.logger.Debug("skipping fetch, previous fetch still running", "trigger", trigger)
		return false
	}
	defer p.inFlight.Store(false)

	outcome := "success"
	defer metrics.Timer(time.Now(), func(d float64) {
		p.opts.Metrics.RecordFetchCycle(string(trigger), outcome, d)
	})()

	fetchCtx := ctx
	if p.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.opts.FetchTimeout)
		defer cancel()
	}

	records, err := p.fetcher.FetchTokenTransfers(fetchCtx, p.opts.ContractAddress, p.opts.PageSize)
	result := p.store.ApplyFetch(records, err)

	if err != nil {
		outcome = "error"
		var fe *etherscan.FetchError
		if errors.As(err, &fe) {
			outcome = string(fe.Kind)
		}
		p.logger.WarnContext(ctx, "fetch failed",
			"trigger", trigger,
			"error", err,
		)
	} else {
		p.logger.InfoContext(ctx, "fetch applied",
			"trigger", trigger,
			"count", len(records),
			"novel", result.Novel,
		)
	}

	if result.Novel {
		p.publishNovelty(ctx)
	}
	return true
}

func (p *Poller) publishNovelty(ctx context.Context) {
	if p.opts.Publisher == nil {
		return
	}
	event := natspkg.FromSnapshot(p.opts.ContractAddress, p.store.Snapshot())
	if event == nil {
		return
	}
	if err := p.opts.Publisher.PublishNovelty(ctx, event); err != nil {
		// Publishing is best effort; the store already holds the data.
		p.logger.ErrorContext(ctx, "failed to publish novelty event",
			"lead_hash", event.LeadHash,
			"error", err,
		)
	}
}
