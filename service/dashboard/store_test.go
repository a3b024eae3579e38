package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/signwatch/service/metrics"
	"github.com/brojonat/signwatch/service/transfer"
)

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[min(i, len(ts)-1)]
		i++
		return t
	}
}

func TestStore_ApplyFetchReplacesRecords(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	s := NewStore(WithClock(fixedClock(t0, t1)), WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())))

	result := s.ApplyFetch(scenarioRecords(), nil)
	assert.True(t, result.Replaced)
	assert.True(t, result.Novel)
	assert.Equal(t, "a", result.NewLeadHash)

	snap := s.Snapshot()
	assert.Equal(t, []string{"a", "b"}, hashes(snap.Records))
	assert.True(t, decimal.NewFromInt(3).Equal(snap.TotalVolume), "volume %s", snap.TotalVolume)
	assert.Equal(t, t1, snap.LastUpdate)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, "a", snap.LeadHash)
	assert.Empty(t, snap.Error)
}

func TestStore_VolumeMatchesSumOfAmounts(t *testing.T) {
	records := []transfer.Record{
		rec("x", "123456789", "6", "1"),
		rec("y", "1", "0", "2"),
		rec("z", "999999999999999999", "18", "3"),
	}
	s := NewStore()
	s.ApplyFetch(records, nil)

	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Amount())
	}
	assert.True(t, sum.Equal(s.Snapshot().TotalVolume))
}

func TestStore_Novelty(t *testing.T) {
	s := NewStore()

	first := s.ApplyFetch(scenarioRecords(), nil)
	require.True(t, first.Novel)
	assert.Equal(t, 1, s.Snapshot().Notifications)

	same := s.ApplyFetch(scenarioRecords(), nil)
	assert.False(t, same.Novel)
	assert.Empty(t, same.NewLeadHash)
	assert.Equal(t, 1, s.Snapshot().Notifications)

	next := append([]transfer.Record{rec("c", "5", "0", "3000")}, scenarioRecords()...)
	changed := s.ApplyFetch(next, nil)
	assert.True(t, changed.Novel)
	assert.Equal(t, "c", changed.NewLeadHash)
	assert.Equal(t, 2, s.Snapshot().Notifications)
}

func TestStore_EmptyFetchIsNotNovel(t *testing.T) {
	s := NewStore()
	s.ApplyFetch(scenarioRecords(), nil)

	result := s.ApplyFetch([]transfer.Record{}, nil)
	assert.True(t, result.Replaced)
	assert.False(t, result.Novel)

	snap := s.Snapshot()
	assert.Empty(t, snap.Records)
	assert.True(t, snap.TotalVolume.IsZero())
	assert.Equal(t, "a", snap.LeadHash)
	assert.Equal(t, 1, snap.Notifications)
}

func TestStore_ErrorPreservesData(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(fixedClock(t0, t0.Add(time.Minute), t0.Add(2*time.Minute))))
	s.ApplyFetch(scenarioRecords(), nil)
	before := s.Snapshot()

	result := s.ApplyFetch(nil, errors.New("API error: NOTOK"))
	assert.False(t, result.Replaced)
	assert.False(t, result.Novel)

	after := s.Snapshot()
	assert.Equal(t, before.Records, after.Records)
	assert.True(t, before.TotalVolume.Equal(after.TotalVolume))
	assert.Equal(t, before.LeadHash, after.LeadHash)
	assert.Equal(t, before.LastUpdate, after.LastUpdate)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, "API error: NOTOK", after.Error)

	s.ApplyFetch(scenarioRecords(), nil)
	assert.Empty(t, s.Snapshot().Error)
}

func TestStore_DismissError(t *testing.T) {
	s := NewStore()
	s.ApplyFetch(scenarioRecords(), nil)
	s.ApplyFetch(nil, errors.New("boom"))

	s.DismissError()
	snap := s.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Len(t, snap.Records, 2)
}

func TestStore_ClearNotifications(t *testing.T) {
	s := NewStore()
	s.ApplyFetch(scenarioRecords(), nil)
	require.Equal(t, 1, s.Snapshot().Notifications)

	s.ClearNotifications()
	assert.Equal(t, 0, s.Snapshot().Notifications)

	// Clearing does not forget the lead hash.
	result := s.ApplyFetch(scenarioRecords(), nil)
	assert.False(t, result.Novel)
	assert.Equal(t, 0, s.Snapshot().Notifications)
}

func TestStore_SnapshotIsIsolatedFromInput(t *testing.T) {
	records := scenarioRecords()
	s := NewStore()
	s.ApplyFetch(records, nil)

	records[0].Hash = "mutated"
	assert.Equal(t, "a", s.Snapshot().Records[0].Hash)
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore()
	updates, unsubscribe := s.Subscribe(4)

	s.ApplyFetch(scenarioRecords(), nil)
	s.ApplyFetch(nil, errors.New("boom"))

	u := <-updates
	assert.Equal(t, UpdateFetched, u.Kind)
	assert.True(t, u.Result.Novel)
	assert.Len(t, u.Snapshot.Records, 2)

	u = <-updates
	assert.Equal(t, UpdateFetchFailed, u.Kind)
	assert.Equal(t, "boom", u.Snapshot.Error)

	unsubscribe()
	_, ok := <-updates
	assert.False(t, ok)

	// A second call is harmless.
	unsubscribe()
	s.ApplyFetch(scenarioRecords(), nil)
}

func TestStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewStore()
	updates, unsubscribe := s.Subscribe(1)
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		s.ApplyFetch(scenarioRecords(), nil)
	}

	u := <-updates
	assert.Equal(t, uint64(1), u.Snapshot.Version)
	assert.Equal(t, uint64(5), s.Version())
}

func TestNotifications(t *testing.T) {
	var n Notifications
	assert.Equal(t, 0, n.Count())
	assert.Equal(t, 1, n.OnNovelty())
	assert.Equal(t, 2, n.OnNovelty())
	n.Clear()
	assert.Equal(t, 0, n.Count())
}
