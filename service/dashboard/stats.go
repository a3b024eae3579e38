package dashboard

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/signwatch/service/transfer"
)

// Stats are the summary figures shown above the table.
type Stats struct {
	TotalTransactions  int             `json:"total_transactions"`
	TotalVolume        decimal.Decimal `json:"total_volume"`
	AverageAmount      decimal.Decimal `json:"average_amount"`
	LargestTransaction decimal.Decimal `json:"largest_transaction"`
	LastUpdate         time.Time       `json:"last_update"`
	SecondsSinceUpdate int64           `json:"seconds_since_update"`
	AvgRatePerHour     float64         `json:"avg_rate_per_hour"`
}

// ComputeStats derives Stats from a snapshot and its filtered view.
// TotalVolume covers the whole snapshot while the count, average and largest
// transaction cover only the view.
func ComputeStats(snap Snapshot, view []transfer.Record, now time.Time) Stats {
	st := Stats{
		TotalTransactions:  len(view),
		TotalVolume:        snap.TotalVolume,
		AverageAmount:      decimal.Zero,
		LargestTransaction: decimal.Zero,
		LastUpdate:         snap.LastUpdate,
		AvgRatePerHour:     float64(len(view)) / 24,
	}

	if !snap.LastUpdate.IsZero() {
		st.SecondsSinceUpdate = int64(now.Sub(snap.LastUpdate).Round(time.Second) / time.Second)
	}

	if len(view) == 0 {
		return st
	}

	st.AverageAmount = snap.TotalVolume.Div(decimal.NewFromInt(int64(len(view))))
	largest := view[0].Amount()
	for _, r := range view[1:] {
		if a := r.Amount(); a.GreaterThan(largest) {
			largest = a
		}
	}
	st.LargestTransaction = largest
	return st
}

// ShareOfVolume is amount as a percentage of volume, or 0 when volume is 0.
func ShareOfVolume(amount, volume decimal.Decimal) float64 {
	if volume.IsZero() {
		return 0
	}
	return amount.Div(volume).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
