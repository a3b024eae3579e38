package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brojonat/signwatch/service/transfer"
)

// SortField selects the sort key.
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByAmount    SortField = "amount"
)

// SortOrder selects the sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Query holds the user's filter and sort criteria. MinAmount and MaxAmount
// are kept as typed; an empty string means the bound is unset.
type Query struct {
	Search    string    `json:"search,omitempty"`
	MinAmount string    `json:"min_amount,omitempty"`
	MaxAmount string    `json:"max_amount,omitempty"`
	SortBy    SortField `json:"sort_by"`
	SortOrder SortOrder `json:"sort_order"`
}

// DefaultQuery sorts newest first with no filters.
func DefaultQuery() Query {
	return Query{SortBy: SortByTimestamp, SortOrder: SortDesc}
}

// Validate reports the first problem with q, if any.
func (q Query) Validate() error {
	if _, err := parseBound(q.MinAmount); err != nil {
		return fmt.Errorf("invalid min_amount %q", q.MinAmount)
	}
	if _, err := parseBound(q.MaxAmount); err != nil {
		return fmt.Errorf("invalid max_amount %q", q.MaxAmount)
	}
	switch q.SortBy {
	case SortByTimestamp, SortByAmount, "":
	default:
		return fmt.Errorf("invalid sort_by %q: must be timestamp or amount", q.SortBy)
	}
	switch q.SortOrder {
	case SortAsc, SortDesc, "":
	default:
		return fmt.Errorf("invalid sort_order %q: must be asc or desc", q.SortOrder)
	}
	return nil
}

// Apply filters and sorts records according to q and returns a new slice.
// records is never modified. Search runs first (case-insensitive substring
// of hash, sender or recipient), then the amount bounds, then a stable sort.
func Apply(records []transfer.Record, q Query) []transfer.Record {
	out := make([]transfer.Record, 0, len(records))

	needle := strings.ToLower(q.Search)
	minAmount, minErr := parseBound(q.MinAmount)
	maxAmount, maxErr := parseBound(q.MaxAmount)
	hasMin := minErr == nil && minAmount != nil
	hasMax := maxErr == nil && maxAmount != nil

	for _, r := range records {
		if needle != "" && !matchesSearch(r, needle) {
			continue
		}
		if hasMin || hasMax {
			amount := r.Amount()
			if hasMin && amount.LessThan(*minAmount) {
				continue
			}
			if hasMax && amount.GreaterThan(*maxAmount) {
				continue
			}
		}
		out = append(out, r)
	}

	desc := q.SortOrder != SortAsc
	switch q.SortBy {
	case SortByAmount:
		sort.SliceStable(out, func(i, j int) bool {
			c := out[i].Amount().Cmp(out[j].Amount())
			if desc {
				return c > 0
			}
			return c < 0
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return out[i].Unix() > out[j].Unix()
			}
			return out[i].Unix() < out[j].Unix()
		})
	}

	return out
}

func matchesSearch(r transfer.Record, needle string) bool {
	return strings.Contains(strings.ToLower(r.Hash), needle) ||
		strings.Contains(strings.ToLower(r.From), needle) ||
		strings.Contains(strings.ToLower(r.To), needle)
}

// parseBound returns nil for an unset bound.
func parseBound(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
