package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/export"
	"github.com/brojonat/signwatch/service/metrics"
	"github.com/brojonat/signwatch/service/poller"
	"github.com/brojonat/signwatch/service/transfer"
)

const (
	maxRequestBodySize = 1 << 10 // 1KB - the only body is {"enabled":bool}
	maxSearchLength    = 200
)

// Poller is the part of the poller the HTTP layer drives.
type Poller interface {
	RefreshNow(ctx context.Context) error
	SetAutoRefresh(enabled bool)
	AutoRefresh() bool
	State() poller.State
	Interval() time.Duration
}

// listParams are the parsed query parameters shared by the list, stats and
// export endpoints.
type listParams struct {
	Query    dashboard.Query
	Page     int
	PageSize int
}

// parseListParams reads search, min_amount, max_amount, sort_by, sort_order,
// page and page_size from q.
func parseListParams(q url.Values, defaultPageSize int) (listParams, error) {
	p := listParams{
		Query: dashboard.Query{
			Search:    strings.TrimSpace(q.Get("search")),
			MinAmount: strings.TrimSpace(q.Get("min_amount")),
			MaxAmount: strings.TrimSpace(q.Get("max_amount")),
			SortBy:    dashboard.SortField(q.Get("sort_by")),
			SortOrder: dashboard.SortOrder(q.Get("sort_order")),
		},
		Page:     1,
		PageSize: defaultPageSize,
	}

	if p.Query.SortBy == "" {
		p.Query.SortBy = dashboard.SortByTimestamp
	}
	if p.Query.SortOrder == "" {
		p.Query.SortOrder = dashboard.SortDesc
	}

	if len(p.Query.Search) > maxSearchLength {
		return p, errorf("search too long: maximum length is %d characters", maxSearchLength)
	}

	if err := p.Query.Validate(); err != nil {
		return p, errorf("%v", err)
	}

	if pageStr := q.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return p, errorf("invalid page parameter: must be an integer")
		}
		if page < 1 {
			return p, errorf("page must be at least 1")
		}
		p.Page = page
	}

	if sizeStr := q.Get("page_size"); sizeStr != "" {
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			return p, errorf("invalid page_size parameter: must be an integer")
		}
		if !dashboard.ValidPageSize(size) {
			return p, errorf("page_size must be one of %v", dashboard.PageSizes)
		}
		p.PageSize = size
	}

	return p, nil
}

// transferResponse is the JSON response format for a transfer.
type transferResponse struct {
	Hash          string    `json:"hash"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Value         string    `json:"value"`
	TokenDecimal  string    `json:"token_decimal"`
	TokenSymbol   string    `json:"token_symbol"`
	TokenName     string    `json:"token_name,omitempty"`
	BlockNumber   string    `json:"block_number,omitempty"`
	Timestamp     int64     `json:"timestamp"`
	Time          time.Time `json:"time"`
	Amount        string    `json:"amount"`
	ShareOfVolume float64   `json:"share_of_volume"`
	TxURL         string    `json:"tx_url"`
}

func transferToResponse(r transfer.Record, volume decimal.Decimal, explorerBase string) transferResponse {
	amount := r.Amount()
	return transferResponse{
		Hash:          r.Hash,
		From:          r.From,
		To:            r.To,
		Value:         r.Value,
		TokenDecimal:  r.TokenDecimal,
		TokenSymbol:   r.TokenSymbol,
		TokenName:     r.TokenName,
		BlockNumber:   r.BlockNumber,
		Timestamp:     r.Unix(),
		Time:          r.Time(),
		Amount:        amount.String(),
		ShareOfVolume: dashboard.ShareOfVolume(amount, volume),
		TxURL:         r.TxURL(explorerBase),
	}
}

// statsResponse is the JSON response format for dashboard statistics.
type statsResponse struct {
	TotalTransactions  int       `json:"total_transactions"`
	TotalVolume        string    `json:"total_volume"`
	AverageAmount      string    `json:"average_amount"`
	LargestTransaction string    `json:"largest_transaction"`
	LastUpdate         time.Time `json:"last_update"`
	SecondsSinceUpdate int64     `json:"seconds_since_update"`
	AvgRatePerHour     float64   `json:"avg_rate_per_hour"`
}

func statsToResponse(st dashboard.Stats) statsResponse {
	return statsResponse{
		TotalTransactions:  st.TotalTransactions,
		TotalVolume:        st.TotalVolume.String(),
		AverageAmount:      st.AverageAmount.String(),
		LargestTransaction: st.LargestTransaction.String(),
		LastUpdate:         st.LastUpdate,
		SecondsSinceUpdate: st.SecondsSinceUpdate,
		AvgRatePerHour:     st.AvgRatePerHour,
	}
}

// statusResponse is the JSON response format for GET /api/v1/status.
type statusResponse struct {
	ContractAddress    string    `json:"contract_address"`
	ContractURL        string    `json:"contract_url"`
	RecordCount        int       `json:"record_count"`
	TotalVolume        string    `json:"total_volume"`
	LeadHash           string    `json:"lead_hash,omitempty"`
	LastUpdate         time.Time `json:"last_update"`
	SecondsSinceUpdate int64     `json:"seconds_since_update"`
	Error              string    `json:"error,omitempty"`
	DataVersion        uint64    `json:"data_version"`
	Notifications      int       `json:"notifications"`
	PollerState        string    `json:"poller_state"`
	AutoRefresh        bool      `json:"auto_refresh"`
	PollInterval       string    `json:"poll_interval"`
}

func buildStatus(snap dashboard.Snapshot, p Poller, contract, explorerBase string, now time.Time) statusResponse {
	return statusResponse{
		ContractAddress:    contract,
		ContractURL:        transfer.AddressURL(explorerBase, contract),
		RecordCount:        len(snap.Records),
		TotalVolume:        snap.TotalVolume.String(),
		LeadHash:           snap.LeadHash,
		LastUpdate:         snap.LastUpdate,
		SecondsSinceUpdate: int64(now.Sub(snap.LastUpdate).Round(time.Second) / time.Second),
		Error:              snap.Error,
		DataVersion:        snap.Version,
		Notifications:      snap.Notifications,
		PollerState:        string(p.State()),
		AutoRefresh:        p.AutoRefresh(),
		PollInterval:       p.Interval().String(),
	}
}

// handleListTransactions returns a handler that lists the filtered, sorted and
// paginated transfers.
// GET /api/v1/transactions?search=&min_amount=&max_amount=&sort_by=&sort_order=&page=&page_size=
func handleListTransactions(store *dashboard.Store, defaultPageSize int, explorerBase string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := parseListParams(r.URL.Query(), defaultPageSize)
		if err != nil {
			logger.Debug("invalid list parameters", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		snap := store.Snapshot()
		view := dashboard.Apply(snap.Records, params.Query)
		page := dashboard.Paginate(view, params.PageSize, params.Page)

		items := make([]transferResponse, len(page.Items))
		for i, rec := range page.Items {
			items[i] = transferToResponse(rec, snap.TotalVolume, explorerBase)
		}

		logger.Debug("transactions listed",
			"count", len(items),
			"filtered", len(view),
			"page", page.Page,
		)

		writeJSON(w, map[string]interface{}{
			"items":        items,
			"page":         page.Page,
			"page_size":    page.PageSize,
			"total_pages":  page.TotalPages,
			"total_items":  page.TotalItems,
			"start_index":  page.StartIndex,
			"end_index":    page.EndIndex,
			"query":        params.Query,
			"data_version": snap.Version,
			"total_volume": snap.TotalVolume.String(),
		}, http.StatusOK)
	})
}

// handleGetStats returns a handler that computes statistics over the filtered view.
// GET /api/v1/stats accepts the same filter parameters as /api/v1/transactions.
func handleGetStats(store *dashboard.Store, defaultPageSize int, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := parseListParams(r.URL.Query(), defaultPageSize)
		if err != nil {
			logger.Debug("invalid stats parameters", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		snap := store.Snapshot()
		view := dashboard.Apply(snap.Records, params.Query)
		st := dashboard.ComputeStats(snap, view, time.Now())

		writeJSON(w, statsToResponse(st), http.StatusOK)
	})
}

// handleGetStatus returns a handler that reports store and poller state.
// GET /api/v1/status
func handleGetStatus(store *dashboard.Store, p Poller, contract, explorerBase string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, buildStatus(store.Snapshot(), p, contract, explorerBase, time.Now()), http.StatusOK)
	})
}

// handleExportCSV returns a handler that downloads the filtered view as CSV.
// Pagination parameters are accepted but ignored; the whole view is exported.
// GET /api/v1/export.csv
func handleExportCSV(store *dashboard.Store, defaultPageSize int, loc *time.Location, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := parseListParams(r.URL.Query(), defaultPageSize)
		if err != nil {
			logger.Debug("invalid export parameters", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		view := dashboard.Apply(store.Snapshot().Records, params.Query)

		w.Header().Set("Content-Type", export.ContentType+"; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(time.Now())))
		if err := export.WriteCSV(w, view, loc); err != nil {
			// Headers are already sent; all we can do is log.
			logger.ErrorContext(r.Context(), "failed to write csv export", "error", err)
			return
		}

		m.RecordExport(len(view))
		logger.DebugContext(r.Context(), "csv exported", "count", len(view))
	})
}

// handleRefresh returns a handler that triggers an immediate fetch.
// POST /api/v1/refresh
// Responds 409 if a fetch is already running. Fetch failures are reported in
// the returned status, not as an HTTP error.
func handleRefresh(store *dashboard.Store, p Poller, contract, explorerBase string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := p.RefreshNow(r.Context()); err != nil {
			if errors.Is(err, poller.ErrFetchInFlight) {
				writeError(w, err.Error(), http.StatusConflict)
				return
			}
			logger.ErrorContext(r.Context(), "manual refresh failed", "error", err)
			writeError(w, "refresh failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, buildStatus(store.Snapshot(), p, contract, explorerBase, time.Now()), http.StatusOK)
	})
}

// handleSetAutoRefresh returns a handler that turns the refresh schedule on or off.
// PUT /api/v1/auto-refresh {"enabled": true}
func handleSetAutoRefresh(p Poller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode auto-refresh request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if req.Enabled == nil {
			writeError(w, "enabled is required", http.StatusBadRequest)
			return
		}

		p.SetAutoRefresh(*req.Enabled)
		writeJSON(w, map[string]interface{}{
			"auto_refresh":  p.AutoRefresh(),
			"poll_interval": p.Interval().String(),
		}, http.StatusOK)
	})
}

// handleClearNotifications returns a handler that resets the new-transaction counter.
// DELETE /api/v1/notifications
func handleClearNotifications(store *dashboard.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store.ClearNotifications()
		logger.Debug("notifications cleared")
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleDismissError returns a handler that clears the error banner.
// DELETE /api/v1/error
func handleDismissError(store *dashboard.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store.DismissError()
		logger.Debug("error dismissed")
		w.WriteHeader(http.StatusNoContent)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
