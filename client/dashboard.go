package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transfer is one token transfer as returned by the dashboard API.
type Transfer struct {
	Hash          string    `json:"hash" yaml:"hash"`
	From          string    `json:"from" yaml:"from"`
	To            string    `json:"to" yaml:"to"`
	Value         string    `json:"value" yaml:"value"`
	TokenDecimal  string    `json:"token_decimal" yaml:"token_decimal"`
	TokenSymbol   string    `json:"token_symbol" yaml:"token_symbol"`
	TokenName     string    `json:"token_name,omitempty" yaml:"token_name,omitempty"`
	BlockNumber   string    `json:"block_number,omitempty" yaml:"block_number,omitempty"`
	Timestamp     int64     `json:"timestamp" yaml:"timestamp"`
	Time          time.Time `json:"time" yaml:"time"`
	Amount        string    `json:"amount" yaml:"amount"`
	ShareOfVolume float64   `json:"share_of_volume" yaml:"share_of_volume"`
	TxURL         string    `json:"tx_url" yaml:"tx_url"`
}

// TransferPage is one page of the filtered, sorted view.
type TransferPage struct {
	Items       []Transfer `json:"items" yaml:"items"`
	Page        int        `json:"page" yaml:"page"`
	PageSize    int        `json:"page_size" yaml:"page_size"`
	TotalPages  int        `json:"total_pages" yaml:"total_pages"`
	TotalItems  int        `json:"total_items" yaml:"total_items"`
	StartIndex  int        `json:"start_index" yaml:"start_index"`
	EndIndex    int        `json:"end_index" yaml:"end_index"`
	DataVersion uint64     `json:"data_version" yaml:"data_version"`
	TotalVolume string     `json:"total_volume" yaml:"total_volume"`
}

// Stats are the summary figures over the filtered view.
type Stats struct {
	TotalTransactions  int       `json:"total_transactions" yaml:"total_transactions"`
	TotalVolume        string    `json:"total_volume" yaml:"total_volume"`
	AverageAmount      string    `json:"average_amount" yaml:"average_amount"`
	LargestTransaction string    `json:"largest_transaction" yaml:"largest_transaction"`
	LastUpdate         time.Time `json:"last_update" yaml:"last_update"`
	SecondsSinceUpdate int64     `json:"seconds_since_update" yaml:"seconds_since_update"`
	AvgRatePerHour     float64   `json:"avg_rate_per_hour" yaml:"avg_rate_per_hour"`
}

// Status describes the server's record set and poller.
type Status struct {
	ContractAddress    string        `json:"contract_address" yaml:"contract_address"`
	ContractURL        string        `json:"contract_url" yaml:"contract_url"`
	RecordCount        int           `json:"record_count" yaml:"record_count"`
	TotalVolume        string        `json:"total_volume" yaml:"total_volume"`
	LeadHash           string        `json:"lead_hash,omitempty" yaml:"lead_hash,omitempty"`
	LastUpdate         time.Time     `json:"last_update" yaml:"last_update"`
	SecondsSinceUpdate int64         `json:"seconds_since_update" yaml:"seconds_since_update"`
	Error              string        `json:"error,omitempty" yaml:"error,omitempty"`
	DataVersion        uint64        `json:"data_version" yaml:"data_version"`
	Notifications      int           `json:"notifications" yaml:"notifications"`
	PollerState        string        `json:"poller_state" yaml:"poller_state"`
	AutoRefresh        bool          `json:"auto_refresh" yaml:"auto_refresh"`
	PollInterval       time.Duration `json:"-" yaml:"-"`
}

// ListOptions selects the view for Transactions, Stats and Export.
// Zero values are omitted and the server defaults apply.
type ListOptions struct {
	Search    string
	MinAmount string
	MaxAmount string
	SortBy    string // timestamp or amount
	SortOrder string // asc or desc
	Page      int
	PageSize  int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Search != "" {
		v.Set("search", o.Search)
	}
	if o.MinAmount != "" {
		v.Set("min_amount", o.MinAmount)
	}
	if o.MaxAmount != "" {
		v.Set("max_amount", o.MaxAmount)
	}
	if o.SortBy != "" {
		v.Set("sort_by", o.SortBy)
	}
	if o.SortOrder != "" {
		v.Set("sort_order", o.SortOrder)
	}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(o.PageSize))
	}
	return v
}

// Event is one Server-Sent Event from the update stream.
type Event struct {
	Name string
	Data json.RawMessage
}

// Client is the HTTP client for the signwatch dashboard service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new dashboard service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Transactions retrieves one page of the filtered, sorted view.
func (c *Client) Transactions(ctx context.Context, opts ListOptions) (*TransferPage, error) {
	var page TransferPage
	if err := c.getJSON(ctx, "/api/v1/transactions", opts.values(), &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []Transfer{}
	}
	return &page, nil
}

// Stats retrieves the summary figures for the filtered view.
func (c *Client) Stats(ctx context.Context, opts ListOptions) (*Stats, error) {
	var stats Stats
	if err := c.getJSON(ctx, "/api/v1/stats", opts.values(), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Status retrieves the server's record set and poller state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var resp statusResponse
	if err := c.getJSON(ctx, "/api/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return responseToStatus(&resp)
}

// Refresh asks the server to fetch immediately and returns the resulting status.
// A failed fetch is not an error here; it shows up in Status.Error.
func (c *Client) Refresh(ctx context.Context) (*Status, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/refresh", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("refresh requested", "record_count", sr.RecordCount)
	return responseToStatus(&sr)
}

// SetAutoRefresh turns the server's refresh schedule on or off.
func (c *Client) SetAutoRefresh(ctx context.Context, enabled bool) error {
	body, err := json.Marshal(map[string]bool{"enabled": enabled})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, "/api/v1/auto-refresh", nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("auto-refresh set", "enabled", enabled)
	return nil
}

// ClearNotifications resets the server's new-transaction counter.
func (c *Client) ClearNotifications(ctx context.Context) error {
	return c.delete(ctx, "/api/v1/notifications")
}

// DismissError clears the server's error banner.
func (c *Client) DismissError(ctx context.Context) error {
	return c.delete(ctx, "/api/v1/error")
}

// Export streams the CSV export of the filtered view to w and returns the
// filename suggested by the server.
func (c *Client) Export(ctx context.Context, opts ListOptions, w io.Writer) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/export.csv", opts.values(), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseErrorResponse(resp)
	}

	var filename string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("failed to read export: %w", err)
	}
	return filename, nil
}

// Watch connects to the update stream and calls fn for each event until ctx
// is cancelled, the server closes the stream, or fn returns an error.
// The client's timeout does not apply to the stream.
func (c *Client) Watch(ctx context.Context, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/stream", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	streaming := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streaming.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var ev Event
	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if ev.Name != "" {
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev = Event{}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			ev.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error reading stream: %w", err)
	}
	return nil
}

// statusResponse is the API response format for status.
// The server returns poll_interval as a string (e.g. "1m0s").
type statusResponse struct {
	Status
	PollInterval string `json:"poll_interval" yaml:"poll_interval"`
}

// responseToStatus converts an API response to a Status.
func responseToStatus(resp *statusResponse) (*Status, error) {
	st := resp.Status
	if resp.PollInterval != "" {
		d, err := time.ParseDuration(resp.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid poll_interval %q: %w", resp.PollInterval, err)
		}
		st.PollInterval = d
	}
	return &st, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error" yaml:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
