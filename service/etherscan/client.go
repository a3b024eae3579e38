package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/signwatch/service/metrics"
	"github.com/brojonat/signwatch/service/transfer"
)

const (
	// DefaultBaseURL is the Etherscan v1 API endpoint.
	DefaultBaseURL = "https://api.etherscan.io/api"

	actionTokenTx = "tokentx"
	statusOK      = "1"
	statusNotOK   = "0"

	// Etherscan error bodies are small; anything past this is not worth reading.
	maxErrorBodySize = 4 << 10
)

// Doer is the subset of *http.Client used by Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client reads ERC-20 transfer history from an Etherscan-compatible API.
// The API key is bound at construction and never logged.
type Client struct {
	doer    Doer
	baseURL string
	apiKey  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewClient creates a new Etherscan client.
// If doer is nil, http.DefaultClient is used. If m is nil, no metrics are recorded.
func NewClient(doer Doer, baseURL, apiKey string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		doer:    doer,
		baseURL: baseURL,
		apiKey:  apiKey,
		metrics: m,
		logger:  logger,
	}
}

// envelope is the common Etherscan response shape. Result is either an array
// of records or, on error, a string; it is decoded lazily.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// FetchTokenTransfers returns the newest pageSize transfers of contractAddress,
// newest first. Any failure is returned as a *FetchError.
func (c *Client) FetchTokenTransfers(ctx context.Context, contractAddress string, pageSize int) ([]transfer.Record, error) {
	start := time.Now()
	records, err := c.fetchTokenTransfers(ctx, contractAddress, pageSize)

	outcome := "ok"
	if fe, ok := err.(*FetchError); ok {
		outcome = string(fe.Kind)
	}
	c.metrics.RecordEtherscanCall(actionTokenTx, outcome, time.Since(start).Seconds())
	if err == nil {
		c.metrics.RecordRecordsFetched(len(records))
	}

	return records, err
}

func (c *Client) fetchTokenTransfers(ctx context.Context, contractAddress string, pageSize int) ([]transfer.Record, error) {
	reqURL, err := c.tokenTxURL(contractAddress, pageSize)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Message: "failed to build request URL", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	c.logger.DebugContext(ctx, "fetching token transfers",
		"contract", contractAddress,
		"page_size", pageSize,
	)

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Message: "error fetching transactions", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &FetchError{
			Kind:    KindTransport,
			Message: "error fetching transactions",
			Err:     fmt.Errorf("unexpected HTTP status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &FetchError{Kind: KindTransport, Message: "error fetching transactions", Err: fmt.Errorf("decode response: %w", err)}
	}

	switch env.Status {
	case statusOK:
		var records []transfer.Record
		if err := json.Unmarshal(env.Result, &records); err != nil || !isJSONArray(env.Result) {
			c.logger.WarnContext(ctx, "unexpected API response format",
				"status", env.Status,
				"message", env.Message,
			)
			return nil, &FetchError{
				Kind:    KindMalformed,
				Message: "unexpected API response format or empty result",
			}
		}
		if records == nil {
			records = []transfer.Record{}
		}
		return records, nil

	case statusNotOK:
		detail := apiErrorDetail(env)
		c.logger.WarnContext(ctx, "etherscan reported an error",
			"message", env.Message,
			"detail", detail,
		)
		return nil, &FetchError{Kind: KindAPI, Message: "API error: " + detail}

	default:
		return nil, &FetchError{
			Kind:    KindMalformed,
			Message: "unexpected API response format or empty result",
		}
	}
}

func (c *Client) tokenTxURL(contractAddress string, pageSize int) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("module", "account")
	q.Set("action", actionTokenTx)
	q.Set("contractaddress", contractAddress)
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(pageSize))
	q.Set("sort", "desc")
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// apiErrorDetail picks the most useful text from a status "0" response.
// Etherscan puts the reason in result (a string) and a generic "NOTOK" in message.
func apiErrorDetail(env envelope) string {
	var resultText string
	if err := json.Unmarshal(env.Result, &resultText); err == nil && resultText != "" {
		if env.Message != "" && env.Message != "NOTOK" {
			return env.Message + ": " + resultText
		}
		return resultText
	}
	if env.Message != "" {
		return env.Message
	}
	return `Unknown "NOTOK" error. Please check your API key and Etherscan status.`
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "[")
}
