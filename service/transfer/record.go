package transfer

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultExplorerBaseURL is the public block explorer used for per-record links.
const DefaultExplorerBaseURL = "https://etherscan.io"

// Record is one ERC-20 transfer event as reported by the explorer API.
// Every field is kept exactly as received; derived values are computed on demand.
type Record struct {
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`        // raw integer amount in base units
	TokenDecimal string `json:"tokenDecimal"` // power of ten separating base units from whole tokens
	TokenSymbol  string `json:"tokenSymbol"`
	TokenName    string `json:"tokenName,omitempty"`
	TimeStamp    string `json:"timeStamp"` // unix seconds
	BlockNumber  string `json:"blockNumber,omitempty"`
}

// Decimals returns the parsed token decimal count, or 0 if it is not a
// valid ERC-20 decimals value (0..255).
func (r Record) Decimals() int32 {
	d, err := strconv.ParseUint(strings.TrimSpace(r.TokenDecimal), 10, 8)
	if err != nil {
		return 0
	}
	return int32(d)
}

// Amount returns Value scaled by 10^-decimals.
// An unparseable value yields zero.
func (r Record) Amount() decimal.Decimal {
	raw, err := decimal.NewFromString(strings.TrimSpace(r.Value))
	if err != nil {
		return decimal.Zero
	}
	return raw.Shift(-r.Decimals())
}

// AmountFloat is Amount as a float64, used for statistics and sorting.
func (r Record) AmountFloat() float64 {
	return r.Amount().InexactFloat64()
}

// Unix returns the parsed timestamp in seconds, or 0 if it cannot be parsed.
func (r Record) Unix() int64 {
	ts, err := strconv.ParseInt(strings.TrimSpace(r.TimeStamp), 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// Time returns the transfer time in UTC.
func (r Record) Time() time.Time {
	return time.Unix(r.Unix(), 0).UTC()
}

// TxURL links to the transaction detail page on the explorer.
func (r Record) TxURL(base string) string {
	return strings.TrimRight(base, "/") + "/tx/" + r.Hash
}

// AddressURL links to an address detail page on the explorer.
func AddressURL(base, address string) string {
	return strings.TrimRight(base, "/") + "/address/" + address
}

// Shorten renders s as its first head and last tail characters joined by "...".
// Strings too short to benefit are returned unchanged.
func Shorten(s string, head, tail int) string {
	if head < 0 || tail < 0 || len(s) <= head+tail+3 {
		return s
	}
	return s[:head] + "..." + s[len(s)-tail:]
}

// TotalVolume sums the derived amounts of all records.
func TotalVolume(records []Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount())
	}
	return total
}
