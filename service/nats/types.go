package nats

import (
	"time"

	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/transfer"
)

// NoveltyEvent is published when a fetch brings in a new lead transaction.
// It goes to the subject "transfers.{contract_address}".
type NoveltyEvent struct {
	ContractAddress string `json:"contract_address"`

	// The new newest transfer
	LeadHash    string    `json:"lead_hash"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Amount      string    `json:"amount"` // derived decimal amount
	TokenSymbol string    `json:"token_symbol"`
	BlockTime   time.Time `json:"block_time"`

	// Store state after the fetch
	RecordCount   int    `json:"record_count"`
	TotalVolume   string `json:"total_volume"`
	Notifications int    `json:"notifications"`

	FetchedAt   time.Time `json:"fetched_at"`
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject the event is published to.
func (e *NoveltyEvent) Subject() string {
	return SubjectPrefix + e.ContractAddress
}

// FromSnapshot builds the event for a novel fetch. It returns nil when the
// snapshot holds no records.
func FromSnapshot(contractAddress string, snap dashboard.Snapshot) *NoveltyEvent {
	if len(snap.Records) == 0 {
		return nil
	}
	lead := snap.Records[0]

	return &NoveltyEvent{
		ContractAddress: contractAddress,
		LeadHash:        lead.Hash,
		FromAddress:     lead.From,
		ToAddress:       lead.To,
		Amount:          lead.Amount().String(),
		TokenSymbol:     lead.TokenSymbol,
		BlockTime:       lead.Time(),
		RecordCount:     len(snap.Records),
		TotalVolume:     snap.TotalVolume.String(),
		Notifications:   snap.Notifications,
		FetchedAt:       snap.LastUpdate.UTC(),
		PublishedAt:     time.Now().UTC(),
	}
}

// LeadRecord returns the event's transfer in record form.
func (e *NoveltyEvent) LeadRecord() transfer.Record {
	return transfer.Record{
		Hash:        e.LeadHash,
		From:        e.FromAddress,
		To:          e.ToAddress,
		TokenSymbol: e.TokenSymbol,
	}
}
