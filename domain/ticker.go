package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TickerSnapshot struct {
	ProductID   string          `json:"product_id"`
	Time        time.Time       `json:"time"`
	Price       decimal.Decimal `json:"price"`
	BestBid     decimal.Decimal `json:"best_bid"`
	BestBidSize decimal.Decimal `json:"best_bid_size"`
	BestAsk     decimal.Decimal `json:"best_ask"`
	BestAskSize decimal.Decimal `json:"best_ask_size"`
	Volume24h   decimal.Decimal `json:"volume_24h"`
}

// TickerStore holds the latest snapshot only. There is no merge, every tick replaces it.
type TickerStore struct {
	snapshot *TickerSnapshot
}

func NewTickerStore() *TickerStore {
	return &TickerStore{}
}

func (s *TickerStore) Set(snapshot TickerSnapshot) {
	s.snapshot = &snapshot
}

// Get returns a copy of the latest snapshot and false when nothing was received yet.
func (s *TickerStore) Get() (TickerSnapshot, bool) {
	if s.snapshot == nil {
		return TickerSnapshot{}, false
	}
	return *s.snapshot, true
}

func (s *TickerStore) Reset() {
	s.snapshot = nil
}
