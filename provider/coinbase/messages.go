package coinbase

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spooky-finn/coinbase-depth-bridge/domain"
)

const (
	MessageType_Subscribe   = "subscribe"
	MessageType_Unsubscribe = "unsubscribe"
)

type ControlMessage struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

type envelope struct {
	Type string `json:"type"`
}

type TickerMessage struct {
	Type        string `json:"type"`
	ProductID   string `json:"product_id"`
	Price       string `json:"price"`
	BestBid     string `json:"best_bid"`
	BestBidSize string `json:"best_bid_size"`
	BestAsk     string `json:"best_ask"`
	BestAskSize string `json:"best_ask_size"`
	Volume24h   string `json:"volume_24h"`
	Time        string `json:"time"`
}

type L2UpdateMessage struct {
	Type      string     `json:"type"`
	ProductID string     `json:"product_id"`
	Time      string     `json:"time"`
	Changes   [][]string `json:"changes"`
}

// DecodeTicker parses a raw ticker message. A malformed numeric field fails the whole message.
func DecodeTicker(raw []byte) (domain.TickerSnapshot, error) {
	var msg TickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.TickerSnapshot{}, &domain.ParseError{Field: "ticker", Value: string(raw), Err: err}
	}

	snapshot := domain.TickerSnapshot{ProductID: msg.ProductID}
	fields := []struct {
		name     string
		value    string
		target   *decimal.Decimal
		optional bool
	}{
		{"price", msg.Price, &snapshot.Price, true},
		{"best_bid", msg.BestBid, &snapshot.BestBid, false},
		{"best_bid_size", msg.BestBidSize, &snapshot.BestBidSize, false},
		{"best_ask", msg.BestAsk, &snapshot.BestAsk, false},
		{"best_ask_size", msg.BestAskSize, &snapshot.BestAskSize, false},
		{"volume_24h", msg.Volume24h, &snapshot.Volume24h, false},
	}

	for _, f := range fields {
		if f.value == "" && f.optional {
			continue
		}
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return domain.TickerSnapshot{}, &domain.ParseError{Field: f.name, Value: f.value, Err: err}
		}
		*f.target = d
	}

	if msg.Time != "" {
		ts, err := time.Parse(time.RFC3339Nano, msg.Time)
		if err != nil {
			return domain.TickerSnapshot{}, &domain.ParseError{Field: "time", Value: msg.Time, Err: err}
		}
		snapshot.Time = ts
	}

	return snapshot, nil
}

// DecodeL2Update returns the well formed changes of an l2update in order, and one error per dropped change.
// Price and size stay raw, the order book parses them.
func DecodeL2Update(raw []byte) ([]domain.PriceChange, []error) {
	var msg L2UpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, []error{&domain.ParseError{Field: "l2update", Value: string(raw), Err: err}}
	}

	changes := make([]domain.PriceChange, 0, len(msg.Changes))
	var dropped []error

	for _, change := range msg.Changes {
		if len(change) != 3 {
			dropped = append(dropped, &domain.ParseError{
				Field: "change",
				Value: fmt.Sprint(change),
				Err:   fmt.Errorf("expected [side, price, size]"),
			})
			continue
		}

		side, err := domain.ParseSide(change[0])
		if err != nil {
			dropped = append(dropped, err)
			continue
		}

		changes = append(changes, domain.PriceChange{Side: side, Price: change[1], Size: change[2]})
	}

	return changes, dropped
}
