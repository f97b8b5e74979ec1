package domain

import (
	"fmt"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"
)

type Side string

const (
	Side_Bid Side = "bid"
	Side_Ask Side = "ask"
)

// ParseSide maps the wire side of an l2update change to a book side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return Side_Bid, nil
	case "sell":
		return Side_Ask, nil
	}
	return "", &ParseError{Field: "side", Value: s}
}

type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// PriceChange is a raw diff tuple as it arrived on the feed. Price and Size are parsed on apply.
type PriceChange struct {
	Side  Side
	Price string
	Size  string
}

// OrderBook keeps the bid and ask sides as price -> size maps sorted by price.
// It is not safe for concurrent use, the owner is its single writer.
type OrderBook struct {
	Symbol         *MarketSymbol
	LastUpdateTime time.Time

	bids *treemap.Map
	asks *treemap.Map
}

func NewOrderBook(symbol *MarketSymbol) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids:   treemap.NewWith(decimalComparator),
		asks:   treemap.NewWith(decimalComparator),
	}
}

// ApplyBatch applies the changes in order. A change that fails to parse is dropped
// and reported, the rest of the batch is still applied.
func (ob *OrderBook) ApplyBatch(changes []PriceChange, bucket decimal.Decimal) (int, []error) {
	var dropped []error
	applied := 0

	for _, change := range changes {
		if err := ob.applyChange(change, bucket); err != nil {
			dropped = append(dropped, err)
			continue
		}
		applied++
	}

	if applied > 0 {
		ob.LastUpdateTime = time.Now()
	}

	return applied, dropped
}

func (ob *OrderBook) applyChange(change PriceChange, bucket decimal.Decimal) error {
	depth, err := ob.side(change.Side)
	if err != nil {
		return err
	}

	price, err := parsePositive("price", change.Price, false)
	if err != nil {
		return err
	}
	size, err := parsePositive("size", change.Size, true)
	if err != nil {
		return err
	}

	price = BucketPrice(price, bucket)
	existing, found := depth.Get(price)

	if size.IsZero() {
		if found {
			depth.Remove(price)
		}
		return nil
	}

	if found {
		// a coarser bucket collects several source levels, so contributions add up
		depth.Put(price, existing.(decimal.Decimal).Add(size))
		return nil
	}

	depth.Put(price, size)
	return nil
}

// BucketPrice rounds price to the nearest multiple of bucket. A zero bucket disables aggregation.
func BucketPrice(price decimal.Decimal, bucket decimal.Decimal) decimal.Decimal {
	if !bucket.IsPositive() {
		return price
	}
	return price.Div(bucket).Round(0).Mul(bucket)
}

// Levels returns up to limit levels of the side, best price first. limit <= 0 means all.
func (ob *OrderBook) Levels(side Side, limit int) []PriceLevel {
	depth, err := ob.side(side)
	if err != nil {
		return nil
	}

	n := depth.Size()
	if limit > 0 && n > limit {
		n = limit
	}
	result := make([]PriceLevel, 0, n)

	it := depth.Iterator()
	next := it.Next
	if side == Side_Bid {
		it.End()
		next = it.Prev
	}

	for len(result) < n && next() {
		result = append(result, PriceLevel{
			Price: it.Key().(decimal.Decimal),
			Size:  it.Value().(decimal.Decimal),
		})
	}

	return result
}

// Level returns the stored size at an already bucketed price.
func (ob *OrderBook) Level(side Side, price decimal.Decimal) (decimal.Decimal, bool) {
	depth, err := ob.side(side)
	if err != nil {
		return decimal.Zero, false
	}
	size, found := depth.Get(price)
	if !found {
		return decimal.Zero, false
	}
	return size.(decimal.Decimal), true
}

func (ob *OrderBook) Len(side Side) int {
	depth, err := ob.side(side)
	if err != nil {
		return 0
	}
	return depth.Size()
}

func (ob *OrderBook) Clear() {
	ob.bids.Clear()
	ob.asks.Clear()
	ob.LastUpdateTime = time.Time{}
}

func (ob *OrderBook) side(side Side) (*treemap.Map, error) {
	switch side {
	case Side_Bid:
		return ob.bids, nil
	case Side_Ask:
		return ob.asks, nil
	}
	return nil, &ParseError{Field: "side", Value: string(side)}
}

func parsePositive(field string, value string, allowZero bool) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &ParseError{Field: field, Value: value, Err: err}
	}
	if d.IsNegative() || (!allowZero && d.IsZero()) {
		return decimal.Zero, &ParseError{Field: field, Value: value, Err: fmt.Errorf("out of range")}
	}
	return d, nil
}

func decimalComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}
