package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultDepth  = 15
	spreadDecimal = 4
)

var hundred = decimal.NewFromInt(100)

// ViewParams are projection parameters. They never change the stored book.
type ViewParams struct {
	Bucket decimal.Decimal
	Depth  int
}

func NewViewParams(bucket decimal.Decimal, depth int) (ViewParams, error) {
	if bucket.IsNegative() {
		return ViewParams{}, fmt.Errorf("%w: aggregation bucket must not be negative, got %s", ErrInvalidViewParams, bucket)
	}
	if depth <= 0 {
		return ViewParams{}, fmt.Errorf("%w: depth must be positive, got %d", ErrInvalidViewParams, depth)
	}
	return ViewParams{Bucket: bucket, Depth: depth}, nil
}

// ParseViewParams accepts the aggregation bucket as a decimal string, empty meaning no aggregation.
func ParseViewParams(bucket string, depth int) (ViewParams, error) {
	if bucket == "" {
		return NewViewParams(decimal.Zero, depth)
	}
	b, err := decimal.NewFromString(bucket)
	if err != nil {
		return ViewParams{}, fmt.Errorf("%w: %v", ErrInvalidViewParams, &ParseError{Field: "aggregation", Value: bucket, Err: err})
	}
	return NewViewParams(b, depth)
}

func DefaultViewParams() ViewParams {
	return ViewParams{Bucket: decimal.Zero, Depth: DefaultDepth}
}

// OrderBookView is the display-ready state of one side pair.
type OrderBookView struct {
	ProductID string
	Bids      []PriceLevel
	Asks      []PriceLevel
	// Spread in percent of the mid price. Invalid until both sides have a level.
	Spread    decimal.NullDecimal
	MaxSize   decimal.Decimal
	Params    ViewParams
	UpdatedAt time.Time

	Stale bool
	Err   string
}

// SpreadText renders the spread the way the depth table shows it.
func (v *OrderBookView) SpreadText() string {
	if !v.Spread.Valid {
		return "calculating"
	}
	return v.Spread.Decimal.StringFixed(spreadDecimal) + "%"
}

// ProjectView sorts and truncates the book to params.Depth and derives spread and max size.
func ProjectView(ob *OrderBook, params ViewParams) *OrderBookView {
	view := &OrderBookView{
		Bids:      ob.Levels(Side_Bid, params.Depth),
		Asks:      ob.Levels(Side_Ask, params.Depth),
		Params:    params,
		UpdatedAt: time.Now(),
	}
	if ob.Symbol != nil {
		view.ProductID = ob.Symbol.ProductID()
	}

	view.Spread = Spread(view.Bids, view.Asks)
	view.MaxSize = maxSize(view.Bids, view.Asks)

	return view
}

// Spread expects bids best first and asks best first.
func Spread(bids, asks []PriceLevel) decimal.NullDecimal {
	if len(bids) == 0 || len(asks) == 0 {
		return decimal.NullDecimal{}
	}

	bestBid := bids[0].Price
	bestAsk := asks[0].Price
	mid := bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return decimal.NullDecimal{}
	}

	spread := bestAsk.Sub(bestBid).Div(mid).Mul(hundred).Round(spreadDecimal)
	return decimal.NullDecimal{Decimal: spread, Valid: true}
}

func maxSize(sides ...[]PriceLevel) decimal.Decimal {
	max := decimal.Zero
	for _, levels := range sides {
		for _, level := range levels {
			if level.Size.GreaterThan(max) {
				max = level.Size
			}
		}
	}
	return max
}
