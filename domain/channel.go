package domain

import "fmt"

type Channel string

const (
	Channel_Ticker      Channel = "ticker"
	Channel_Level2Batch Channel = "level2_batch"
)

// DataMessageType is the inbound message type carried on the channel. Other types are ignored.
func (c Channel) DataMessageType() string {
	switch c {
	case Channel_Ticker:
		return "ticker"
	case Channel_Level2Batch:
		return "l2update"
	}
	return ""
}

func (c Channel) Validate() error {
	if c.DataMessageType() == "" {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidSubscription, string(c))
	}
	return nil
}

// Subscription is a typed stream bound to one feed connection.
// Err receives at most one terminal error.
type Subscription[T any] struct {
	Stream      <-chan T
	Err         <-chan error
	Unsubscribe func()
	Topic       string
}
