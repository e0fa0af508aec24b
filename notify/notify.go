// Package notify fans tick and lifecycle events out to external listeners
// (websocket clients, tests). Publishing never blocks the settlement engine:
// a subscriber that falls behind loses events rather than stalling ticks.
package notify

import (
	"time"

	"github.com/marketsim/mt5sim/pkg/id"
)

type EventType string

const (
	EventPriceUpdate    EventType = "price_update"
	EventTradeCompleted EventType = "trade_completed"
	EventTradeStopped   EventType = "trade_stopped"
	EventBiasApplied    EventType = "trade_bias_applied"
	EventAccountReset   EventType = "account_reset"
	EventDeposit        EventType = "deposit"
	EventError          EventType = "error"
)

// Event is one notification for one account. Events for a single account are
// published in tick order; no ordering is guaranteed across accounts.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Account string    `json:"account_type"`
	TradeID string    `json:"trade_id,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Time    time.Time `json:"timestamp"`
	Data    any       `json:"data,omitempty"`
}

// NewEvent stamps an event with a time-sortable ID and the publish time.
func NewEvent(typ EventType, account string) Event {
	return Event{
		ID:      id.NewEvent(),
		Type:    typ,
		Account: account,
		Time:    time.Now().UTC(),
	}
}

// Notifier is the engine-facing publish function.
type Notifier interface {
	Publish(Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(Event) {}
