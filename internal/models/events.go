package models

import "time"

// Position event type constants
const (
	EventPositionCreated  = "POSITION_CREATED"
	EventPositionMerged   = "POSITION_MERGED"
	EventPositionReduced  = "POSITION_REDUCED"
	EventPositionUpdated  = "POSITION_UPDATED"
	EventPositionDeleted  = "POSITION_DELETED"
	EventPositionRepaired = "POSITION_REPAIRED"
	EventPositionDrift    = "POSITION_DRIFT"
)

// PositionEvent is published on the change feed after a position changes
type PositionEvent struct {
	EventType   string       `json:"event_type"`
	OwnerID     string       `json:"owner_id"`
	PositionID  int          `json:"position_id"`
	PortfolioID int          `json:"portfolio_id"`
	Symbol      string       `json:"symbol"`
	Position    *Position    `json:"position,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// EventTypeForMutation maps a mutation outcome to its change-feed event type.
func EventTypeForMutation(kind MutationKind) string {
	switch kind {
	case MutationCreated:
		return EventPositionCreated
	case MutationMerged:
		return EventPositionMerged
	case MutationReduced:
		return EventPositionReduced
	case MutationRepaired:
		return EventPositionRepaired
	default:
		return EventPositionUpdated
	}
}

// TradeEvent represents a Kafka message announcing an executed broker trade
type TradeEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Data      TradeEventData `json:"data"`
}

// TradeEventData contains the trade details
type TradeEventData struct {
	OrderID      string  `json:"order_id"`
	UserID       string  `json:"user_id"`
	PortfolioID  int     `json:"portfolio_id"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name,omitempty"`
	Side         string  `json:"side"`
	Quantity     string  `json:"quantity"`
	AveragePrice string  `json:"average_price"`
	ExecutedAt   *string `json:"executed_at,omitempty"`
}
