package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction type constants
const (
	TransactionTypeBuy  = "BUY"
	TransactionTypeSell = "SELL"
)

// Transaction is an immutable ledger entry for one buy or sell against a position
type Transaction struct {
	ID              int             `json:"id"`
	PositionID      int             `json:"position_id"`
	Type            string          `json:"type"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	TransactionDate time.Time       `json:"transaction_date"`
	Source          string          `json:"source,omitempty"`
	ExternalID      string          `json:"external_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Amount returns quantity × price for the transaction.
func (t *Transaction) Amount() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}
