package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decimal places kept for each kind of stored number
const (
	QuantityPlaces    int32 = 8
	AverageCostPlaces int32 = 8
	MoneyPlaces       int32 = 2
)

// Position represents a holding of one symbol inside one portfolio
type Position struct {
	ID            int                 `json:"id"`
	PortfolioID   int                 `json:"portfolio_id"`
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	Quantity      decimal.Decimal     `json:"quantity"`
	AverageCost   decimal.Decimal     `json:"average_cost"`
	TotalInvested decimal.Decimal     `json:"total_invested"`
	CurrentPrice  decimal.NullDecimal `json:"current_price"`
	Version       int                 `json:"version"`
	ArchivedAt    *time.Time          `json:"archived_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// PositionRef identifies a live position and the user that owns it
type PositionRef struct {
	ID      int
	OwnerID string
}

// RoundQuantity rounds a share quantity to the stored precision.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityPlaces)
}

// RoundAverageCost rounds a per-unit cost to the stored precision.
func RoundAverageCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(AverageCostPlaces)
}

// RoundMoney rounds a monetary amount to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
