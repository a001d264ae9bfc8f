// Package costbasis maintains weighted-average cost bases for positions.
//
// Average cost is recomputed on every purchase and left untouched by sales,
// so the realized gain of a sale is soldQty × (salePrice − averageCost) and
// the surviving shares keep their basis. Quantities and average costs are
// kept to 8 decimal places, money totals to 2; the two are rounded
// independently from the same unrounded total and may differ by a fraction
// of a cent.
package costbasis

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

var hundred = decimal.NewFromInt(100)

// BuyResult is the cost basis after adding shares to a holding
type BuyResult struct {
	AverageCost   decimal.Decimal `json:"average_cost"`
	TotalInvested decimal.Decimal `json:"total_invested"`
}

// SaleResult is the cost basis of the shares left after a sale
type SaleResult struct {
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	AverageCost       decimal.Decimal `json:"average_cost"`
	TotalInvested     decimal.Decimal `json:"total_invested"`
}

// PositionMetrics holds valuation figures. A nil field means the value is
// unknown, which is different from zero.
type PositionMetrics struct {
	CurrentValue                 *decimal.Decimal `json:"current_value,omitempty"`
	UnrealizedGainLoss           *decimal.Decimal `json:"unrealized_gain_loss,omitempty"`
	UnrealizedGainLossPercentage *decimal.Decimal `json:"unrealized_gain_loss_percentage,omitempty"`
}

// Known reports whether metrics could be computed.
func (m PositionMetrics) Known() bool {
	return m.CurrentValue != nil
}

// Impact describes what a direct quantity edit does to a position
type Impact struct {
	NewQuantity      decimal.Decimal `json:"new_quantity"`
	NewAverageCost   decimal.Decimal `json:"new_average_cost"`
	NewTotalInvested decimal.Decimal `json:"new_total_invested"`
	QuantityChange   decimal.Decimal `json:"quantity_change"`
	ValueChange      decimal.Decimal `json:"value_change"`
}

// AverageCostOnBuy folds a purchase of addedQty units at addedPrice into a
// holding of existingQty units at existingAvgCost.
func AverageCostOnBuy(existingQty, existingAvgCost, addedQty, addedPrice decimal.Decimal) (BuyResult, error) {
	if existingQty.IsNegative() {
		return BuyResult{}, fmt.Errorf("%w: existing quantity %s is negative", ErrInvalidQuantity, existingQty)
	}
	if existingAvgCost.IsNegative() {
		return BuyResult{}, fmt.Errorf("%w: existing average cost %s is negative", ErrInvalidPrice, existingAvgCost)
	}
	if !addedQty.IsPositive() {
		return BuyResult{}, fmt.Errorf("%w: purchase quantity must be positive, got %s", ErrInvalidQuantity, addedQty)
	}
	if !addedPrice.IsPositive() {
		return BuyResult{}, fmt.Errorf("%w: purchase price must be positive, got %s", ErrInvalidPrice, addedPrice)
	}

	totalValue := existingQty.Mul(existingAvgCost).Add(addedQty.Mul(addedPrice))
	totalQty := existingQty.Add(addedQty)

	return BuyResult{
		AverageCost:   models.RoundAverageCost(totalValue.Div(totalQty)),
		TotalInvested: models.RoundMoney(totalValue),
	}, nil
}

// CostBasisAfterSale removes soldQty units from a holding. The average cost
// of the remaining units does not change.
func CostBasisAfterSale(currentQty, currentAvgCost, soldQty decimal.Decimal) (SaleResult, error) {
	if !currentQty.IsPositive() {
		return SaleResult{}, fmt.Errorf("%w: nothing to sell, held quantity is %s", ErrInvalidQuantity, currentQty)
	}
	if !soldQty.IsPositive() {
		return SaleResult{}, fmt.Errorf("%w: sale quantity must be positive, got %s", ErrInvalidQuantity, soldQty)
	}
	if soldQty.GreaterThan(currentQty) {
		return SaleResult{}, fmt.Errorf("%w: cannot sell %s, only %s held", ErrInvalidQuantity, soldQty, currentQty)
	}
	if !currentAvgCost.IsPositive() {
		return SaleResult{}, fmt.Errorf("%w: average cost must be positive, got %s", ErrInvalidPrice, currentAvgCost)
	}

	remaining := models.RoundQuantity(currentQty.Sub(soldQty))
	return SaleResult{
		RemainingQuantity: remaining,
		AverageCost:       currentAvgCost,
		TotalInvested:     models.RoundMoney(remaining.Mul(currentAvgCost)),
	}, nil
}

// Metrics values a position at currentPrice. A nil or non-positive price
// yields empty metrics rather than zeros.
func Metrics(p *models.Position, currentPrice *decimal.Decimal) PositionMetrics {
	if p == nil || currentPrice == nil || !currentPrice.IsPositive() {
		return PositionMetrics{}
	}

	value := p.Quantity.Mul(*currentPrice)
	gain := value.Sub(p.TotalInvested)
	pct := decimal.Zero
	if p.TotalInvested.IsPositive() {
		pct = gain.Div(p.TotalInvested).Mul(hundred)
	}

	value = models.RoundMoney(value)
	gain = models.RoundMoney(gain)
	pct = pct.Round(2)
	return PositionMetrics{
		CurrentValue:                 &value,
		UnrealizedGainLoss:           &gain,
		UnrealizedGainLossPercentage: &pct,
	}
}

// UpdateImpact treats a direct edit of the held quantity as an implicit buy
// (needs newPrice) or an implicit sell (valued at the current average cost).
func UpdateImpact(p *models.Position, newQuantity decimal.Decimal, newPrice *decimal.Decimal) (Impact, error) {
	if newQuantity.IsNegative() {
		return Impact{}, fmt.Errorf("%w: quantity cannot be negative, got %s", ErrInvalidQuantity, newQuantity)
	}

	change := newQuantity.Sub(p.Quantity)
	switch {
	case change.IsZero():
		return Impact{
			NewQuantity:      p.Quantity,
			NewAverageCost:   p.AverageCost,
			NewTotalInvested: p.TotalInvested,
			QuantityChange:   decimal.Zero,
			ValueChange:      decimal.Zero,
		}, nil

	case change.IsPositive():
		if newPrice == nil || !newPrice.IsPositive() {
			return Impact{}, fmt.Errorf("%w: a price is required to add %s units", ErrMissingPrice, change)
		}
		buy, err := AverageCostOnBuy(p.Quantity, p.AverageCost, change, *newPrice)
		if err != nil {
			return Impact{}, err
		}
		return Impact{
			NewQuantity:      models.RoundQuantity(newQuantity),
			NewAverageCost:   buy.AverageCost,
			NewTotalInvested: buy.TotalInvested,
			QuantityChange:   change,
			ValueChange:      models.RoundMoney(change.Mul(*newPrice)),
		}, nil

	default:
		sold := change.Neg()
		sale, err := CostBasisAfterSale(p.Quantity, p.AverageCost, sold)
		if err != nil {
			return Impact{}, err
		}
		return Impact{
			NewQuantity:      sale.RemainingQuantity,
			NewAverageCost:   sale.AverageCost,
			NewTotalInvested: sale.TotalInvested,
			QuantityChange:   change,
			ValueChange:      models.RoundMoney(sold.Mul(p.AverageCost)).Neg(),
		}, nil
	}
}
