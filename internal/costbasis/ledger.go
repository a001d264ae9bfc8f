package costbasis

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

// LedgerState is the (quantity, average cost, total invested) triple derived
// from a transaction history
type LedgerState struct {
	Quantity      decimal.Decimal `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	TotalInvested decimal.Decimal `json:"total_invested"`
}

// ReplayTransactions rebuilds a position's cost basis from its ledger. The
// input order does not matter: transactions are replayed by ascending
// transaction date and equal dates keep their input order.
func ReplayTransactions(txs []*models.Transaction) (LedgerState, error) {
	ordered := make([]*models.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TransactionDate.Before(ordered[j].TransactionDate)
	})

	totalQty := decimal.Zero
	totalValue := decimal.Zero

	for _, tx := range ordered {
		if !tx.Quantity.IsPositive() {
			return LedgerState{}, fmt.Errorf("%w: transaction %d has quantity %s", ErrInvalidQuantity, tx.ID, tx.Quantity)
		}
		if !tx.Price.IsPositive() {
			return LedgerState{}, fmt.Errorf("%w: transaction %d has price %s", ErrInvalidPrice, tx.ID, tx.Price)
		}

		switch tx.Type {
		case models.TransactionTypeBuy:
			totalQty = totalQty.Add(tx.Quantity)
			totalValue = totalValue.Add(tx.Amount())

		case models.TransactionTypeSell:
			if tx.Quantity.GreaterThan(totalQty) {
				return LedgerState{}, fmt.Errorf("%w: transaction %d sells %s with %s held",
					ErrOversell, tx.ID, tx.Quantity, totalQty)
			}
			avgAtSale := decimal.Zero
			if totalQty.IsPositive() {
				avgAtSale = totalValue.Div(totalQty)
			}
			totalValue = totalValue.Sub(tx.Quantity.Mul(avgAtSale))
			totalQty = totalQty.Sub(tx.Quantity)

		default:
			return LedgerState{}, fmt.Errorf("unknown transaction type %q on transaction %d", tx.Type, tx.ID)
		}
	}

	avg := decimal.Zero
	if totalQty.IsPositive() {
		avg = totalValue.Div(totalQty)
	}

	return LedgerState{
		Quantity:      models.RoundQuantity(totalQty),
		AverageCost:   models.RoundAverageCost(avg),
		TotalInvested: models.RoundMoney(totalValue),
	}, nil
}

// Tolerance bounds the drift accepted between a stored position and its ledger
type Tolerance struct {
	Quantity      decimal.Decimal
	AverageCost   decimal.Decimal
	TotalInvested decimal.Decimal
}

// DefaultTolerance absorbs the independent 8/2 decimal place rounding.
var DefaultTolerance = Tolerance{
	Quantity:      decimal.New(1, -8),
	AverageCost:   decimal.New(1, -4),
	TotalInvested: decimal.New(1, -2),
}

// Drift compares a stored position against its replayed ledger
type Drift struct {
	Ledger             LedgerState     `json:"ledger"`
	QuantityDelta      decimal.Decimal `json:"quantity_delta"`
	AverageCostDelta   decimal.Decimal `json:"average_cost_delta"`
	TotalInvestedDelta decimal.Decimal `json:"total_invested_delta"`
	InSync             bool            `json:"in_sync"`
}

// Compare reports how far p has drifted from ledger. Deltas are stored minus
// ledger. A position whose ledger is empty has no basis to compare the
// average cost against, so only quantity and total invested are checked.
func Compare(p *models.Position, ledger LedgerState, tol Tolerance) Drift {
	d := Drift{
		Ledger:             ledger,
		QuantityDelta:      p.Quantity.Sub(ledger.Quantity),
		AverageCostDelta:   p.AverageCost.Sub(ledger.AverageCost),
		TotalInvestedDelta: p.TotalInvested.Sub(ledger.TotalInvested),
	}

	d.InSync = d.QuantityDelta.Abs().LessThanOrEqual(tol.Quantity) &&
		d.TotalInvestedDelta.Abs().LessThanOrEqual(tol.TotalInvested)
	if ledger.Quantity.IsPositive() {
		d.InSync = d.InSync && d.AverageCostDelta.Abs().LessThanOrEqual(tol.AverageCost)
	}
	return d
}
