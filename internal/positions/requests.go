package positions

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-tracker/internal/costbasis"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

// PurchaseRequest records a buy of Symbol inside PortfolioID
type PurchaseRequest struct {
	PortfolioID     int             `json:"portfolio_id"`
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	TransactionDate time.Time       `json:"transaction_date"`
	Source          string          `json:"-"`
	ExternalID      string          `json:"-"`
}

// SaleRequest records a sell. The position is addressed by PositionID when
// set, otherwise by (PortfolioID, Symbol).
type SaleRequest struct {
	PositionID      int             `json:"position_id"`
	PortfolioID     int             `json:"portfolio_id"`
	Symbol          string          `json:"symbol"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	TransactionDate time.Time       `json:"transaction_date"`
	Source          string          `json:"-"`
	ExternalID      string          `json:"-"`
}

// EditRequest sets a position's quantity directly. Price is only needed
// when the quantity goes up.
type EditRequest struct {
	PositionID      int              `json:"position_id"`
	NewQuantity     decimal.Decimal  `json:"quantity"`
	NewPrice        *decimal.Decimal `json:"price,omitempty"`
	TransactionDate time.Time        `json:"transaction_date"`
}

// Result is the outcome of a committed mutation
type Result struct {
	Outcome     models.MutationKind `json:"outcome"`
	Position    *models.Position    `json:"position"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Impact      *costbasis.Impact   `json:"impact,omitempty"`
}

// PositionView is a position with its valuation at a caller-supplied price
type PositionView struct {
	Position *models.Position          `json:"position"`
	Metrics  costbasis.PositionMetrics `json:"metrics"`
}

// Reconciliation is the result of checking a position against its ledger
type Reconciliation struct {
	Position *models.Position `json:"position"`
	Drift    costbasis.Drift  `json:"drift"`
	Repaired bool             `json:"repaired"`
}
