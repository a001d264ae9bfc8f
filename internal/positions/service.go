// Package positions turns buy, sell and edit intents into paired position
// and transaction writes.
package positions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-tracker/internal/costbasis"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

// NamePolicy decides what happens to a position's display name when more
// shares are bought under a different name
type NamePolicy string

// Name policies
const (
	NameOverwrite NamePolicy = "overwrite"
	NameKeep      NamePolicy = "keep"
)

// ParseNamePolicy parses a configured name policy. Empty means overwrite.
func ParseNamePolicy(s string) (NamePolicy, error) {
	switch NamePolicy(s) {
	case "", NameOverwrite:
		return NameOverwrite, nil
	case NameKeep:
		return NameKeep, nil
	default:
		return "", fmt.Errorf("unknown name policy: %q", s)
	}
}

// Config tunes the orchestrator
type Config struct {
	NamePolicy NamePolicy
	Tolerance  costbasis.Tolerance
}

// Service is the position mutation orchestrator
type Service struct {
	store     Store
	locker    Locker
	publisher Publisher
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a Service. locker and publisher may be nil.
func NewService(store Store, locker Locker, publisher Publisher, cfg Config, log zerolog.Logger) *Service {
	if locker == nil {
		locker = noopLocker{}
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if cfg.NamePolicy == "" {
		cfg.NamePolicy = NameOverwrite
	}
	if cfg.Tolerance == (costbasis.Tolerance{}) {
		cfg.Tolerance = costbasis.DefaultTolerance
	}
	return &Service{
		store:     store,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With().Str("component", "positions").Logger(),
		now:       time.Now,
	}
}

// RecordPurchase creates the position for (portfolio, symbol) or merges the
// purchase into the existing one.
func (s *Service) RecordPurchase(ctx context.Context, owner string, req PurchaseRequest) (*Result, error) {
	symbol, err := models.NormalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	req.Quantity, req.Price = storedQuantity(req.Quantity), storedPrice(req.Price)
	// Validates quantity and price before anything is read or locked.
	if _, err := costbasis.AverageCostOnBuy(decimal.Zero, decimal.Zero, req.Quantity, req.Price); err != nil {
		return nil, err
	}

	var result *Result
	err = s.withLock(ctx, req.PortfolioID, symbol, func() error {
		existing, err := s.store.FindPosition(ctx, owner, req.PortfolioID, symbol)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to look up position: %w", err)
		}

		if existing == nil {
			result, err = s.createPosition(ctx, owner, symbol, req)
			return err
		}
		result, err = s.mergePurchase(ctx, owner, existing, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, owner, result)
	return result, nil
}

func (s *Service) createPosition(ctx context.Context, owner, symbol string, req PurchaseRequest) (*Result, error) {
	buy, err := costbasis.AverageCostOnBuy(decimal.Zero, decimal.Zero, req.Quantity, req.Price)
	if err != nil {
		return nil, err
	}

	pos := &models.Position{
		PortfolioID:   req.PortfolioID,
		Symbol:        symbol,
		Name:          req.Name,
		Quantity:      models.RoundQuantity(req.Quantity),
		AverageCost:   buy.AverageCost,
		TotalInvested: buy.TotalInvested,
	}
	tx := s.newTransaction(models.TransactionTypeBuy, req.Quantity, req.Price, req.TransactionDate)
	tx.Source, tx.ExternalID = req.Source, req.ExternalID

	m := &models.Mutation{Kind: models.MutationCreated, Position: pos, Transaction: tx}
	if err := s.store.SaveMutation(ctx, owner, m); err != nil {
		return nil, fmt.Errorf("failed to create position %s: %w", symbol, err)
	}
	return &Result{Outcome: m.Kind, Position: pos, Transaction: tx}, nil
}

func (s *Service) mergePurchase(ctx context.Context, owner string, existing *models.Position, req PurchaseRequest) (*Result, error) {
	buy, err := costbasis.AverageCostOnBuy(existing.Quantity, existing.AverageCost, req.Quantity, req.Price)
	if err != nil {
		return nil, err
	}

	pos := *existing
	pos.Quantity = models.RoundQuantity(existing.Quantity.Add(req.Quantity))
	pos.AverageCost = buy.AverageCost
	pos.TotalInvested = buy.TotalInvested
	if s.cfg.NamePolicy == NameOverwrite && req.Name != "" {
		pos.Name = req.Name
	}

	tx := s.newTransaction(models.TransactionTypeBuy, req.Quantity, req.Price, req.TransactionDate)
	tx.Source, tx.ExternalID = req.Source, req.ExternalID

	m := &models.Mutation{Kind: models.MutationMerged, Position: &pos, Transaction: tx}
	if err := s.store.SaveMutation(ctx, owner, m); err != nil {
		return nil, fmt.Errorf("failed to merge purchase into position %d: %w", existing.ID, err)
	}
	return &Result{Outcome: m.Kind, Position: &pos, Transaction: tx}, nil
}

// RecordSale reduces a position. The average cost of the remaining shares is
// unchanged; the transaction keeps the actual sale price.
func (s *Service) RecordSale(ctx context.Context, owner string, req SaleRequest) (*Result, error) {
	req.Quantity, req.Price = storedQuantity(req.Quantity), storedPrice(req.Price)
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: sale quantity must be positive, got %s", costbasis.ErrInvalidQuantity, req.Quantity)
	}
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: sale price must be positive, got %s", costbasis.ErrInvalidPrice, req.Price)
	}

	target, err := s.resolveSaleTarget(ctx, owner, req)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.withLock(ctx, target.PortfolioID, target.Symbol, func() error {
		current, err := s.store.GetPosition(ctx, owner, target.ID)
		if err != nil {
			return err
		}

		sale, err := costbasis.CostBasisAfterSale(current.Quantity, current.AverageCost, req.Quantity)
		if err != nil {
			return err
		}

		pos := *current
		pos.Quantity = sale.RemainingQuantity
		pos.AverageCost = sale.AverageCost
		pos.TotalInvested = sale.TotalInvested

		tx := s.newTransaction(models.TransactionTypeSell, req.Quantity, req.Price, req.TransactionDate)
		tx.PositionID = current.ID
		tx.Source, tx.ExternalID = req.Source, req.ExternalID

		m := &models.Mutation{Kind: models.MutationReduced, Position: &pos, Transaction: tx}
		if err := s.store.SaveMutation(ctx, owner, m); err != nil {
			return fmt.Errorf("failed to record sale on position %d: %w", current.ID, err)
		}
		result = &Result{Outcome: m.Kind, Position: &pos, Transaction: tx}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, owner, result)
	return result, nil
}

func (s *Service) resolveSaleTarget(ctx context.Context, owner string, req SaleRequest) (*models.Position, error) {
	if req.PositionID != 0 {
		return s.store.GetPosition(ctx, owner, req.PositionID)
	}
	symbol, err := models.NormalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	return s.store.FindPosition(ctx, owner, req.PortfolioID, symbol)
}

// EditPosition sets a position's quantity directly. An increase is recorded
// as a BUY at the supplied price, a decrease as a SELL at the current
// average cost.
func (s *Service) EditPosition(ctx context.Context, owner string, req EditRequest) (*Result, error) {
	req.NewQuantity = storedQuantity(req.NewQuantity)
	if req.NewPrice != nil {
		price := storedPrice(*req.NewPrice)
		req.NewPrice = &price
	}
	if req.NewQuantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantity cannot be negative, got %s", costbasis.ErrInvalidQuantity, req.NewQuantity)
	}

	target, err := s.store.GetPosition(ctx, owner, req.PositionID)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.withLock(ctx, target.PortfolioID, target.Symbol, func() error {
		current, err := s.store.GetPosition(ctx, owner, req.PositionID)
		if err != nil {
			return err
		}

		impact, err := costbasis.UpdateImpact(current, req.NewQuantity, req.NewPrice)
		if err != nil {
			return err
		}

		pos := *current
		pos.Quantity = impact.NewQuantity
		pos.AverageCost = impact.NewAverageCost
		pos.TotalInvested = impact.NewTotalInvested

		var tx *models.Transaction
		switch {
		case impact.QuantityChange.IsPositive():
			tx = s.newTransaction(models.TransactionTypeBuy, impact.QuantityChange, *req.NewPrice, req.TransactionDate)
		case impact.QuantityChange.IsNegative():
			tx = s.newTransaction(models.TransactionTypeSell, impact.QuantityChange.Neg(), current.AverageCost, req.TransactionDate)
		default:
			result = &Result{Outcome: models.MutationUpdated, Position: current, Impact: &impact}
			return nil
		}
		tx.PositionID = current.ID

		m := &models.Mutation{Kind: models.MutationUpdated, Position: &pos, Transaction: tx}
		if err := s.store.SaveMutation(ctx, owner, m); err != nil {
			return fmt.Errorf("failed to update position %d: %w", current.ID, err)
		}
		result = &Result{Outcome: m.Kind, Position: &pos, Transaction: tx, Impact: &impact}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Transaction != nil {
		s.publish(ctx, owner, result)
	}
	return result, nil
}

// DeletePosition removes a position. What happens to its ledger is the
// store's decision.
func (s *Service) DeletePosition(ctx context.Context, owner string, id int) error {
	pos, err := s.store.GetPosition(ctx, owner, id)
	if err != nil {
		return err
	}

	err = s.withLock(ctx, pos.PortfolioID, pos.Symbol, func() error {
		return s.store.DeletePosition(ctx, owner, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete position %d: %w", id, err)
	}

	s.log.Info().Int("position_id", id).Str("symbol", pos.Symbol).Msg("position deleted")
	s.emit(ctx, models.PositionEvent{
		EventType:   models.EventPositionDeleted,
		OwnerID:     owner,
		PositionID:  id,
		PortfolioID: pos.PortfolioID,
		Symbol:      pos.Symbol,
	})
	return nil
}

// GetPosition returns a position valued at currentPrice, which may be nil.
func (s *Service) GetPosition(ctx context.Context, owner string, id int, currentPrice *decimal.Decimal) (*PositionView, error) {
	pos, err := s.store.GetPosition(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if currentPrice == nil && pos.CurrentPrice.Valid {
		currentPrice = &pos.CurrentPrice.Decimal
	}
	return &PositionView{Position: pos, Metrics: costbasis.Metrics(pos, currentPrice)}, nil
}

// SetCurrentPrice records a market price supplied by the caller and returns
// the position valued at it.
func (s *Service) SetCurrentPrice(ctx context.Context, owner string, id int, price decimal.Decimal) (*PositionView, error) {
	price = storedPrice(price)
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: current price must be positive, got %s", costbasis.ErrInvalidPrice, price)
	}
	if err := s.store.SetCurrentPrice(ctx, owner, id, price); err != nil {
		return nil, err
	}
	return s.GetPosition(ctx, owner, id, nil)
}

// ListTransactions returns a position's ledger in replay order.
func (s *Service) ListTransactions(ctx context.Context, owner string, positionID int) ([]*models.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, owner, positionID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].TransactionDate.Before(txs[j].TransactionDate)
	})
	return txs, nil
}

// Reconcile replays a position's ledger and compares it with the stored
// fields. With repair set, a drifted position is overwritten from the ledger.
func (s *Service) Reconcile(ctx context.Context, owner string, id int, repair bool) (*Reconciliation, error) {
	target, err := s.store.GetPosition(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	var rec *Reconciliation
	err = s.withLock(ctx, target.PortfolioID, target.Symbol, func() error {
		current, err := s.store.GetPosition(ctx, owner, id)
		if err != nil {
			return err
		}
		txs, err := s.store.ListTransactions(ctx, owner, id)
		if err != nil {
			return fmt.Errorf("failed to load ledger for position %d: %w", id, err)
		}
		ledger, err := costbasis.ReplayTransactions(txs)
		if err != nil {
			return fmt.Errorf("failed to replay ledger for position %d: %w", id, err)
		}

		rec = &Reconciliation{Position: current, Drift: costbasis.Compare(current, ledger, s.cfg.Tolerance)}
		if rec.Drift.InSync || !repair {
			return nil
		}

		pos := *current
		pos.Quantity = ledger.Quantity
		pos.TotalInvested = ledger.TotalInvested
		if ledger.Quantity.IsPositive() {
			pos.AverageCost = ledger.AverageCost
		}
		m := &models.Mutation{Kind: models.MutationRepaired, Position: &pos}
		if err := s.store.SaveMutation(ctx, owner, m); err != nil {
			return fmt.Errorf("failed to repair position %d: %w", id, err)
		}
		rec.Position = &pos
		rec.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !rec.Drift.InSync {
		s.log.Warn().
			Int("position_id", id).
			Str("symbol", rec.Position.Symbol).
			Str("quantity_delta", rec.Drift.QuantityDelta.String()).
			Str("average_cost_delta", rec.Drift.AverageCostDelta.String()).
			Str("total_invested_delta", rec.Drift.TotalInvestedDelta.String()).
			Bool("repaired", rec.Repaired).
			Msg("position drifted from ledger")
		s.emit(ctx, models.PositionEvent{
			EventType:   models.EventPositionDrift,
			OwnerID:     owner,
			PositionID:  id,
			PortfolioID: rec.Position.PortfolioID,
			Symbol:      rec.Position.Symbol,
			Position:    rec.Position,
		})
	}
	if rec.Repaired {
		s.publish(ctx, owner, &Result{Outcome: models.MutationRepaired, Position: rec.Position})
	}
	return rec, nil
}

func (s *Service) withLock(ctx context.Context, portfolioID int, symbol string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, lockKey(portfolioID, symbol))
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Inputs are rounded to the stored precision before validation so that the
// ledger replays to exactly what was written to the position.
func storedQuantity(q decimal.Decimal) decimal.Decimal { return models.RoundQuantity(q) }
func storedPrice(p decimal.Decimal) decimal.Decimal { return models.RoundAverageCost(p) }

func lockKey(portfolioID int, symbol string) string {
	return fmt.Sprintf("position:%d:%s", portfolioID, symbol)
}

func (s *Service) newTransaction(typ string, qty, price decimal.Decimal, date time.Time) *models.Transaction {
	if date.IsZero() {
		date = s.now()
	}
	return &models.Transaction{
		Type:            typ,
		Quantity:        models.RoundQuantity(qty),
		Price:           price,
		TransactionDate: date,
	}
}

func (s *Service) publish(ctx context.Context, owner string, r *Result) {
	s.log.Info().
		Str("outcome", string(r.Outcome)).
		Int("position_id", r.Position.ID).
		Str("symbol", r.Position.Symbol).
		Str("quantity", r.Position.Quantity.String()).
		Str("average_cost", r.Position.AverageCost.String()).
		Msg("position mutated")

	s.emit(ctx, models.PositionEvent{
		EventType:   models.EventTypeForMutation(r.Outcome),
		OwnerID:     owner,
		PositionID:  r.Position.ID,
		PortfolioID: r.Position.PortfolioID,
		Symbol:      r.Position.Symbol,
		Position:    r.Position,
		Transaction: r.Transaction,
	})
}

// emit never fails the caller: the mutation is already committed.
func (s *Service) emit(ctx context.Context, event models.PositionEvent) {
	event.Timestamp = s.now()
	if err := s.publisher.PublishPositionEvent(ctx, event); err != nil {
		s.log.Error().Err(err).
			Str("event_type", event.EventType).
			Int("position_id", event.PositionID).
			Msg("failed to publish position event")
	}
}
