package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

const positionColumns = `
	p.id, p.portfolio_id, p.symbol, p.name, p.quantity, p.average_cost, p.total_invested,
	p.current_price, p.version, p.archived_at, p.created_at, p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var archivedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.PortfolioID, &p.Symbol, &p.Name, &p.Quantity, &p.AverageCost, &p.TotalInvested,
		&p.CurrentPrice, &p.Version, &archivedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if archivedAt.Valid {
		p.ArchivedAt = &archivedAt.Time
	}
	return &p, nil
}

// FindPosition returns the live position for (portfolioID, symbol)
func (db *DB) FindPosition(ctx context.Context, owner string, portfolioID int, symbol string) (*models.Position, error) {
	query := `
		SELECT` + positionColumns + `
		FROM positions p
		JOIN portfolios pf ON pf.id = p.portfolio_id
		WHERE pf.user_id = $1 AND p.portfolio_id = $2 AND p.symbol = $3 AND p.archived_at IS NULL
	`
	p, err := scanPosition(db.conn.QueryRowContext(ctx, query, owner, portfolioID, symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to find position %s: %w", symbol, translate(err))
	}
	return p, nil
}

// GetPosition retrieves a live position by ID
func (db *DB) GetPosition(ctx context.Context, owner string, id int) (*models.Position, error) {
	query := `
		SELECT` + positionColumns + `
		FROM positions p
		JOIN portfolios pf ON pf.id = p.portfolio_id
		WHERE pf.user_id = $1 AND p.id = $2 AND p.archived_at IS NULL
	`
	p, err := scanPosition(db.conn.QueryRowContext(ctx, query, owner, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get position %d: %w", id, translate(err))
	}
	return p, nil
}

// ListPositions retrieves the live positions of a portfolio ordered by symbol
func (db *DB) ListPositions(ctx context.Context, owner string, portfolioID int) ([]*models.Position, error) {
	if _, err := db.GetPortfolio(ctx, owner, portfolioID); err != nil {
		return nil, err
	}

	query := `
		SELECT` + positionColumns + `
		FROM positions p
		JOIN portfolios pf ON pf.id = p.portfolio_id
		WHERE pf.user_id = $1 AND p.portfolio_id = $2 AND p.archived_at IS NULL
		ORDER BY p.symbol ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, owner, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []*models.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListPositionRefs returns every live position with its owner
func (db *DB) ListPositionRefs(ctx context.Context) ([]models.PositionRef, error) {
	query := `
		SELECT p.id, pf.user_id
		FROM positions p
		JOIN portfolios pf ON pf.id = p.portfolio_id
		WHERE p.archived_at IS NULL
		ORDER BY p.id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query position refs: %w", err)
	}
	defer rows.Close()

	var refs []models.PositionRef
	for rows.Next() {
		var ref models.PositionRef
		if err := rows.Scan(&ref.ID, &ref.OwnerID); err != nil {
			return nil, fmt.Errorf("failed to scan position ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeletePosition archives a live position. Its transactions are kept.
func (db *DB) DeletePosition(ctx context.Context, owner string, id int) error {
	query := `
		UPDATE positions p
		SET archived_at = NOW(), updated_at = NOW(), version = p.version + 1
		FROM portfolios pf
		WHERE pf.id = p.portfolio_id AND pf.user_id = $1 AND p.id = $2 AND p.archived_at IS NULL
	`
	result, err := db.conn.ExecContext(ctx, query, owner, id)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("position %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// SetCurrentPrice stores a caller-supplied market price on a live position.
// The cost basis is untouched, so the version stays the same.
func (db *DB) SetCurrentPrice(ctx context.Context, owner string, id int, price decimal.Decimal) error {
	query := `
		UPDATE positions p
		SET current_price = $3, updated_at = NOW()
		FROM portfolios pf
		WHERE pf.id = p.portfolio_id AND pf.user_id = $1 AND p.id = $2 AND p.archived_at IS NULL
	`
	result, err := db.conn.ExecContext(ctx, query, owner, id, price)
	if err != nil {
		return fmt.Errorf("failed to set current price: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("position %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func createPosition(ctx context.Context, q querier, owner string, p *models.Position) error {
	// The SELECT only yields a row when owner owns the portfolio.
	query := `
		INSERT INTO positions (
			portfolio_id, symbol, name, quantity, average_cost, total_invested,
			current_price, version, created_at, updated_at
		)
		SELECT pf.id, $3, $4, $5, $6, $7, $8, 1, NOW(), NOW()
		FROM portfolios pf
		WHERE pf.id = $2 AND pf.user_id = $1
		RETURNING id, version, created_at, updated_at
	`
	err := q.QueryRowContext(ctx, query,
		owner, p.PortfolioID, p.Symbol, p.Name, p.Quantity, p.AverageCost, p.TotalInvested, p.CurrentPrice,
	).Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("portfolio %d: %w", p.PortfolioID, models.ErrNotFound)
		}
		return fmt.Errorf("failed to create position: %w", translate(err))
	}
	return nil
}

func updatePosition(ctx context.Context, q querier, owner string, p *models.Position) error {
	query := `
		UPDATE positions p
		SET name = $4, quantity = $5, average_cost = $6, total_invested = $7,
		    version = p.version + 1, updated_at = NOW()
		FROM portfolios pf
		WHERE pf.id = p.portfolio_id AND pf.user_id = $1
		  AND p.id = $2 AND p.version = $3 AND p.archived_at IS NULL
		RETURNING p.version, p.updated_at
	`
	err := q.QueryRowContext(ctx, query,
		owner, p.ID, p.Version, p.Name, p.Quantity, p.AverageCost, p.TotalInvested,
	).Scan(&p.Version, &p.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to update position: %w", err)
	}

	// Nothing matched: either the row is gone or someone else bumped the version.
	var exists bool
	existsQuery := `
		SELECT EXISTS(
			SELECT 1 FROM positions p
			JOIN portfolios pf ON pf.id = p.portfolio_id
			WHERE pf.user_id = $1 AND p.id = $2 AND p.archived_at IS NULL
		)
	`
	if err := q.QueryRowContext(ctx, existsQuery, owner, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check position existence: %w", err)
	}
	if exists {
		return fmt.Errorf("position %d at version %d: %w", p.ID, p.Version, models.ErrVersionConflict)
	}
	return fmt.Errorf("position %d: %w", p.ID, models.ErrNotFound)
}
