package database

import (
	"context"
	"fmt"

	"github.com/trogers1052/portfolio-tracker/internal/models"
)

// CreatePortfolio inserts a new portfolio
func (db *DB) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	query := `
		INSERT INTO portfolios (user_id, name, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`
	if err := db.conn.QueryRowContext(ctx, query, p.UserID, p.Name).Scan(&p.ID, &p.CreatedAt); err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// GetPortfolio retrieves a portfolio owned by owner
func (db *DB) GetPortfolio(ctx context.Context, owner string, id int) (*models.Portfolio, error) {
	query := `SELECT id, user_id, name, created_at FROM portfolios WHERE id = $1 AND user_id = $2`

	var p models.Portfolio
	err := db.conn.QueryRowContext(ctx, query, id, owner).Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %d: %w", id, translate(err))
	}
	return &p, nil
}

// ListPortfolios retrieves all portfolios of owner
func (db *DB) ListPortfolios(ctx context.Context, owner string) ([]*models.Portfolio, error) {
	query := `SELECT id, user_id, name, created_at FROM portfolios WHERE user_id = $1 ORDER BY id ASC`

	rows, err := db.conn.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := []*models.Portfolio{}
	for rows.Next() {
		var p models.Portfolio
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, &p)
	}
	return portfolios, rows.Err()
}
