package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trogers1052/portfolio-tracker/internal/models"
)

func insertTransaction(ctx context.Context, q querier, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			position_id, type, quantity, price, transaction_date, source, external_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NOW()
		)
		RETURNING id, created_at
	`
	err := q.QueryRowContext(ctx, query,
		t.PositionID, t.Type, t.Quantity, t.Price, t.TransactionDate, t.Source, t.ExternalID,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", translate(err))
	}
	return nil
}

// ListTransactions retrieves a position's ledger, archived positions included,
// ordered by transaction date
func (db *DB) ListTransactions(ctx context.Context, owner string, positionID int) ([]*models.Transaction, error) {
	var owned bool
	ownedQuery := `
		SELECT EXISTS(
			SELECT 1 FROM positions p
			JOIN portfolios pf ON pf.id = p.portfolio_id
			WHERE pf.user_id = $1 AND p.id = $2
		)
	`
	if err := db.conn.QueryRowContext(ctx, ownedQuery, owner, positionID).Scan(&owned); err != nil {
		return nil, fmt.Errorf("failed to check position ownership: %w", err)
	}
	if !owned {
		return nil, fmt.Errorf("position %d: %w", positionID, models.ErrNotFound)
	}

	query := `
		SELECT id, position_id, type, quantity, price, transaction_date,
		       source, external_id, created_at
		FROM transactions
		WHERE position_id = $1
		ORDER BY transaction_date ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := []*models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var source, externalID sql.NullString

		err := rows.Scan(
			&t.ID, &t.PositionID, &t.Type, &t.Quantity, &t.Price, &t.TransactionDate,
			&source, &externalID, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Source = source.String
		t.ExternalID = externalID.String
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

// TransactionExists checks if a transaction with the given source and external ID was already recorded
func (db *DB) TransactionExists(ctx context.Context, source, externalID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE source = $1 AND external_id = $2)`
	var exists bool
	if err := db.conn.QueryRowContext(ctx, query, source, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// DeleteTransaction removes a ledger entry without touching its position.
// The position is left out of step with its ledger until it is reconciled.
func (db *DB) DeleteTransaction(ctx context.Context, owner string, id int) error {
	query := `
		DELETE FROM transactions t
		USING positions p, portfolios pf
		WHERE t.id = $2 AND p.id = t.position_id AND pf.id = p.portfolio_id AND pf.user_id = $1
	`
	result, err := db.conn.ExecContext(ctx, query, owner, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %d: %w", id, models.ErrNotFound)
	}
	return nil
}
