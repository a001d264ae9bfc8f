package database

import (
	"context"
	"fmt"

	"github.com/trogers1052/portfolio-tracker/internal/models"
)

// SaveMutation writes a position and its transaction in one database
// transaction. A new position gets its ID before the transaction row is
// linked to it; an existing one must still be at m.Position.Version.
func (db *DB) SaveMutation(ctx context.Context, owner string, m *models.Mutation) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if m.CreatesPosition() {
		err = createPosition(ctx, tx, owner, m.Position)
	} else {
		err = updatePosition(ctx, tx, owner, m.Position)
	}
	if err != nil {
		return err
	}

	if m.Transaction != nil {
		m.Transaction.PositionID = m.Position.ID
		if err := insertTransaction(ctx, tx, m.Transaction); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
