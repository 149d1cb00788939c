package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type BalanceStore struct {
	db *pgxpool.Pool
}

func NewBalanceStore(db *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{db: db}
}

func (c *BalanceStore) GetBalanceByUserID(ctx context.Context, userId int64) (decimal.Decimal, error) {
	var totalDr, totalCr decimal.Decimal

	err := c.db.QueryRow(ctx, `
        SELECT 
            COALESCE(SUM(dr), 0), 
            COALESCE(SUM(cr), 0)
        FROM balances
        WHERE user_id = $1 AND status = 'completed'
    `, userId).Scan(&totalDr, &totalCr)

	if err != nil {
		return decimal.Zero, err
	}

	balance := totalDr.Sub(totalCr)
	return balance, nil
}

// DebitEntryFee posts the entry fee as a credit-side ledger row. The tref
// makes the posting idempotent: a retry of the same seat request is a no-op.
func (c *BalanceStore) DebitEntryFee(ctx context.Context, userId int64, amount decimal.Decimal, tref string, remark string) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM balances WHERE tref = $1)
    `, tref).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO balances (user_id, ttype, dr, cr, status, tref, remark)
        VALUES ($1, 'entry_fee', 0, $2, 'completed', $3, $4)
    `, userId, amount, tref, remark)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
