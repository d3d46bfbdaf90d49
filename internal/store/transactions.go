package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"microtx-service/internal/models"
)

// transactionRow is the database shape of a transaction. Order ids and
// payer ids are unsigned 64-bit values in the domain; Postgres BIGINT
// is signed, so they round-trip through a bit-preserving cast.
type transactionRow struct {
	ID                    int64     `db:"id"`
	State                 string    `db:"state"`
	PayerExternalID       int64     `db:"payer_external_id"`
	PrincipalID           string    `db:"principal_id"`
	OrderID               int64     `db:"order_id"`
	ExternalTransactionID int64     `db:"external_transaction_id"`
	Language              string    `db:"language"`
	Currency              string    `db:"currency"`
	ErrorCode             string    `db:"error_code"`
	ErrorDescription      string    `db:"error_description"`
	CreatedAt             time.Time `db:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}

func (r *transactionRow) toModel() *models.Transaction {
	return &models.Transaction{
		ID:                    r.ID,
		State:                 models.State(r.State),
		PayerExternalID:       uint64(r.PayerExternalID),
		PrincipalID:           r.PrincipalID,
		OrderID:               uint64(r.OrderID),
		ExternalTransactionID: uint64(r.ExternalTransactionID),
		Language:              r.Language,
		Currency:              r.Currency,
		ErrorCode:             r.ErrorCode,
		ErrorDescription:      r.ErrorDescription,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// SaveTransaction persists the transaction. The first save inserts the
// record together with its items and assigns the id; later saves update
// the mutable columns only, since items and the order id never change
// after initiation starts.
func (s *Store) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == 0 {
		return s.insertTransaction(ctx, tx)
	}
	return s.updateTransaction(ctx, tx)
}

func (s *Store) insertTransaction(ctx context.Context, tx *models.Transaction) error {
	dbtx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	query := `
		INSERT INTO transactions
			(state, payer_external_id, principal_id, order_id,
			 external_transaction_id, language, currency,
			 error_code, error_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err = dbtx.QueryRowxContext(ctx, query,
		string(tx.State), int64(tx.PayerExternalID), tx.PrincipalID,
		int64(tx.OrderID), int64(tx.ExternalTransactionID),
		tx.Language, tx.Currency, tx.ErrorCode, tx.ErrorDescription,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for i := range tx.Items {
		item := &tx.Items[i]
		item.TransactionID = tx.ID

		err = dbtx.QueryRowxContext(ctx, `
			INSERT INTO transaction_items
				(transaction_id, product_id, quantity, amount_in_cents,
				 description, category)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			item.TransactionID, int64(item.ProductID), item.Quantity,
			item.AmountInCents, item.Description, item.Category,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to insert transaction item: %w", err)
		}
	}

	return dbtx.Commit()
}

func (s *Store) updateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		UPDATE transactions
		SET state = $1, external_transaction_id = $2,
		    error_code = $3, error_description = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		string(tx.State), int64(tx.ExternalTransactionID),
		tx.ErrorCode, tx.ErrorDescription, tx.ID,
	).Scan(&tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", tx.ID, err)
	}
	return nil
}

// FindInitiatedByOrderID returns the transaction with the given order
// id that is still waiting for the payer's decision, or nil when no
// such record exists. The state filter is the idempotency gate for
// finalization.
func (s *Store) FindInitiatedByOrderID(ctx context.Context, orderID uint64) (*models.Transaction, error) {
	var row transactionRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM transactions WHERE order_id = $1 AND state = $2",
		int64(orderID), string(models.StateInitiated))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tx := row.toModel()
	if err := s.loadItems(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// GetTransactionByOrderID returns the transaction regardless of state.
func (s *Store) GetTransactionByOrderID(ctx context.Context, orderID uint64) (*models.Transaction, error) {
	var row transactionRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM transactions WHERE order_id = $1", int64(orderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tx := row.toModel()
	if err := s.loadItems(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// GetTransactionsByPayer returns all purchase attempts of a payer,
// newest first.
func (s *Store) GetTransactionsByPayer(ctx context.Context, payerExternalID uint64) ([]*models.Transaction, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM transactions WHERE payer_external_id = $1 ORDER BY created_at DESC",
		int64(payerExternalID))
	if err != nil {
		return nil, err
	}

	txs := make([]*models.Transaction, 0, len(rows))
	for i := range rows {
		tx := rows[i].toModel()
		if err := s.loadItems(ctx, tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *Store) loadItems(ctx context.Context, tx *models.Transaction) error {
	var items []models.Item
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM transaction_items WHERE transaction_id = $1 ORDER BY id",
		tx.ID)
	if err != nil {
		return fmt.Errorf("failed to load items for transaction %d: %w", tx.ID, err)
	}
	tx.Items = items
	return nil
}
