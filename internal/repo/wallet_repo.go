package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/talx-hub/credit-ledger/internal/model"
	"github.com/talx-hub/credit-ledger/internal/model/credit"
	"github.com/talx-hub/credit-ledger/internal/serviceerrs"
)

type WalletRepository struct {
	DB
}

func NewWalletRepository(pool connectionPool, log *slog.Logger) *WalletRepository {
	return &WalletRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

func (r *WalletRepository) GetBalance(ctx context.Context,
	owner credit.Owner, creditType credit.Type,
) (credit.Balance, error) {
	getLogic := func() (credit.Balance, error) {
		const query = `
SELECT balance, expires_at
FROM credit_wallets
WHERE owner_type = $1 AND owner_id = $2 AND credit_type = $3`

		var balance int64
		var expiresAt pgtype.Timestamptz
		err := r.pool.QueryRow(ctx, query,
			string(owner.Type), owner.ID, string(creditType),
		).Scan(&balance, &expiresAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return credit.Balance{CreditType: creditType}, nil
		}
		if err != nil {
			return credit.Balance{},
				fmt.Errorf("failed to get balance for %s %s: %w",
					owner.Type, owner.ID, err)
		}

		b := credit.Balance{CreditType: creditType, Balance: balance}
		if expiresAt.Valid {
			t := expiresAt.Time
			b.ExpiresAt = &t
		}
		return b, nil
	}

	return WithRetry[credit.Balance](getLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// Credit appends a positive transaction, creating the wallet lazily. The
// transaction row and the balance update commit together or not at all.
func (r *WalletRepository) Credit(ctx context.Context, p credit.EntryParams,
) (credit.Transaction, error) {
	creditLogic := func(ctx context.Context, tx connectionPool) (any, error) {
		const insertWallet = `
INSERT INTO credit_wallets (id, owner_type, owner_id, credit_type)
VALUES ($1, $2, $3, $4)
ON CONFLICT (owner_type, owner_id, credit_type) DO NOTHING`

		_, err := tx.Exec(ctx, insertWallet,
			uuid.NewString(), string(p.Owner.Type), p.Owner.ID, string(p.CreditType))
		if err != nil {
			return credit.Transaction{},
				fmt.Errorf("failed to create wallet lazily: %w", err)
		}

		walletID, _, err := lockWallet(ctx, tx, p.Owner, p.CreditType)
		if err != nil {
			return credit.Transaction{}, err
		}

		return appendEntry(ctx, tx, walletID, p)
	}

	creditWithTX := func() (credit.Transaction, error) {
		return WithTX[credit.Transaction](ctx, r.pool, r.log, creditLogic)
	}

	return WithRetry[credit.Transaction](creditWithTX, 0) //nolint: wrapcheck // error from wrapped function
}

// Debit appends a negative transaction. A missing wallet or a balance below
// the debited amount is a definitive ErrInsufficientBalance.
func (r *WalletRepository) Debit(ctx context.Context, p credit.EntryParams,
) (credit.Transaction, error) {
	debitLogic := func(ctx context.Context, tx connectionPool) (any, error) {
		walletID, balance, err := lockWallet(ctx, tx, p.Owner, p.CreditType)
		if errors.Is(err, pgx.ErrNoRows) {
			return credit.Transaction{}, serviceerrs.ErrInsufficientBalance
		}
		if err != nil {
			return credit.Transaction{}, err
		}
		if balance+p.Delta < 0 {
			return credit.Transaction{}, serviceerrs.ErrInsufficientBalance
		}

		return appendEntry(ctx, tx, walletID, p)
	}

	debitWithTX := func() (credit.Transaction, error) {
		return WithTX[credit.Transaction](ctx, r.pool, r.log, debitLogic)
	}

	return WithRetry[credit.Transaction](debitWithTX, 0) //nolint: wrapcheck // error from wrapped function
}

// lockWallet serializes concurrent mutations of one wallet: the row lock
// holds until the surrounding TX commits.
func lockWallet(ctx context.Context, tx connectionPool,
	owner credit.Owner, creditType credit.Type,
) (string, int64, error) {
	const query = `
SELECT id, balance
FROM credit_wallets
WHERE owner_type = $1 AND owner_id = $2 AND credit_type = $3
FOR UPDATE`

	var walletID string
	var balance int64
	err := tx.QueryRow(ctx, query,
		string(owner.Type), owner.ID, string(creditType),
	).Scan(&walletID, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, err //nolint: wrapcheck // sentinel checked by the caller
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to lock wallet for %s %s: %w",
			owner.Type, owner.ID, err)
	}
	return walletID, balance, nil
}

func appendEntry(ctx context.Context, tx connectionPool,
	walletID string, p credit.EntryParams,
) (credit.Transaction, error) {
	const insertTransaction = `
INSERT INTO credit_transactions (id, wallet_id, delta, reason, booking_id, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`

	t := credit.Transaction{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Delta:     p.Delta,
		Reason:    p.Reason,
		BookingID: p.BookingID,
		CreatedBy: p.ActorID,
	}
	err := tx.QueryRow(ctx, insertTransaction,
		t.ID, t.WalletID, t.Delta, t.Reason,
		nullText(p.BookingID), nullText(p.ActorID),
	).Scan(&t.CreatedAt)
	if err != nil {
		return credit.Transaction{},
			fmt.Errorf("failed to append ledger entry: %w", err)
	}

	const updateBalance = `
UPDATE credit_wallets
SET balance = balance + $2, updated_at = now()
WHERE id = $1`

	if _, err = tx.Exec(ctx, updateBalance, walletID, p.Delta); err != nil {
		return credit.Transaction{},
			fmt.Errorf("failed to update wallet balance: %w", err)
	}

	return t, nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// ListTransactions pages the wallet history newest first. The (created_at, id)
// row comparison keeps the order stable across equal timestamps.
func (r *WalletRepository) ListTransactions(ctx context.Context,
	owner credit.Owner, creditType credit.Type,
	cursor model.Cursor, limit int,
) ([]credit.Transaction, error) {
	listLogic := func() ([]credit.Transaction, error) {
		const query = `
SELECT t.id, t.wallet_id, t.delta, t.reason, t.booking_id, t.created_by, t.created_at
FROM credit_transactions t
JOIN credit_wallets w ON w.id = t.wallet_id
WHERE w.owner_type = $1 AND w.owner_id = $2 AND w.credit_type = $3
  AND ($4::timestamptz IS NULL OR (t.created_at, t.id) < ($4, $5::uuid))
ORDER BY t.created_at DESC, t.id DESC
LIMIT $6`

		cursorTS := pgtype.Timestamptz{Time: cursor.CreatedAt, Valid: !cursor.IsZero()}
		cursorID := cursor.ID
		if cursorID == "" {
			cursorID = uuid.Nil.String()
		}

		rows, err := r.pool.Query(ctx, query,
			string(owner.Type), owner.ID, string(creditType),
			cursorTS, cursorID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions for %s %s: %w",
				owner.Type, owner.ID, err)
		}
		defer rows.Close()

		transactions := make([]credit.Transaction, 0, limit)
		for rows.Next() {
			var t credit.Transaction
			var bookingID, createdBy pgtype.Text
			if err = rows.Scan(&t.ID, &t.WalletID, &t.Delta, &t.Reason,
				&bookingID, &createdBy, &t.CreatedAt); err != nil {
				return nil, fmt.Errorf("failed to scan transaction row: %w", err)
			}
			t.BookingID = bookingID.String
			t.CreatedBy = createdBy.String
			transactions = append(transactions, t)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read transaction rows: %w", err)
		}

		return transactions, nil
	}

	return WithRetry[[]credit.Transaction](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// HasReason probes for a prior transaction carrying the given reason tag.
// The allocation engine uses it as the idempotency check.
func (r *WalletRepository) HasReason(ctx context.Context,
	owner credit.Owner, creditType credit.Type, reason string,
) (bool, error) {
	hasLogic := func() (bool, error) {
		const query = `
SELECT EXISTS (
    SELECT 1
    FROM credit_transactions t
    JOIN credit_wallets w ON w.id = t.wallet_id
    WHERE w.owner_type = $1 AND w.owner_id = $2
      AND w.credit_type = $3 AND t.reason = $4
)`

		var exists bool
		err := r.pool.QueryRow(ctx, query,
			string(owner.Type), owner.ID, string(creditType), reason,
		).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("failed to probe reason %q: %w", reason, err)
		}
		return exists, nil
	}

	return WithRetry[bool](hasLogic, 0) //nolint: wrapcheck // error from wrapped function
}
