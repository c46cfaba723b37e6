package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talx-hub/credit-ledger/internal/model"
	"github.com/talx-hub/credit-ledger/internal/model/credit"
	"github.com/talx-hub/credit-ledger/internal/serviceerrs"
)

// WalletRepository is the storage behind the ledger. Its Credit and Debit
// write the transaction row and the balance update atomically and serialize
// mutations per wallet.
type WalletRepository interface {
	GetBalance(ctx context.Context,
		owner credit.Owner, creditType credit.Type) (credit.Balance, error)
	Credit(ctx context.Context, p credit.EntryParams) (credit.Transaction, error)
	Debit(ctx context.Context, p credit.EntryParams) (credit.Transaction, error)
	ListTransactions(ctx context.Context,
		owner credit.Owner, creditType credit.Type,
		cursor model.Cursor, limit int) ([]credit.Transaction, error)
	HasReason(ctx context.Context,
		owner credit.Owner, creditType credit.Type, reason string) (bool, error)
}

// Service is the single point of truth for wallet balances. Every balance
// change it commits is backed by exactly one transaction record.
type Service struct {
	wallets  WalletRepository
	log      *slog.Logger
	pageSize int
}

func New(wallets WalletRepository, pageSize int, log *slog.Logger) *Service {
	if pageSize <= 0 {
		pageSize = model.DefaultHistoryPageSize
	}
	return &Service{
		wallets:  wallets,
		log:      log,
		pageSize: pageSize,
	}
}

type CreditParams struct {
	Owner      credit.Owner
	CreditType credit.Type
	Reason     string
	ActorID    string
	Amount     int64
}

type DebitParams struct {
	Owner      credit.Owner
	CreditType credit.Type
	Reason     string
	BookingID  string
	ActorID    string
	Amount     int64
}

// GetBalance reads the current balance. An absent wallet is a zero balance,
// not an error.
func (s *Service) GetBalance(ctx context.Context,
	owner credit.Owner, creditType credit.Type,
) (credit.Balance, error) {
	if err := validateWalletKey(owner, creditType); err != nil {
		return credit.Balance{}, err
	}

	balance, err := s.wallets.GetBalance(ctx, owner, creditType)
	if err != nil {
		return credit.Balance{}, fmt.Errorf("ledger: %w", err)
	}
	return balance, nil
}

func (s *Service) Credit(ctx context.Context, p CreditParams,
) (credit.Transaction, error) {
	if err := validateEntry(p.Owner, p.CreditType, p.Amount, p.Reason); err != nil {
		return credit.Transaction{}, err
	}

	t, err := s.wallets.Credit(ctx, credit.EntryParams{
		Owner:      p.Owner,
		CreditType: p.CreditType,
		Reason:     p.Reason,
		ActorID:    p.ActorID,
		Delta:      p.Amount,
	})
	if err != nil {
		return credit.Transaction{}, fmt.Errorf("ledger: %w", err)
	}

	s.log.LogAttrs(ctx,
		slog.LevelInfo,
		"credit committed",
		slog.String("owner_type", string(p.Owner.Type)),
		slog.String("owner_id", p.Owner.ID),
		slog.String("credit_type", string(p.CreditType)),
		slog.Int64("amount", p.Amount),
	)
	return t, nil
}

// Debit withdraws credits. ErrInsufficientBalance is definitive: the caller
// must reject the booking, not retry.
func (s *Service) Debit(ctx context.Context, p DebitParams,
) (credit.Transaction, error) {
	if err := validateEntry(p.Owner, p.CreditType, p.Amount, p.Reason); err != nil {
		return credit.Transaction{}, err
	}

	t, err := s.wallets.Debit(ctx, credit.EntryParams{
		Owner:      p.Owner,
		CreditType: p.CreditType,
		Reason:     p.Reason,
		BookingID:  p.BookingID,
		ActorID:    p.ActorID,
		Delta:      -p.Amount,
	})
	if err != nil {
		return credit.Transaction{}, fmt.Errorf("ledger: %w", err)
	}

	s.log.LogAttrs(ctx,
		slog.LevelInfo,
		"debit committed",
		slog.String("owner_type", string(p.Owner.Type)),
		slog.String("owner_id", p.Owner.ID),
		slog.String("credit_type", string(p.CreditType)),
		slog.Int64("amount", p.Amount),
		slog.String("booking_id", p.BookingID),
	)
	return t, nil
}

// History pages the wallet's transactions newest first. The returned cursor
// restarts the listing after the last returned entry; empty means the end.
func (s *Service) History(ctx context.Context,
	owner credit.Owner, creditType credit.Type,
	cursorStr string, limit int,
) ([]credit.Transaction, string, error) {
	if err := validateWalletKey(owner, creditType); err != nil {
		return nil, "", err
	}
	cursor, err := model.DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", &serviceerrs.ValidationError{
			Field: "cursor", Message: err.Error(),
		}
	}
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	transactions, err := s.wallets.ListTransactions(ctx, owner, creditType, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("ledger: %w", err)
	}

	next := ""
	if len(transactions) == limit {
		last := transactions[len(transactions)-1]
		next = model.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return transactions, next, nil
}

// HasGrant probes for a prior transaction with the given reason tag. The
// allocation engine uses it to keep period grants idempotent.
func (s *Service) HasGrant(ctx context.Context,
	owner credit.Owner, creditType credit.Type, reason string,
) (bool, error) {
	if err := validateWalletKey(owner, creditType); err != nil {
		return false, err
	}

	exists, err := s.wallets.HasReason(ctx, owner, creditType, reason)
	if err != nil {
		return false, fmt.Errorf("ledger: %w", err)
	}
	return exists, nil
}

func validateWalletKey(owner credit.Owner, creditType credit.Type) error {
	if err := owner.Validate(); err != nil {
		return err //nolint: wrapcheck // typed validation error
	}
	if !creditType.IsValid() {
		return &serviceerrs.ValidationError{
			Field: "credit_type", Message: "unknown credit type",
		}
	}
	return nil
}

func validateEntry(owner credit.Owner, creditType credit.Type,
	amount int64, reason string,
) error {
	if err := validateWalletKey(owner, creditType); err != nil {
		return err
	}
	if amount <= 0 {
		return &serviceerrs.ValidationError{
			Field: "amount", Message: "must be positive",
		}
	}
	if reason == "" {
		return &serviceerrs.ValidationError{
			Field: "reason", Message: "must be not empty",
		}
	}
	return nil
}
