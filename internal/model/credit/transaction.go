package credit

import "time"

// Transaction is an immutable ledger entry. The sum of deltas of a wallet's
// transactions equals the wallet's balance at all times; both are written
// inside one DB transaction.
type Transaction struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	WalletID  string    `json:"wallet_id"`
	Reason    string    `json:"reason"`
	BookingID string    `json:"booking_id,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	Delta     int64     `json:"delta"`
}

// EntryParams describe one balance mutation: a positive delta for a credit,
// a negative one for a debit.
type EntryParams struct {
	Owner      Owner
	CreditType Type
	Reason     string
	BookingID  string
	ActorID    string
	Delta      int64
}
