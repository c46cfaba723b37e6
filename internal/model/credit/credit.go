package credit

import (
	"time"

	"github.com/talx-hub/credit-ledger/internal/serviceerrs"
)

// OwnerType says who holds a wallet: an organization or a single user.
type OwnerType string

const (
	OwnerOrg  OwnerType = "ORG"
	OwnerUser OwnerType = "USER"
)

func (o OwnerType) IsValid() bool {
	return o == OwnerOrg || o == OwnerUser
}

// Type is the kind of entitlement a wallet holds.
type Type string

const (
	TypeSession Type = "SESSION_1_1"
	TypeWebinar Type = "WEBINAR"
)

func (t Type) IsValid() bool {
	return t == TypeSession || t == TypeWebinar
}

// Owner identifies a wallet holder. Exactly one organization XOR one user.
type Owner struct {
	Type OwnerType `json:"owner_type"`
	ID   string    `json:"owner_id"`
}

func (o Owner) Validate() error {
	if !o.Type.IsValid() {
		return &serviceerrs.ValidationError{
			Field: "owner_type", Message: "must be ORG or USER",
		}
	}
	if o.ID == "" {
		return &serviceerrs.ValidationError{
			Field: "owner_id", Message: "must be not empty",
		}
	}
	return nil
}

// Wallet is one balance bucket: one owner, one credit type.
// At most one wallet exists per (owner_type, owner_id, credit_type).
type Wallet struct {
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ID         string     `json:"id"`
	Owner      Owner      `json:"owner"`
	CreditType Type       `json:"credit_type"`
	Balance    int64      `json:"balance"`
}

// Balance is the read projection returned to callers. An absent wallet
// reads as a zero balance, not as an error.
type Balance struct {
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreditType Type       `json:"credit_type"`
	Balance    int64      `json:"balance"`
}
