package report

import (
	"github.com/talx-hub/credit-ledger/internal/model/credit"
	"github.com/talx-hub/credit-ledger/internal/model/member"
)

// TypeSummary aggregates one credit type over a period: how much was granted
// and how much was consumed by bookings.
type TypeSummary struct {
	CreditType credit.Type `json:"credit_type"`
	Allocated  int64       `json:"allocated"`
	Consumed   int64       `json:"consumed"`
}

// RoleSummary is the same aggregation broken down by member role.
type RoleSummary struct {
	Role      member.Role `json:"role"`
	Allocated int64       `json:"allocated"`
	Consumed  int64       `json:"consumed"`
}
