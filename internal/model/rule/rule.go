package rule

import (
	"fmt"
	"time"

	"github.com/talx-hub/credit-ledger/internal/model/credit"
	"github.com/talx-hub/credit-ledger/internal/serviceerrs"
)

// Frequency defines the calendar cadence of an allocation rule.
type Frequency string

const (
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// PeriodStart returns the UTC start of the calendar period containing now:
// month start for MONTHLY, quarter start for QUARTERLY, year start for YEARLY.
func (f Frequency) PeriodStart(now time.Time) time.Time {
	now = now.UTC()
	switch f {
	case FrequencyMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case FrequencyQuarterly:
		const monthsPerQuarter = 3
		qFirstMonth := time.Month((int(now.Month())-1)/monthsPerQuarter*monthsPerQuarter + 1)
		return time.Date(now.Year(), qFirstMonth, 1, 0, 0, 0, 0, time.UTC)
	case FrequencyYearly:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// TargetRole selects which organization members a rule grants to.
type TargetRole string

const (
	TargetEmployee TargetRole = "EMPLOYEE"
	TargetAll      TargetRole = "ALL"
)

func (r TargetRole) IsValid() bool {
	return r == TargetEmployee || r == TargetAll
}

// Rule is a standing policy that periodically grants credits to members of
// an organization. Deactivating a rule stops future runs; past grants stay.
type Rule struct {
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	LastRunAt      *time.Time  `json:"last_run_at,omitempty"`
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	CreditType     credit.Type `json:"credit_type"`
	Frequency      Frequency   `json:"frequency"`
	TargetRole     TargetRole  `json:"target_role"`
	Amount         int64       `json:"amount"`
	IsActive       bool        `json:"is_active"`
}

func (r *Rule) Validate() error {
	if r.OrganizationID == "" {
		return &serviceerrs.ValidationError{
			Field: "organization_id", Message: "must be not empty",
		}
	}
	if !r.CreditType.IsValid() {
		return &serviceerrs.ValidationError{
			Field: "credit_type", Message: "unknown credit type",
		}
	}
	if r.Amount <= 0 {
		return &serviceerrs.ValidationError{
			Field: "amount", Message: "must be positive",
		}
	}
	if !r.Frequency.IsValid() {
		return &serviceerrs.ValidationError{
			Field: "frequency", Message: "must be MONTHLY, QUARTERLY or YEARLY",
		}
	}
	if !r.TargetRole.IsValid() {
		return &serviceerrs.ValidationError{
			Field: "target_role", Message: "must be EMPLOYEE or ALL",
		}
	}
	return nil
}

// GrantReason builds the deterministic idempotency tag for one rule and one
// period. Re-running a period probes for this tag before granting, so crashed
// or repeated runs never double-grant.
func GrantReason(ruleID string, periodStart time.Time) string {
	return fmt.Sprintf("allocation/%s/%s", ruleID, periodStart.UTC().Format(time.DateOnly))
}
