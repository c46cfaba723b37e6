package repo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talx-hub/credit-ledger/internal/model/credit"
	"github.com/talx-hub/credit-ledger/internal/model/member"
	"github.com/talx-hub/credit-ledger/internal/model/report"
)

// ReportRepository serves read-only aggregations over the transaction log.
// Reads may lag concurrent writes; callers must not expect linearizability.
type ReportRepository struct {
	DB
}

func NewReportRepository(pool connectionPool, log *slog.Logger) *ReportRepository {
	return &ReportRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

// OrgSummary totals allocated vs consumed credits per credit type over the
// organization's own wallet and its members' wallets.
func (r *ReportRepository) OrgSummary(ctx context.Context,
	orgID string, from, to time.Time,
) ([]report.TypeSummary, error) {
	summaryLogic := func() ([]report.TypeSummary, error) {
		const query = `
SELECT w.credit_type,
       COALESCE(SUM(t.delta) FILTER (WHERE t.delta > 0), 0)  AS allocated,
       COALESCE(-SUM(t.delta) FILTER (WHERE t.delta < 0), 0) AS consumed
FROM credit_transactions t
JOIN credit_wallets w ON w.id = t.wallet_id
WHERE t.created_at >= $2 AND t.created_at < $3
  AND ((w.owner_type = 'ORG' AND w.owner_id = $1)
       OR (w.owner_type = 'USER' AND w.owner_id IN (
             SELECT m.user_id FROM org_members m WHERE m.organization_id = $1)))
GROUP BY w.credit_type
ORDER BY w.credit_type`

		rows, err := r.pool.Query(ctx, query, orgID, from.UTC(), to.UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate org %s summary: %w", orgID, err)
		}
		defer rows.Close()

		var summaries []report.TypeSummary
		for rows.Next() {
			var s report.TypeSummary
			var creditType string
			if err = rows.Scan(&creditType, &s.Allocated, &s.Consumed); err != nil {
				return nil, fmt.Errorf("failed to scan summary row: %w", err)
			}
			s.CreditType = credit.Type(creditType)
			summaries = append(summaries, s)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read summary rows: %w", err)
		}

		return summaries, nil
	}

	return WithRetry[[]report.TypeSummary](summaryLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// RoleBreakdown totals allocated vs consumed per member role. Organization
// wallets have no role and are excluded here.
func (r *ReportRepository) RoleBreakdown(ctx context.Context,
	orgID string, from, to time.Time,
) ([]report.RoleSummary, error) {
	breakdownLogic := func() ([]report.RoleSummary, error) {
		const query = `
SELECT m.role,
       COALESCE(SUM(t.delta) FILTER (WHERE t.delta > 0), 0)  AS allocated,
       COALESCE(-SUM(t.delta) FILTER (WHERE t.delta < 0), 0) AS consumed
FROM credit_transactions t
JOIN credit_wallets w ON w.id = t.wallet_id
JOIN org_members m
  ON m.user_id = w.owner_id AND m.organization_id = $1
WHERE w.owner_type = 'USER'
  AND t.created_at >= $2 AND t.created_at < $3
GROUP BY m.role
ORDER BY m.role`

		rows, err := r.pool.Query(ctx, query, orgID, from.UTC(), to.UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate org %s roles: %w", orgID, err)
		}
		defer rows.Close()

		var summaries []report.RoleSummary
		for rows.Next() {
			var s report.RoleSummary
			var role string
			if err = rows.Scan(&role, &s.Allocated, &s.Consumed); err != nil {
				return nil, fmt.Errorf("failed to scan role row: %w", err)
			}
			s.Role = member.Role(role)
			summaries = append(summaries, s)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read role rows: %w", err)
		}

		return summaries, nil
	}

	return WithRetry[[]report.RoleSummary](breakdownLogic, 0) //nolint: wrapcheck // error from wrapped function
}
