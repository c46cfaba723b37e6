package repo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/talx-hub/credit-ledger/internal/model/credit"
	"github.com/talx-hub/credit-ledger/internal/model/rule"
	"github.com/talx-hub/credit-ledger/internal/serviceerrs"
)

type RuleRepository struct {
	DB
}

func NewRuleRepository(pool connectionPool, log *slog.Logger) *RuleRepository {
	return &RuleRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

func (r *RuleRepository) Create(ctx context.Context, ru *rule.Rule) (rule.Rule, error) {
	createLogic := func() (rule.Rule, error) {
		const query = `
INSERT INTO credit_allocation_rules
    (id, organization_id, credit_type, amount, frequency, target_role, is_active)
VALUES ($1, $2, $3, $4, $5, $6, TRUE)
RETURNING created_at, updated_at`

		created := *ru
		created.ID = uuid.NewString()
		created.IsActive = true
		err := r.pool.QueryRow(ctx, query,
			created.ID, created.OrganizationID, string(created.CreditType),
			created.Amount, string(created.Frequency), string(created.TargetRole),
		).Scan(&created.CreatedAt, &created.UpdatedAt)
		if err != nil {
			return rule.Rule{}, fmt.Errorf("failed to create allocation rule: %w", err)
		}
		return created, nil
	}

	return WithRetry[rule.Rule](createLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// Deactivate stops future runs of a rule. Past grants stay untouched.
func (r *RuleRepository) Deactivate(ctx context.Context, ruleID string) error {
	deactivateLogic := func() (struct{}, error) {
		const query = `
UPDATE credit_allocation_rules
SET is_active = FALSE, updated_at = now()
WHERE id = $1`

		res, err := r.pool.Exec(ctx, query, ruleID)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to deactivate rule %s: %w", ruleID, err)
		}
		if res.RowsAffected() == 0 {
			return struct{}{}, serviceerrs.ErrNotFound
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](deactivateLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}

func (r *RuleRepository) ListActive(ctx context.Context) ([]rule.Rule, error) {
	listLogic := func() ([]rule.Rule, error) {
		const query = `
SELECT id, organization_id, credit_type, amount, frequency, target_role,
       is_active, last_run_at, created_at, updated_at
FROM credit_allocation_rules
WHERE is_active
ORDER BY created_at, id`

		rows, err := r.pool.Query(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to list active rules: %w", err)
		}
		return scanRules(rows)
	}

	return WithRetry[[]rule.Rule](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}

func (r *RuleRepository) ListByOrganization(ctx context.Context, orgID string,
) ([]rule.Rule, error) {
	listLogic := func() ([]rule.Rule, error) {
		const query = `
SELECT id, organization_id, credit_type, amount, frequency, target_role,
       is_active, last_run_at, created_at, updated_at
FROM credit_allocation_rules
WHERE organization_id = $1
ORDER BY created_at, id`

		rows, err := r.pool.Query(ctx, query, orgID)
		if err != nil {
			return nil, fmt.Errorf("failed to list rules for org %s: %w", orgID, err)
		}
		return scanRules(rows)
	}

	return WithRetry[[]rule.Rule](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// SetLastRun records when a rule was last processed. Reporting only: the
// idempotency of allocation runs rests on the grant reason tags.
func (r *RuleRepository) SetLastRun(ctx context.Context,
	ruleID string, ranAt time.Time,
) error {
	setLogic := func() (struct{}, error) {
		const query = `
UPDATE credit_allocation_rules
SET last_run_at = $2, updated_at = now()
WHERE id = $1`

		res, err := r.pool.Exec(ctx, query, ruleID, ranAt.UTC())
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to set last run for rule %s: %w", ruleID, err)
		}
		if res.RowsAffected() == 0 {
			return struct{}{}, serviceerrs.ErrNotFound
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](setLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}

func scanRules(rows pgx.Rows) ([]rule.Rule, error) {
	defer rows.Close()

	var rules []rule.Rule
	for rows.Next() {
		var ru rule.Rule
		var creditType, frequency, targetRole string
		var lastRun pgtype.Timestamptz
		if err := rows.Scan(&ru.ID, &ru.OrganizationID, &creditType, &ru.Amount,
			&frequency, &targetRole, &ru.IsActive, &lastRun,
			&ru.CreatedAt, &ru.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		ru.CreditType = credit.Type(creditType)
		ru.Frequency = rule.Frequency(frequency)
		ru.TargetRole = rule.TargetRole(targetRole)
		if lastRun.Valid {
			t := lastRun.Time
			ru.LastRunAt = &t
		}
		rules = append(rules, ru)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rule rows: %w", err)
	}

	return rules, nil
}
