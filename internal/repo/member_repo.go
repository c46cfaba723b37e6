package repo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talx-hub/credit-ledger/internal/model/member"
	"github.com/talx-hub/credit-ledger/internal/model/rule"
)

type MemberRepository struct {
	DB
}

func NewMemberRepository(pool connectionPool, log *slog.Logger) *MemberRepository {
	return &MemberRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

// ListAllocationTargets resolves the member set an allocation rule grants to:
// every active member for ALL, only EMPLOYEE-role members otherwise.
func (r *MemberRepository) ListAllocationTargets(ctx context.Context,
	orgID string, target rule.TargetRole,
) ([]member.Member, error) {
	listLogic := func() ([]member.Member, error) {
		const query = `
SELECT organization_id, user_id, role, is_active
FROM org_members
WHERE organization_id = $1 AND is_active
  AND ($2 OR role = 'EMPLOYEE')
ORDER BY user_id`

		rows, err := r.pool.Query(ctx, query, orgID, target == rule.TargetAll)
		if err != nil {
			return nil, fmt.Errorf("failed to list members of org %s: %w", orgID, err)
		}
		defer rows.Close()

		var members []member.Member
		for rows.Next() {
			var m member.Member
			var role string
			if err = rows.Scan(&m.OrganizationID, &m.UserID, &role, &m.IsActive); err != nil {
				return nil, fmt.Errorf("failed to scan member row: %w", err)
			}
			m.Role = member.Role(role)
			members = append(members, m)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read member rows: %w", err)
		}

		return members, nil
	}

	return WithRetry[[]member.Member](listLogic, 0) //nolint: wrapcheck // error from wrapped function
}

// Upsert refreshes one membership row from the external directory.
func (r *MemberRepository) Upsert(ctx context.Context, m *member.Member) error {
	upsertLogic := func() (struct{}, error) {
		const query = `
INSERT INTO org_members (organization_id, user_id, role, is_active)
VALUES ($1, $2, $3, $4)
ON CONFLICT (organization_id, user_id)
DO UPDATE SET role = EXCLUDED.role, is_active = EXCLUDED.is_active`

		_, err := r.pool.Exec(ctx, query,
			m.OrganizationID, m.UserID, string(m.Role), m.IsActive)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to upsert member %s: %w", m.UserID, err)
		}
		return struct{}{}, nil
	}

	_, err := WithRetry[struct{}](upsertLogic, 0)
	return err //nolint: wrapcheck // error from wrapped function
}
