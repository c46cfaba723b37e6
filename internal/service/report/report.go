package report

import (
	"context"
	"fmt"
	"time"

	"github.com/talx-hub/credit-ledger/internal/model/report"
	"github.com/talx-hub/credit-ledger/internal/serviceerrs"
)

type Repository interface {
	OrgSummary(ctx context.Context,
		orgID string, from, to time.Time) ([]report.TypeSummary, error)
	RoleBreakdown(ctx context.Context,
		orgID string, from, to time.Time) ([]report.RoleSummary, error)
}

// Service serves dashboard aggregations. Pure projections over the
// transaction log; reads may lag concurrent writes.
type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Period is a half-open [From, To) reporting window. Zero ends default to
// the start of the current calendar month and to now.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) resolve(now time.Time) (time.Time, time.Time, error) {
	from, to := p.From, p.To
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, &serviceerrs.ValidationError{
			Field: "period", Message: "from must precede to",
		}
	}
	return from.UTC(), to.UTC(), nil
}

func (s *Service) OrgSummary(ctx context.Context,
	orgID string, period Period,
) ([]report.TypeSummary, error) {
	if orgID == "" {
		return nil, &serviceerrs.ValidationError{
			Field: "organization_id", Message: "must be not empty",
		}
	}
	from, to, err := period.resolve(time.Now())
	if err != nil {
		return nil, err
	}

	summaries, err := s.repo.OrgSummary(ctx, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return summaries, nil
}

func (s *Service) RoleBreakdown(ctx context.Context,
	orgID string, period Period,
) ([]report.RoleSummary, error) {
	if orgID == "" {
		return nil, &serviceerrs.ValidationError{
			Field: "organization_id", Message: "must be not empty",
		}
	}
	from, to, err := period.resolve(time.Now())
	if err != nil {
		return nil, err
	}

	breakdown, err := s.repo.RoleBreakdown(ctx, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return breakdown, nil
}
