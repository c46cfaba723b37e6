package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talx-hub/credit-ledger/internal/model"
	"github.com/talx-hub/credit-ledger/internal/model/credit"
	"github.com/talx-hub/credit-ledger/internal/model/member"
	"github.com/talx-hub/credit-ledger/internal/model/rule"
	"github.com/talx-hub/credit-ledger/internal/service/ledger"
	"github.com/talx-hub/credit-ledger/internal/serviceerrs"
)

type RuleRepository interface {
	Create(ctx context.Context, ru *rule.Rule) (rule.Rule, error)
	Deactivate(ctx context.Context, ruleID string) error
	ListActive(ctx context.Context) ([]rule.Rule, error)
	ListByOrganization(ctx context.Context, orgID string) ([]rule.Rule, error)
	SetLastRun(ctx context.Context, ruleID string, ranAt time.Time) error
}

type MemberDirectory interface {
	ListAllocationTargets(ctx context.Context,
		orgID string, target rule.TargetRole) ([]member.Member, error)
}

type LedgerService interface {
	Credit(ctx context.Context, p ledger.CreditParams) (credit.Transaction, error)
	HasGrant(ctx context.Context,
		owner credit.Owner, creditType credit.Type, reason string) (bool, error)
}

// Engine converts standing rules into concrete grants, once per member per
// rule per calendar period. Re-runs only backfill what a prior run missed.
type Engine struct {
	rules       RuleRepository
	members     MemberDirectory
	ledger      LedgerService
	log         *slog.Logger
	workerCount int
}

func New(rules RuleRepository, members MemberDirectory,
	ledgerSvc LedgerService, workerCount int, log *slog.Logger,
) *Engine {
	if workerCount <= 0 {
		workerCount = model.DefaultAllocationWorkerCount
	}
	return &Engine{
		rules:       rules,
		members:     members,
		ledger:      ledgerSvc,
		log:         log,
		workerCount: workerCount,
	}
}

type RuleParams struct {
	OrganizationID string
	CreditType     credit.Type
	Frequency      rule.Frequency
	TargetRole     rule.TargetRole
	Amount         int64
}

func (e *Engine) CreateRule(ctx context.Context, p RuleParams) (rule.Rule, error) {
	ru := rule.Rule{
		OrganizationID: p.OrganizationID,
		CreditType:     p.CreditType,
		Frequency:      p.Frequency,
		TargetRole:     p.TargetRole,
		Amount:         p.Amount,
	}
	if err := ru.Validate(); err != nil {
		return rule.Rule{}, err //nolint: wrapcheck // typed validation error
	}

	created, err := e.rules.Create(ctx, &ru)
	if err != nil {
		return rule.Rule{}, fmt.Errorf("allocation: %w", err)
	}
	return created, nil
}

func (e *Engine) Deactivate(ctx context.Context, ruleID string) error {
	if uuid.Validate(ruleID) != nil {
		return serviceerrs.ErrNotFound
	}
	if err := e.rules.Deactivate(ctx, ruleID); err != nil {
		return fmt.Errorf("allocation: %w", err)
	}
	return nil
}

func (e *Engine) ListRules(ctx context.Context, orgID string) ([]rule.Rule, error) {
	if orgID == "" {
		return nil, &serviceerrs.ValidationError{
			Field: "organization_id", Message: "must be not empty",
		}
	}

	rules, err := e.rules.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("allocation: %w", err)
	}
	return rules, nil
}

// Grant records one applied allocation.
type Grant struct {
	RuleID        string      `json:"rule_id"`
	UserID        string      `json:"user_id"`
	TransactionID string      `json:"transaction_id"`
	CreditType    credit.Type `json:"credit_type"`
	Amount        int64       `json:"amount"`
}

// Failure records one member an allocation run could not grant to. The run
// continues past it; an idempotent re-run backfills the member.
type Failure struct {
	RuleID string `json:"rule_id"`
	UserID string `json:"user_id,omitempty"`
	Error  string `json:"error"`
}

type RunReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Granted    []Grant   `json:"granted"`
	Failures   []Failure `json:"failures"`
	Skipped    int       `json:"skipped"`
	RuleCount  int       `json:"rule_count"`
}

type ruleResult struct {
	granted  []Grant
	failures []Failure
	skipped  int
}

// RunDue applies every active rule for the period containing now. Rules are
// processed by a bounded worker pool; grants to one wallet are serialized by
// the storage layer's row locking. Safe to invoke repeatedly: each grant is
// keyed by a deterministic (rule, period) reason tag.
func (e *Engine) RunDue(ctx context.Context, now time.Time) (*RunReport, error) {
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocation: failed to enumerate rules: %w", err)
	}

	report := &RunReport{
		StartedAt: now.UTC(),
		RuleCount: len(rules),
	}

	jobs := make(chan rule.Rule)
	results := make(chan ruleResult)

	var wg sync.WaitGroup
	for i := 0; i < e.workerCount; i++ {
		wg.Add(1)
		go e.worker(ctx, &wg, now, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, ru := range rules {
			select {
			case <-ctx.Done():
				return
			case jobs <- ru:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		report.Granted = append(report.Granted, res.granted...)
		report.Failures = append(report.Failures, res.failures...)
		report.Skipped += res.skipped
	}
	report.FinishedAt = time.Now().UTC()

	e.log.LogAttrs(ctx,
		slog.LevelInfo,
		"allocation run finished",
		slog.Int("rules", report.RuleCount),
		slog.Int("granted", len(report.Granted)),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", len(report.Failures)),
	)
	return report, nil
}

func (e *Engine) worker(ctx context.Context, wg *sync.WaitGroup,
	now time.Time, jobs <-chan rule.Rule, results chan<- ruleResult,
) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ru, ok := <-jobs:
			if !ok {
				return
			}
			results <- e.processRule(ctx, now, ru)
		}
	}
}

func (e *Engine) processRule(ctx context.Context,
	now time.Time, ru rule.Rule,
) ruleResult {
	periodStart := ru.Frequency.PeriodStart(now)
	reason := rule.GrantReason(ru.ID, periodStart)

	targets, err := e.members.ListAllocationTargets(ctx, ru.OrganizationID, ru.TargetRole)
	if err != nil {
		return ruleResult{failures: []Failure{{
			RuleID: ru.ID,
			Error:  fmt.Sprintf("failed to resolve members: %s", err),
		}}}
	}

	var res ruleResult
	for _, m := range targets {
		owner := credit.Owner{Type: credit.OwnerUser, ID: m.UserID}

		granted, err := e.ledger.HasGrant(ctx, owner, ru.CreditType, reason)
		if err != nil {
			res.failures = append(res.failures, Failure{
				RuleID: ru.ID,
				UserID: m.UserID,
				Error:  fmt.Sprintf("failed to probe prior grant: %s", err),
			})
			continue
		}
		if granted {
			res.skipped++
			continue
		}

		t, err := e.ledger.Credit(ctx, ledger.CreditParams{
			Owner:      owner,
			CreditType: ru.CreditType,
			Reason:     reason,
			Amount:     ru.Amount,
		})
		if err != nil {
			res.failures = append(res.failures, Failure{
				RuleID: ru.ID,
				UserID: m.UserID,
				Error:  err.Error(),
			})
			continue
		}
		res.granted = append(res.granted, Grant{
			RuleID:        ru.ID,
			UserID:        m.UserID,
			TransactionID: t.ID,
			CreditType:    ru.CreditType,
			Amount:        ru.Amount,
		})
	}

	if err := e.rules.SetLastRun(ctx, ru.ID, now); err != nil {
		e.log.LogAttrs(ctx,
			slog.LevelError,
			"failed to record rule last run",
			slog.String("rule_id", ru.ID),
			slog.Any(model.KeyLoggerError, err),
		)
	}
	return res
}
