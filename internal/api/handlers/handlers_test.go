package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/credit-ledger/internal/api/dto"
	"github.com/talx-hub/credit-ledger/internal/model"
	"github.com/talx-hub/credit-ledger/internal/model/credit"
	"github.com/talx-hub/credit-ledger/internal/model/member"
	reportmodel "github.com/talx-hub/credit-ledger/internal/model/report"
	"github.com/talx-hub/credit-ledger/internal/model/rule"
	"github.com/talx-hub/credit-ledger/internal/observability"
	"github.com/talx-hub/credit-ledger/internal/service/allocation"
	"github.com/talx-hub/credit-ledger/internal/service/ledger"
	"github.com/talx-hub/credit-ledger/internal/service/report"
	"github.com/talx-hub/credit-ledger/internal/serviceerrs"
	"github.com/talx-hub/credit-ledger/internal/utils/auth"
)

type stubLedger struct {
	getBalance func(credit.Owner, credit.Type) (credit.Balance, error)
	creditFn   func(ledger.CreditParams) (credit.Transaction, error)
	debitFn    func(ledger.DebitParams) (credit.Transaction, error)
	historyFn  func(credit.Owner, credit.Type, string, int,
	) ([]credit.Transaction, string, error)
}

func (s *stubLedger) GetBalance(_ context.Context,
	owner credit.Owner, creditType credit.Type) (credit.Balance, error) {
	return s.getBalance(owner, creditType)
}

func (s *stubLedger) Credit(_ context.Context, p ledger.CreditParams,
) (credit.Transaction, error) {
	return s.creditFn(p)
}

func (s *stubLedger) Debit(_ context.Context, p ledger.DebitParams,
) (credit.Transaction, error) {
	return s.debitFn(p)
}

func (s *stubLedger) History(_ context.Context,
	owner credit.Owner, creditType credit.Type, cursor string, limit int,
) ([]credit.Transaction, string, error) {
	return s.historyFn(owner, creditType, cursor, limit)
}

type stubEngine struct {
	createFn     func(allocation.RuleParams) (rule.Rule, error)
	deactivateFn func(string) error
	listFn       func(string) ([]rule.Rule, error)
	runFn        func() (*allocation.RunReport, error)
}

func (s *stubEngine) CreateRule(_ context.Context, p allocation.RuleParams,
) (rule.Rule, error) {
	return s.createFn(p)
}

func (s *stubEngine) Deactivate(_ context.Context, ruleID string) error {
	return s.deactivateFn(ruleID)
}

func (s *stubEngine) ListRules(_ context.Context, orgID string,
) ([]rule.Rule, error) {
	return s.listFn(orgID)
}

func (s *stubEngine) RunDue(_ context.Context, _ time.Time,
) (*allocation.RunReport, error) {
	return s.runFn()
}

type stubReports struct {
	summaryFn   func(string, report.Period) ([]reportmodel.TypeSummary, error)
	breakdownFn func(string, report.Period) ([]reportmodel.RoleSummary, error)
}

func (s *stubReports) OrgSummary(_ context.Context,
	orgID string, period report.Period) ([]reportmodel.TypeSummary, error) {
	return s.summaryFn(orgID, period)
}

func (s *stubReports) RoleBreakdown(_ context.Context,
	orgID string, period report.Period) ([]reportmodel.RoleSummary, error) {
	return s.breakdownFn(orgID, period)
}

type stubMembers struct {
	upsertFn func(*member.Member) error
}

func (s *stubMembers) Upsert(_ context.Context, m *member.Member) error {
	return s.upsertFn(m)
}

func withClaims(r *http.Request, userID, orgID string, role member.Role,
) *http.Request {
	claims := auth.Claims{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           role,
	}
	ctx := context.WithValue(r.Context(), model.KeyContextClaims, claims)
	return r.WithContext(ctx)
}

func withURLParams(r *http.Request, params map[string]string) *http.Request {
	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, routeCtx)
	return r.WithContext(ctx)
}

func TestWalletHandler_GetOwnBalance(t *testing.T) {
	svc := &stubLedger{
		getBalance: func(owner credit.Owner, creditType credit.Type,
		) (credit.Balance, error) {
			if !creditType.IsValid() {
				return credit.Balance{}, &serviceerrs.ValidationError{
					Field: "credit_type", Message: "unknown credit type"}
			}
			assert.Equal(t, credit.OwnerUser, owner.Type)
			return credit.Balance{CreditType: creditType, Balance: 7}, nil
		},
	}
	h := NewWalletHandler(svc, observability.New(), slog.Default())

	tests := []struct {
		name     string
		query    string
		loggedIn bool
		wantCode int
	}{
		{"no claims", "?credit_type=SESSION_1_1", false, http.StatusUnauthorized},
		{"happy path", "?credit_type=SESSION_1_1", true, http.StatusOK},
		{"missing credit type", "", true, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(
				http.MethodGet, "/api/balance"+tt.query, http.NoBody)
			if tt.loggedIn {
				req = withClaims(req, "user-1", "org-1", member.RoleEmployee)
			}
			rr := httptest.NewRecorder()
			h.GetOwnBalance(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode == http.StatusOK {
				var resp dto.BalanceResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, int64(7), resp.Balance)
			}
		})
	}
}

func TestWalletHandler_GetBalance(t *testing.T) {
	svc := &stubLedger{
		getBalance: func(owner credit.Owner, creditType credit.Type,
		) (credit.Balance, error) {
			if err := owner.Validate(); err != nil {
				return credit.Balance{}, err
			}
			return credit.Balance{CreditType: creditType, Balance: 3}, nil
		},
	}
	h := NewWalletHandler(svc, observability.New(), slog.Default())

	tests := []struct {
		name      string
		ownerType string
		wantCode  int
	}{
		{"org wallet", "ORG", http.StatusOK},
		{"user wallet", "USER", http.StatusOK},
		{"unknown owner type", "TEAM", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet,
				"/api/wallets/x/y/balance?credit_type=SESSION_1_1", http.NoBody)
			req = withURLParams(req, map[string]string{
				"ownerType": tt.ownerType,
				"ownerID":   "owner-1",
			})
			rr := httptest.NewRecorder()
			h.GetBalance(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestWalletHandler_GetHistory(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubLedger{
		historyFn: func(_ credit.Owner, _ credit.Type, cursor string, limit int,
		) ([]credit.Transaction, string, error) {
			assert.Empty(t, cursor)
			assert.Equal(t, 2, limit)
			return []credit.Transaction{
				{ID: "t-2", Delta: -1, CreatedAt: now},
				{ID: "t-1", Delta: 5, CreatedAt: now.Add(-time.Hour)},
			}, "next-cursor", nil
		},
	}
	h := NewWalletHandler(svc, observability.New(), slog.Default())

	req := httptest.NewRequest(http.MethodGet,
		"/api/wallets/USER/u-1/history?credit_type=SESSION_1_1&limit=2",
		http.NoBody)
	req = withURLParams(req, map[string]string{
		"ownerType": "USER",
		"ownerID":   "u-1",
	})
	rr := httptest.NewRecorder()
	h.GetHistory(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp dto.HistoryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Transactions, 2)
	assert.Equal(t, "next-cursor", resp.NextCursor)
}

func TestWalletHandler_GetHistory_BadLimit(t *testing.T) {
	h := NewWalletHandler(&stubLedger{}, observability.New(), slog.Default())

	req := httptest.NewRequest(http.MethodGet,
		"/api/wallets/USER/u-1/history?limit=abc", http.NoBody)
	req = withURLParams(req, map[string]string{
		"ownerType": "USER",
		"ownerID":   "u-1",
	})
	rr := httptest.NewRecorder()
	h.GetHistory(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWalletHandler_Credit(t *testing.T) {
	svc := &stubLedger{
		creditFn: func(p ledger.CreditParams) (credit.Transaction, error) {
			assert.Equal(t, "admin-1", p.ActorID)
			return credit.Transaction{ID: "t-1", Delta: p.Amount}, nil
		},
	}
	h := NewWalletHandler(svc, observability.New(), slog.Default())

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			"happy path",
			`{"owner_type":"ORG","owner_id":"org-1",` +
				`"credit_type":"SESSION_1_1","reason":"manual/topup","amount":10}`,
			http.StatusCreated,
		},
		{
			"malformed JSON",
			`{"owner_type":`,
			http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost,
				"/api/wallets/credit", strings.NewReader(tt.body))
			req = withClaims(req, "admin-1", "org-1", member.RoleAdmin)
			rr := httptest.NewRecorder()
			h.Credit(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestWalletHandler_Debit(t *testing.T) {
	svc := &stubLedger{
		debitFn: func(p ledger.DebitParams) (credit.Transaction, error) {
			if p.Amount > 5 {
				return credit.Transaction{}, serviceerrs.ErrInsufficientBalance
			}
			return credit.Transaction{ID: "t-1", Delta: -p.Amount}, nil
		},
	}
	h := NewWalletHandler(svc, observability.New(), slog.Default())

	debitBody := func(ownerType, ownerID string, amount int64) string {
		body, err := json.Marshal(dto.DebitRequest{
			OwnerType:  ownerType,
			OwnerID:    ownerID,
			CreditType: "SESSION_1_1",
			Reason:     "booking/consume",
			BookingID:  "b-1",
			Amount:     amount,
		})
		require.NoError(t, err)
		return string(body)
	}

	tests := []struct {
		name     string
		body     string
		userID   string
		role     member.Role
		wantCode int
	}{
		{
			"own wallet",
			debitBody("USER", "user-1", 1),
			"user-1",
			member.RoleEmployee,
			http.StatusCreated,
		},
		{
			"foreign wallet",
			debitBody("USER", "user-2", 1),
			"user-1",
			member.RoleEmployee,
			http.StatusForbidden,
		},
		{
			"org wallet by employee",
			debitBody("ORG", "org-1", 1),
			"user-1",
			member.RoleEmployee,
			http.StatusForbidden,
		},
		{
			"org wallet by HR",
			debitBody("ORG", "org-1", 1),
			"hr-1",
			member.RoleHR,
			http.StatusCreated,
		},
		{
			"insufficient balance",
			debitBody("USER", "user-1", 100),
			"user-1",
			member.RoleEmployee,
			http.StatusPaymentRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost,
				"/api/wallets/debit", strings.NewReader(tt.body))
			req = withClaims(req, tt.userID, "org-1", tt.role)
			rr := httptest.NewRecorder()
			h.Debit(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestRuleHandler_CreateRule(t *testing.T) {
	engine := &stubEngine{
		createFn: func(p allocation.RuleParams) (rule.Rule, error) {
			ru := rule.Rule{
				ID:             "rule-1",
				OrganizationID: p.OrganizationID,
				CreditType:     p.CreditType,
				Frequency:      p.Frequency,
				TargetRole:     p.TargetRole,
				Amount:         p.Amount,
				IsActive:       true,
			}
			if err := ru.Validate(); err != nil {
				return rule.Rule{}, err
			}
			return ru, nil
		},
	}
	h := NewRuleHandler(engine, slog.Default())

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			"happy path",
			`{"organization_id":"org-1","credit_type":"SESSION_1_1",` +
				`"frequency":"MONTHLY","target_role":"EMPLOYEE","amount":2}`,
			http.StatusCreated,
		},
		{
			"unknown frequency",
			`{"organization_id":"org-1","credit_type":"SESSION_1_1",` +
				`"frequency":"DAILY","target_role":"EMPLOYEE","amount":2}`,
			http.StatusBadRequest,
		},
		{
			"malformed JSON",
			`{"organization_id"`,
			http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost,
				"/api/rules", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.CreateRule(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestRuleHandler_ListRules_FallsBackToClaimsOrg(t *testing.T) {
	engine := &stubEngine{
		listFn: func(orgID string) ([]rule.Rule, error) {
			assert.Equal(t, "org-from-claims", orgID)
			return []rule.Rule{{ID: "rule-1", OrganizationID: orgID}}, nil
		},
	}
	h := NewRuleHandler(engine, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/rules", http.NoBody)
	req = withClaims(req, "hr-1", "org-from-claims", member.RoleHR)
	rr := httptest.NewRecorder()
	h.ListRules(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp []dto.RuleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
}

func TestRuleHandler_DeactivateRule(t *testing.T) {
	engine := &stubEngine{
		deactivateFn: func(ruleID string) error {
			if ruleID == "missing" {
				return serviceerrs.ErrNotFound
			}
			return nil
		},
	}
	h := NewRuleHandler(engine, slog.Default())

	tests := []struct {
		name     string
		ruleID   string
		wantCode int
	}{
		{"happy path", "rule-1", http.StatusNoContent},
		{"unknown rule", "missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete,
				"/api/rules/"+tt.ruleID, http.NoBody)
			req = withURLParams(req, map[string]string{"ruleID": tt.ruleID})
			rr := httptest.NewRecorder()
			h.DeactivateRule(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestAllocationHandler_RunAllocations(t *testing.T) {
	engine := &stubEngine{
		runFn: func() (*allocation.RunReport, error) {
			return &allocation.RunReport{
				Granted: []allocation.Grant{
					{RuleID: "rule-1", UserID: "user-1", Amount: 2},
				},
				Skipped:   3,
				RuleCount: 1,
			}, nil
		},
	}
	h := NewAllocationHandler(engine, observability.New(), slog.Default())

	req := httptest.NewRequest(http.MethodPost,
		"/api/allocations/run", http.NoBody)
	rr := httptest.NewRecorder()
	h.RunAllocations(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp dto.RunReportResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Granted, 1)
	assert.Equal(t, 3, resp.Skipped)
}

func TestAllocationHandler_RunAllocations_EngineError(t *testing.T) {
	engine := &stubEngine{
		runFn: func() (*allocation.RunReport, error) {
			return nil, errors.New("rules storage down")
		},
	}
	h := NewAllocationHandler(engine, observability.New(), slog.Default())

	req := httptest.NewRequest(http.MethodPost,
		"/api/allocations/run", http.NoBody)
	rr := httptest.NewRecorder()
	h.RunAllocations(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "rules storage down")
}

func TestReportHandler_GetOrgSummary(t *testing.T) {
	reports := &stubReports{
		summaryFn: func(orgID string, period report.Period,
		) ([]reportmodel.TypeSummary, error) {
			assert.Equal(t, "org-1", orgID)
			assert.Equal(t,
				time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), period.From)
			return []reportmodel.TypeSummary{
				{CreditType: credit.TypeSession, Allocated: 10, Consumed: 4},
			}, nil
		},
	}
	h := NewReportHandler(reports, slog.Default())

	tests := []struct {
		name     string
		query    string
		wantCode int
	}{
		{
			"happy path",
			"?organization_id=org-1&from=2026-05-01T00:00:00Z",
			http.StatusOK,
		},
		{
			"bad from",
			"?organization_id=org-1&from=yesterday",
			http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet,
				"/api/reports/summary"+tt.query, http.NoBody)
			rr := httptest.NewRecorder()
			h.GetOrgSummary(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestReportHandler_GetRoleBreakdown(t *testing.T) {
	reports := &stubReports{
		breakdownFn: func(orgID string, _ report.Period,
		) ([]reportmodel.RoleSummary, error) {
			assert.Equal(t, "org-claims", orgID)
			return []reportmodel.RoleSummary{
				{Role: member.RoleEmployee, Allocated: 6, Consumed: 2},
			}, nil
		},
	}
	h := NewReportHandler(reports, slog.Default())

	req := httptest.NewRequest(http.MethodGet,
		"/api/reports/roles", http.NoBody)
	req = withClaims(req, "hr-1", "org-claims", member.RoleHR)
	rr := httptest.NewRecorder()
	h.GetRoleBreakdown(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp []reportmodel.RoleSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, member.RoleEmployee, resp[0].Role)
}

func TestMemberHandler_UpsertMember(t *testing.T) {
	members := &stubMembers{
		upsertFn: func(m *member.Member) error {
			assert.True(t, m.Role.IsValid())
			return nil
		},
	}
	h := NewMemberHandler(members, slog.Default())

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			"happy path",
			`{"organization_id":"org-1","user_id":"user-1",` +
				`"role":"EMPLOYEE","is_active":true}`,
			http.StatusNoContent,
		},
		{
			"missing user",
			`{"organization_id":"org-1","role":"EMPLOYEE"}`,
			http.StatusBadRequest,
		},
		{
			"unknown role",
			`{"organization_id":"org-1","user_id":"user-1","role":"BOSS"}`,
			http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut,
				"/api/members", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.UpsertMember(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Healthy(_ context.Context) error {
	return s.err
}

func TestHealthHandler_Ping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"healthy", nil, http.StatusOK},
		{"db down", errors.New("no connection"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(&stubPinger{err: tt.err})
			req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
			rr := httptest.NewRecorder()
			h.Ping(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}
