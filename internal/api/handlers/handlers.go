package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/talx-hub/credit-ledger/internal/api/dto"
	"github.com/talx-hub/credit-ledger/internal/api/middlewares"
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
)

type LedgerService interface {
	GetBalance(ctx context.Context,
		owner credit.Owner, creditType credit.Type) (credit.Balance, error)
	Credit(ctx context.Context, p ledger.CreditParams) (credit.Transaction, error)
	Debit(ctx context.Context, p ledger.DebitParams) (credit.Transaction, error)
	History(ctx context.Context,
		owner credit.Owner, creditType credit.Type,
		cursor string, limit int) ([]credit.Transaction, string, error)
}

type AllocationEngine interface {
	CreateRule(ctx context.Context, p allocation.RuleParams) (rule.Rule, error)
	Deactivate(ctx context.Context, ruleID string) error
	ListRules(ctx context.Context, orgID string) ([]rule.Rule, error)
	RunDue(ctx context.Context, now time.Time) (*allocation.RunReport, error)
}

type ReportService interface {
	OrgSummary(ctx context.Context,
		orgID string, period report.Period) ([]reportmodel.TypeSummary, error)
	RoleBreakdown(ctx context.Context,
		orgID string, period report.Period) ([]reportmodel.RoleSummary, error)
}

type MemberDirectory interface {
	Upsert(ctx context.Context, m *member.Member) error
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, code int, v any) {
	w.Header().Set(model.HeaderContentType, "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.LogAttrs(context.TODO(),
			slog.LevelError,
			"failed to encode response",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var code int
	switch {
	case serviceerrs.IsValidation(err):
		code = http.StatusBadRequest
	case errors.Is(err, serviceerrs.ErrInsufficientBalance):
		code = http.StatusPaymentRequired
	case errors.Is(err, serviceerrs.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, serviceerrs.ErrTransientConflict):
		code = http.StatusConflict
	default:
		code = http.StatusInternalServerError
	}

	if code == http.StatusInternalServerError {
		log.LogAttrs(context.TODO(),
			slog.LevelError,
			"request failed",
			slog.Any(model.KeyLoggerError, err),
		)
		writeJSON(w, log, code, dto.ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, log, code, dto.ErrorResponse{Error: err.Error()})
}

type WalletHandler struct {
	ledger  LedgerService
	metrics *observability.Metrics
	log     *slog.Logger
}

func NewWalletHandler(ledgerSvc LedgerService,
	metrics *observability.Metrics, log *slog.Logger,
) *WalletHandler {
	return &WalletHandler{
		ledger:  ledgerSvc,
		metrics: metrics,
		log:     log,
	}
}

// GetOwnBalance reads the wallet of the authenticated user.
func (h *WalletHandler) GetOwnBalance(w http.ResponseWriter, r *http.Request) {
	claims, ok := middlewares.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	owner := credit.Owner{Type: credit.OwnerUser, ID: claims.UserID}
	balance, err := h.ledger.GetBalance(r.Context(), owner,
		credit.Type(r.URL.Query().Get("credit_type")))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, dto.NewBalanceResponse(balance))
}

func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner := credit.Owner{
		Type: credit.OwnerType(chi.URLParam(r, "ownerType")),
		ID:   chi.URLParam(r, "ownerID"),
	}
	balance, err := h.ledger.GetBalance(r.Context(), owner,
		credit.Type(r.URL.Query().Get("credit_type")))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, dto.NewBalanceResponse(balance))
}

func (h *WalletHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	owner := credit.Owner{
		Type: credit.OwnerType(chi.URLParam(r, "ownerType")),
		ID:   chi.URLParam(r, "ownerID"),
	}

	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			writeServiceError(w, h.log, &serviceerrs.ValidationError{
				Field: "limit", Message: "must be an integer"})
			return
		}
		limit = parsed
	}

	transactions, next, err := h.ledger.History(r.Context(), owner,
		credit.Type(r.URL.Query().Get("credit_type")),
		r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, dto.NewHistoryResponse(transactions, next))
}

func (h *WalletHandler) Credit(w http.ResponseWriter, r *http.Request) {
	claims, ok := middlewares.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	var req dto.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServiceError(w, h.log, &serviceerrs.ValidationError{
			Field: "body", Message: "malformed JSON"})
		return
	}

	t, err := h.ledger.Credit(r.Context(), ledger.CreditParams{
		Owner: credit.Owner{
			Type: credit.OwnerType(req.OwnerType),
			ID:   req.OwnerID,
		},
		CreditType: credit.Type(req.CreditType),
		Reason:     req.Reason,
		ActorID:    claims.UserID,
		Amount:     req.Amount,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	h.metrics.CountTransaction(observability.TransactionCredit)
	writeJSON(w, h.log, http.StatusCreated, dto.NewTransactionResponse(t))
}

// Debit is the booking-confirmation hook. Insufficient balance is a hard
// rejection of the booking, reported as 402.
func (h *WalletHandler) Debit(w http.ResponseWriter, r *http.Request) {
	claims, ok := middlewares.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	var req dto.DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServiceError(w, h.log, &serviceerrs.ValidationError{
			Field: "body", Message: "malformed JSON"})
		return
	}

	owner := credit.Owner{
		Type: credit.OwnerType(req.OwnerType),
		ID:   req.OwnerID,
	}
	if !isPrivileged(claims.Role) && ownsWallet(claims.UserID, owner) != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	t, err := h.ledger.Debit(r.Context(), ledger.DebitParams{
		Owner:      owner,
		CreditType: credit.Type(req.CreditType),
		Reason:     req.Reason,
		BookingID:  req.BookingID,
		ActorID:    claims.UserID,
		Amount:     req.Amount,
	})
	if err != nil {
		if errors.Is(err, serviceerrs.ErrInsufficientBalance) {
			h.metrics.CountInsufficientBalance()
		}
		writeServiceError(w, h.log, err)
		return
	}

	h.metrics.CountTransaction(observability.TransactionDebit)
	writeJSON(w, h.log, http.StatusCreated, dto.NewTransactionResponse(t))
}

func isPrivileged(role member.Role) bool {
	return role == member.RoleAdmin || role == member.RoleHR
}

func ownsWallet(userID string, owner credit.Owner) error {
	if owner.Type == credit.OwnerUser && owner.ID == userID {
		return nil
	}
	return errors.New("wallet is not owned by the caller")
}

type RuleHandler struct {
	engine AllocationEngine
	log    *slog.Logger
}

func NewRuleHandler(engine AllocationEngine, log *slog.Logger) *RuleHandler {
	return &RuleHandler{
		engine: engine,
		log:    log,
	}
}

func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req dto.RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServiceError(w, h.log, &serviceerrs.ValidationError{
			Field: "body", Message: "malformed JSON"})
		return
	}

	created, err := h.engine.CreateRule(r.Context(), allocation.RuleParams{
		OrganizationID: req.OrganizationID,
		CreditType:     credit.Type(req.CreditType),
		Frequency:      rule.Frequency(req.Frequency),
		TargetRole:     rule.TargetRole(req.TargetRole),
		Amount:         req.Amount,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, dto.NewRuleResponse(created))
}

func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		if claims, ok := middlewares.ClaimsFromContext(r.Context()); ok {
			orgID = claims.OrganizationID
		}
	}

	rules, err := h.engine.ListRules(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	resp := make([]dto.RuleResponse, len(rules))
	for i, ru := range rules {
		resp[i] = dto.NewRuleResponse(ru)
	}
	writeJSON(w, h.log, http.StatusOK, resp)
}

func (h *RuleHandler) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Deactivate(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AllocationHandler struct {
	engine  AllocationEngine
	metrics *observability.Metrics
	log     *slog.Logger
}

func NewAllocationHandler(engine AllocationEngine,
	metrics *observability.Metrics, log *slog.Logger,
) *AllocationHandler {
	return &AllocationHandler{
		engine:  engine,
		metrics: metrics,
		log:     log,
	}
}

// RunAllocations is the external scheduler's entry point. Over-invocation is
// harmless: grants are keyed per rule per period.
func (h *AllocationHandler) RunAllocations(w http.ResponseWriter, r *http.Request) {
	runReport, err := h.engine.RunDue(r.Context(), time.Now().UTC())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	h.metrics.CountAllocationRun(len(runReport.Granted), len(runReport.Failures))
	writeJSON(w, h.log, http.StatusOK, dto.NewRunReportResponse(runReport))
}

type ReportHandler struct {
	reports ReportService
	log     *slog.Logger
}

func NewReportHandler(reports ReportService, log *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		log:     log,
	}
}

func (h *ReportHandler) GetOrgSummary(w http.ResponseWriter, r *http.Request) {
	orgID, period, err := reportQuery(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	summary, err := h.reports.OrgSummary(r.Context(), orgID, period)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, summary)
}

func (h *ReportHandler) GetRoleBreakdown(w http.ResponseWriter, r *http.Request) {
	orgID, period, err := reportQuery(r)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	breakdown, err := h.reports.RoleBreakdown(r.Context(), orgID, period)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, breakdown)
}

func reportQuery(r *http.Request) (string, report.Period, error) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		if claims, ok := middlewares.ClaimsFromContext(r.Context()); ok {
			orgID = claims.OrganizationID
		}
	}

	var period report.Period
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", report.Period{}, &serviceerrs.ValidationError{
				Field: "from", Message: "must be RFC3339"}
		}
		period.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", report.Period{}, &serviceerrs.ValidationError{
				Field: "to", Message: "must be RFC3339"}
		}
		period.To = to
	}

	return orgID, period, nil
}

type MemberHandler struct {
	members MemberDirectory
	log     *slog.Logger
}

func NewMemberHandler(members MemberDirectory, log *slog.Logger) *MemberHandler {
	return &MemberHandler{
		members: members,
		log:     log,
	}
}

// UpsertMember refreshes one membership row from the external directory.
func (h *MemberHandler) UpsertMember(w http.ResponseWriter, r *http.Request) {
	var req dto.MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServiceError(w, h.log, &serviceerrs.ValidationError{
			Field: "body", Message: "malformed JSON"})
		return
	}

	m := req.ToModel()
	if m.OrganizationID == "" || m.UserID == "" {
		writeServiceError(w, h.log, &serviceerrs.ValidationError{
			Field: "member", Message: "organization_id and user_id must be not empty"})
		return
	}
	if !m.Role.IsValid() {
		writeServiceError(w, h.log, &serviceerrs.ValidationError{
			Field: "role", Message: "unknown role"})
		return
	}

	if err := h.members.Upsert(r.Context(), &m); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type Pinger interface {
	Healthy(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Healthy(r.Context()); err != nil {
		http.Error(w,
			http.StatusText(http.StatusInternalServerError),
			http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
