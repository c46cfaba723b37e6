package dto

import (
	"time"

	"github.com/talx-hub/credit-ledger/internal/model/credit"
	"github.com/talx-hub/credit-ledger/internal/model/member"
	"github.com/talx-hub/credit-ledger/internal/model/rule"
	"github.com/talx-hub/credit-ledger/internal/service/allocation"
)

type BalanceResponse struct {
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreditType string     `json:"credit_type"`
	Balance    int64      `json:"balance"`
}

func NewBalanceResponse(b credit.Balance) BalanceResponse {
	return BalanceResponse{
		ExpiresAt:  b.ExpiresAt,
		CreditType: string(b.CreditType),
		Balance:    b.Balance,
	}
}

type CreditRequest struct {
	OwnerType  string `json:"owner_type"`
	OwnerID    string `json:"owner_id"`
	CreditType string `json:"credit_type"`
	Reason     string `json:"reason"`
	Amount     int64  `json:"amount"`
}

type DebitRequest struct {
	OwnerType  string `json:"owner_type"`
	OwnerID    string `json:"owner_id"`
	CreditType string `json:"credit_type"`
	Reason     string `json:"reason"`
	BookingID  string `json:"booking_id,omitempty"`
	Amount     int64  `json:"amount"`
}

type TransactionResponse struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	WalletID  string    `json:"wallet_id"`
	Reason    string    `json:"reason"`
	BookingID string    `json:"booking_id,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	Delta     int64     `json:"delta"`
}

func NewTransactionResponse(t credit.Transaction) TransactionResponse {
	return TransactionResponse{
		CreatedAt: t.CreatedAt,
		ID:        t.ID,
		WalletID:  t.WalletID,
		Reason:    t.Reason,
		BookingID: t.BookingID,
		CreatedBy: t.CreatedBy,
		Delta:     t.Delta,
	}
}

type HistoryResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

func NewHistoryResponse(transactions []credit.Transaction, next string) HistoryResponse {
	resp := HistoryResponse{
		Transactions: make([]TransactionResponse, len(transactions)),
		NextCursor:   next,
	}
	for i, t := range transactions {
		resp.Transactions[i] = NewTransactionResponse(t)
	}
	return resp
}

type RuleRequest struct {
	OrganizationID string `json:"organization_id"`
	CreditType     string `json:"credit_type"`
	Frequency      string `json:"frequency"`
	TargetRole     string `json:"target_role"`
	Amount         int64  `json:"amount"`
}

type RuleResponse struct {
	CreatedAt      time.Time  `json:"created_at"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	CreditType     string     `json:"credit_type"`
	Frequency      string     `json:"frequency"`
	TargetRole     string     `json:"target_role"`
	Amount         int64      `json:"amount"`
	IsActive       bool       `json:"is_active"`
}

func NewRuleResponse(ru rule.Rule) RuleResponse {
	return RuleResponse{
		CreatedAt:      ru.CreatedAt,
		LastRunAt:      ru.LastRunAt,
		ID:             ru.ID,
		OrganizationID: ru.OrganizationID,
		CreditType:     string(ru.CreditType),
		Frequency:      string(ru.Frequency),
		TargetRole:     string(ru.TargetRole),
		Amount:         ru.Amount,
		IsActive:       ru.IsActive,
	}
}

type MemberRequest struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	IsActive       bool   `json:"is_active"`
}

func (r *MemberRequest) ToModel() member.Member {
	return member.Member{
		OrganizationID: r.OrganizationID,
		UserID:         r.UserID,
		Role:           member.Role(r.Role),
		IsActive:       r.IsActive,
	}
}

type RunReportResponse struct {
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Granted    []allocation.Grant   `json:"granted"`
	Failures   []allocation.Failure `json:"failures"`
	Skipped    int                  `json:"skipped"`
	RuleCount  int                  `json:"rule_count"`
}

func NewRunReportResponse(r *allocation.RunReport) RunReportResponse {
	return RunReportResponse{
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Granted:    r.Granted,
		Failures:   r.Failures,
		Skipped:    r.Skipped,
		RuleCount:  r.RuleCount,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}
