package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talx-hub/credit-ledger/internal/api/middlewares"
	"github.com/talx-hub/credit-ledger/internal/config"
	"github.com/talx-hub/credit-ledger/internal/model/member"
	"github.com/talx-hub/credit-ledger/internal/observability"
)

type CustomRouter struct {
	router *chi.Mux
	logger *slog.Logger
	cfg    *config.Config
}

func New(cfg *config.Config, log *slog.Logger) *CustomRouter {
	router := &CustomRouter{
		router: chi.NewRouter(),
		logger: log,
		cfg:    cfg,
	}

	return router
}

type WalletHandler interface {
	GetOwnBalance(w http.ResponseWriter, r *http.Request)
	GetBalance(w http.ResponseWriter, r *http.Request)
	GetHistory(w http.ResponseWriter, r *http.Request)
	Credit(w http.ResponseWriter, r *http.Request)
	Debit(w http.ResponseWriter, r *http.Request)
}

type RuleHandler interface {
	CreateRule(w http.ResponseWriter, r *http.Request)
	ListRules(w http.ResponseWriter, r *http.Request)
	DeactivateRule(w http.ResponseWriter, r *http.Request)
}

type AllocationHandler interface {
	RunAllocations(w http.ResponseWriter, r *http.Request)
}

type ReportHandler interface {
	GetOrgSummary(w http.ResponseWriter, r *http.Request)
	GetRoleBreakdown(w http.ResponseWriter, r *http.Request)
}

type MemberHandler interface {
	UpsertMember(w http.ResponseWriter, r *http.Request)
}

type HealthHandler interface {
	Ping(w http.ResponseWriter, r *http.Request)
}

type Handler interface {
	WalletHandler
	RuleHandler
	AllocationHandler
	ReportHandler
	MemberHandler
	HealthHandler
}

func (cr *CustomRouter) SetRouter(h Handler, metrics *observability.Metrics) {
	secret := []byte(cr.cfg.SecretKey)
	authenticated := middlewares.Authentication(secret, cr.logger)
	privileged := middlewares.RequireRoles(cr.logger, member.RoleAdmin, member.RoleHR)
	adminOnly := middlewares.RequireRoles(cr.logger, member.RoleAdmin)

	cr.router.Use(metrics.Middleware)

	cr.router.Route("/api", func(r chi.Router) {
		r.Use(authenticated)

		r.Get("/balance", h.GetOwnBalance)

		r.Route("/wallets", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(privileged)
				r.Get("/{ownerType}/{ownerID}/balance", h.GetBalance)
				r.Get("/{ownerType}/{ownerID}/history", h.GetHistory)
				r.With(middleware.AllowContentType("application/json")).
					Post("/credit", h.Credit)
			})
			r.With(middleware.AllowContentType("application/json")).
				Post("/debit", h.Debit)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Use(privileged)
			r.With(middleware.AllowContentType("application/json")).
				Post("/", h.CreateRule)
			r.Get("/", h.ListRules)
			r.Delete("/{ruleID}", h.DeactivateRule)
		})

		r.With(privileged).Post("/allocations/run", h.RunAllocations)

		r.Route("/reports", func(r chi.Router) {
			r.Use(privileged)
			r.Get("/summary", h.GetOrgSummary)
			r.Get("/roles", h.GetRoleBreakdown)
		})

		r.With(adminOnly, middleware.AllowContentType("application/json")).
			Put("/members", h.UpsertMember)
	})

	cr.router.Get("/ping", h.Ping)
	cr.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	cr.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)
	})
}

func (cr *CustomRouter) GetRouter() *chi.Mux {
	return cr.router
}
