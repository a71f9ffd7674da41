// Package httpapi is the thin HTTP layer of the demo service. It delegates to
// the lending engine and reporting view without embedding business logic so
// transport concerns remain isolated.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/pkleindienst/library-lending-go/lending"
)

// Handler wires lending endpoints to the engine and reporting view.
type Handler struct {
	engine     *lending.Engine
	reporting  *lending.Reporting
	clock      lending.Clock
	finePerDay float64
	logger     *slog.Logger
}

// New constructs a handler with its dependencies.
func New(engine *lending.Engine, reporting *lending.Reporting, clock lending.Clock, finePerDay float64, logger *slog.Logger) *Handler {
	return &Handler{
		engine:     engine,
		reporting:  reporting,
		clock:      clock,
		finePerDay: finePerDay,
		logger:     logger,
	}
}

// NewRouter builds the chi router for the demo service.
func NewRouter(h *Handler) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", h.HandleHealth)

	router.Post("/loans", h.HandleIssue)
	router.Post("/loans/{loanID}/return", h.HandleReturn)
	router.Post("/loans/{loanID}/renew", h.HandleRenew)
	router.Get("/loans/{loanID}", h.HandleLoanStatus)

	router.Get("/reports/overdue", h.HandleOverdueReport)
	router.Get("/reports/turnover", h.HandleTurnoverReport)
	router.Get("/members/{memberID}/history", h.HandleMemberHistory)

	return router
}

// HandleHealth handles GET /healthz requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleIssue handles POST /loans requests.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	memberID, titleID, parseErr := req.parse()
	if parseErr != nil {
		writeBadRequest(w, parseErr)
		return
	}

	loan, issueErr := h.engine.Issue(ctx, lending.BuildIssueCommand(memberID, titleID))
	if issueErr != nil {
		h.logger.InfoContext(ctx, "issue rejected",
			"member_id", req.MemberID, "title_id", req.TitleID, "error", issueErr)
		writeDomainError(w, issueErr)

		return
	}

	writeJSON(w, http.StatusCreated, loanResponseFrom(loan, h.clock.Now(), h.finePerDay))
}

// HandleReturn handles POST /loans/{loanID}/return requests.
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	h.handleLoanCommand(w, r, func(loanID uuid.UUID) (lending.Loan, error) {
		return h.engine.Return(r.Context(), lending.BuildReturnCommand(loanID))
	})
}

// HandleRenew handles POST /loans/{loanID}/renew requests.
func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	h.handleLoanCommand(w, r, func(loanID uuid.UUID) (lending.Loan, error) {
		return h.engine.Renew(r.Context(), lending.BuildRenewCommand(loanID))
	})
}

func (h *Handler) handleLoanCommand(w http.ResponseWriter, r *http.Request, command func(uuid.UUID) (lending.Loan, error)) {
	loanID, parseErr := uuid.Parse(chi.URLParam(r, "loanID"))
	if parseErr != nil {
		writeBadRequest(w, parseErr)
		return
	}

	loan, commandErr := command(loanID)
	if commandErr != nil {
		h.logger.InfoContext(r.Context(), "loan command rejected",
			"loan_id", loanID, "error", commandErr)
		writeDomainError(w, commandErr)

		return
	}

	writeJSON(w, http.StatusOK, loanResponseFrom(loan, h.clock.Now(), h.finePerDay))
}

// HandleLoanStatus handles GET /loans/{loanID} requests, returning the loan
// with its derived status.
func (h *Handler) HandleLoanStatus(w http.ResponseWriter, r *http.Request) {
	loanID, parseErr := uuid.Parse(chi.URLParam(r, "loanID"))
	if parseErr != nil {
		writeBadRequest(w, parseErr)
		return
	}

	loan, findErr := h.engine.FindLoan(r.Context(), loanID)
	if findErr != nil {
		writeDomainError(w, findErr)
		return
	}

	writeJSON(w, http.StatusOK, loanResponseFrom(loan, h.clock.Now(), h.finePerDay))
}

// HandleOverdueReport handles GET /reports/overdue requests.
func (h *Handler) HandleOverdueReport(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()

	records, reportErr := h.reporting.OverdueLoans(r.Context(), now)
	if reportErr != nil {
		writeDomainError(w, reportErr)
		return
	}

	writeJSON(w, http.StatusOK, overdueReportFrom(records, now, h.finePerDay))
}

// HandleTurnoverReport handles GET /reports/turnover?from=...&until=... requests.
// Bounds default to the last 30 days.
func (h *Handler) HandleTurnoverReport(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	from := now.AddDate(0, 0, -30)
	until := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			writeBadRequest(w, parseErr)
			return
		}

		from = parsed
	}

	if raw := r.URL.Query().Get("until"); raw != "" {
		parsed, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			writeBadRequest(w, parseErr)
			return
		}

		until = parsed
	}

	turnover, reportErr := h.reporting.TurnoverPerTitle(r.Context(), from, until)
	if reportErr != nil {
		writeDomainError(w, reportErr)
		return
	}

	writeJSON(w, http.StatusOK, turnoverReportFrom(turnover, from, until))
}

// HandleMemberHistory handles GET /members/{memberID}/history requests.
func (h *Handler) HandleMemberHistory(w http.ResponseWriter, r *http.Request) {
	memberID, parseErr := uuid.Parse(chi.URLParam(r, "memberID"))
	if parseErr != nil {
		writeBadRequest(w, parseErr)
		return
	}

	now := h.clock.Now()

	history, reportErr := h.reporting.HistoryForMember(r.Context(), memberID, now)
	if reportErr != nil {
		writeDomainError(w, reportErr)
		return
	}

	writeJSON(w, http.StatusOK, memberHistoryFrom(history, now, h.finePerDay))
}
