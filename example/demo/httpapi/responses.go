package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/pkleindienst/library-lending-go/lending"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const headerContentType = "Content-Type"
const contentTypeJSON = "application/json"

type issueRequest struct {
	MemberID string `json:"member_id"`
	TitleID  string `json:"title_id"`
}

func (r issueRequest) parse() (uuid.UUID, uuid.UUID, error) {
	memberID, memberErr := uuid.Parse(r.MemberID)
	if memberErr != nil {
		return uuid.Nil, uuid.Nil, errors.New("member_id is not a valid uuid")
	}

	titleID, titleErr := uuid.Parse(r.TitleID)
	if titleErr != nil {
		return uuid.Nil, uuid.Nil, errors.New("title_id is not a valid uuid")
	}

	return memberID, titleID, nil
}

type loanResponse struct {
	LoanID        string     `json:"loan_id"`
	TitleID       string     `json:"title_id"`
	MemberID      string     `json:"member_id"`
	IssuedAt      time.Time  `json:"issued_at"`
	DueAt         time.Time  `json:"due_at"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	Status        string     `json:"status"`
	DaysOverdue   int        `json:"days_overdue"`
	DaysRemaining int        `json:"days_remaining"`
	FineAmount    float64    `json:"fine_amount"`
}

func loanResponseFrom(loan lending.Loan, now time.Time, finePerDay float64) loanResponse {
	return loanResponse{
		LoanID:        loan.ID.String(),
		TitleID:       loan.TitleID.String(),
		MemberID:      loan.MemberID.String(),
		IssuedAt:      loan.IssuedAt,
		DueAt:         loan.DueAt,
		ReturnedAt:    loan.ReturnedAt,
		Status:        string(lending.ComputeStatus(loan, now)),
		DaysOverdue:   loan.DaysOverdue(now),
		DaysRemaining: loan.DaysRemaining(now),
		FineAmount:    loan.FineAmount(now, finePerDay),
	}
}

type overdueReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Count       int            `json:"count"`
	Loans       []loanResponse `json:"loans"`
}

func overdueReportFrom(records []lending.LoanRecord, now time.Time, finePerDay float64) overdueReport {
	loans := make([]loanResponse, 0, len(records))
	for _, record := range records {
		loans = append(loans, loanResponseFrom(record.Loan, now, finePerDay))
	}

	return overdueReport{
		GeneratedAt: now,
		Count:       len(loans),
		Loans:       loans,
	}
}

type memberHistoryResponse struct {
	MemberID        string         `json:"member_id"`
	Name            string         `json:"name"`
	Standing        string         `json:"standing"`
	ActiveLoanCount int            `json:"active_loan_count"`
	Loans           []loanResponse `json:"loans"`
}

func memberHistoryFrom(history lending.MemberHistory, now time.Time, finePerDay float64) memberHistoryResponse {
	loans := make([]loanResponse, 0, len(history.Loans))
	for _, record := range history.Loans {
		loans = append(loans, loanResponseFrom(record.Loan, now, finePerDay))
	}

	return memberHistoryResponse{
		MemberID:        history.Member.ID.String(),
		Name:            history.Member.Name,
		Standing:        string(history.Member.Standing),
		ActiveLoanCount: history.ActiveLoanCount,
		Loans:           loans,
	}
}

type turnoverEntry struct {
	TitleID   string `json:"title_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	LoanCount int    `json:"loan_count"`
}

type turnoverReport struct {
	From    time.Time       `json:"from"`
	Until   time.Time       `json:"until"`
	Entries []turnoverEntry `json:"entries"`
}

func turnoverReportFrom(turnover []lending.TitleTurnover, from time.Time, until time.Time) turnoverReport {
	entries := make([]turnoverEntry, 0, len(turnover))
	for _, item := range turnover {
		entries = append(entries, turnoverEntry{
			TitleID:   item.Title.ID.String(),
			Title:     item.Title.Title,
			Author:    item.Title.Author,
			LoanCount: item.LoanCount,
		})
	}

	return turnoverReport{From: from, Until: until, Entries: entries}
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if decodeErr := json.NewDecoder(r.Body).Decode(dest); decodeErr != nil {
		writeBadRequest(w, errors.New("malformed json body"))
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// writeDomainError translates the lending error taxonomy to HTTP statuses:
// unknown records are 404, business rejections 409, store failures 503.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case lending.IsNotFound(err):
		status = http.StatusNotFound
	case lending.IsPreconditionFailed(err):
		status = http.StatusConflict
	case errors.Is(err, lending.ErrInvariantViolation):
		status = http.StatusInternalServerError
	case errors.Is(err, lending.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}
