package httpapi_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkleindienst/library-lending-go/example/demo/httpapi"
	"github.com/pkleindienst/library-lending-go/lending"
	"github.com/pkleindienst/library-lending-go/lending/memorystore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type apiFixture struct {
	store  *memorystore.Store
	engine *lending.Engine
	server *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := memorystore.NewStore()

	engine, err := lending.NewEngine(store)
	require.NoError(t, err)

	reporting, err := lending.NewReporting(store)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := httpapi.New(engine, reporting, lending.SystemClock{}, 1.0, logger)

	server := httptest.NewServer(httpapi.NewRouter(handler))
	t.Cleanup(server.Close)

	return &apiFixture{store: store, engine: engine, server: server}
}

func (f *apiFixture) seed(t *testing.T) (memberID uuid.UUID, titleID uuid.UUID) {
	t.Helper()

	memberID = uuid.New()
	f.store.PutMember(lending.Member{ID: memberID, Name: "Jane Reader", Standing: lending.StandingActive})

	titleID = uuid.New()
	f.store.PutTitle(lending.BookTitle{
		ID: titleID, Title: "The Go Programming Language", Author: "Donovan & Kernighan",
		TotalCopies: 2, AvailableCopies: 2,
	})

	return memberID, titleID
}

func (f *apiFixture) post(t *testing.T, path string, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func (f *apiFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	payload := make(map[string]any)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	return payload
}

func Test_API_Health(t *testing.T) {
	// arrange
	f := newAPIFixture(t)

	// act
	resp := f.get(t, "/healthz")

	// assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func Test_API_IssueLoan_Created(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	memberID, titleID := f.seed(t)

	// act
	resp := f.post(t, "/loans", `{"member_id":"`+memberID.String()+`","title_id":"`+titleID.String()+`"}`)

	// assert
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, titleID.String(), payload["title_id"])
	assert.Equal(t, memberID.String(), payload["member_id"])
	assert.Equal(t, "OPEN", payload["status"])
	assert.NotEmpty(t, payload["loan_id"])
}

func Test_API_IssueLoan_BadRequest_MalformedBody(t *testing.T) {
	// arrange
	f := newAPIFixture(t)

	// act + assert
	resp := f.post(t, "/loans", `{"member_id": not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/loans", `{"member_id":"not-a-uuid","title_id":"also-not"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_API_IssueLoan_NotFound_UnknownMember(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	_, titleID := f.seed(t)

	// act
	resp := f.post(t, "/loans", `{"member_id":"`+uuid.NewString()+`","title_id":"`+titleID.String()+`"}`)

	// assert
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_API_IssueLoan_Conflict_NoCopies(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	memberID, titleID := f.seed(t)

	other := uuid.New()
	f.store.PutMember(lending.Member{ID: other, Name: "Other", Standing: lending.StandingActive})
	third := uuid.New()
	f.store.PutMember(lending.Member{ID: third, Name: "Third", Standing: lending.StandingActive})

	for _, borrower := range []uuid.UUID{memberID, other} {
		_, err := f.engine.Issue(context.Background(), lending.BuildIssueCommand(borrower, titleID))
		require.NoError(t, err)
	}

	// act: both copies are out
	resp := f.post(t, "/loans", `{"member_id":"`+third.String()+`","title_id":"`+titleID.String()+`"}`)

	// assert
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func Test_API_ReturnLoan_OKThenConflict(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	memberID, titleID := f.seed(t)

	loan, err := f.engine.Issue(context.Background(), lending.BuildIssueCommand(memberID, titleID))
	require.NoError(t, err)

	// act + assert: first return succeeds
	resp := f.post(t, "/loans/"+loan.ID.String()+"/return", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, "RETURNED", payload["status"])

	// second return conflicts
	resp = f.post(t, "/loans/"+loan.ID.String()+"/return", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func Test_API_RenewLoan_MovesDueDate(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	memberID, titleID := f.seed(t)

	loan, err := f.engine.Issue(context.Background(), lending.BuildIssueCommand(memberID, titleID))
	require.NoError(t, err)

	// act
	resp := f.post(t, "/loans/"+loan.ID.String()+"/renew", "")

	// assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	dueAt, parseErr := time.Parse(time.RFC3339Nano, payload["due_at"].(string))
	require.NoError(t, parseErr)
	assert.True(t, dueAt.After(loan.DueAt))
}

func Test_API_LoanStatus_NotFound(t *testing.T) {
	// arrange
	f := newAPIFixture(t)

	// act
	resp := f.get(t, "/loans/"+uuid.NewString())

	// assert
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_API_MemberHistory_ListsLoans(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	memberID, titleID := f.seed(t)

	_, err := f.engine.Issue(context.Background(), lending.BuildIssueCommand(memberID, titleID))
	require.NoError(t, err)

	// act
	resp := f.get(t, "/members/"+memberID.String()+"/history")

	// assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, float64(1), payload["active_loan_count"])
	loans, ok := payload["loans"].([]any)
	require.True(t, ok)
	assert.Len(t, loans, 1)
}

func Test_API_OverdueReport_EmptyWhenNothingDue(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	memberID, titleID := f.seed(t)

	_, err := f.engine.Issue(context.Background(), lending.BuildIssueCommand(memberID, titleID))
	require.NoError(t, err)

	// act
	resp := f.get(t, "/reports/overdue")

	// assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, float64(0), payload["count"])
}

func Test_API_TurnoverReport_BadRequest_MalformedBound(t *testing.T) {
	// arrange
	f := newAPIFixture(t)

	// act
	resp := f.get(t, "/reports/turnover?from=yesterday")

	// assert
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_API_TurnoverReport_CountsLoansInWindow(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	memberID, titleID := f.seed(t)

	_, err := f.engine.Issue(context.Background(), lending.BuildIssueCommand(memberID, titleID))
	require.NoError(t, err)

	// act: default window is the last 30 days
	resp := f.get(t, "/reports/turnover")

	// assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	entries, ok := payload["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)

	entry, ok := entries[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, titleID.String(), entry["title_id"])
	assert.Equal(t, float64(1), entry["loan_count"])
}
