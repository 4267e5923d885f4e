package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"expensa/internal/assistant"
	"expensa/internal/auth"
	"expensa/internal/cache"
	"expensa/internal/core"
	"expensa/internal/services"
	"expensa/internal/storage/memory"
)

type stubModel struct {
	reply string
	err   error
}

func (m *stubModel) Generate(context.Context, string) (string, error) { return m.reply, m.err }
func (m *stubModel) Name() string                                     { return "stub" }

type testServer struct {
	srv   *Server
	store *memory.Store
	model *stubModel
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	store := memory.New()
	model := &stubModel{reply: "You spent most on food."}

	authSvc := auth.NewService(store, time.Hour, nil, auth.WithBcryptCost(bcrypt.MinCost))
	expenses := services.NewExpenseService(store, store, nil, cache.NewLRUCache[[]core.Expense](100, time.Minute), nil)

	srv, err := NewServer(Options{
		Addr:               ":0",
		Location:           time.UTC,
		RateLimitPerMinute: rateLimit,
	}, Dependencies{
		Auth:        authSvc,
		Expenses:    expenses,
		Categories:  services.NewCategoryService(store, expenses, nil),
		Reports:     services.NewReportService(store, expenses),
		Assistant:   assistant.NewBridge(model, time.Second, nil),
		Transcripts: assistant.NewTranscripts(10, 20, time.Hour),
		Store:       store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testServer{srv: srv, store: store, model: model}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) signUp(t *testing.T, email string) auth.Session {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess auth.Session
	decode(t, rec, &sess)
	require.NotEmpty(t, sess.Token)
	return sess
}

func (ts *testServer) categoryID(t *testing.T, ownerID, name string) string {
	t.Helper()
	cats, err := ts.store.ListCategories(context.Background(), ownerID)
	require.NoError(t, err)
	for _, c := range cats {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %q not found", name)
	return ""
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env errorEnvelope
	decode(t, rec, &env)
	return env.Error.Code
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, 100)

	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = ts.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ready struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	decode(t, rec, &ready)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "ok", ready.Checks["store"])
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestReadyFailsWhenStoreUnreachable(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.srv.store = downPinger{}

	rec := ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, 100)

	sess := ts.signUp(t, "Ada@Example.com")
	assert.Equal(t, "ada@example.com", sess.Email)

	tests := []struct {
		name     string
		path     string
		body     map[string]string
		wantCode int
		wantErr  string
	}{
		{"duplicate email", "/api/auth/signup", map[string]string{"email": "ada@example.com", "password": "password123"}, http.StatusConflict, CodeConflict},
		{"weak password", "/api/auth/signup", map[string]string{"email": "bob@example.com", "password": "short"}, http.StatusUnprocessableEntity, CodeValidation},
		{"password too long", "/api/auth/signup", map[string]string{"email": "bob@example.com", "password": strings.Repeat("p", 80)}, http.StatusUnprocessableEntity, CodeValidation},
		{"invalid email", "/api/auth/signup", map[string]string{"email": "bob", "password": "password123"}, http.StatusUnprocessableEntity, CodeValidation},
		{"wrong password", "/api/auth/signin", map[string]string{"email": "ada@example.com", "password": "password999"}, http.StatusUnauthorized, CodeUnauthorized},
		{"unknown user", "/api/auth/signin", map[string]string{"email": "eve@example.com", "password": "password123"}, http.StatusUnauthorized, CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, errorCode(t, rec))
		})
	}

	rec := ts.do(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "ada@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var second auth.Session
	decode(t, rec, &second)
	assert.NotEqual(t, sess.Token, second.Token)

	rec = ts.do(t, http.MethodGet, "/api/expenses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = ts.do(t, http.MethodPost, "/api/auth/signout", sess.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/expenses", sess.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/expenses", second.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignUpSeedsDefaultCategories(t *testing.T) {
	ts := newTestServer(t, 100)
	sess := ts.signUp(t, "ada@example.com")

	rec := ts.do(t, http.MethodGet, "/api/categories", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Range      *rangeDTO          `json:"range"`
		Categories []categoryTotalDTO `json:"categories"`
	}
	decode(t, rec, &resp)

	require.Len(t, resp.Categories, 6)
	names := make([]string, 0, len(resp.Categories))
	for _, c := range resp.Categories {
		names = append(names, c.Name)
		assert.True(t, c.IsDefault)
		assert.Zero(t, c.Total.Cents)
	}
	assert.IsIncreasing(t, names)
	require.NotNil(t, resp.Range)
	now := time.Now().UTC()
	assert.Equal(t, int(now.Month())-1, resp.Range.Month)
}

func TestExpenseLifecycleWithLimitWarning(t *testing.T) {
	ts := newTestServer(t, 100)
	sess := ts.signUp(t, "ada@example.com")
	food := ts.categoryID(t, sess.UserID, "Food & Dining")

	rec := ts.do(t, http.MethodPatch, "/api/categories/"+food, sess.Token, map[string]any{"limit": "100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cat categoryDTO
	decode(t, rec, &cat)
	require.NotNil(t, cat.Limit)
	assert.Equal(t, int64(10000), cat.Limit.Cents)

	rec = ts.do(t, http.MethodPost, "/api/expenses", sess.Token, map[string]any{
		"amount": 80, "description": "groceries", "category_id": food,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first expenseDTO
	decode(t, rec, &first)
	assert.Equal(t, "80.00", first.Amount.Value)
	require.NotNil(t, first.Category)
	assert.Equal(t, "Food & Dining", first.Category.Name)

	rec = ts.do(t, http.MethodPost, "/api/expenses/preview", sess.Token, map[string]any{"amount": "30", "category_id": food})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview previewDTO
	decode(t, rec, &preview)
	assert.True(t, preview.Exceeds)
	require.NotNil(t, preview.Warning)
	assert.Equal(t, int64(1000), preview.Warning.Exceedance.Cents)

	dinner := map[string]any{"amount": "30", "description": "dinner", "category_id": food, "request_id": "r-1"}
	rec = ts.do(t, http.MethodPost, "/api/expenses", sess.Token, dinner)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var conflict errorEnvelope
	decode(t, rec, &conflict)
	assert.Equal(t, CodeLimitExceeded, conflict.Error.Code)
	require.NotNil(t, conflict.Warning)
	assert.Equal(t, int64(8000), conflict.Warning.CurrentTotal.Cents)
	assert.Equal(t, int64(1000), conflict.Warning.Exceedance.Cents)

	dinner["confirm_exceed"] = true
	rec = ts.do(t, http.MethodPost, "/api/expenses", sess.Token, dinner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/expenses", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list expenseListDTO
	decode(t, rec, &list)
	assert.Nil(t, list.Range)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "110.00", list.Total.Value)
	require.Len(t, list.Expenses, 2)
	assert.Equal(t, "dinner", list.Expenses[0].Description)
	assert.True(t, list.Expenses[0].Categorized)
	assert.Equal(t, int64(1000), list.Expenses[0].Exceedance.Cents)

	rec = ts.do(t, http.MethodGet, "/api/expenses/grouped", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var grouped groupedListDTO
	decode(t, rec, &grouped)
	require.Len(t, grouped.Groups, 1)
	assert.Len(t, grouped.Groups[0].Expenses, 2)
	assert.Equal(t, int64(11000), grouped.CategorizedTotal.Cents)

	rec = ts.do(t, http.MethodDelete, "/api/expenses/"+first.ID, sess.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/expenses/"+first.ID, sess.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/expenses", sess.Token, nil)
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)
}

func TestCreateExpenseValidation(t *testing.T) {
	ts := newTestServer(t, 100)
	sess := ts.signUp(t, "ada@example.com")
	food := ts.categoryID(t, sess.UserID, "Food & Dining")

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{"bad amount", map[string]any{"amount": "abc", "description": "x", "category_id": food}, http.StatusUnprocessableEntity},
		{"zero amount", map[string]any{"amount": 0, "description": "x", "category_id": food}, http.StatusUnprocessableEntity},
		{"blank description", map[string]any{"amount": 1, "description": "  ", "category_id": food}, http.StatusUnprocessableEntity},
		{"too long description", map[string]any{"amount": 1, "description": strings.Repeat("a", 201), "category_id": food}, http.StatusUnprocessableEntity},
		{"no category", map[string]any{"amount": 1, "description": "x"}, http.StatusUnprocessableEntity},
		{"unknown category", map[string]any{"amount": 1, "description": "x", "category_id": "nope"}, http.StatusNotFound},
		{"malformed json", `{"amount":`, http.StatusBadRequest},
		{"unknown field", map[string]any{"amount": 1, "description": "x", "category_id": food, "colour": "red"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/expenses", sess.Token, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/expenses", sess.Token, nil)
	var list expenseListDTO
	decode(t, rec, &list)
	assert.Zero(t, list.Count)
}

func TestExpensesAreScopedToOwner(t *testing.T) {
	ts := newTestServer(t, 100)
	ada := ts.signUp(t, "ada@example.com")
	bob := ts.signUp(t, "bob@example.com")
	food := ts.categoryID(t, ada.UserID, "Food & Dining")

	rec := ts.do(t, http.MethodPost, "/api/expenses", ada.Token, map[string]any{"amount": 5, "description": "tea", "category_id": food})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Bob cannot file an expense under Ada's category.
	rec = ts.do(t, http.MethodPost, "/api/expenses", bob.Token, map[string]any{"amount": 5, "description": "tea", "category_id": food})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/expenses", bob.Token, nil)
	var list expenseListDTO
	decode(t, rec, &list)
	assert.Zero(t, list.Count)

	rec = ts.do(t, http.MethodDelete, "/api/categories/"+food, bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListExpensesMonthFilter(t *testing.T) {
	ts := newTestServer(t, 100)
	sess := ts.signUp(t, "ada@example.com")
	food := ts.categoryID(t, sess.UserID, "Food & Dining")

	ctx := context.Background()
	for _, at := range []time.Time{
		time.Date(2024, time.January, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
	} {
		_, err := ts.store.CreateExpense(ctx, core.NewExpense{
			OwnerID: sess.UserID, Amount: core.Money{Cents: 100}, Description: "x",
			CategoryID: &food, CreatedAt: at,
		})
		require.NoError(t, err)
	}

	rec := ts.do(t, http.MethodGet, "/api/expenses?month=0&year=2024&tz=UTC", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list expenseListDTO
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)
	require.NotNil(t, list.Range)
	assert.Equal(t, 0, list.Range.Month)

	rec = ts.do(t, http.MethodGet, "/api/expenses?month=12", sess.Token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/expenses?tz=Nowhere/City", sess.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategoryEndpoints(t *testing.T) {
	ts := newTestServer(t, 100)
	sess := ts.signUp(t, "ada@example.com")

	rec := ts.do(t, http.MethodPost, "/api/categories", sess.Token, map[string]any{"name": "Travel"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var travel categoryDTO
	decode(t, rec, &travel)
	assert.Equal(t, core.DefaultIcon, travel.Icon)
	assert.True(t, core.IsValidColor(travel.Color), travel.Color)
	assert.False(t, travel.IsDefault)
	assert.Nil(t, travel.Limit)

	rec = ts.do(t, http.MethodPost, "/api/categories", sess.Token, map[string]any{"name": "Pets", "limit": "12.345"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/categories", sess.Token, map[string]any{"name": "Pets", "color": "blue"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/categories/"+travel.ID, sess.Token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPatch, "/api/categories/"+travel.ID, sess.Token, map[string]any{"limit": 250})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPatch, "/api/categories/"+travel.ID, sess.Token, `{"limit": null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &travel)
	assert.Nil(t, travel.Limit)
	rec = ts.do(t, http.MethodPatch, "/api/categories/missing", sess.Token, map[string]any{"limit": ""})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/expenses", sess.Token, map[string]any{"amount": 40, "description": "train", "category_id": travel.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/categories/"+travel.ID, sess.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/categories/"+travel.ID, sess.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/expenses", sess.Token, nil)
	var list expenseListDTO
	decode(t, rec, &list)
	require.Len(t, list.Expenses, 1)
	assert.False(t, list.Expenses[0].Categorized)
	assert.Equal(t, core.UncategorizedName, list.Expenses[0].DisplayCategory.Name)
}

func TestMonthReport(t *testing.T) {
	ts := newTestServer(t, 100)
	sess := ts.signUp(t, "ada@example.com")
	food := ts.categoryID(t, sess.UserID, "Food & Dining")
	car := ts.categoryID(t, sess.UserID, "Transportation")

	ctx := context.Background()
	seed := []struct {
		cents int64
		cat   *string
		at    time.Time
	}{
		{30000, &food, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)},
		{10000, &car, time.Date(2024, time.February, 10, 9, 0, 0, 0, time.UTC)},
		{25000, &food, time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)},
		{99900, &food, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, s := range seed {
		_, err := ts.store.CreateExpense(ctx, core.NewExpense{
			OwnerID: sess.UserID, Amount: core.Money{Cents: s.cents}, Description: "x",
			CategoryID: s.cat, CreatedAt: s.at,
		})
		require.NoError(t, err)
	}

	rec := ts.do(t, http.MethodGet, "/api/reports/month?month=1&year=2024&tz=UTC", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report reportDTO
	decode(t, rec, &report)

	assert.Equal(t, "February", report.MonthName)
	assert.Equal(t, "650.00", report.Total.Value)
	assert.Len(t, report.Rows, 3)
	require.Len(t, report.Series, 2)
	assert.Equal(t, "Food & Dining", report.Series[0].Label)
	assert.InDelta(t, 84.6, report.Series[0].Percent, 0.001)
	assert.InDelta(t, 15.4, report.Series[1].Percent, 0.001)
	assert.Len(t, report.Categories, 6)

	rec = ts.do(t, http.MethodGet, "/api/reports/month?month=12&year=2024", sess.Token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAssistantEndpoints(t *testing.T) {
	ts := newTestServer(t, 100)
	sess := ts.signUp(t, "ada@example.com")

	rec := ts.do(t, http.MethodGet, "/api/assistant/greeting", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var greeting greetingDTO
	decode(t, rec, &greeting)
	assert.True(t, greeting.Enabled)
	assert.Contains(t, greeting.Greeting, "analyze your 0 expenses")

	rec = ts.do(t, http.MethodPost, "/api/assistant/ask", sess.Token, map[string]string{"query": "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/assistant/ask", sess.Token, map[string]string{"query": "Where does my money go?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var answer askDTO
	decode(t, rec, &answer)
	assert.Equal(t, "You spent most on food.", answer.Reply.Text)
	assert.Equal(t, assistant.RoleAssistant, answer.Reply.Role)
	require.Len(t, answer.Transcript, 3)
	assert.Equal(t, assistant.RoleUser, answer.Transcript[1].Role)

	ts.model.err = errors.New("quota exceeded")
	rec = ts.do(t, http.MethodPost, "/api/assistant/ask", sess.Token, map[string]string{"query": "again?"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/assistant/transcript", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var transcript struct {
		Messages []assistant.Message `json:"messages"`
	}
	decode(t, rec, &transcript)
	assert.Len(t, transcript.Messages, 3)

	// Signing out drops the transcript with the session.
	rec = ts.do(t, http.MethodPost, "/api/auth/signout", sess.Token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ts.srv.transcripts.Get(sess.Token))
}

func TestAssistantDisabled(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.srv.assistant = nil
	sess := ts.signUp(t, "ada@example.com")

	rec := ts.do(t, http.MethodGet, "/api/assistant/greeting", sess.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var greeting greetingDTO
	decode(t, rec, &greeting)
	assert.False(t, greeting.Enabled)

	rec = ts.do(t, http.MethodPost, "/api/assistant/ask", sess.Token, map[string]string{"query": "hi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWritesAreRateLimited(t *testing.T) {
	ts := newTestServer(t, 2)

	body := map[string]string{"email": "nobody@example.com", "password": "password123"}
	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/auth/signin", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/api/auth/signin", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownMethodIsRejected(t *testing.T) {
	ts := newTestServer(t, 100)
	rec := ts.do(t, http.MethodPut, "/api/expenses", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
