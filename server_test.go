package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"finchat/internal/appdb"
	"finchat/internal/testdb"
	"finchat/pkg/rag"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubGenerator struct {
	mu    sync.Mutex
	calls int
	last  rag.Prompt
	err   error
}

func (g *stubGenerator) Generate(_ context.Context, p rag.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.last = p
	if g.err != nil {
		return "", g.err
	}
	return "Revenue grew to 1,200 USD in 2023.", nil
}

// performRequest sends one request with an optional bearer token.
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type testEnv struct {
	db     *gorm.DB
	srv    *server
	router *gin.Engine
	gen    *stubGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testdb.Open(t)
	log := zap.NewNop()
	require.NoError(t, appdb.Seed(db, log))
	cfg := config{
		JWTSecret:      []byte("test-secret"),
		UploadBase:     t.TempDir(),
		MaxUploadBytes: 1 << 20,
		TopK:           6,
		MemoryTurns:    4,
	}
	gen := &stubGenerator{}
	srv := newServer(db, cfg, log, gen, nil)
	return &testEnv{db: db, srv: srv, router: srv.router(), gen: gen}
}

func (e *testEnv) login(t *testing.T, username, password string) (string, string) {
	t.Helper()
	rec := performRequest(e.router, http.MethodPost, "/api/login",
		jsonBody(t, map[string]string{"username": username, "password": password}), "", "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	return body["token"].(string), body["refresh_token"].(string)
}

func (e *testEnv) createCompany(t *testing.T, token, name string, parent *uint) uint {
	t.Helper()
	rec := performRequest(e.router, http.MethodPost, "/api/companies",
		jsonBody(t, map[string]any{"name": name, "parent_company_id": parent}), token, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return uint(decode(t, rec)["ID"].(float64))
}

func (e *testEnv) upload(t *testing.T, token string, companyID uint, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, _ = w.Write([]byte(content))
	require.NoError(t, mw.Close())
	path := "/api/companies/" + strconv.FormatUint(uint64(companyID), 10) + "/uploads"
	return performRequest(e.router, http.MethodPost, path, buf, token, mw.FormDataContentType())
}

const balanceCSV = "Line item,FY2022,FY2023\nRevenue,\"1,000\",\"1,200\"\nTotal assets,5000,N/A\n"

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)

	rec := performRequest(e.router, http.MethodPost, "/api/register",
		jsonBody(t, map[string]string{"username": "user1", "password": "pass123"}), "", "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = performRequest(e.router, http.MethodPost, "/api/register",
		jsonBody(t, map[string]string{"username": "user1", "password": "pass123"}), "", "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = performRequest(e.router, http.MethodPost, "/api/login",
		jsonBody(t, map[string]string{"username": "user1", "password": "wrong"}), "", "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, refresh := e.login(t, "user1", "pass123")
	rec = performRequest(e.router, http.MethodGet, "/api/me", nil, token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)
	assert.Equal(t, "user1", me["username"])
	assert.Equal(t, "analyst", me["role"])

	rec = performRequest(e.router, http.MethodPost, "/api/refresh",
		jsonBody(t, map[string]string{"refresh_token": refresh}), "", "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decode(t, rec)["refresh_token"].(string)
	assert.NotEqual(t, refresh, rotated)

	rec = performRequest(e.router, http.MethodPost, "/api/refresh",
		jsonBody(t, map[string]string{"refresh_token": refresh}), "", "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a refresh token is single use")

	rec = performRequest(e.router, http.MethodPost, "/api/logout",
		jsonBody(t, map[string]string{"refresh_token": rotated}), token, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = performRequest(e.router, http.MethodPost, "/api/refresh",
		jsonBody(t, map[string]string{"refresh_token": rotated}), "", "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, performRequest(e.router, http.MethodGet, "/api/me", nil, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, performRequest(e.router, http.MethodGet, "/api/me", nil, "garbage", "").Code)

	// analysts cannot reach admin routes
	rec = performRequest(e.router, http.MethodPost, "/api/companies",
		jsonBody(t, map[string]string{"name": "Nope"}), token, "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUploadMetricsAndChat(t *testing.T) {
	e := newTestEnv(t)
	admin, _ := e.login(t, "admin", "admin123")
	acme := e.createCompany(t, admin, "Acme", nil)

	rec := e.upload(t, admin, acme, "balance.csv", balanceCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	years := body["processed_years"].(map[string]any)
	assert.ElementsMatch(t, []any{"revenue", "total_assets"}, years["2022"])
	assert.ElementsMatch(t, []any{"revenue"}, years["2023"])
	assert.NotEmpty(t, body["warnings"])

	path := "/api/companies/" + strconv.FormatUint(uint64(acme), 10)
	rec = performRequest(e.router, http.MethodGet, path+"/metrics", nil, admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	series := decode(t, rec)
	assert.Equal(t, []any{float64(2022), float64(2023)}, series["years"])
	first := series["metrics"].([]any)[0].(map[string]any)
	assert.Equal(t, "revenue", first["metric"])
	assert.Equal(t, []any{float64(1000), float64(1200)}, first["values"])

	rec = performRequest(e.router, http.MethodPost, "/api/chat",
		jsonBody(t, map[string]any{"query": "How did revenue change from 2022 to 2023?", "company_id": acme, "include_sources": true}),
		admin, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	chat := decode(t, rec)
	assert.Equal(t, "Revenue grew to 1,200 USD in 2023.", chat["answer"])
	assert.Equal(t, "Acme", chat["company"])
	assert.Equal(t, float64(2), chat["conversation_length"])
	assert.Equal(t, float64(5), chat["sources_count"], "three facts and two yearly summaries")
	assert.Len(t, chat["sources"], 5)
	assert.Contains(t, e.gen.last.System, "In fiscal year 2023, Revenue was 1,200 USD.")

	rec = performRequest(e.router, http.MethodGet, path+"/uploads", nil, admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var batches []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batches))
	require.Len(t, batches, 1)
	assert.Equal(t, "success", batches[0]["Status"])

	rec = performRequest(e.router, http.MethodDelete, path+"/facts/2022", nil, admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["deleted"])
}

func TestUploadErrors(t *testing.T) {
	e := newTestEnv(t)
	admin, _ := e.login(t, "admin", "admin123")
	acme := e.createCompany(t, admin, "Acme", nil)

	rec := e.upload(t, admin, acme, "report.pdf", "%PDF-1.4")
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])

	rec = e.upload(t, admin, acme, "notes.csv", "Item,Amount\nRevenue,100\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotNil(t, decode(t, rec)["upload_id"])

	rec = e.upload(t, admin, acme, "empty.csv", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])

	rec = e.upload(t, admin, 424242, "balance.csv", balanceCSV)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.NotEmpty(t, body["message"])

	rec = performRequest(e.router, http.MethodPost, "/api/companies/abc/uploads", nil, admin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])

	rec = performRequest(e.router, http.MethodPost, "/api/register",
		jsonBody(t, map[string]string{"username": "ana", "password": "pass123"}), "", "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	analyst, _ := e.login(t, "ana", "pass123")
	rec = e.upload(t, analyst, acme, "balance.csv", balanceCSV)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "forbidden", body["message"])
}

func TestUploadKeepsYearsWithoutValues(t *testing.T) {
	e := newTestEnv(t)
	admin, _ := e.login(t, "admin", "admin123")
	acme := e.createCompany(t, admin, "Acme", nil)

	rec := e.upload(t, admin, acme, "partial.csv", "Line item,2022,2023\nRevenue,100,N/A\nTotal assets,5,N/A\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	years := decode(t, rec)["processed_years"].(map[string]any)
	assert.ElementsMatch(t, []any{"revenue", "total_assets"}, years["2022"])
	assert.Equal(t, []any{}, years["2023"])

	path := "/api/companies/" + strconv.FormatUint(uint64(acme), 10) + "/metrics"
	rec = performRequest(e.router, http.MethodGet, path, nil, admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	series := decode(t, rec)
	assert.Equal(t, []any{float64(2022), float64(2023)}, series["years"])
	first := series["metrics"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{float64(100), nil}, first["values"])
}

func TestChatScopesAndFailures(t *testing.T) {
	e := newTestEnv(t)
	admin, _ := e.login(t, "admin", "admin123")
	group := e.createCompany(t, admin, "Group", nil)
	sub := e.createCompany(t, admin, "Sub", &group)
	other := e.createCompany(t, admin, "Other", nil)

	rec := performRequest(e.router, http.MethodPost, "/api/users",
		jsonBody(t, map[string]any{"username": "boss", "password": "secret1", "role": "ceo", "company_id": group}),
		admin, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	boss, _ := e.login(t, "boss", "secret1")

	rec = performRequest(e.router, http.MethodGet, "/api/companies", nil, boss, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var visible []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &visible))
	assert.Len(t, visible, 2)

	ask := func(token string, company uint, q string) *httptest.ResponseRecorder {
		return performRequest(e.router, http.MethodPost, "/api/chat",
			jsonBody(t, map[string]any{"query": q, "company_id": company}), token, "application/json")
	}

	rec = ask(boss, sub, "What was revenue in 2023?")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, rag.NoDataResponse("Sub"), decode(t, rec)["answer"])
	assert.Zero(t, e.gen.calls)

	assert.Equal(t, http.StatusForbidden, ask(boss, other, "revenue?").Code)
	assert.Equal(t, http.StatusBadRequest, ask(boss, sub, "   ").Code)

	require.Equal(t, http.StatusOK, e.upload(t, admin, sub, "sub.csv", balanceCSV).Code)
	e.gen.err = errors.New("quota exhausted")
	rec = ask(boss, sub, "What was revenue in 2023?")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, true, decode(t, rec)["recoverable"])

	rec = performRequest(e.router, http.MethodDelete, "/api/chat/"+strconv.FormatUint(uint64(sub), 10), nil, boss, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompanyAdmin(t *testing.T) {
	e := newTestEnv(t)
	admin, _ := e.login(t, "admin", "admin123")
	parent := e.createCompany(t, admin, "Parent", nil)
	child := e.createCompany(t, admin, "Child", &parent)

	rec := performRequest(e.router, http.MethodPost, "/api/companies",
		jsonBody(t, map[string]string{"name": "Parent"}), admin, "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = performRequest(e.router, http.MethodPut, "/api/companies/"+strconv.FormatUint(uint64(parent), 10),
		jsonBody(t, map[string]any{"name": "Parent", "parent_company_id": child}), admin, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, e.upload(t, admin, parent, "p.csv", balanceCSV).Code)
	rec = performRequest(e.router, http.MethodDelete, "/api/companies/"+strconv.FormatUint(uint64(parent), 10), nil, admin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = performRequest(e.router, http.MethodGet, "/api/companies", nil, admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"Child"`))
	assert.False(t, strings.Contains(rec.Body.String(), `"Parent"`))
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	rec := performRequest(e.router, http.MethodGet, "/api/health", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "configured", body["ai"])
	assert.Equal(t, "disabled", body["vector"])

	rec = performRequest(e.router, http.MethodGet, "/api/metrics", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "finchat_http_request_duration_seconds")
}
