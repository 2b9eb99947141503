package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func setupIntegrationServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	cfg := loadConfig()
	cfg.AutoMigrate = true
	cfg.UploadBase = t.TempDir()
	db, err := openDB(cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := initDB(db, cfg, zap.NewNop()); err != nil {
		t.Fatalf("init db: %v", err)
	}
	return newServer(db, cfg, zap.NewNop(), nil, nil).router()
}

func TestFullFlow(t *testing.T) {
	r := setupIntegrationServer(t)

	// 1. Login as the seeded admin
	loginBody, _ := json.Marshal(map[string]string{"username": "admin", "password": "admin123"})
	resp := performRequest(r, http.MethodPost, "/api/login", bytes.NewBuffer(loginBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}

	// 2. Create a company with a unique name
	name := "Integration " + strconv.FormatInt(time.Now().UnixNano(), 10)
	compBody, _ := json.Marshal(map[string]string{"name": name, "currency": "USD"})
	resp = performRequest(r, http.MethodPost, "/api/companies", bytes.NewBuffer(compBody), token, "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("create company failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var company map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &company)
	id := strconv.FormatFloat(company["ID"].(float64), 'f', 0, 64)
	defer performRequest(r, http.MethodDelete, "/api/companies/"+id, nil, token, "")

	// 3. Upload a balance sheet twice, the second upload overwrites 2023 revenue
	for _, csv := range []string{
		"Line item,2022,2023\nRevenue,100,200\nTotal assets,500,600\n",
		"Line item,2023\nRevenue,250\n",
	} {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		w, _ := mw.CreateFormFile("file", "balance.csv")
		_, _ = w.Write([]byte(csv))
		_ = mw.Close()
		resp = performRequest(r, http.MethodPost, "/api/companies/"+id+"/uploads", buf, token, mw.FormDataContentType())
		if resp.Code != 200 {
			t.Fatalf("upload failed status=%d body=%s", resp.Code, resp.Body.String())
		}
	}

	// 4. Chart data reflects the overwrite
	resp = performRequest(r, http.MethodGet, "/api/companies/"+id+"/metrics", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("metrics failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var series struct {
		Years   []int `json:"years"`
		Metrics []struct {
			Metric string     `json:"metric"`
			Values []*float64 `json:"values"`
		} `json:"metrics"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &series)
	if len(series.Years) != 2 || series.Metrics[0].Metric != "revenue" {
		t.Fatalf("unexpected series: %s", resp.Body.String())
	}
	if v := series.Metrics[0].Values[1]; v == nil || *v != 250 {
		t.Fatalf("expected overwritten revenue 250, got %s", resp.Body.String())
	}

	// 5. Without AI configured chat still answers the no-data case only
	resp = performRequest(r, http.MethodPost, "/api/chat", bytes.NewBufferString(`{"query":"revenue?","company_id":`+id+`}`), token, "application/json")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without AI, got %d body=%s", resp.Code, resp.Body.String())
	}

	// 6. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/api/companies", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list companies got %d", unauth.Code)
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}
