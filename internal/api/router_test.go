package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/runforge/runforge/internal/auth"
	"github.com/runforge/runforge/internal/config"
	"github.com/runforge/runforge/internal/db"
	"github.com/runforge/runforge/internal/engine"
	"github.com/runforge/runforge/internal/ledger"
	"github.com/runforge/runforge/internal/models"
	"github.com/runforge/runforge/internal/orchestrator"
	"github.com/runforge/runforge/internal/queue"
	"github.com/runforge/runforge/internal/ratelimit"
	"github.com/runforge/runforge/internal/retry"
	"gorm.io/gorm"
)

type apiFixture struct {
	router  *gin.Engine
	db      *gorm.DB
	auth    *auth.Authenticator
	limiter *ratelimit.Limiter
	ledger  *ledger.Service
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"wf-1"}`)
	})
	mux.HandleFunc("POST /api/v1/workflows/{id}/activate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("GET /api/v1/executions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id": 1}]}`)
	})
	engineServer := httptest.NewServer(mux)
	t.Cleanup(engineServer.Close)

	eng := engine.NewClient(config.EngineConfig{BaseURL: engineServer.URL, Username: "a", Password: "b", TimeoutS: 5})
	led := ledger.New(database)
	limiter := ratelimit.New(database)
	q := queue.NewMemoryQueue(10)
	t.Cleanup(func() { q.Close() })
	orch := orchestrator.New(database, eng, led, limiter, q,
		retry.Config{Interval: time.Millisecond, MaxAttempts: 2})

	authenticator := auth.New(database, "test-secret")
	cfg := &config.Config{Server: config.ServerConfig{Mode: "development"}}
	router := NewRouter(cfg, database, authenticator, orch, led, limiter)

	return &apiFixture{router: router, db: database, auth: authenticator, limiter: limiter, ledger: led}
}

func (f *apiFixture) signup(t *testing.T, email string, admin bool) string {
	t.Helper()
	resp, err := f.auth.Signup(email, "password")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if admin {
		f.db.Model(&models.User{}).Where("id = ?", resp.User.ID).Update("is_admin", true)
	}
	return resp.Token
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) createTemplate(t *testing.T, free bool, price int64, maxPerDay int) *models.Template {
	t.Helper()
	tmpl := models.Template{
		Name:           "Digest",
		DefinitionJSON: `{"nodes":[],"connections":{}}`,
		IsFree:         free,
		PricePerRun:    price,
		MaxRunsPerDay:  maxPerDay,
		IsActive:       true,
	}
	if err := f.db.Create(&tmpl).Error; err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
	return &tmpl
}

func TestHealthEndpointIsPublic(t *testing.T) {
	f := setupAPI(t)
	rec := f.do(t, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	f := setupAPI(t)
	rec := f.do(t, http.MethodGet, "/api/v1/templates", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCatalogHidesInactiveTemplates(t *testing.T) {
	f := setupAPI(t)
	token := f.signup(t, "user@test.com", false)
	f.createTemplate(t, true, 0, 0)

	inactive := models.Template{Name: "Draft", DefinitionJSON: "{}", IsActive: false}
	f.db.Create(&inactive)

	rec := f.do(t, http.MethodGet, "/api/v1/templates", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var templates []models.Template
	json.Unmarshal(rec.Body.Bytes(), &templates)
	if len(templates) != 1 || templates[0].Name != "Digest" {
		t.Errorf("catalog = %v, want only the active template", templates)
	}
}

func TestRunTemplateStatusMapping(t *testing.T) {
	f := setupAPI(t)
	token := f.signup(t, "user@test.com", false)

	// Unknown template: 404.
	rec := f.do(t, http.MethodPost, "/api/v1/templates/00000000-0000-0000-0000-000000000001/run", token, `{"inputs":{}}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown template status = %d, want 404", rec.Code)
	}

	// Insufficient credits: 402.
	paid := f.createTemplate(t, false, 50, 0)
	rec = f.do(t, http.MethodPost, "/api/v1/templates/"+paid.ID.String()+"/run", token, `{"inputs":{}}`)
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("insufficient credits status = %d, want 402", rec.Code)
	}

	// Exhausted quota: 429.
	limited := f.createTemplate(t, true, 0, 1)
	f.limiter.Provision(context.Background(), limited.ID, 1)
	rec = f.do(t, http.MethodPost, "/api/v1/templates/"+limited.ID.String()+"/run", token, `{"inputs":{}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first run status = %d, want 202", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/templates/"+limited.ID.String()+"/run", token, `{"inputs":{}}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("rate limited status = %d, want 429", rec.Code)
	}
}

func TestRunTemplateReturnsPollingHandle(t *testing.T) {
	f := setupAPI(t)
	token := f.signup(t, "user@test.com", false)
	tmpl := f.createTemplate(t, true, 0, 0)

	rec := f.do(t, http.MethodPost, "/api/v1/templates/"+tmpl.ID.String()+"/run", token, `{"inputs":{}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var job models.RunJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("bad run response: %v", err)
	}
	if job.Status != models.RunJobStatusPending {
		t.Errorf("job status = %s, want pending", job.Status)
	}

	// The handle is pollable by its owner.
	rec = f.do(t, http.MethodGet, "/api/v1/runs/"+job.ID.String(), token, "")
	if rec.Code != http.StatusOK {
		t.Errorf("poll status = %d, want 200", rec.Code)
	}

	// And invisible to anyone else.
	otherToken := f.signup(t, "other@test.com", false)
	rec = f.do(t, http.MethodGet, "/api/v1/runs/"+job.ID.String(), otherToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign poll status = %d, want 404", rec.Code)
	}
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	f := setupAPI(t)
	userToken := f.signup(t, "user@test.com", false)
	adminToken := f.signup(t, "admin@test.com", true)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/templates", userToken, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/admin/templates", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Errorf("admin status = %d, want 200", rec.Code)
	}
}

func TestAdminTemplateLifecycle(t *testing.T) {
	f := setupAPI(t)
	adminToken := f.signup(t, "admin@test.com", true)

	// Create a draft.
	body := `{"name":"New","definition_json":"{\"nodes\":[],\"connections\":{}}","is_free":true,"max_runs_per_day":5}`
	rec := f.do(t, http.MethodPost, "/api/v1/admin/templates", adminToken, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var tmpl models.Template
	json.Unmarshal(rec.Body.Bytes(), &tmpl)
	if tmpl.IsActive {
		t.Error("new template must start inactive")
	}

	// Activation without a test run is rejected.
	rec = f.do(t, http.MethodPost, "/api/v1/admin/templates/"+tmpl.ID.String()+"/activate", adminToken, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("untested activation status = %d, want 409", rec.Code)
	}

	// A test run records the engine workflow id.
	rec = f.do(t, http.MethodPost, "/api/v1/admin/templates/"+tmpl.ID.String()+"/test", adminToken, `{"inputs":{}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("test run status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// Now activation succeeds and provisions the quota counter.
	rec = f.do(t, http.MethodPost, "/api/v1/admin/templates/"+tmpl.ID.String()+"/activate", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("activation status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var counter models.RateLimitCounter
	if err := f.db.Where("instance_id = ?", tmpl.ID).First(&counter).Error; err != nil {
		t.Fatalf("quota counter not provisioned: %v", err)
	}
	if counter.MaxPerDay != 5 {
		t.Errorf("max_per_day = %d, want 5", counter.MaxPerDay)
	}

	// Deactivation hides it again.
	rec = f.do(t, http.MethodPost, "/api/v1/admin/templates/"+tmpl.ID.String()+"/deactivate", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Errorf("deactivation status = %d, want 200", rec.Code)
	}
}

func TestAdminGrantCreditsAndBalance(t *testing.T) {
	f := setupAPI(t)
	adminToken := f.signup(t, "admin@test.com", true)
	userToken := f.signup(t, "user@test.com", false)

	var user models.User
	f.db.Where("email = ?", "user@test.com").First(&user)

	body := fmt.Sprintf(`{"user_id":"%s","amount":250}`, user.ID)
	rec := f.do(t, http.MethodPost, "/api/v1/admin/credits/grant", adminToken, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("grant status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/credits/balance", userToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("balance status = %d, want 200", rec.Code)
	}
	var balance struct {
		Balance int64 `json:"balance"`
	}
	json.Unmarshal(rec.Body.Bytes(), &balance)
	if balance.Balance != 250 {
		t.Errorf("balance = %d, want 250", balance.Balance)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/credits/transactions", userToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions status = %d, want 200", rec.Code)
	}
	var txns []models.CreditTransaction
	json.Unmarshal(rec.Body.Bytes(), &txns)
	if len(txns) != 1 || txns[0].Amount != 250 {
		t.Errorf("transactions = %v, want one +250 entry", txns)
	}
}

func TestSignupAndLoginEndpoints(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/signup", "", `{"email":"new@test.com","password":"pw"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	// Duplicate signup conflicts.
	rec = f.do(t, http.MethodPost, "/api/v1/auth/signup", "", `{"email":"new@test.com","password":"pw"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"new@test.com","password":"pw"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", rec.Code)
	}
	var login auth.LoginResponse
	json.Unmarshal(rec.Body.Bytes(), &login)

	rec = f.do(t, http.MethodGet, "/api/v1/auth/me", login.Token, "")
	if rec.Code != http.StatusOK {
		t.Errorf("me status = %d, want 200", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"new@test.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", rec.Code)
	}
}
