package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mango/reabilita/internal/config"
	"github.com/mango/reabilita/internal/domain/live"
	"github.com/mango/reabilita/internal/platform/auth"
	"github.com/mango/reabilita/internal/platform/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		LogLevel:       "info",
		StoreBackend:   "memory",
		CORSOrigins:    []string{"http://localhost:3000"},
		AuthUsername:   "user",
		AuthPassword:   "password",
		AuthToken:      "mysecrettoken",
		AuthTokenTTL:   time.Hour,
		LiveSource:     "mqtt",
		MQTTBroker:     "tcp://localhost:1883",
		MQTTTopic:      "reabilita/sensor/raw",
		SampleInterval: 2 * time.Second,
	}
}

var noLiveSource = live.SourceFunc(func(context.Context) (live.Stream, error) {
	return nil, errors.New("no peripheral")
})

func do(e *echo.Echo, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	e, streamer := newServer(testConfig(), store.NewMemory(), noLiveSource, zerolog.Nop())
	defer streamer.Close()

	rec := do(e, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), version) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS outside development")
	}

	rec = do(e, http.MethodGet, "/health/store", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected healthy store, got %d", rec.Code)
	}
}

func TestServer_PatientSessionCommentFlow(t *testing.T) {
	e, streamer := newServer(testConfig(), store.NewMemory(), noLiveSource, zerolog.Nop())
	defer streamer.Close()

	rec := do(e, http.MethodPost, "/pacientes", `{"nome":"Maria","idade":42,"sexo":"F"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create patient: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.ID == "" {
		t.Fatal("expected patient id")
	}

	rec = do(e, http.MethodPost, "/pacientes/"+created.ID+"/sessao/s1",
		`{"flex_measurement": 20, "emg_measurement": 410, "time_of_reading": "2024-05-01T10:00:00Z"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("append reading: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/pacientes/"+created.ID+"/historico", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"session_id":"s1"`) {
		t.Errorf("unexpected history %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/pacientes/"+created.ID+"/sessao/s1/comentarios", `{"comment":"good range"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("add comment: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/pacientes/missing", "", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"detail"`) {
		t.Errorf("expected 404 with detail, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_AuthEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.AuthEnforce = true
	cfg.AuthSigningKey = "test-signing-key"
	e, streamer := newServer(cfg, store.NewMemory(), noLiveSource, zerolog.Nop())
	defer streamer.Close()

	if rec := do(e, http.MethodGet, "/pacientes", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec := do(e, http.MethodPost, "/signin", `{"username":"user","password":"password"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("signin: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)

	rec = do(e, http.MethodGet, "/pacientes", "", map[string]string{"Authorization": "Bearer " + resp.Token})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for empty collection with valid token, got %d", rec.Code)
	}
}

func TestNewIssuer(t *testing.T) {
	cfg := testConfig()
	if _, ok := newIssuer(cfg).(*auth.StaticIssuer); !ok {
		t.Error("expected static issuer without a signing key")
	}
	cfg.AuthSigningKey = "k"
	if _, ok := newIssuer(cfg).(*auth.JWTIssuer); !ok {
		t.Error("expected JWT issuer with a signing key")
	}
}

func TestNewLogger_Level(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "warn"
	if got := newLogger(cfg).GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", got)
	}
	cfg.LogLevel = "loud"
	if got := newLogger(cfg).GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("expected fallback to info, got %s", got)
	}
}

func TestOpenStore_Memory(t *testing.T) {
	st, closeStore, err := openStore(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()
	if _, ok := st.(*store.Memory); !ok {
		t.Errorf("expected memory store, got %T", st)
	}
}
