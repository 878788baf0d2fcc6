package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Rox-Lvmaohua/qrsignature/internal/database"
	"github.com/Rox-Lvmaohua/qrsignature/internal/http/handler"
	"github.com/Rox-Lvmaohua/qrsignature/internal/http/middleware"
	"github.com/Rox-Lvmaohua/qrsignature/internal/http/router"
	"github.com/Rox-Lvmaohua/qrsignature/internal/repository"
	"github.com/Rox-Lvmaohua/qrsignature/internal/security"
	"github.com/Rox-Lvmaohua/qrsignature/internal/service"
)

type testConfig struct {
	SessionTTL        time.Duration
	TokenTTL          time.Duration
	StatusLimitPerMin int
}

type testServer struct {
	URL    string
	Client *http.Client
	Codec  *security.SignTokenCodec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newSignTestServer(t *testing.T, cfg testConfig) *testServer {
	t.Helper()
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 15 * time.Minute
	}
	if cfg.StatusLimitPerMin == 0 {
		cfg.StatusLimitPerMin = 600
	}

	dsn := fmt.Sprintf("file:integration_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		m.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := security.NewSignTokenCodec("qrsignature-test", "sign-page", "test-secret-at-least-32-characters!!")

	signSvc := service.NewSignService(
		repository.NewSignSessionRepository(db),
		repository.NewUserSignatureRepository(db),
		codec,
		service.NewRedisStatusCacheStore(rdb, "sign_status_it"),
		nil,
		logger,
		service.SignServiceConfig{
			BaseURL:        "https://sign.example.com",
			SessionTTL:     cfg.SessionTTL,
			TokenTTL:       cfg.TokenTTL,
			StatusCacheTTL: time.Minute,
			Retention:      30 * 24 * time.Hour,
		},
	)

	statusLimiter := middleware.NewDistributedRateLimiter(
		middleware.NewRedisFixedWindowLimiter(rdb, "rl_status_it"),
		cfg.StatusLimitPerMin,
		time.Minute,
		middleware.FailOpen,
		"status",
		middleware.SessionRefOrIPKeyFunc(),
	)

	mux := router.New(router.Dependencies{
		Logger:           logger,
		SignHandler:      handler.NewSignHandler(signSvc),
		SignatureHandler: handler.NewSignatureHandler(signSvc),
		TokenCodec:       codec,
		StatusLimiter:    statusLimiter,
		DB:               db,
		Redis:            rdb,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{URL: srv.URL, Client: srv.Client(), Codec: codec}
}

func doJSON(t *testing.T, ts *testServer, method, path string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ts.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope from %q: %v", raw, err)
		}
	}
	return resp, env
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data %q: %v", env.Data, err)
	}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
