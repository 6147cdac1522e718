package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clarion-segmentation/clarion/internal/edgeagent"
	"github.com/clarion-segmentation/clarion/internal/sgt"
	"github.com/clarion-segmentation/clarion/internal/store"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler() *APIHandler {
	registry := sgt.NewRegistry(2)
	membership := sgt.NewMembershipTable()
	storeCfg := store.Config{HLLPrecision: 8, CMSWidth: 64, CMSDepth: 3, TopKCap: 8}
	edgeSrv := edgeagent.NewServer(store.New(storeCfg), storeCfg)
	return NewAPIHandler(registry, membership, edgeSrv, NewHub(), false)
}

func TestHandleHealth_ReportsOperational(t *testing.T) {
	h := newTestHandler()
	r := SetupRouter(h, Config{AllowedOrigins: "*", RateLimitPerMin: 60, RateLimitBurst: 10})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProtectedRoute_DevModeBypassesAuth(t *testing.T) {
	h := newTestHandler()
	r := SetupRouter(h, Config{AllowedOrigins: "*", RateLimitPerMin: 60, RateLimitBurst: 10})

	req := httptest.NewRequest("GET", "/api/v1/sgt", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200 in dev mode (no token configured), got %d", w.Code)
	}
}

func TestProtectedRoute_RejectsMissingToken(t *testing.T) {
	h := newTestHandler()
	r := SetupRouter(h, Config{AllowedOrigins: "*", AuthToken: "secret", RateLimitPerMin: 60, RateLimitBurst: 10})

	req := httptest.NewRequest("GET", "/api/v1/sgt", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 401 {
		t.Fatalf("expected 401 without a token, got %d", w.Code)
	}
}

func TestProtectedRoute_AcceptsValidToken(t *testing.T) {
	h := newTestHandler()
	r := SetupRouter(h, Config{AllowedOrigins: "*", AuthToken: "secret", RateLimitPerMin: 60, RateLimitBurst: 10})

	req := httptest.NewRequest("GET", "/api/v1/sgt", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200 with valid token, got %d", w.Code)
	}
}

func TestHandleLatestMatrix_UnavailableUntilPublished(t *testing.T) {
	h := newTestHandler()
	r := SetupRouter(h, Config{AllowedOrigins: "*", RateLimitPerMin: 60, RateLimitBurst: 10})

	req := httptest.NewRequest("GET", "/api/v1/matrix/latest", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != 503 {
		t.Fatalf("expected 503 before any matrix published, got %d", w.Code)
	}

	h.SetLatestMatrix(models.MatrixSnapshot{Version: 1, CreatedAt: time.Now()})

	req = httptest.NewRequest("GET", "/api/v1/matrix/latest", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200 after publishing a matrix, got %d", w.Code)
	}
}
