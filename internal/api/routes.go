// Package api exposes Clarion's HTTP surface: edge-agent ingest,
// health, and read endpoints over the SGT registry, communication
// matrix, and policy recommendations, grounded directly in the
// teacher's internal/api/routes.go router/middleware-chain shape.
package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/clarion-segmentation/clarion/internal/edgeagent"
	"github.com/clarion-segmentation/clarion/internal/sgt"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

// APIHandler holds every component the read/ingest endpoints serve
// from, following the teacher's APIHandler shape of one struct
// bundling the components a router needs.
type APIHandler struct {
	registry   *sgt.Registry
	membership *sgt.MembershipTable
	edgeAgent  *edgeagent.Server
	wsHub      *Hub

	mu           sync.RWMutex
	latestMatrix *models.MatrixSnapshot
	latestPolicy []models.PolicyRule
	latestImpact *models.ImpactAnalysis
	dbConnected  bool
}

// NewAPIHandler builds an APIHandler over the given components.
func NewAPIHandler(registry *sgt.Registry, membership *sgt.MembershipTable, edgeAgent *edgeagent.Server, wsHub *Hub, dbConnected bool) *APIHandler {
	return &APIHandler{
		registry:    registry,
		membership:  membership,
		edgeAgent:   edgeAgent,
		wsHub:       wsHub,
		dbConnected: dbConnected,
	}
}

// SetLatestMatrix publishes the most recent matrix rebuild, for the
// scheduler's matrix-rebuild task to call after each run.
func (h *APIHandler) SetLatestMatrix(snapshot models.MatrixSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latestMatrix = &snapshot
}

// SetLatestPolicy publishes the most recent policy recommendation and
// its impact analysis.
func (h *APIHandler) SetLatestPolicy(rules []models.PolicyRule, impact models.ImpactAnalysis) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latestPolicy = rules
	h.latestImpact = &impact
}

// Config shapes the router's CORS and auth/rate-limit settings,
// populated from internal/config.Config at startup.
type Config struct {
	AllowedOrigins  string
	AuthToken       string
	RateLimitPerMin int
	RateLimitBurst  int
	ReleaseMode     bool
}

// SetupRouter builds the gin.Engine serving Clarion's HTTP surface.
func SetupRouter(h *APIHandler, cfg Config) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware(cfg.AllowedOrigins))

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", h.wsHub.Subscribe)
	}

	protected := r.Group("/api/v1")
	protected.Use(AuthMiddleware(cfg.AuthToken, cfg.ReleaseMode))
	protected.Use(NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst).Middleware())
	{
		protected.GET("/sgt", h.handleListSGT)
		protected.GET("/matrix/latest", h.handleLatestMatrix)
		protected.GET("/policy/latest", h.handleLatestPolicy)

		h.edgeAgent.RegisterRoutes(protected)
	}

	return r
}

// corsMiddleware reads an allowlist (comma-separated origins, or "*")
// and sets the Access-Control-Allow-* headers, directly mirroring the
// teacher's inline CORS middleware in SetupRouter.
func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	h.mu.RLock()
	hasMatrix := h.latestMatrix != nil
	hasPolicy := h.latestPolicy != nil
	h.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "operational",
		"engine":      "Clarion segmentation copilot",
		"dbConnected": h.dbConnected,
		"capabilities": gin.H{
			"sgtRegistry":   true,
			"matrixBuild":   hasMatrix,
			"policyAdvice":  hasPolicy,
			"stabilityGuard": true,
		},
	})
}

func (h *APIHandler) handleListSGT(c *gin.Context) {
	sgts := h.registry.Snapshot()
	memberships := h.membership.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"sgts":        sgts,
		"memberships": memberships,
	})
}

func (h *APIHandler) handleLatestMatrix(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latestMatrix == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no matrix snapshot built yet"})
		return
	}
	c.JSON(http.StatusOK, h.latestMatrix)
}

func (h *APIHandler) handleLatestPolicy(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latestPolicy == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no policy recommendation built yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rules":  h.latestPolicy,
		"impact": h.latestImpact,
	})
}
