package edgeagent

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clarion-segmentation/clarion/internal/store"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

// Server exposes the edge-agent ingest HTTP contract, grounded in the
// teacher's internal/api/routes.go handler style: bind JSON, validate,
// call the service layer, return a structured JSON response.
type Server struct {
	store       *store.Store
	storeConfig store.Config
}

// NewServer builds a Server over the given sketch store.
func NewServer(s *store.Store, cfg store.Config) *Server {
	return &Server{store: s, storeConfig: cfg}
}

// RegisterRoutes wires the ingest endpoint onto r.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.POST("/edge/sketch", s.handleIngest)
}

type ingestResponse struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// handleIngest accepts a batch of envelopes from one agent delivery
// and merges each into the central store, reporting how many were
// newly applied versus dropped as stale/duplicate under sequence
// gating.
func (s *Server) handleIngest(c *gin.Context) {
	var envelopes []Envelope
	if err := c.ShouldBindJSON(&envelopes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp := ingestResponse{}
	for _, env := range envelopes {
		partial, err := env.Payload.ToPartial(s.storeConfig)
		if err != nil {
			kind, _ := models.KindOf(err)
			log.Printf("edgeagent: rejecting envelope from agent %s endpoint %s: %v", env.AgentID, env.EndpointID, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": kind})
			return
		}

		applied, err := s.store.MergePartial(env.EndpointID, env.AgentID, env.Sequence, partial)
		if err != nil {
			log.Printf("edgeagent: merge failed for agent %s endpoint %s: %v", env.AgentID, env.EndpointID, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		if applied {
			resp.Accepted++
		} else {
			resp.Duplicates++
		}
	}

	c.JSON(http.StatusOK, resp)
}
