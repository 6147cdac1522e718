package edgeagent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clarion-segmentation/clarion/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testStoreConfig() store.Config {
	return store.Config{HLLPrecision: 8, CMSWidth: 64, CMSDepth: 3, TopKCap: 8}
}

func TestHandleIngest_AcceptsValidEnvelope(t *testing.T) {
	cfg := testStoreConfig()
	s := store.New(cfg)
	srv := NewServer(s, cfg)

	r := gin.New()
	srv.RegisterRoutes(r)

	zeroRegs := make([]uint8, 1<<cfg.HLLPrecision)
	zeroRows := make([][]uint64, cfg.CMSDepth)
	for i := range zeroRows {
		zeroRows[i] = make([]uint64, cfg.CMSWidth)
	}

	envelope := Envelope{
		AgentID:     "agent-1",
		ExporterID:  "exp-1",
		EndpointID:  "ep-1",
		Sequence:    1,
		WindowStart: time.Now().Add(-time.Minute),
		WindowEnd:   time.Now(),
		Payload: SketchPayload{
			HLLPrecision:  cfg.HLLPrecision,
			PeerRegisters: zeroRegs,
			PortRegisters: zeroRegs,
			CMSWidth:      cfg.CMSWidth,
			CMSDepth:      cfg.CMSDepth,
			PortCMSRows:   zeroRows,
			PeerCMSRows:   zeroRows,
			BytesIn:       100,
			FlowCount:     1,
		},
	}

	body, _ := json.Marshal([]Envelope{envelope})
	req := httptest.NewRequest(http.MethodPost, "/edge/sketch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ingestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Accepted != 1 || resp.Duplicates != 0 {
		t.Errorf("expected 1 accepted 0 duplicates, got %+v", resp)
	}
}

func TestHandleIngest_MismatchedShapeRejected(t *testing.T) {
	cfg := testStoreConfig()
	s := store.New(cfg)
	srv := NewServer(s, cfg)
	r := gin.New()
	srv.RegisterRoutes(r)

	envelope := Envelope{
		AgentID:     "agent-1",
		ExporterID:  "exp-1",
		EndpointID:  "ep-1",
		Sequence:    1,
		WindowStart: time.Now(),
		WindowEnd:   time.Now(),
		Payload: SketchPayload{
			HLLPrecision:  cfg.HLLPrecision + 1, // wrong precision
			PeerRegisters: make([]uint8, 1<<(cfg.HLLPrecision+1)),
			PortRegisters: make([]uint8, 1<<(cfg.HLLPrecision+1)),
			CMSWidth:      cfg.CMSWidth,
			CMSDepth:      cfg.CMSDepth,
			PortCMSRows:   make([][]uint64, cfg.CMSDepth),
			PeerCMSRows:   make([][]uint64, cfg.CMSDepth),
		},
	}

	body, _ := json.Marshal([]Envelope{envelope})
	req := httptest.NewRequest(http.MethodPost, "/edge/sketch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for shape mismatch, got %d: %s", w.Code, w.Body.String())
	}
}
