package api

import (
	"encoding/json"
	"log"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// BroadcastStabilityReview fans out a stability-guard flag to
// dashboard subscribers, repurposing the teacher's
// BroadcastCoinJoinAlert callback shape from a scanner alert to a
// stability review event.
func BroadcastStabilityReview(hub *Hub, flags []models.StabilityFlag) {
	if hub == nil || len(flags) == 0 {
		return
	}
	payload := map[string]interface{}{
		"type":  "stability_review",
		"flags": flags,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal stability review event: %v", err)
		return
	}
	hub.Broadcast(data)
}

// BroadcastBatchComplete announces a finished batch clustering run.
func BroadcastBatchComplete(hub *Hub, clusterCount int, ari, vi float64) {
	if hub == nil {
		return
	}
	payload := map[string]interface{}{
		"type":         "batch_complete",
		"clusterCount": clusterCount,
		"ari":          ari,
		"vi":           vi,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal batch complete event: %v", err)
		return
	}
	hub.Broadcast(data)
}

// BroadcastMatrixRebuilt announces a finished matrix rebuild.
func BroadcastMatrixRebuilt(hub *Hub, version uint64, cellCount int) {
	if hub == nil {
		return
	}
	payload := map[string]interface{}{
		"type":      "matrix_rebuilt",
		"version":   version,
		"cellCount": cellCount,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal matrix rebuilt event: %v", err)
		return
	}
	hub.Broadcast(data)
}
