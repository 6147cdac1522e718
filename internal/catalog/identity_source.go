package catalog

import (
	"context"
	"net/http"
	"time"
)

// IdentitySourceClient pulls directory snapshots from an external
// identity source. It covers only the pull side of §6's
// identity-source ingest contract: session events (start/update/end)
// are not fetched by this client, and internal/api has no route that
// ingests them.
type IdentitySourceClient struct {
	cfg  Config
	http *http.Client
}

// NewIdentitySourceClient builds a client against the given config.
func NewIdentitySourceClient(cfg Config) *IdentitySourceClient {
	return &IdentitySourceClient{cfg: cfg, http: &http.Client{}}
}

// DirectorySnapshotRow is one user's directory state as of a point in
// time, as delivered by a full-snapshot pull.
type DirectorySnapshotRow struct {
	UserID     string    `json:"user_id"`
	Groups     []string  `json:"groups"`
	Department string    `json:"department"`
	Title      string    `json:"title"`
	Active     bool      `json:"active"`
	AsOf       time.Time `json:"as_of"`
}

// PullSnapshot fetches the full directory snapshot, retried per the
// same backoff policy as the reference catalog client.
func (c *IdentitySourceClient) PullSnapshot(ctx context.Context) ([]DirectorySnapshotRow, error) {
	client := &Client{cfg: c.cfg, http: c.http}
	var out []DirectorySnapshotRow
	err := client.doRetried(ctx, http.MethodGet, "/v1/directory/snapshot", nil, &out)
	return out, err
}
