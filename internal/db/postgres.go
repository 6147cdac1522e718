// Package db persists the SGT registry, membership, assignment
// history, centroid snapshots, matrix snapshots, and policy rules
// (C14, ambient), adapted directly from the teacher's
// internal/db/postgres.go pgxpool connection/transaction shape.
package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// Store wraps a pgx connection pool, following the teacher's
// PostgresStore shape.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("connected to PostgreSQL for Clarion persistence")
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema definition.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("Clarion schema initialized")
	return nil
}

// UpsertSGT persists one SGT definition, following the teacher's
// ON CONFLICT DO UPDATE upsert idiom.
func (s *Store) UpsertSGT(ctx context.Context, sgt models.SGT) error {
	sql := `
		INSERT INTO sgt (value, name, category, description, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (value) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category,
		    description = EXCLUDED.description, active = EXCLUDED.active;
	`
	_, err := s.pool.Exec(ctx, sql, sgt.Value, sgt.Name, sgt.Category, sgt.Description, sgt.Active, sgt.CreatedAt)
	return err
}

// ListSGTs returns every SGT, active and deprecated alike.
func (s *Store) ListSGTs(ctx context.Context) ([]models.SGT, error) {
	rows, err := s.pool.Query(ctx, `SELECT value, name, category, description, active, created_at FROM sgt ORDER BY value`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SGT
	for rows.Next() {
		var sgt models.SGT
		if err := rows.Scan(&sgt.Value, &sgt.Name, &sgt.Category, &sgt.Description, &sgt.Active, &sgt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sgt)
	}
	return out, rows.Err()
}

// withRetry runs fn, retrying exactly once on failure before
// surfacing the error to the caller, per the persistence-failure
// contract: a transient write failure is retried once; if the retry
// also fails, the error is rolled back and returned rather than
// silently dropped, so the caller (a scheduled task) can fail loudly
// instead of continuing on a write that never landed.
func withRetry(fn func() error) error {
	if err := fn(); err == nil {
		return nil
	}
	return fn()
}

// UpsertMembership persists the current SGT assignment for one
// endpoint and appends a history row recording the transition,
// mirroring the teacher's SaveAnalysisResult pattern of one main-row
// upsert plus append-only detail rows inside a single transaction.
// Retried once on failure per the persistence-failure contract.
func (s *Store) UpsertMembership(ctx context.Context, m models.Membership) error {
	return withRetry(func() error { return s.upsertMembershipOnce(ctx, m) })
}

func (s *Store) upsertMembershipOnce(ctx context.Context, m models.Membership) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var priorSGT uint32
	hadPrior := true
	if err := tx.QueryRow(ctx, `SELECT sgt_value FROM membership WHERE endpoint_id = $1`, m.EndpointID).Scan(&priorSGT); err != nil {
		hadPrior = false
	}

	upsertSQL := `
		INSERT INTO membership (endpoint_id, sgt_value, assigned_at, confirmed_at, assigned_by, confidence, cluster_id, manual_locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (endpoint_id) DO UPDATE
		SET sgt_value = EXCLUDED.sgt_value, assigned_at = EXCLUDED.assigned_at,
		    confirmed_at = EXCLUDED.confirmed_at, assigned_by = EXCLUDED.assigned_by,
		    confidence = EXCLUDED.confidence, cluster_id = EXCLUDED.cluster_id,
		    manual_locked = EXCLUDED.manual_locked;
	`
	if _, err := tx.Exec(ctx, upsertSQL, m.EndpointID, m.SGTValue, m.AssignedAt, m.ConfirmedAt, string(m.AssignedBy), m.Confidence, m.ClusterID, m.ManualLocked); err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}

	if !hadPrior || priorSGT != m.SGTValue {
		historySQL := `
			INSERT INTO membership_history (id, endpoint_id, sgt_value, assigned_at, assigned_by)
			VALUES ($1, $2, $3, $4, $5);
		`
		if _, err := tx.Exec(ctx, historySQL, uuid.NewString(), m.EndpointID, m.SGTValue, m.AssignedAt, string(m.AssignedBy)); err != nil {
			return fmt.Errorf("failed to insert membership history: %w", err)
		}
		if hadPrior {
			closeSQL := `UPDATE membership_history SET superseded_at = $1 WHERE endpoint_id = $2 AND sgt_value = $3 AND superseded_at IS NULL`
			if _, err := tx.Exec(ctx, closeSQL, m.AssignedAt, m.EndpointID, priorSGT); err != nil {
				return fmt.Errorf("failed to close out prior history row: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// History returns the full assignment history for one endpoint, most
// recent first.
func (s *Store) History(ctx context.Context, endpointID string) ([]models.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, endpoint_id, sgt_value, assigned_at, COALESCE(superseded_at, 'epoch'::timestamptz), assigned_by
		FROM membership_history WHERE endpoint_id = $1 ORDER BY assigned_at DESC`, endpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		var h models.HistoryRecord
		var assignedBy string
		if err := rows.Scan(&h.ID, &h.EndpointID, &h.SGTValue, &h.AssignedAt, &h.SupersededAt, &assignedBy); err != nil {
			return nil, err
		}
		h.AssignedBy = models.MembershipOrigin(assignedBy)
		out = append(out, h)
	}
	return out, rows.Err()
}

// SaveCentroidSnapshot persists one batch run's centroids, marking any
// prior snapshot's centroids superseded in the same transaction.
// Retried once on failure per the persistence-failure contract.
func (s *Store) SaveCentroidSnapshot(ctx context.Context, snapshot models.CentroidSnapshot) error {
	return withRetry(func() error { return s.saveCentroidSnapshotOnce(ctx, snapshot) })
}

func (s *Store) saveCentroidSnapshotOnce(ctx context.Context, snapshot models.CentroidSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE cluster_centroid SET superseded = TRUE WHERE superseded = FALSE`); err != nil {
		return fmt.Errorf("failed to supersede prior centroids: %w", err)
	}

	insertSQL := `
		INSERT INTO cluster_centroid (run_id, cluster_id, centroid, sgt_value, member_count, p95_intra_dist, superseded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7);
	`
	for _, c := range snapshot.Centroids {
		if _, err := tx.Exec(ctx, insertSQL, snapshot.RunID, c.ClusterID, []float64(c.Centroid), c.SGTValue, c.MemberCount, c.P95IntraDist, snapshot.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert centroid: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// CurrentCentroids returns the latest non-superseded centroid snapshot
// for incremental nearest-centroid assignment.
func (s *Store) CurrentCentroids(ctx context.Context) ([]models.ClusterCentroid, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, cluster_id, centroid, sgt_value, member_count, p95_intra_dist, superseded, created_at
		FROM cluster_centroid WHERE superseded = FALSE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ClusterCentroid
	for rows.Next() {
		var c models.ClusterCentroid
		var centroid []float64
		if err := rows.Scan(&c.RunID, &c.ClusterID, &centroid, &c.SGTValue, &c.MemberCount, &c.P95IntraDist, &c.Superseded, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Centroid = centroid
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveMatrixSnapshot persists one immutable matrix rebuild. Retried
// once on failure per the persistence-failure contract.
func (s *Store) SaveMatrixSnapshot(ctx context.Context, snapshot models.MatrixSnapshot) error {
	return withRetry(func() error { return s.saveMatrixSnapshotOnce(ctx, snapshot) })
}

func (s *Store) saveMatrixSnapshotOnce(ctx context.Context, snapshot models.MatrixSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertSQL := `
		INSERT INTO matrix_cell (version, window_start, window_end, src_sgt, dst_sgt, flow_count, byte_count, approximate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	for _, cell := range snapshot.Cells {
		if _, err := tx.Exec(ctx, insertSQL, snapshot.Version, snapshot.WindowStart, snapshot.WindowEnd, cell.SrcSGT, cell.DstSGT, cell.FlowCount, cell.ByteCount, snapshot.Approximate, snapshot.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert matrix cell: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LatestMatrixVersion returns the highest persisted matrix version, or
// zero if none exist yet.
func (s *Store) LatestMatrixVersion(ctx context.Context) (uint64, error) {
	var version uint64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM matrix_cell`).Scan(&version)
	return version, err
}

// SavePolicyRule persists one recommended rule for a given version.
// Retried once on failure per the persistence-failure contract.
func (s *Store) SavePolicyRule(ctx context.Context, version int, rule models.PolicyRule, createdAt time.Time) error {
	return withRetry(func() error { return s.savePolicyRuleOnce(ctx, version, rule, createdAt) })
}

func (s *Store) savePolicyRuleOnce(ctx context.Context, version int, rule models.PolicyRule, createdAt time.Time) error {
	sql := `
		INSERT INTO policy_rule (version, src_sgt, dst_sgt, action, justification, confidence, origin, rule_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := s.pool.Exec(ctx, sql, version, rule.SrcSGT, rule.DstSGT, string(rule.Action), rule.Justification, rule.Confidence, string(rule.Origin), rule.Order, createdAt)
	return err
}

// eligibleColumns allowlists the columns RecomputeEligible may order
// by, following the teacher's UpdateAnonSetWindows pattern of
// validating a dynamic identifier against an explicit map rather than
// interpolating caller input directly into SQL.
var eligibleColumns = map[string]bool{
	"confirmed_at": true,
	"confidence":   true,
}

// RecomputeEligible returns endpoint ids whose membership is not
// manually locked, ordered by orderByColumn, for incremental
// reassignment sweeps. orderByColumn must be a member of
// eligibleColumns; any other value is rejected rather than
// interpolated into SQL.
func (s *Store) RecomputeEligible(ctx context.Context, orderByColumn string, limit int) ([]string, error) {
	if !eligibleColumns[orderByColumn] {
		return nil, fmt.Errorf("column %q is not allowlisted for ordering", orderByColumn)
	}
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	sql := fmt.Sprintf(`
		SELECT endpoint_id FROM membership
		WHERE manual_locked = FALSE
		ORDER BY %s ASC
		LIMIT $1;
	`, orderByColumn)

	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
