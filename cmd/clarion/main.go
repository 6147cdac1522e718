// Command clarion runs the segmentation copilot: it listens for
// NetFlow v5/v9 and IPFIX exports, maintains per-endpoint sketches,
// periodically clusters endpoints into SGTs, builds the SGT×SGT
// communication matrix, recommends policy, and serves all of the
// above over HTTP. Startup ordering follows the teacher's
// cmd/engine/main.go: load config, connect optional persistence,
// construct the core components, start background listeners and the
// scheduler, then block serving HTTP until an OS signal arrives.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/clarion-segmentation/clarion/internal/api"
	"github.com/clarion-segmentation/clarion/internal/catalog"
	"github.com/clarion-segmentation/clarion/internal/cluster"
	"github.com/clarion-segmentation/clarion/internal/config"
	"github.com/clarion-segmentation/clarion/internal/db"
	"github.com/clarion-segmentation/clarion/internal/edgeagent"
	"github.com/clarion-segmentation/clarion/internal/flowdecode"
	"github.com/clarion-segmentation/clarion/internal/identity"
	"github.com/clarion-segmentation/clarion/internal/matrix"
	"github.com/clarion-segmentation/clarion/internal/obslog"
	"github.com/clarion-segmentation/clarion/internal/policy"
	"github.com/clarion-segmentation/clarion/internal/scheduler"
	"github.com/clarion-segmentation/clarion/internal/sgt"
	"github.com/clarion-segmentation/clarion/internal/sketch"
	"github.com/clarion-segmentation/clarion/internal/store"
	"github.com/clarion-segmentation/clarion/pkg/models"
)

func main() {
	log.Println("starting Clarion segmentation copilot")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	olog := obslog.New(time.Second)

	var dbStore *db.Store
	if cfg.DatabaseURL != "" {
		dbStore, err = db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: failed to connect to PostgreSQL, continuing with in-memory-only persistence: %v", err)
			dbStore = nil
		} else {
			defer dbStore.Close()
			if err := dbStore.InitSchema(context.Background()); err != nil {
				log.Printf("warning: schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set — running with in-memory-only persistence")
	}

	// ── Core components ──────────────────────────────────────────
	sketchStore := store.New(store.Config{
		HLLPrecision: cfg.HLLPrecision,
		CMSWidth:     cfg.CMSWidth,
		CMSDepth:     cfg.CMSDepth,
		TopKCap:      16,
	})

	sessions := identity.NewSessionIndex(cfg.IdentityGraceWindow)
	directory := identity.NewDirectoryIndex()
	pending := identity.NewPendingQueue(cfg.IdentityPendingCap)
	idResolver := identity.NewResolver(sessions, directory, pending, identity.DefaultConfidenceWeights(), cfg.IncrementalConfidenceMin)
	idCache := newIdentityCache()

	registry := sgt.NewRegistry(cfg.SGTBaseValue)
	membership := sgt.NewMembershipTable()
	binder := sgt.NewBinder(registry, membership, sgt.BindConfig{MemberOverlapMin: cfg.SGTMemberOverlapMin})
	stabilityGuard := sgt.NewStabilityGuard(sgt.StabilityConfig{MinARI: 0.70, MaxChurnFrac: cfg.StabilityMaxChurn})

	wsHub := api.NewHub()
	go wsHub.Run()

	edgeSrv := edgeagent.NewServer(sketchStore, store.Config{
		HLLPrecision: cfg.HLLPrecision, CMSWidth: cfg.CMSWidth, CMSDepth: cfg.CMSDepth, TopKCap: 16,
	})

	apiHandler := api.NewAPIHandler(registry, membership, edgeSrv, wsHub, dbStore != nil)

	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:     os.Getenv("CATALOG_BASE_URL"),
		Deadline:    cfg.ExternalDeadline,
		BackoffBase: cfg.CatalogBackoffBase,
		BackoffCap:  cfg.CatalogBackoffCap,
		MaxAttempts: cfg.CatalogBackoffMaxAttempts,
	})

	// ── Background NetFlow/IPFIX UDP listeners ───────────────────
	templateCache := flowdecode.NewTemplateCache(4096, cfg.TemplateTTL)
	pendingBuf := flowdecode.NewPendingBuffer(4096)
	decoder := flowdecode.NewDecoder(templateCache, pendingBuf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runUDPListener(ctx, "netflow", cfg.NetflowPort, func(packet []byte, exporter string, now time.Time) {
		decode := decoder.DecodeV9
		if len(packet) >= 2 && packet[0] == 0 && packet[1] == 5 {
			decode = flowdecode.DecodeV5
		}
		records, err := decode(packet, exporter, now)
		if err != nil {
			kind, _ := models.KindOf(err)
			olog.Error(kind, "flowdecode.v9", err)
			return
		}
		recordFlows(sketchStore, idResolver, idCache, records)
	})
	go runUDPListener(ctx, "ipfix", cfg.IPFIXPort, func(packet []byte, exporter string, now time.Time) {
		records, err := decoder.DecodeIPFIX(packet, exporter, now)
		if err != nil {
			kind, _ := models.KindOf(err)
			olog.Error(kind, "flowdecode.ipfix", err)
			return
		}
		recordFlows(sketchStore, idResolver, idCache, records)
	})

	// ── Scheduler: batch clustering, incremental assignment, matrix rebuild ──
	var latestCentroids models.CentroidSnapshot

	batchFn := func(ctx context.Context) error {
		endpoints := buildClusterInput(sketchStore, idCache, cfg.SketchMinFlows)
		result, err := cluster.RunBatch(endpoints, cluster.BatchConfig{MinClusterSize: cfg.ClusterMinSize, MinSamples: cfg.ClusterMinSamples})
		if err != nil {
			olog.Error(models.ClusteringFailed, "scheduler.batch", err)
			return err
		}

		byID := make(map[string]cluster.Endpoint, len(endpoints))
		ids := make([]string, 0, len(endpoints))
		priorSGT := make(map[string]uint32, len(endpoints))
		newCluster := make(map[string]int, len(endpoints))
		for _, e := range endpoints {
			byID[e.ID] = e
			ids = append(ids, e.ID)
			if m, ok := membership.Get(e.ID); ok {
				priorSGT[e.ID] = m.SGTValue
			}
		}
		for _, c := range result.Clusters {
			for _, id := range c.Members {
				newCluster[id] = c.ID
			}
		}
		ari, vi, flags := stabilityGuard.Evaluate(ids, priorSGT, newCluster, time.Now())
		log.Printf("batch run: %d clusters, ari=%.3f vi=%.3f, %d stability flags", len(result.Clusters), ari, vi, len(flags))
		api.BroadcastStabilityReview(wsHub, flags)

		binder.Bind(result, flags, time.Now())
		if dbStore != nil {
			for _, m := range membership.Snapshot() {
				if err := dbStore.UpsertMembership(ctx, m); err != nil {
					olog.Error(models.PersistenceFailed, "scheduler.batch.persist", err)
					return err
				}
			}
		}
		api.BroadcastBatchComplete(wsHub, len(result.Clusters), ari, vi)

		runID := time.Now().UTC().Format(time.RFC3339Nano)
		centroids := make([]models.ClusterCentroid, 0, len(result.Clusters))
		for _, c := range result.Clusters {
			sgtValue := uint32(0)
			if m, ok := membership.Get(c.Members[0]); ok {
				sgtValue = m.SGTValue
			}
			centroids = append(centroids, models.ClusterCentroid{
				RunID:        runID,
				ClusterID:    c.ID,
				Centroid:     c.Centroid,
				SGTValue:     sgtValue,
				MemberCount:  len(c.Members),
				P95IntraDist: cluster.P95IntraClusterDistance(c.Members, byID, c.Centroid),
			})
		}
		snapshot := models.CentroidSnapshot{RunID: runID, Centroids: centroids, CreatedAt: time.Now()}
		if dbStore != nil {
			if err := dbStore.SaveCentroidSnapshot(ctx, snapshot); err != nil {
				olog.Error(models.PersistenceFailed, "scheduler.batch.centroids", err)
				return err
			}
		}
		latestCentroids = snapshot
		return nil
	}

	incrementalFn := func(ctx context.Context) error {
		eligible := sketchStore.Eligible(cfg.SketchMinFlows)
		for _, id := range eligible {
			if membership.IsManuallyLocked(id) {
				continue
			}
			snap, ok := sketchStore.Snapshot(id)
			if !ok {
				continue
			}
			features := sketch.Extract(snap)
			assignment := cluster.AssignIncremental(id, features, latestCentroids, cluster.IncrementalConfig{ConfidenceMin: cfg.IncrementalConfidenceMin})
			if !assignment.Assigned {
				continue
			}
			membership.Set(models.Membership{
				EndpointID: id,
				SGTValue:   assignment.SGTValue,
				AssignedAt: time.Now(),
				AssignedBy: models.OriginIncremental,
				Confidence: assignment.Confidence,
				ClusterID:  assignment.ClusterID,
			})
		}
		return nil
	}

	matrixVersion := uint64(0)

	matrixFn := func(ctx context.Context) error {
		matrixVersion++
		resolver := membershipResolver{membership}
		builder := matrix.NewBuilder(resolver, time.Now().Add(-time.Hour), time.Now(), false)
		snapshot := builder.Build(int(matrixVersion), 8, time.Now())

		apiHandler.SetLatestMatrix(snapshot)
		api.BroadcastMatrixRebuilt(wsHub, snapshot.Version, len(snapshot.Cells))
		if dbStore != nil {
			if err := dbStore.SaveMatrixSnapshot(ctx, snapshot); err != nil {
				olog.Error(models.PersistenceFailed, "scheduler.matrix.persist", err)
				return err
			}
		}

		var externalPolicies []policy.ExternalPolicy
		if extRules, err := catalogClient.ListRules(ctx); err != nil {
			olog.Error(models.TransientExternal, "catalog.listrules", err)
		} else {
			externalPolicies = make([]policy.ExternalPolicy, 0, len(extRules))
			for _, r := range extRules {
				externalPolicies = append(externalPolicies, policy.ExternalPolicy{
					SrcSGT: r.SrcSGT,
					DstSGT: r.DstSGT,
					Action: models.PolicyAction(r.Action),
				})
			}
		}
		recommender := policy.NewRecommender(policy.DefaultConfig(), externalPolicies)

		sgtConfidence := make(map[uint32]float64)
		for _, m := range membership.Snapshot() {
			sgtConfidence[m.SGTValue] = m.Confidence
		}
		rules, _ := recommender.Recommend(snapshot, sgtConfidence)
		impact := policy.AnalyzeImpact(snapshot, rules, time.Now())
		apiHandler.SetLatestPolicy(rules, impact)
		if dbStore != nil {
			for _, rule := range rules {
				if err := dbStore.SavePolicyRule(ctx, int(matrixVersion), rule, time.Now()); err != nil {
					olog.Error(models.PersistenceFailed, "scheduler.policy.persist", err)
					return err
				}
			}
		}
		return nil
	}

	unassignedFrac := func() float64 {
		total := len(membership.Snapshot())
		if total == 0 {
			return 0
		}
		unassigned := len(sketchStore.Eligible(cfg.SketchMinFlows))
		return float64(unassigned) / float64(total+unassigned)
	}

	sched := scheduler.New(scheduler.DefaultConfig(), batchFn, incrementalFn, matrixFn, unassignedFrac)
	go sched.Run(ctx)

	// ── HTTP server ───────────────────────────────────────────────
	r := api.SetupRouter(apiHandler, api.Config{
		AllowedOrigins:  cfg.APIAllowedOrigins,
		AuthToken:       cfg.APIAuthToken,
		RateLimitPerMin: cfg.APIRateLimitPerMin,
		RateLimitBurst:  cfg.APIRateLimitBurst,
		ReleaseMode:     os.Getenv("GIN_MODE") == "release",
	})

	port := getEnvOrDefault("PORT", "8080")
	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Printf("Clarion listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// membershipResolver adapts sgt.MembershipTable to matrix.SGTResolver.
type membershipResolver struct {
	table *sgt.MembershipTable
}

func (r membershipResolver) Resolve(endpointID string) (uint32, bool) {
	m, ok := r.table.Get(endpointID)
	if !ok {
		return 0, false
	}
	return m.SGTValue, true
}

// identityCache holds the most recent identity resolution per
// endpoint, fed by recordFlows and consumed by buildClusterInput when
// assembling cluster input — kept outside internal/store since
// identity attribution (§4.4) is independent of the sketch it
// eventually labels.
type identityCache struct {
	mu   sync.RWMutex
	byID map[string]identity.Resolution
}

func newIdentityCache() *identityCache {
	return &identityCache{byID: make(map[string]identity.Resolution)}
}

func (c *identityCache) put(res identity.Resolution) {
	if res.Pending {
		return
	}
	c.mu.Lock()
	c.byID[res.EndpointID] = res
	c.mu.Unlock()
}

func (c *identityCache) get(endpointID string) (identity.Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.byID[endpointID]
	return res, ok
}

func recordFlows(s *store.Store, idResolver *identity.Resolver, idCache *identityCache, records []models.FlowRecord) {
	for _, rec := range records {
		idCache.put(idResolver.Resolve(rec.SrcAddr, rec.SrcAddr, rec.Start))
		idCache.put(idResolver.Resolve(rec.DstAddr, rec.DstAddr, rec.Start))
		s.RecordFlow(rec.SrcAddr, rec.DstAddr, rec)
	}
}

func buildClusterInput(s *store.Store, idCache *identityCache, minFlows uint64) []cluster.Endpoint {
	eligible := s.Eligible(minFlows)
	out := make([]cluster.Endpoint, 0, len(eligible))
	for _, id := range eligible {
		snap, ok := s.Snapshot(id)
		if !ok {
			continue
		}
		ep := cluster.Endpoint{ID: id, Features: sketch.Extract(snap)}
		if res, ok := idCache.get(id); ok {
			ep.Groups = res.Groups
		}
		out = append(out, ep)
	}
	return out
}

// runUDPListener runs a simple UDP receive loop on the given port,
// calling handle for each datagram, until ctx is cancelled. Grounded
// in the teacher's mempool.Poller goroutine shape: a long-running
// background loop selecting on ctx.Done() alongside its own work.
func runUDPListener(ctx context.Context, name string, port int, handle func(packet []byte, exporter string, now time.Time)) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Printf("%s listener: failed to bind port %d: %v", name, port, err)
		return
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("%s listener: read error: %v", name, err)
				continue
			}
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		handle(packet, src.IP.String(), time.Now())
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
