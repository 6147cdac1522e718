// Package config assembles typed configuration from environment
// variables with documented defaults for every key in the
// configuration surface, following the teacher's requireEnv /
// getEnvOrDefault pattern in cmd/engine/main.go, generalized into a
// single Config struct populated once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// Config is every tunable documented in the configuration surface.
// Populated once at startup by Load and passed by value to
// constructors — there is no global config singleton.
type Config struct {
	HLLPrecision uint8
	CMSWidth     uint32
	CMSDepth     uint32

	SketchMinFlows uint64

	ClusterMinSize    int
	ClusterMinSamples int

	IncrementalConfidenceMin float64

	IdentityGraceWindow time.Duration
	IdentityPendingCap  int

	TemplateTTL time.Duration

	SGTBaseValue         uint32
	SGTMemberOverlapMin  float64

	StabilityMaxChurn float64

	PolicyDefaultAction  string
	PolicyCoverageTarget float64

	NetflowPort int
	IPFIXPort   int

	ExternalDeadline time.Duration

	CatalogBackoffBase        time.Duration
	CatalogBackoffCap         time.Duration
	CatalogBackoffMaxAttempts int

	APIAllowedOrigins    string
	APIAuthToken         string // empty means dev mode: auth is bypassed
	APIRateLimitPerMin   int
	APIRateLimitBurst    int

	DatabaseURL string
}

// Load builds a Config from the process environment. Any malformed
// value (e.g. a non-numeric port, a negative TTL) is reported as a
// ConfigurationInvalid error — the only fatal error kind per the error
// taxonomy — and the caller is expected to log and exit non-zero, as
// the teacher's requireEnv does for missing required variables.
func Load() (Config, error) {
	cfg := Config{
		HLLPrecision: 12,
		CMSWidth:     2048,
		CMSDepth:     5,

		SketchMinFlows: 50,

		ClusterMinSize:    50,
		ClusterMinSamples: 10,

		IncrementalConfidenceMin: 0.5,

		IdentityGraceWindow: 60 * time.Second,
		IdentityPendingCap:  100_000,

		TemplateTTL: 1800 * time.Second,

		SGTBaseValue:        2,
		SGTMemberOverlapMin: 0.70,

		StabilityMaxChurn: 0.25,

		PolicyDefaultAction:  "deny",
		PolicyCoverageTarget: 0.9,

		NetflowPort: 2055,
		IPFIXPort:   4739,

		ExternalDeadline: 10 * time.Second,

		CatalogBackoffBase:        1 * time.Second,
		CatalogBackoffCap:         30 * time.Second,
		CatalogBackoffMaxAttempts: 5,

		APIAllowedOrigins:  "*",
		APIRateLimitPerMin: 60,
		APIRateLimitBurst:  10,
	}

	var err error
	if cfg.HLLPrecision, err = envUint8("HLL_PRECISION", cfg.HLLPrecision); err != nil {
		return cfg, err
	}
	if cfg.CMSWidth, err = envUint32("CMS_WIDTH", cfg.CMSWidth); err != nil {
		return cfg, err
	}
	if cfg.CMSDepth, err = envUint32("CMS_DEPTH", cfg.CMSDepth); err != nil {
		return cfg, err
	}
	if cfg.SketchMinFlows, err = envUint64("SKETCH_MIN_FLOWS", cfg.SketchMinFlows); err != nil {
		return cfg, err
	}
	if cfg.ClusterMinSize, err = envInt("CLUSTER_MIN_SIZE", cfg.ClusterMinSize); err != nil {
		return cfg, err
	}
	if cfg.ClusterMinSamples, err = envInt("CLUSTER_MIN_SAMPLES", cfg.ClusterMinSamples); err != nil {
		return cfg, err
	}
	if cfg.IncrementalConfidenceMin, err = envFloat01("INCREMENTAL_CONFIDENCE_MIN", cfg.IncrementalConfidenceMin); err != nil {
		return cfg, err
	}
	if cfg.IdentityGraceWindow, err = envDuration("IDENTITY_GRACE_WINDOW", cfg.IdentityGraceWindow); err != nil {
		return cfg, err
	}
	if cfg.IdentityPendingCap, err = envInt("IDENTITY_PENDING_CAP", cfg.IdentityPendingCap); err != nil {
		return cfg, err
	}
	if cfg.TemplateTTL, err = envDuration("TEMPLATE_TTL", cfg.TemplateTTL); err != nil {
		return cfg, err
	}
	if cfg.SGTBaseValue, err = envUint32("SGT_BASE_VALUE", cfg.SGTBaseValue); err != nil {
		return cfg, err
	}
	if cfg.SGTMemberOverlapMin, err = envFloat01("SGT_MEMBER_OVERLAP_MIN", cfg.SGTMemberOverlapMin); err != nil {
		return cfg, err
	}
	if cfg.StabilityMaxChurn, err = envFloat01("STABILITY_MAX_CHURN", cfg.StabilityMaxChurn); err != nil {
		return cfg, err
	}
	cfg.PolicyDefaultAction = getEnvOrDefault("POLICY_DEFAULT_ACTION", cfg.PolicyDefaultAction)
	if cfg.PolicyDefaultAction != "permit" && cfg.PolicyDefaultAction != "deny" {
		return cfg, invalidConfig("POLICY_DEFAULT_ACTION must be 'permit' or 'deny', got %q", cfg.PolicyDefaultAction)
	}
	if cfg.PolicyCoverageTarget, err = envFloat01("POLICY_COVERAGE_TARGET", cfg.PolicyCoverageTarget); err != nil {
		return cfg, err
	}
	if cfg.NetflowPort, err = envPort("NETFLOW_PORT", cfg.NetflowPort); err != nil {
		return cfg, err
	}
	if cfg.IPFIXPort, err = envPort("IPFIX_PORT", cfg.IPFIXPort); err != nil {
		return cfg, err
	}
	if cfg.ExternalDeadline, err = envDuration("EXTERNAL_DEADLINE", cfg.ExternalDeadline); err != nil {
		return cfg, err
	}
	if cfg.CatalogBackoffBase, err = envDuration("CATALOG_BACKOFF_BASE", cfg.CatalogBackoffBase); err != nil {
		return cfg, err
	}
	if cfg.CatalogBackoffCap, err = envDuration("CATALOG_BACKOFF_CAP", cfg.CatalogBackoffCap); err != nil {
		return cfg, err
	}
	if cfg.CatalogBackoffMaxAttempts, err = envInt("CATALOG_BACKOFF_MAX_ATTEMPTS", cfg.CatalogBackoffMaxAttempts); err != nil {
		return cfg, err
	}
	cfg.APIAllowedOrigins = getEnvOrDefault("API_ALLOWED_ORIGINS", cfg.APIAllowedOrigins)
	cfg.APIAuthToken = os.Getenv("API_AUTH_TOKEN") // unset is a valid dev-mode value, not an error
	if cfg.APIRateLimitPerMin, err = envInt("API_RATE_LIMIT_PER_MIN", cfg.APIRateLimitPerMin); err != nil {
		return cfg, err
	}
	if cfg.APIRateLimitBurst, err = envInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst); err != nil {
		return cfg, err
	}

	// Unlike the teacher's requireEnv, an unset DATABASE_URL is not
	// fatal here — persistence is optional per §5 and its absence means
	// the caller falls back to an in-memory store with a logged warning.
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func invalidConfig(format string, args ...interface{}) error {
	return models.NewError(models.ConfigurationInvalid, fmt.Sprintf(format, args...), nil)
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, invalidConfig("%s must be a non-negative integer, got %q", key, raw)
	}
	return v, nil
}

func envUint8(key string, fallback uint8) (uint8, error) {
	v, err := envInt(key, int(fallback))
	if err != nil {
		return 0, err
	}
	if v < 4 || v > 18 {
		return 0, invalidConfig("%s must be in [4, 18], got %d", key, v)
	}
	return uint8(v), nil
}

func envUint32(key string, fallback uint32) (uint32, error) {
	v, err := envInt(key, int(fallback))
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func envUint64(key string, fallback uint64) (uint64, error) {
	v, err := envInt(key, int(fallback))
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func envPort(key string, fallback int) (int, error) {
	v, err := envInt(key, fallback)
	if err != nil {
		return 0, err
	}
	if v < 1 || v > 65535 {
		return 0, invalidConfig("%s must be a valid port in [1, 65535], got %d", key, v)
	}
	return v, nil
}

func envFloat01(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, invalidConfig("%s must be a float in [0, 1], got %q", key, raw)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, invalidConfig("%s must be a non-negative integer number of seconds, got %q", key, raw)
	}
	return time.Duration(secs) * time.Second, nil
}
