package config

import (
	"os"
	"testing"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_DefaultsApplyWhenUnset(t *testing.T) {
	clearEnv(t, "HLL_PRECISION", "CMS_WIDTH", "NETFLOW_PORT", "POLICY_DEFAULT_ACTION")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HLLPrecision != 12 {
		t.Errorf("expected default HLL precision 12, got %d", cfg.HLLPrecision)
	}
	if cfg.NetflowPort != 2055 {
		t.Errorf("expected default netflow port 2055, got %d", cfg.NetflowPort)
	}
	if cfg.PolicyDefaultAction != "deny" {
		t.Errorf("expected default policy action deny, got %s", cfg.PolicyDefaultAction)
	}
}

func TestLoad_InvalidPortRejected(t *testing.T) {
	os.Setenv("NETFLOW_PORT", "99999")
	defer os.Unsetenv("NETFLOW_PORT")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	if kind, _ := models.KindOf(err); kind != models.ConfigurationInvalid {
		t.Errorf("expected ConfigurationInvalid, got %v", kind)
	}
}

func TestLoad_InvalidHLLPrecisionRejected(t *testing.T) {
	os.Setenv("HLL_PRECISION", "30")
	defer os.Unsetenv("HLL_PRECISION")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for HLL precision out of [4,18]")
	}
}

func TestLoad_InvalidPolicyActionRejected(t *testing.T) {
	os.Setenv("POLICY_DEFAULT_ACTION", "maybe")
	defer os.Unsetenv("POLICY_DEFAULT_ACTION")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid policy default action")
	}
}
