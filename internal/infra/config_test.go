package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"amm_go/internal/domain"
	"amm_go/internal/pricing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: amm-test
engine:
  fee:
    num: 1
    den: 100
  inbox_size: 16
server:
  addr: ":9090"
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "amm-test" {
		t.Errorf("expected name amm-test, got %s", cfg.App.Name)
	}
	if cfg.Engine.Fee != (pricing.Fee{Num: 1, Den: 100}) {
		t.Errorf("unexpected fee %v", cfg.Engine.Fee)
	}
	if cfg.Engine.InboxSize != 16 || cfg.Server.Addr != ":9090" {
		t.Errorf("unexpected engine/server config: %+v %+v", cfg.Engine, cfg.Server)
	}
	// Defaults survive for omitted keys.
	if cfg.Logging.Dir != "logs" || !cfg.Engine.VerifyInvariants {
		t.Errorf("defaults lost: %+v", cfg.Logging)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("AMM_LISTEN_ADDR", ":7070")
	t.Setenv("AMM_DB_PATH", "/tmp/amm.db")
	t.Setenv("AMM_FEE", "5/1000")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("expected env addr, got %s", cfg.Server.Addr)
	}
	if cfg.Storage.Path != "/tmp/amm.db" {
		t.Errorf("expected env db path, got %s", cfg.Storage.Path)
	}
	if cfg.Engine.Fee.Num != 5 {
		t.Errorf("expected env fee, got %v", cfg.Engine.Fee)
	}
}

func TestLoadConfig_InvalidEnvFee(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("AMM_FEE", "three")

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for unparsable AMM_FEE")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "engine:\n  fee:\n    num: 10\n    den: 10\n")
	_, err := LoadConfig(path)
	if !errors.Is(err, domain.ErrInvalidFee) {
		t.Errorf("expected ErrInvalidFee, got %v", err)
	}

	path = writeConfig(t, "logging:\n  level: loud\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for unknown log level")
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseFee(t *testing.T) {
	fee, err := ParseFee("3/1000")
	if err != nil || fee != pricing.DefaultFee {
		t.Errorf("ParseFee(3/1000) = %v, %v", fee, err)
	}
	for _, bad := range []string{"3", "a/b", "1000/1000", "1/0"} {
		if _, err := ParseFee(bad); err == nil {
			t.Errorf("ParseFee(%q) should fail", bad)
		}
	}
}
