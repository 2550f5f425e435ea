package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"amm_go/internal/pricing"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수와 CLI 플래그로 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Engine struct {
		Fee              pricing.Fee `yaml:"fee"`
		InboxSize        int         `yaml:"inbox_size"`
		VerifyInvariants bool        `yaml:"verify_invariants"`
		DumpPath         string      `yaml:"dump_path"`
	} `yaml:"engine"`

	Storage struct {
		Path string `yaml:"path"` // empty: OS config dir
	} `yaml:"storage"`

	Server struct {
		Addr            string `yaml:"addr"`
		ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
		EnableCORS      bool   `yaml:"enable_cors"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "amm"
	cfg.App.Version = "dev"
	cfg.Engine.Fee = pricing.DefaultFee
	cfg.Engine.InboxSize = 1024
	cfg.Engine.VerifyInvariants = true
	cfg.Engine.DumpPath = "panic_dump.json"
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.ShutdownTimeout = 10
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다. 파일에 없는 값은 기본값을 유지합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if err := c.Engine.Fee.Validate(); err != nil {
		return err
	}
	if c.Engine.InboxSize <= 0 {
		return fmt.Errorf("inbox size must be positive")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}
	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("AMM_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("AMM_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AMM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AMM_FEE"); v != "" {
		fee, err := ParseFee(v)
		if err != nil {
			return fmt.Errorf("AMM_FEE: %w", err)
		}
		cfg.Engine.Fee = fee
	}
	return nil
}

// ParseFee parses "num/den", e.g. "3/1000".
func ParseFee(s string) (pricing.Fee, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return pricing.Fee{}, fmt.Errorf("fee %q: expected num/den", s)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(num), 10, 64)
	if err != nil {
		return pricing.Fee{}, fmt.Errorf("fee %q: %w", s, err)
	}
	d, err := strconv.ParseUint(strings.TrimSpace(den), 10, 64)
	if err != nil {
		return pricing.Fee{}, fmt.Errorf("fee %q: %w", s, err)
	}
	fee := pricing.Fee{Num: n, Den: d}
	return fee, fee.Validate()
}
