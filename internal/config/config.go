package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeOffline Mode = "offline" // sqlite, local auth
	ModeOnline  Mode = "online"  // postgres
	ModeMemory  Mode = "memory"  // in-memory store, nothing persisted
)

type Config struct {
	Mode     Mode   `yaml:"mode"`
	HTTPAddr string `yaml:"http_addr"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	AuthHMACSecret  string        `yaml:"auth_hmac_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	EnableLocalAuth bool          `yaml:"enable_local_auth"`

	AdminUser     string `yaml:"admin_user"`
	AdminPassHash string `yaml:"admin_pass_hash"` // bcrypt

	CORSOrigins []string `yaml:"cors_origins"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	// Attempt timing.
	SubmitGrace  time.Duration `yaml:"submit_grace"`  // late submit tolerance past the deadline
	SaveInterval time.Duration `yaml:"save_interval"` // client progress flush hint

	// Expiry sweeper; SweepInterval 0 disables it.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepBatch    int           `yaml:"sweep_batch"`
	SweepParallel int           `yaml:"sweep_parallel"`

	// Grading.
	GradeFillBlank     bool `yaml:"grade_fill_blank"`
	PartialMultiCredit bool `yaml:"partial_multi_credit"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Mode:            ModeOffline,
		HTTPAddr:        ":8080",
		DBDriver:        "sqlite",
		AuthHMACSecret:  "supersecret-dev-key",
		TokenTTL:        8 * time.Hour,
		EnableLocalAuth: true,
		AdminUser:       "admin",
		CORSOrigins:     []string{"http://localhost:3000"},
		LogLevel:        "info",
		LogPretty:       true,
		SubmitGrace:     10 * time.Second,
		SaveInterval:    15 * time.Second,
		SweepInterval:   30 * time.Second,
		SweepBatch:      200,
		SweepParallel:   4,
	}
}

// Load builds the config from defaults, an optional .env file, an optional
// YAML file (CONFIG_FILE or path) and finally environment variables.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if p := envOr("CONFIG_FILE", path); p != "" {
		if err := loadFile(p, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Mode == ModeOnline && cfg.DBDriver == "sqlite" && os.Getenv("DB_DRIVER") == "" {
		cfg.DBDriver = "postgres"
	}
	return cfg, nil
}

// FromEnv is Load without a config file, failing hard on malformed values.
func FromEnv() Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat config file: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Mode = Mode(envOr("MODE", string(cfg.Mode)))
	cfg.HTTPAddr = envOr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBDriver = envOr("DB_DRIVER", cfg.DBDriver)
	cfg.DBDSN = envOr("DB_DSN", cfg.DBDSN)
	cfg.AuthHMACSecret = envOr("AUTH_HMAC_SECRET", cfg.AuthHMACSecret)
	cfg.EnableLocalAuth = envBool("ENABLE_LOCAL_AUTH", cfg.EnableLocalAuth)
	cfg.AdminUser = envOr("ADMIN_USER", cfg.AdminUser)
	cfg.AdminPassHash = envOr("ADMIN_PASS_HASH", cfg.AdminPassHash)
	cfg.CORSOrigins = csvOr("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = envBool("LOG_PRETTY", cfg.LogPretty)
	cfg.GradeFillBlank = envBool("GRADE_FILL_BLANK", cfg.GradeFillBlank)
	cfg.PartialMultiCredit = envBool("PARTIAL_MULTI_CREDIT", cfg.PartialMultiCredit)

	var err error
	if cfg.TokenTTL, err = envDuration("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return err
	}
	if cfg.SubmitGrace, err = envDuration("SUBMIT_GRACE", cfg.SubmitGrace); err != nil {
		return err
	}
	if cfg.SaveInterval, err = envDuration("SAVE_INTERVAL", cfg.SaveInterval); err != nil {
		return err
	}
	if cfg.SweepInterval, err = envDuration("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return err
	}
	if cfg.SweepBatch, err = envInt("SWEEP_BATCH", cfg.SweepBatch); err != nil {
		return err
	}
	if cfg.SweepParallel, err = envInt("SWEEP_PARALLEL", cfg.SweepParallel); err != nil {
		return err
	}
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func csvOr(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
