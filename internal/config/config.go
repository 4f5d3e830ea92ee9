package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/liamashdown/coordwatch/internal/coordination"
	"github.com/liamashdown/coordwatch/internal/scheduler"
	"github.com/liamashdown/coordwatch/internal/secrets"
)

// AuthMode represents the authentication mode for Data API
type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeBearer AuthMode = "bearer"
	AuthModeAPIKey AuthMode = "api_key"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Database
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration

	// Data API
	DataAPIBaseURL      string
	DataAPIAuthMode     AuthMode
	DataAPIBearerToken  string
	DataAPIAPIKey       string
	DataAPIExtraHeaders map[string]string

	// Gamma API
	GammaAPIBaseURL string

	// Ingestion
	MinTradeUSD        float64 // Minimum notional fetched from the feed
	TradeFetchLimit    int     // Trades requested per poll
	BackfillTradeLimit int     // History fetched for newly seen wallets, 0 disables backfill
	BackfillWorkers    int
	TradeRetention     time.Duration

	// Rate limits (requests per second)
	DataAPITradesRPS   float64
	DataAPIUserRPS     float64
	GammaAPIMarketsRPS float64
	RateLimitBurst     int

	// Schedules (cron specs, seconds field optional)
	PollSchedule      string
	ResolveSchedule   string
	PruneSchedule     string
	RetentionSchedule string

	// Coordination detector
	CoordWindow               time.Duration
	CoordMinSimilarity        float64
	CoordMinGroupSize         int
	CoordMaxPairsPerWallet    int
	CoordMinTrades            int
	CoordCacheTTL             time.Duration
	CoordScoreWeights         coordination.ScoreWeights
	CoordRiskThresholds       coordination.RiskThresholds
	CoordConfidenceThresholds coordination.ConfidenceThresholds
	CoordEnableEvents         bool
	CoordEnableCaching        bool

	// Alerts
	AlertMode         string // comma-separated: log, discord, smtp
	AlertMinRisk      coordination.RiskLevel
	AlertCooldownMins int
	DiscordWebURL     string
	SMTPHost          string
	SMTPPort          int
	SMTPUser          string
	SMTPPassword      string
	SMTPFrom          string
	SMTPTo            []string

	// Metrics/Health
	MetricsPort int
	HealthPort  int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	detector := coordination.DefaultConfig()

	cfg := &Config{
		Environment:            getEnv("ENVIRONMENT", "production"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:            getEnv("DATABASE_DSN", "coordwatch:coordwatch@tcp(mysql:3306)/coordwatch?parseTime=true"),
		DatabaseMaxConns:       getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMaxIdleTime:    time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		DataAPIBaseURL:         getEnv("DATA_API_BASE_URL", "https://data-api.polymarket.com"),
		DataAPIAuthMode:        AuthMode(getEnv("DATA_API_AUTH_MODE", "none")),
		DataAPIBearerToken:     secrets.GetOptionalSecret("DATA_API_BEARER_TOKEN", ""),
		DataAPIAPIKey:          secrets.GetOptionalSecret("DATA_API_API_KEY", ""),
		GammaAPIBaseURL:        getEnv("GAMMA_API_BASE_URL", "https://gamma-api.polymarket.com"),
		MinTradeUSD:            getEnvFloat("MIN_TRADE_USD", 500.0),
		TradeFetchLimit:        getEnvInt("TRADE_FETCH_LIMIT", 500),
		BackfillTradeLimit:     getEnvInt("BACKFILL_TRADE_LIMIT", 100),
		BackfillWorkers:        getEnvInt("BACKFILL_WORKERS", 4),
		TradeRetention:         time.Duration(getEnvInt("TRADE_RETENTION_HOURS", 72)) * time.Hour,
		DataAPITradesRPS:       getEnvFloat("DATA_API_TRADES_RPS", 2.0),
		DataAPIUserRPS:         getEnvFloat("DATA_API_USER_RPS", 1.0),
		GammaAPIMarketsRPS:     getEnvFloat("GAMMA_API_MARKETS_RPS", 5.0),
		RateLimitBurst:         getEnvInt("RATE_LIMIT_BURST", 1),
		PollSchedule:           getEnv("POLL_SCHEDULE", "@every 30s"),
		ResolveSchedule:        getEnv("RESOLVE_SCHEDULE", "@every 6h"),
		PruneSchedule:          getEnv("PRUNE_SCHEDULE", "@every 5m"),
		RetentionSchedule:      getEnv("RETENTION_SCHEDULE", "@hourly"),
		CoordWindow:            time.Duration(getEnvInt("COORD_WINDOW_SECS", int(detector.SimultaneousWindow/time.Second))) * time.Second,
		CoordMinSimilarity:     getEnvFloat("COORD_MIN_SIMILARITY", detector.MinSimilarityScore),
		CoordMinGroupSize:      getEnvInt("COORD_MIN_GROUP_SIZE", detector.MinGroupSize),
		CoordMaxPairsPerWallet: getEnvInt("COORD_MAX_PAIRS_PER_WALLET", detector.MaxPairsPerWallet),
		CoordMinTrades:         getEnvInt("COORD_MIN_TRADES", detector.MinTradesForAnalysis),
		CoordCacheTTL:          time.Duration(getEnvInt("COORD_CACHE_TTL_SECS", int(detector.CacheTTL/time.Second))) * time.Second,
		CoordEnableEvents:      getEnvBool("COORD_ENABLE_EVENTS", detector.EnableEvents),
		CoordEnableCaching:     getEnvBool("COORD_ENABLE_CACHING", detector.EnableCaching),
		AlertMode:              getEnv("ALERT_MODE", "log"),
		AlertMinRisk:           coordination.RiskLevel(strings.ToUpper(getEnv("ALERT_MIN_RISK", "HIGH"))),
		AlertCooldownMins:      getEnvInt("ALERT_COOLDOWN_MINS", 60),
		DiscordWebURL:          secrets.GetOptionalSecret("DISCORD_WEBHOOK_URL", ""),
		SMTPHost:               getEnv("SMTP_HOST", ""),
		SMTPPort:               getEnvInt("SMTP_PORT", 587),
		SMTPUser:               getEnv("SMTP_USER", ""),
		SMTPPassword:           secrets.GetOptionalSecret("SMTP_PASSWORD", ""),
		SMTPFrom:               getEnv("SMTP_FROM", "coordwatch@example.com"),
		MetricsPort:            getEnvInt("METRICS_PORT", 9090),
		HealthPort:             getEnvInt("HEALTH_PORT", 8080),
	}

	if smtpTo := getEnv("SMTP_TO", ""); smtpTo != "" {
		cfg.SMTPTo = parseCSV(smtpTo)
	}

	extraHeadersJSON := getEnv("DATA_API_EXTRA_HEADERS", "{}")
	if err := json.Unmarshal([]byte(extraHeadersJSON), &cfg.DataAPIExtraHeaders); err != nil {
		return nil, fmt.Errorf("invalid DATA_API_EXTRA_HEADERS JSON: %w", err)
	}

	// Structured detector settings override the defaults key by key
	cfg.CoordScoreWeights = detector.ScoreWeights
	if err := getEnvJSON("COORD_SCORE_WEIGHTS", &cfg.CoordScoreWeights); err != nil {
		return nil, err
	}
	cfg.CoordRiskThresholds = detector.RiskThresholds
	if err := getEnvJSON("COORD_RISK_THRESHOLDS", &cfg.CoordRiskThresholds); err != nil {
		return nil, err
	}
	cfg.CoordConfidenceThresholds = detector.ConfidenceThresholds
	if err := getEnvJSON("COORD_CONFIDENCE_THRESHOLDS", &cfg.CoordConfidenceThresholds); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Detector returns the coordination detector configuration
func (c *Config) Detector() coordination.Config {
	return coordination.Config{
		SimultaneousWindow:   c.CoordWindow,
		MinSimilarityScore:   c.CoordMinSimilarity,
		MinGroupSize:         c.CoordMinGroupSize,
		MaxPairsPerWallet:    c.CoordMaxPairsPerWallet,
		MinTradesForAnalysis: c.CoordMinTrades,
		CacheTTL:             c.CoordCacheTTL,
		ScoreWeights:         c.CoordScoreWeights,
		RiskThresholds:       c.CoordRiskThresholds,
		ConfidenceThresholds: c.CoordConfidenceThresholds,
		EnableEvents:         c.CoordEnableEvents,
		EnableCaching:        c.CoordEnableCaching,
	}
}

// AlertModes returns the configured alert sender names
func (c *Config) AlertModes() []string {
	return parseCSV(c.AlertMode)
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}

	switch c.DataAPIAuthMode {
	case AuthModeNone:
	case AuthModeBearer:
		if c.DataAPIBearerToken == "" {
			return fmt.Errorf("DATA_API_BEARER_TOKEN is required when AUTH_MODE is bearer")
		}
	case AuthModeAPIKey:
		if c.DataAPIAPIKey == "" {
			return fmt.Errorf("DATA_API_API_KEY is required when AUTH_MODE is api_key")
		}
	default:
		return fmt.Errorf("invalid DATA_API_AUTH_MODE: %s (must be none, bearer, or api_key)", c.DataAPIAuthMode)
	}

	if c.TradeFetchLimit <= 0 {
		return fmt.Errorf("TRADE_FETCH_LIMIT must be positive")
	}
	if c.BackfillTradeLimit < 0 {
		return fmt.Errorf("BACKFILL_TRADE_LIMIT must not be negative")
	}
	if c.BackfillWorkers <= 0 {
		return fmt.Errorf("BACKFILL_WORKERS must be positive")
	}
	if c.TradeRetention <= 0 {
		return fmt.Errorf("TRADE_RETENTION_HOURS must be positive")
	}

	for name, spec := range map[string]string{
		"POLL_SCHEDULE":      c.PollSchedule,
		"RESOLVE_SCHEDULE":   c.ResolveSchedule,
		"PRUNE_SCHEDULE":     c.PruneSchedule,
		"RETENTION_SCHEDULE": c.RetentionSchedule,
	} {
		if err := scheduler.ValidateSpec(spec); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if err := c.Detector().Validate(); err != nil {
		return fmt.Errorf("invalid COORD_* settings: %w", err)
	}

	if _, ok := coordination.ParseRiskLevel(string(c.AlertMinRisk)); !ok {
		return fmt.Errorf("invalid ALERT_MIN_RISK: %s (valid values: NONE, LOW, MEDIUM, HIGH, CRITICAL)", c.AlertMinRisk)
	}

	modes := c.AlertModes()
	if len(modes) == 0 {
		return fmt.Errorf("ALERT_MODE must name at least one sender")
	}
	hasDiscord := false
	hasSMTP := false
	for _, mode := range modes {
		switch mode {
		case "log":
		case "discord":
			hasDiscord = true
		case "smtp":
			hasSMTP = true
		default:
			return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: log, discord, smtp)", mode)
		}
	}

	if hasDiscord && c.DiscordWebURL == "" {
		return fmt.Errorf("DISCORD_WEBHOOK_URL is required when discord is in ALERT_MODE")
	}

	if hasSMTP && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when smtp is in ALERT_MODE")
	}
	if hasSMTP && len(c.SMTPTo) == 0 {
		return fmt.Errorf("SMTP_TO is required when smtp is in ALERT_MODE")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvJSON decodes a JSON env var over dst, leaving dst untouched when unset
func getEnvJSON(key string, dst interface{}) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return fmt.Errorf("invalid %s JSON: %w", key, err)
	}
	return nil
}

func parseCSV(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
