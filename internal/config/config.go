package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/cache"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv             string
	ServiceName        string
	ServiceVersion     string
	HTTPAddr           string
	LogLevel           logging.Level
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CORSAllowedOrigins []string
	PprofEnabled       bool
	PprofAddr          string

	RemoteBaseURL        string
	RemoteToken          string
	RemoteTimeout        time.Duration
	RemoteMaxAttempts    int
	RemoteRetryBaseDelay time.Duration
	RemoteRetryMaxDelay  time.Duration

	CircuitEnabled          bool
	CircuitFailureThreshold int
	CircuitCooldown         time.Duration
	CircuitHalfOpenMaxReq   int

	RateLimitOptimizePerMin int
	RateLimitTradePerMin    int
	RateLimitLineupPerMin   int

	CacheMaxEntries      int
	CacheMaxBytes        int64
	CacheLineupTTL       time.Duration
	CacheOptimizationTTL time.Duration
	CacheCompression     cache.Compression
	// CacheEncryptionKey is nil when at-rest encryption is off.
	CacheEncryptionKey []byte

	LineupSport         lineup.Sport
	LineupFlexPositions []lineup.Position

	WorkerPoolSize           int
	OptimizationPollInterval time.Duration
	OptimizationJobRetention time.Duration

	RealtimeEnabled         bool
	RealtimeURL             string
	RealtimeMaxReconnect    int
	RealtimeBackoffBase     time.Duration
	RealtimeBackoffMax      time.Duration
	RealtimeLivenessTimeout time.Duration

	DBURL                   string
	DBDisablePreparedBinary bool

	UptraceEnabled     bool
	UptraceDSN         string
	UptraceLogsEnabled bool

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:             appEnv,
		ServiceName:        strings.TrimSpace(getEnv("APP_SERVICE_NAME", "lineup-orchestrator")),
		ServiceVersion:     strings.TrimSpace(getEnv("APP_SERVICE_VERSION", "dev")),
		HTTPAddr:           strings.TrimSpace(getEnv("APP_HTTP_ADDR", ":8080")),
		LogLevel:           logging.ParseLevel(getEnv("APP_LOG_LEVEL", "info")),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		PprofAddr:          strings.TrimSpace(getEnv("PPROF_ADDR", ":6060")),
		RemoteBaseURL:      strings.TrimSpace(getEnv("REMOTE_BASE_URL", "http://localhost:9000")),
		RemoteToken:        strings.TrimSpace(getEnv("REMOTE_TOKEN", "")),
		RealtimeURL:        strings.TrimSpace(getEnv("REALTIME_URL", "")),
		DBURL:              strings.TrimSpace(getEnv("DB_URL", "")),
		UptraceDSN:         strings.TrimSpace(getEnv("UPTRACE_DSN", "")),
	}
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")

	if cfg.HTTPAddr == "" {
		return Config{}, fmt.Errorf("APP_HTTP_ADDR cannot be empty")
	}
	if cfg.RemoteBaseURL == "" {
		return Config{}, fmt.Errorf("REMOTE_BASE_URL cannot be empty")
	}

	if cfg.ReadTimeout, err = getEnvAsPositiveDuration("APP_READ_TIMEOUT", "10s"); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = getEnvAsPositiveDuration("APP_WRITE_TIMEOUT", "15s"); err != nil {
		return Config{}, err
	}
	if cfg.PprofEnabled, err = getEnvAsBool("PPROF_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.PprofEnabled && cfg.PprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	if cfg.RemoteTimeout, err = getEnvAsPositiveDuration("REMOTE_TIMEOUT", "10s"); err != nil {
		return Config{}, err
	}
	if cfg.RemoteMaxAttempts, err = getEnvAsMinInt("REMOTE_MAX_ATTEMPTS", 3, 1); err != nil {
		return Config{}, err
	}
	if cfg.RemoteRetryBaseDelay, err = getEnvAsPositiveDuration("REMOTE_RETRY_BASE_DELAY", "200ms"); err != nil {
		return Config{}, err
	}
	if cfg.RemoteRetryMaxDelay, err = getEnvAsPositiveDuration("REMOTE_RETRY_MAX_DELAY", "5s"); err != nil {
		return Config{}, err
	}
	if cfg.RemoteRetryMaxDelay < cfg.RemoteRetryBaseDelay {
		return Config{}, fmt.Errorf("REMOTE_RETRY_MAX_DELAY must be >= REMOTE_RETRY_BASE_DELAY")
	}

	if cfg.CircuitEnabled, err = getEnvAsBool("CIRCUIT_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.CircuitFailureThreshold, err = getEnvAsMinInt("CIRCUIT_FAILURE_THRESHOLD", 5, 1); err != nil {
		return Config{}, err
	}
	if cfg.CircuitCooldown, err = getEnvAsPositiveDuration("CIRCUIT_COOLDOWN", "300s"); err != nil {
		return Config{}, err
	}
	if cfg.CircuitHalfOpenMaxReq, err = getEnvAsMinInt("CIRCUIT_HALF_OPEN_MAX_REQ", 1, 1); err != nil {
		return Config{}, err
	}

	if cfg.RateLimitOptimizePerMin, err = getEnvAsMinInt("RATE_LIMIT_OPTIMIZE_PER_MIN", 20, 0); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitTradePerMin, err = getEnvAsMinInt("RATE_LIMIT_TRADE_PER_MIN", 20, 0); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitLineupPerMin, err = getEnvAsMinInt("RATE_LIMIT_LINEUP_PER_MIN", 100, 0); err != nil {
		return Config{}, err
	}

	if cfg.CacheMaxEntries, err = getEnvAsMinInt("CACHE_MAX_ENTRIES", 1000, 1); err != nil {
		return Config{}, err
	}
	cacheMaxBytes, err := getEnvAsMinInt("CACHE_MAX_BYTES", 32<<20, 1)
	if err != nil {
		return Config{}, err
	}
	cfg.CacheMaxBytes = int64(cacheMaxBytes)
	if cfg.CacheLineupTTL, err = getEnvAsPositiveDuration("CACHE_LINEUP_TTL", "15m"); err != nil {
		return Config{}, err
	}
	if cfg.CacheOptimizationTTL, err = getEnvAsPositiveDuration("CACHE_OPTIMIZATION_TTL", "24h"); err != nil {
		return Config{}, err
	}
	if cfg.CacheCompression, err = cache.ParseCompression(getEnv("CACHE_COMPRESSION", "none")); err != nil {
		return Config{}, fmt.Errorf("parse CACHE_COMPRESSION: %w", err)
	}
	if cfg.CacheEncryptionKey, err = parseEncryptionKey(getEnv("CACHE_ENCRYPTION_KEY", "")); err != nil {
		return Config{}, fmt.Errorf("parse CACHE_ENCRYPTION_KEY: %w", err)
	}

	if cfg.LineupSport, err = lineup.ParseSport(getEnv("LINEUP_SPORT", string(lineup.SportNFL))); err != nil {
		return Config{}, fmt.Errorf("parse LINEUP_SPORT: %w", err)
	}
	if cfg.LineupFlexPositions, err = parseFlexPositions(cfg.LineupSport, getEnv("LINEUP_FLEX_POSITIONS", "")); err != nil {
		return Config{}, fmt.Errorf("parse LINEUP_FLEX_POSITIONS: %w", err)
	}

	if cfg.WorkerPoolSize, err = getEnvAsMinInt("WORKER_POOL_SIZE", 64, 1); err != nil {
		return Config{}, err
	}
	if cfg.OptimizationPollInterval, err = getEnvAsPositiveDuration("OPTIMIZATION_POLL_INTERVAL", "2s"); err != nil {
		return Config{}, err
	}
	if cfg.OptimizationJobRetention, err = getEnvAsPositiveDuration("OPTIMIZATION_JOB_RETENTION", "24h"); err != nil {
		return Config{}, err
	}

	if cfg.RealtimeEnabled, err = getEnvAsBool("REALTIME_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.RealtimeEnabled && cfg.RealtimeURL == "" {
		return Config{}, fmt.Errorf("REALTIME_URL is required when REALTIME_ENABLED=true")
	}
	if cfg.RealtimeMaxReconnect, err = getEnvAsMinInt("REALTIME_MAX_RECONNECT", 5, 1); err != nil {
		return Config{}, err
	}
	if cfg.RealtimeBackoffBase, err = getEnvAsPositiveDuration("REALTIME_BACKOFF_BASE", "1s"); err != nil {
		return Config{}, err
	}
	if cfg.RealtimeBackoffMax, err = getEnvAsPositiveDuration("REALTIME_BACKOFF_MAX", "30s"); err != nil {
		return Config{}, err
	}
	if cfg.RealtimeLivenessTimeout, err = getEnvAsPositiveDuration("REALTIME_LIVENESS_TIMEOUT", "45s"); err != nil {
		return Config{}, err
	}

	if cfg.DBDisablePreparedBinary, err = getEnvAsBool("DB_DISABLE_PREPARED_BINARY_RESULT", true); err != nil {
		return Config{}, err
	}

	if cfg.UptraceEnabled, err = getEnvAsBool("UPTRACE_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.UptraceDSN == "" {
		cfg.UptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	if cfg.UptraceLogsEnabled, err = getEnvAsBool("UPTRACE_LOGS_ENABLED", true); err != nil {
		return Config{}, err
	}

	if cfg.PyroscopeEnabled, err = getEnvAsBool("PYROSCOPE_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	if cfg.PyroscopeUploadRate, err = getEnvAsPositiveDuration("PYROSCOPE_UPLOAD_RATE", "15s"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Rules returns the roster rules for the configured sport.
func (c Config) Rules() lineup.Rules {
	rules := lineup.DefaultRules(c.LineupSport)
	if len(c.LineupFlexPositions) > 0 {
		rules = rules.WithFlex(c.LineupFlexPositions...)
	}
	return rules
}

func parseEncryptionKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if len(raw) != cache.KeySize*2 {
		return nil, fmt.Errorf("expected %d hex characters, got %d", cache.KeySize*2, len(raw))
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func parseFlexPositions(sport lineup.Sport, raw string) ([]lineup.Position, error) {
	items := splitCSV(raw)
	if len(items) == 0 {
		return nil, nil
	}

	known := make(map[lineup.Position]struct{}, len(lineup.SportPositions[sport]))
	for _, p := range lineup.SportPositions[sport] {
		known[p] = struct{}{}
	}

	out := make([]lineup.Position, 0, len(items))
	for _, item := range items {
		p := lineup.Position(strings.ToUpper(item))
		if _, ok := known[p]; !ok {
			return nil, fmt.Errorf("position %q is not valid for %s", item, sport)
		}
		out = append(out, p)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsMinInt(key string, fallback, minValue int) (int, error) {
	value, err := getEnvAsInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if value < minValue {
		return 0, fmt.Errorf("%s must be >= %d", key, minValue)
	}
	return value, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	value, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsPositiveDuration(key, fallback string) (time.Duration, error) {
	value, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return value, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	for _, item := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), "uptrace-dsn") {
			return strings.Trim(strings.TrimSpace(value), "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
