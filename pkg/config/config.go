package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Audit         AuditConfig
	Detector      DetectorConfig
	Consistency   ConsistencyConfig
	Notifications NotificationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the verification settings for tokens minted by the external auth layer.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AuditConfig tunes the audit log read endpoints.
type AuditConfig struct {
	StatsCacheTTL  time.Duration
	ExportMaxRows  int
	DashboardLimit int
}

// DetectorConfig carries thresholds for every suspicious-pattern heuristic.
type DetectorConfig struct {
	Lookback    time.Duration
	DedupBucket time.Duration

	RapidMinChanges int
	RapidWindow     time.Duration
	RapidHighAt     int
	RapidCriticalAt int

	OffHoursMinChanges    int
	OffHoursWindow        time.Duration
	BusinessStartHour     int
	BusinessEndHour       int
	BusinessTimezone      string
	WeekendsAreOffHours   bool
	OffHoursIncludeSystem bool

	AgentMinBurst     int
	AgentMaxInterval  time.Duration
	AgentFingerprints []string
}

// ConsistencyConfig controls drift validation.
type ConsistencyConfig struct {
	Tolerance   time.Duration
	Concurrency int
	MaxBatch    int
}

// NotificationsConfig toggles alert push delivery over Redis pub/sub.
type NotificationsConfig struct {
	Enabled    bool
	Channel    string
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Audit = AuditConfig{
		StatsCacheTTL:  parseDuration(v.GetString("AUDIT_STATS_CACHE_TTL"), 5*time.Minute),
		ExportMaxRows:  positiveInt(v.GetInt("AUDIT_EXPORT_MAX_ROWS"), 5000),
		DashboardLimit: positiveInt(v.GetInt("DASHBOARD_RECENT_LIMIT"), 20),
	}

	cfg.Detector = DetectorConfig{
		Lookback:    parseDuration(v.GetString("DETECTOR_LOOKBACK"), 24*time.Hour),
		DedupBucket: parseDuration(v.GetString("DETECTOR_DEDUP_BUCKET"), time.Hour),

		RapidMinChanges: positiveInt(v.GetInt("DETECTOR_RAPID_MIN_CHANGES"), 3),
		RapidWindow:     parseDuration(v.GetString("DETECTOR_RAPID_WINDOW"), 60*time.Minute),
		RapidHighAt:     positiveInt(v.GetInt("DETECTOR_RAPID_HIGH_AT"), 6),
		RapidCriticalAt: positiveInt(v.GetInt("DETECTOR_RAPID_CRITICAL_AT"), 10),

		OffHoursMinChanges:    positiveInt(v.GetInt("DETECTOR_OFF_HOURS_MIN_CHANGES"), 10),
		OffHoursWindow:        parseDuration(v.GetString("DETECTOR_OFF_HOURS_WINDOW"), 15*time.Minute),
		BusinessStartHour:     v.GetInt("DETECTOR_BUSINESS_START_HOUR"),
		BusinessEndHour:       v.GetInt("DETECTOR_BUSINESS_END_HOUR"),
		BusinessTimezone:      v.GetString("DETECTOR_BUSINESS_TIMEZONE"),
		WeekendsAreOffHours:   v.GetBool("DETECTOR_WEEKENDS_OFF_HOURS"),
		OffHoursIncludeSystem: v.GetBool("DETECTOR_OFF_HOURS_INCLUDE_SYSTEM"),

		AgentMinBurst:     positiveInt(v.GetInt("DETECTOR_AGENT_MIN_BURST"), 3),
		AgentMaxInterval:  parseDuration(v.GetString("DETECTOR_AGENT_MAX_INTERVAL"), time.Second),
		AgentFingerprints: splitAndTrim(v.GetString("DETECTOR_AGENT_FINGERPRINTS")),
	}

	cfg.Consistency = ConsistencyConfig{
		Tolerance:   parseDuration(v.GetString("CONSISTENCY_TOLERANCE"), time.Second),
		Concurrency: positiveInt(v.GetInt("CONSISTENCY_CONCURRENCY"), 4),
		MaxBatch:    positiveInt(v.GetInt("CONSISTENCY_MAX_BATCH"), 500),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:    v.GetBool("ENABLE_ALERT_NOTIFICATIONS"),
		Channel:    v.GetString("ALERT_NOTIFICATION_CHANNEL"),
		Workers:    positiveInt(v.GetInt("ALERT_NOTIFICATION_WORKERS"), 1),
		MaxRetries: positiveInt(v.GetInt("ALERT_NOTIFICATION_RETRIES"), 3),
		RetryDelay: parseDuration(v.GetString("ALERT_NOTIFICATION_RETRY_DELAY"), time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "predictions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUDIT_STATS_CACHE_TTL", "5m")
	v.SetDefault("AUDIT_EXPORT_MAX_ROWS", 5000)
	v.SetDefault("DASHBOARD_RECENT_LIMIT", 20)

	v.SetDefault("DETECTOR_LOOKBACK", "24h")
	v.SetDefault("DETECTOR_DEDUP_BUCKET", "1h")
	v.SetDefault("DETECTOR_RAPID_MIN_CHANGES", 3)
	v.SetDefault("DETECTOR_RAPID_WINDOW", "60m")
	v.SetDefault("DETECTOR_RAPID_HIGH_AT", 6)
	v.SetDefault("DETECTOR_RAPID_CRITICAL_AT", 10)
	v.SetDefault("DETECTOR_OFF_HOURS_MIN_CHANGES", 10)
	v.SetDefault("DETECTOR_OFF_HOURS_WINDOW", "15m")
	v.SetDefault("DETECTOR_BUSINESS_START_HOUR", 8)
	v.SetDefault("DETECTOR_BUSINESS_END_HOUR", 20)
	v.SetDefault("DETECTOR_BUSINESS_TIMEZONE", "UTC")
	v.SetDefault("DETECTOR_WEEKENDS_OFF_HOURS", false)
	v.SetDefault("DETECTOR_OFF_HOURS_INCLUDE_SYSTEM", false)
	v.SetDefault("DETECTOR_AGENT_MIN_BURST", 3)
	v.SetDefault("DETECTOR_AGENT_MAX_INTERVAL", "1s")
	v.SetDefault("DETECTOR_AGENT_FINGERPRINTS", "python-requests,curl/,go-http-client,headlesschrome,selenium,puppeteer")

	v.SetDefault("CONSISTENCY_TOLERANCE", "1s")
	v.SetDefault("CONSISTENCY_CONCURRENCY", 4)
	v.SetDefault("CONSISTENCY_MAX_BATCH", 500)

	v.SetDefault("ENABLE_ALERT_NOTIFICATIONS", false)
	v.SetDefault("ALERT_NOTIFICATION_CHANNEL", "issue-audit:alerts")
	v.SetDefault("ALERT_NOTIFICATION_WORKERS", 1)
	v.SetDefault("ALERT_NOTIFICATION_RETRIES", 3)
	v.SetDefault("ALERT_NOTIFICATION_RETRY_DELAY", "1s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
