package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Conflict policies applied when a maintenance window collides with existing occupants.
const (
	ConflictPolicyReject = "reject"
	ConflictPolicyWarn   = "warn"
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
	Schedule      ScheduleConfig
	Notifications NotificationConfig
	Tracing       TracingConfig
	Metrics       MetricsConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrationsPath string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig validates access tokens minted by the external identity service.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ScheduleConfig tunes date math and conflict handling for the scheduling core.
type ScheduleConfig struct {
	Timezone                  string
	CacheTTL                  time.Duration
	MaintenanceConflictPolicy string
}

// Location resolves the configured timezone, falling back to UTC.
func (c ScheduleConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotificationConfig controls best-effort notification dispatch over NATS.
type NotificationConfig struct {
	Enabled       bool
	NATSURL       string
	SubjectPrefix string
	Workers       int
	Retries       int
	RetryDelay    time.Duration
}

// TracingConfig toggles OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// MetricsConfig gates the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrationsPath: v.GetString("DB_MIGRATIONS_PATH"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Schedule = ScheduleConfig{
		Timezone:                  v.GetString("SCHEDULE_TIMEZONE"),
		CacheTTL:                  parseDuration(v.GetString("SCHEDULE_CACHE_TTL"), 10*time.Minute),
		MaintenanceConflictPolicy: normalizePolicy(v.GetString("MAINTENANCE_CONFLICT_POLICY")),
	}

	cfg.Notifications = NotificationConfig{
		Enabled:       v.GetBool("ENABLE_NOTIFICATIONS"),
		NATSURL:       v.GetString("NATS_URL"),
		SubjectPrefix: v.GetString("NOTIFY_SUBJECT_PREFIX"),
		Workers:       v.GetInt("NOTIFY_WORKERS"),
		Retries:       v.GetInt("NOTIFY_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Tracing = TracingConfig{
		Enabled:     v.GetBool("ENABLE_TRACING"),
		Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName: v.GetString("OTEL_SERVICE_NAME"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "fitclass")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATIONS_PATH", "migrations")

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULE_TIMEZONE", "UTC")
	v.SetDefault("SCHEDULE_CACHE_TTL", "10m")
	v.SetDefault("MAINTENANCE_CONFLICT_POLICY", ConflictPolicyReject)

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("NOTIFY_SUBJECT_PREFIX", "fitclass.notifications")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")

	v.SetDefault("ENABLE_TRACING", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SERVICE_NAME", "fitclass-api")

	v.SetDefault("ENABLE_METRICS", true)
}

func normalizePolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ConflictPolicyWarn:
		return ConflictPolicyWarn
	default:
		return ConflictPolicyReject
	}
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
