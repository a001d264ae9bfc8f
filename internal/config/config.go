package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Redis     RedisConfig     `toml:"redis"`
	Positions PositionsConfig `toml:"positions"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `toml:"port"`
	Host string `toml:"host"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host          string `toml:"host"`
	Port          string `toml:"port"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	DBName        string `toml:"dbname"`
	SSLMode       string `toml:"sslmode"`
	MigrationsDir string `toml:"migrations_dir"`
}

// KafkaConfig holds Kafka configuration. An empty broker list disables both
// the change feed and the trade consumer.
type KafkaConfig struct {
	Brokers     []string `toml:"brokers"`
	EventsTopic string   `toml:"events_topic"`
	TradesTopic string   `toml:"trades_topic"`
	GroupID     string   `toml:"group_id"`
}

// RedisConfig holds the position lock settings. An empty Addr disables locking.
type RedisConfig struct {
	Addr     string        `toml:"addr"`
	Password string        `toml:"password"`
	DB       int           `toml:"db"`
	LockTTL  time.Duration `toml:"lock_ttl"`
	LockWait time.Duration `toml:"lock_wait"`
}

// PositionsConfig tunes the position orchestrator
type PositionsConfig struct {
	NamePolicy string `toml:"name_policy"` // overwrite or keep
}

// ReconcileConfig schedules the ledger reconciliation job. An empty
// Schedule (or "off" from the environment) disables it.
type ReconcileConfig struct {
	Schedule string        `toml:"schedule"`
	Repair   bool          `toml:"repair"`
	Timeout  time.Duration `toml:"timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Host: "0.0.0.0"},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          "5432",
			User:          "postgres",
			Password:      "postgres",
			DBName:        "portfolio",
			SSLMode:       "disable",
			MigrationsDir: "db/migrations",
		},
		Kafka: KafkaConfig{
			EventsTopic: "position-events",
			TradesTopic: "trading.orders",
			GroupID:     "portfolio-tracker",
		},
		Redis: RedisConfig{
			LockTTL:  10 * time.Second,
			LockWait: 3 * time.Second,
		},
		Positions: PositionsConfig{NamePolicy: "overwrite"},
		Reconcile: ReconcileConfig{
			Schedule: "0 0 3 * * *",
			Timeout:  10 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the TOML file named by
// CONFIG_FILE (if any) and environment variables, in that order of
// precedence from lowest to highest. A .env file is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MigrationsDir = getEnv("DB_MIGRATIONS_DIR", cfg.Database.MigrationsDir)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.EventsTopic = getEnv("KAFKA_EVENTS_TOPIC", cfg.Kafka.EventsTopic)
	cfg.Kafka.TradesTopic = getEnv("KAFKA_TRADES_TOPIC", cfg.Kafka.TradesTopic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Positions.NamePolicy = getEnv("POSITION_NAME_POLICY", cfg.Positions.NamePolicy)
	cfg.Reconcile.Schedule = getEnv("RECONCILE_SCHEDULE", cfg.Reconcile.Schedule)
	if cfg.Reconcile.Schedule == "off" {
		cfg.Reconcile.Schedule = ""
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	var err error
	if cfg.Redis.DB, err = getEnvAsInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	if cfg.Redis.LockTTL, err = getEnvAsDuration("REDIS_LOCK_TTL", cfg.Redis.LockTTL); err != nil {
		return err
	}
	if cfg.Redis.LockWait, err = getEnvAsDuration("REDIS_LOCK_WAIT", cfg.Redis.LockWait); err != nil {
		return err
	}
	if cfg.Reconcile.Repair, err = getEnvAsBool("RECONCILE_REPAIR", cfg.Reconcile.Repair); err != nil {
		return err
	}
	if cfg.Reconcile.Timeout, err = getEnvAsDuration("RECONCILE_TIMEOUT", cfg.Reconcile.Timeout); err != nil {
		return err
	}
	if cfg.Log.Pretty, err = getEnvAsBool("LOG_PRETTY", cfg.Log.Pretty); err != nil {
		return err
	}
	return nil
}

// Validate rejects values the service cannot start with
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port %q", c.Server.Port)
	}
	if c.Database.Host == "" || c.Database.DBName == "" {
		return errors.New("database host and name are required")
	}

	switch c.Positions.NamePolicy {
	case "", "overwrite", "keep":
	default:
		return fmt.Errorf("invalid position name policy %q (want overwrite or keep)", c.Positions.NamePolicy)
	}

	if c.Redis.Addr != "" && (c.Redis.LockTTL <= 0 || c.Redis.LockWait <= 0) {
		return errors.New("redis lock ttl and wait must be positive")
	}

	if len(c.Kafka.Brokers) > 0 {
		if c.Kafka.EventsTopic == "" && c.Kafka.TradesTopic == "" {
			return errors.New("kafka brokers set but no topic configured")
		}
		if c.Kafka.TradesTopic != "" && c.Kafka.GroupID == "" {
			return errors.New("kafka group id is required to consume trades")
		}
	}

	if c.Reconcile.Schedule != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Reconcile.Schedule); err != nil {
			return fmt.Errorf("invalid reconcile schedule %q: %w", c.Reconcile.Schedule, err)
		}
		if c.Reconcile.Timeout <= 0 {
			return errors.New("reconcile timeout must be positive")
		}
	}
	return nil
}

// Address returns host:port for the HTTP listener
func (s *ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
