package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Log         LogConfig
	Engine      EngineConfig
	RateLimit   RateLimitConfig
	Idempotency IdempotencyConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

// RedisConfig with Enabled=false runs the engine on the in-process cache and
// without cross-instance invalidation.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

type EngineConfig struct {
	CapacityTTL       time.Duration
	StaffTTL          time.Duration
	UnlimitedCapacity int64
	Tolerance         decimal.Decimal
	MigrateOnStart    bool
}

type RateLimitConfig struct {
	QuoteLimit  int
	QuoteWindow time.Duration
}

type IdempotencyConfig struct {
	TTL time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: envString("SERVER_HOST", "localhost"),
		Port: serverPort,
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresMaxConns, err := envInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     envString("POSTGRES_HOST", "localhost"),
		Port:     postgresPort,
		SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(postgresMaxConns),
	}

	redisEnabled, err := envBool("REDIS_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Enabled:  redisEnabled,
		Addr:     envString("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	logCfg := LogConfig{
		Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
		Format: strings.ToLower(envString("LOG_FORMAT", "text")),
	}

	engineCfg, err := engineFromEnv()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	quoteLimit, err := envInt("RATE_LIMIT_QUOTES", 30)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	quoteWindow, err := envDuration("RATE_LIMIT_QUOTES_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	idemTTL, err := envDuration("IDEMPOTENCY_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server:      serverCfg,
		Postgres:    postgresCfg,
		Redis:       redisCfg,
		Log:         logCfg,
		Engine:      engineCfg,
		RateLimit:   RateLimitConfig{QuoteLimit: quoteLimit, QuoteWindow: quoteWindow},
		Idempotency: IdempotencyConfig{TTL: idemTTL},
	}, nil
}

func engineFromEnv() (EngineConfig, error) {
	capacityTTL, err := envDuration("ENGINE_CAPACITY_TTL", 30*time.Second)
	if err != nil {
		return EngineConfig{}, err
	}

	staffTTL, err := envDuration("ENGINE_STAFF_TTL", time.Hour)
	if err != nil {
		return EngineConfig{}, err
	}

	unlimited, err := envInt("ENGINE_UNLIMITED_CAPACITY", 999)
	if err != nil {
		return EngineConfig{}, err
	}

	tolerance, err := decimal.NewFromString(envString("ENGINE_TOLERANCE", "0.01"))
	if err != nil {
		return EngineConfig{}, fmt.Errorf("invalid ENGINE_TOLERANCE: %w", err)
	}
	if tolerance.IsNegative() {
		return EngineConfig{}, fmt.Errorf("invalid ENGINE_TOLERANCE: must not be negative")
	}

	migrate, err := envBool("ENGINE_MIGRATE_ON_START", true)
	if err != nil {
		return EngineConfig{}, err
	}

	return EngineConfig{
		CapacityTTL:       capacityTTL,
		StaffTTL:          staffTTL,
		UnlimitedCapacity: int64(unlimited),
		Tolerance:         tolerance,
		MigrateOnStart:    migrate,
	}, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}
