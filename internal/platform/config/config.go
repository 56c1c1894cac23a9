package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string
	BootstrapMode bool

	KeyDir       string
	RegistryPath string
	ContentDir   string

	GroupManagerAddress      string
	RevocationManagerAddress string

	AuthRateLimit  int
	AuthRateWindow time.Duration

	Redis RedisConfig
	DB    DBConfig
}

// RedisConfig holds connection settings for the optional Redis session store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DBConfig holds the Postgres connection string for the optional
// database-backed content registry.
type DBConfig struct {
	URL string
}

// Challenge and session lifetimes are protocol constants, not tunables: the
// wallet challenge is single-use and short-lived, the session lives an hour.
const (
	ChallengeTTL = 5 * time.Minute
	SessionTTL   = time.Hour
)

func FromEnv() Server {
	addr := os.Getenv("MEDGUARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	keyDir := os.Getenv("MEDGUARD_KEY_DIR")
	if keyDir == "" {
		keyDir = "secure_keys"
	}

	registryPath := os.Getenv("MEDGUARD_REGISTRY_PATH")
	if registryPath == "" {
		registryPath = "local_storage/cid_registry.json"
	}

	contentDir := os.Getenv("MEDGUARD_CONTENT_DIR")
	if contentDir == "" {
		contentDir = "local_storage/content"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		BootstrapMode: os.Getenv("MEDGUARD_BOOTSTRAP") == "true",

		KeyDir:       keyDir,
		RegistryPath: registryPath,
		ContentDir:   contentDir,

		GroupManagerAddress:      os.Getenv("GROUP_MANAGER_ADDRESS"),
		RevocationManagerAddress: os.Getenv("REVOCATION_MANAGER_ADDRESS"),

		AuthRateLimit:  envInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow: time.Duration(envInt("AUTH_RATE_WINDOW_SECONDS", 60)) * time.Second,

		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		DB: DBConfig{URL: os.Getenv("DATABASE_URL")},
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
