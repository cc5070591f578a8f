package utils

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var apiKeys struct {
	sync.RWMutex
	cache map[string]int
}

var staticKey struct {
	sync.RWMutex
	key string
}

var keyDB struct {
	sync.Mutex
	dsn string
	db  *sql.DB
}

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrKeyStoreNotReady signals that no API keys have been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrKeyStoreNotReady = errors.New("api key store not ready")
)

func postgresPort(cfg PostgresConfig) int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	return 5432
}

func postgresDSN(cfg PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	if cfg.Host == "" {
		return "", fmt.Errorf("postgres host is empty")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("postgres database is empty")
	}
	if cfg.User == "" {
		return "", fmt.Errorf("postgres user is empty")
	}

	hostPort := cfg.Host
	port := postgresPort(cfg)
	// Handle IPv6 or explicit host:port strings.
	if strings.HasPrefix(hostPort, "[") {
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	} else if strings.Count(hostPort, ":") >= 2 {
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	} else if !strings.Contains(hostPort, ":") {
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	u := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	q := u.Query()
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func getKeyDB(cfg PostgresConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	keyDB.Lock()
	defer keyDB.Unlock()

	if keyDB.db != nil && keyDB.dsn == dsn {
		return keyDB.db, nil
	}
	if keyDB.db != nil {
		_ = keyDB.db.Close()
		keyDB.db = nil
		keyDB.dsn = ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Small, low-throughput control plane table.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	keyDB.db = db
	keyDB.dsn = dsn
	return keyDB.db, nil
}

func ensureAPIKeysSchema(cfg PostgresConfig) error {
	db, err := getKeyDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl := `CREATE TABLE IF NOT EXISTS api_keys (
		key TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		comment TEXT
	);`
	idx := `CREATE INDEX IF NOT EXISTS idx_api_keys_created_at ON api_keys (created_at);`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, idx); err != nil {
		return err
	}
	return nil
}

// LoadAPIKeysFromPostgres reads all API keys and their rate limits from
// Postgres and stores them in an in-memory cache.
func LoadAPIKeysFromPostgres(cfg PostgresConfig) error {
	if err := ensureAPIKeysSchema(cfg); err != nil {
		return err
	}

	db, err := getKeyDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT key, rate_limit FROM api_keys;`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cache := make(map[string]int)
	for rows.Next() {
		var key string
		var limit int
		if err := rows.Scan(&key, &limit); err != nil {
			return err
		}
		cache[key] = limit
	}
	if err := rows.Err(); err != nil {
		return err
	}

	apiKeys.Lock()
	apiKeys.cache = cache
	apiKeys.Unlock()
	return nil
}

// LoadAPIKeysFromMap is a small helper intended for tests and local
// debugging. It replaces the current in-memory key cache with the given map.
func LoadAPIKeysFromMap(m map[string]int) {
	cache := make(map[string]int)
	for k, v := range m {
		cache[k] = v
	}
	apiKeys.Lock()
	apiKeys.cache = cache
	apiKeys.Unlock()
}

// SetStaticAPIKey registers a single key, typically taken from the API_KEY
// environment variable. An empty value clears it.
func SetStaticAPIKey(key string) {
	staticKey.Lock()
	staticKey.key = key
	staticKey.Unlock()
}

func matchesStaticKey(key string) bool {
	staticKey.RLock()
	defer staticKey.RUnlock()
	if staticKey.key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(staticKey.key)) == 1
}

// APIKeysReady returns true once at least one key source is available:
// either the Postgres cache has been loaded or a static key is set.
func APIKeysReady() bool {
	staticKey.RLock()
	hasStatic := staticKey.key != ""
	staticKey.RUnlock()
	if hasStatic {
		return true
	}
	apiKeys.RLock()
	defer apiKeys.RUnlock()
	return apiKeys.cache != nil
}

// ValidateAPIKey checks the given key against the static key (constant-time)
// and the cached Postgres-managed keys.
func ValidateAPIKey(key string) bool {
	if matchesStaticKey(key) {
		return true
	}
	apiKeys.RLock()
	defer apiKeys.RUnlock()
	_, ok := apiKeys.cache[key]
	return ok
}

// GetRateLimit returns the configured rate limit for the given key. Unknown
// keys and the static key return 0, which disables per-key rate limiting.
func GetRateLimit(key string) int {
	apiKeys.RLock()
	defer apiKeys.RUnlock()
	if limit, ok := apiKeys.cache[key]; ok {
		return limit
	}
	return 0
}

// RefreshAPIKeysPeriodically reloads the key list from Postgres at the given
// interval. It stops once the provided stop channel is closed.
func RefreshAPIKeysPeriodically(cfg PostgresConfig, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := LoadAPIKeysFromPostgres(cfg); err != nil {
				Error("Failed to reload API keys", "error", err)
			}
		case <-stop:
			return
		}
	}
}
