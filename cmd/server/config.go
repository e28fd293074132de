package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/panyam/docauth"
	"github.com/panyam/docauth/stores/gae"
)

// Storage backends the server can run on
const (
	BackendDatastore = "datastore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

const devJWTSecretKey = "MyTestJWTSecretKey123456"

// Config is read from DOCAUTH_* environment variables
type Config struct {
	Addr string

	Backend     string
	ProjectID   string
	Namespace   string
	DatabaseDSN string

	// When RedisAddr is set scoped credentials are cached in Redis instead
	// of the backend's own cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecretKey  string
	JWTIssuer     string
	JWTAudience   string
	CredentialTTL time.Duration

	// The privileged identity. With OAuthTokenURL set the password is
	// exchanged at that identity provider; otherwise it is checked against
	// ActorPasswordHash.
	ActorEmail        string
	ActorPassword     string
	ActorPasswordHash string
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string

	ReapInterval    time.Duration
	ReapLimit       int
	ReapConcurrency int

	ShutdownTimeout time.Duration
}

// LoadConfig reads the configuration through getenv, typically os.Getenv
func LoadConfig(getenv func(string) string) (*Config, error) {
	env := func(name string) string {
		return strings.TrimSpace(getenv("DOCAUTH_" + name))
	}

	c := &Config{
		Addr:              env("ADDR"),
		Backend:           strings.ToLower(env("BACKEND")),
		ProjectID:         env("PROJECT_ID"),
		Namespace:         env("NAMESPACE"),
		DatabaseDSN:       env("DATABASE_DSN"),
		RedisAddr:         env("REDIS_ADDR"),
		RedisPassword:     env("REDIS_PASSWORD"),
		JWTSecretKey:      env("JWT_SECRET_KEY"),
		JWTIssuer:         env("JWT_ISSUER"),
		JWTAudience:       env("JWT_AUDIENCE"),
		ActorEmail:        env("ACTOR_EMAIL"),
		ActorPassword:     env("ACTOR_PASSWORD"),
		ActorPasswordHash: env("ACTOR_PASSWORD_HASH"),
		OAuthTokenURL:     env("OAUTH_TOKEN_URL"),
		OAuthClientID:     env("OAUTH_CLIENT_ID"),
		OAuthClientSecret: env("OAUTH_CLIENT_SECRET"),
	}
	if c.ProjectID == "" {
		c.ProjectID = strings.TrimSpace(getenv("DATASTORE_PROJECT_ID"))
	}

	var err error
	if c.RedisDB, err = parseInt(env("REDIS_DB"), "DOCAUTH_REDIS_DB"); err != nil {
		return nil, err
	}
	if c.ReapLimit, err = parseInt(env("REAP_LIMIT"), "DOCAUTH_REAP_LIMIT"); err != nil {
		return nil, err
	}
	if c.ReapConcurrency, err = parseInt(env("REAP_CONCURRENCY"), "DOCAUTH_REAP_CONCURRENCY"); err != nil {
		return nil, err
	}
	if c.CredentialTTL, err = parseDuration(env("CREDENTIAL_TTL"), "DOCAUTH_CREDENTIAL_TTL"); err != nil {
		return nil, err
	}
	if c.ReapInterval, err = parseDuration(env("REAP_INTERVAL"), "DOCAUTH_REAP_INTERVAL"); err != nil {
		return nil, err
	}
	if c.ShutdownTimeout, err = parseDuration(env("SHUTDOWN_TIMEOUT"), "DOCAUTH_SHUTDOWN_TIMEOUT"); err != nil {
		return nil, err
	}

	c.EnsureDefaults()
	return c, c.Validate()
}

func (c *Config) EnsureDefaults() *Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Backend == "" {
		c.Backend = BackendDatastore
	}
	if c.Namespace == "" {
		c.Namespace = gae.DefaultNamespace
	}
	if c.JWTSecretKey == "" {
		c.JWTSecretKey = devJWTSecretKey
	}
	if c.CredentialTTL <= 0 {
		c.CredentialTTL = docauth.DefaultCredentialTTL
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 10 * time.Minute
	}
	if c.ReapLimit <= 0 {
		c.ReapLimit = docauth.DefaultSweepLimit
	}
	if c.ReapConcurrency <= 0 {
		c.ReapConcurrency = docauth.DefaultSweepConcurrency
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDatastore:
		if c.ProjectID == "" {
			return fmt.Errorf("DOCAUTH_PROJECT_ID is required for the %s backend", c.Backend)
		}
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DOCAUTH_DATABASE_DSN is required for the %s backend", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.OAuthTokenURL == "" && c.ActorEmail != "" && c.ActorPasswordHash == "" {
		return fmt.Errorf("DOCAUTH_ACTOR_PASSWORD_HASH is required without DOCAUTH_OAUTH_TOKEN_URL")
	}
	return nil
}

// UsesDevSecret reports whether tokens are signed with the built-in development key
func (c *Config) UsesDevSecret() bool {
	return c.JWTSecretKey == devJWTSecretKey
}

func parseInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return n, nil
}

func parseDuration(v, name string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return d, nil
}
