package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/panyam/docauth"
	"github.com/panyam/docauth/metrics"
	"github.com/panyam/docauth/stores/gae"
	gormstore "github.com/panyam/docauth/stores/gorm"
	"github.com/panyam/docauth/stores/memory"
	redisstore "github.com/panyam/docauth/stores/redis"
	"github.com/panyam/docauth/todo"
)

// backend is an Adapter that the reaper can also sweep
type backend interface {
	docauth.Adapter
	docauth.ExpiredSessionLister
}

// App holds the wired server
type App struct {
	cfg    *Config
	logger *slog.Logger

	adapter backend
	todos   todo.Store
	minter  *docauth.JWTMinter
	bridge  *docauth.CredentialBridge
	reaper  *docauth.SessionReaper

	registry *prometheus.Registry
	router   *mux.Router
	server   *http.Server

	closers []func() error
}

func NewApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	collector := metrics.NewCollector(a.registry)

	var cache docauth.CredentialCache
	if cfg.RedisAddr != "" {
		client, err := newRedisClient(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		cache = redisstore.NewCredentialCache(client, redisstore.DefaultKeyPrefix)
	}

	if err := a.openBackend(ctx, cache); err != nil {
		a.Close()
		return nil, err
	}

	a.minter = &docauth.JWTMinter{
		SecretKey: cfg.JWTSecretKey,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
	}
	a.bridge.Minter = a.minter
	a.bridge.Exchanger = newExchanger(cfg)
	a.bridge.TTL = cfg.CredentialTTL
	a.bridge.Logger = logger
	a.bridge.Metrics = collector

	a.reaper = (&docauth.SessionReaper{
		Store:       a.adapter,
		Limit:       cfg.ReapLimit,
		Concurrency: cfg.ReapConcurrency,
		Logger:      logger,
		Metrics:     collector,
	}).EnsureDefaults()

	a.router = a.routes()
	a.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// openBackend sets up the adapter, the to-do store and the bridge. cache
// overrides the backend's own credential cache when set.
func (a *App) openBackend(ctx context.Context, cache docauth.CredentialCache) error {
	cfg := a.cfg
	switch cfg.Backend {
	case BackendDatastore:
		var opts []option.ClientOption
		if os.Getenv("DATASTORE_EMULATOR_HOST") != "" {
			opts = append(opts, option.WithoutAuthentication())
		}
		client, err := datastore.NewClient(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return fmt.Errorf("connecting to datastore: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		// Cached credentials and to-do items live in the default namespace
		if cache == nil {
			cache = gae.NewCredentialCache(client, "")
		}
		a.adapter = gae.NewAdapter(client, cfg.Namespace,
			docauth.WithCredentialCache(cache), docauth.WithLogger(a.logger))
		a.todos = gae.NewTodoStore(client, "")

	case BackendPostgres:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, sqlDB.Close)
		if err := gormstore.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		if cache == nil {
			cache = gormstore.NewCredentialCache(db)
		}
		a.adapter = gormstore.NewAdapter(db,
			docauth.WithCredentialCache(cache), docauth.WithLogger(a.logger))
		a.todos = gormstore.NewTodoStore(db)

	case BackendMemory:
		if cache == nil {
			cache = memory.NewCredentialCache()
		}
		a.adapter = memory.NewAdapter(docauth.WithCredentialCache(cache), docauth.WithLogger(a.logger))
		a.todos = memory.NewTodoStore()

	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	a.bridge = docauth.NewCredentialBridge(cache, nil, nil)
	return nil
}

func newRedisClient(ctx context.Context, cfg *Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// newExchanger returns nil when no privileged identity is configured, in which
// case credentials are minted without an actor
func newExchanger(cfg *Config) docauth.ActorExchanger {
	if cfg.ActorEmail == "" {
		return nil
	}
	if cfg.OAuthTokenURL != "" {
		return &docauth.PasswordExchanger{
			Config: &oauth2.Config{
				ClientID:     cfg.OAuthClientID,
				ClientSecret: cfg.OAuthClientSecret,
				Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuthTokenURL},
			},
			Email:    cfg.ActorEmail,
			Password: cfg.ActorPassword,
		}
	}
	return &docauth.LocalExchanger{
		Email:        cfg.ActorEmail,
		Password:     cfg.ActorPassword,
		PasswordHash: []byte(cfg.ActorPasswordHash),
	}
}

func (a *App) routes() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/auth/token", (&docauth.TokenHandler{
		Sessions: a.adapter,
		Bridge:   a.bridge,
		Logger:   a.logger,
	}).EnsureDefaults())

	todos := &todo.Handler{
		Guard:  &todo.Guard{Store: a.todos, Verifier: a.minter},
		Logger: a.logger,
	}
	todos.RegisterRoutes(r.PathPrefix("/todos").Subrouter())

	r.Handle("/metrics", metrics.Handler(a.registry))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return r
}

// Handler is the server's root handler
func (a *App) Handler() http.Handler {
	return a.router
}

// Run performs the privileged exchange, starts the reaper and serves until
// the server is shut down
func (a *App) Run(ctx context.Context) error {
	if err := a.bridge.Init(ctx); err != nil {
		return fmt.Errorf("initializing credential bridge: %w", err)
	}
	go a.reaper.Run(ctx, a.cfg.ReapInterval)

	a.logger.Info("docauth server listening", "addr", a.cfg.Addr, "backend", a.cfg.Backend)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.Close()
	return err
}

// Close releases backend connections
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing backend failed", "err", err)
		}
	}
	a.closers = nil
}
