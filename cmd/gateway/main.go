// Command gateway runs a demo HTTP gateway with the admission engine in
// front of its handlers.
//
// Configuration comes from a YAML rules file (ADMISSION_RULES) with
// environment overrides; a .env file is honored when present. Supported
// variables: ADMISSION_MODE, ADMISSION_BACKEND (memory|redis), REDIS_ADDR,
// REDIS_PASSWORD, REDIS_DB, LISTEN_ADDR.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	zapadapter "github.com/hotelio/admission/adapters/zap"
	"github.com/hotelio/admission/config"
	"github.com/hotelio/admission/middleware/nethttp"
	"github.com/hotelio/admission/ratelimit"
	"github.com/hotelio/admission/store"
)

func main() {
	_ = godotenv.Load()

	zl, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zl.Sync()
	logger := zapadapter.New(zl)

	cfg, err := loadConfig()
	if err != nil {
		zl.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	counters, err := buildStore(ctx, cfg)
	if err != nil {
		zl.Fatal("init counter store", zap.Error(err))
	}

	engine, err := ratelimit.NewEngine(cfg.RuleSet(), counters,
		ratelimit.WithMode(ratelimit.Mode(cfg.Mode)),
		ratelimit.WithStoreTimeout(cfg.StoreTimeout()),
		ratelimit.WithTierLookup(staticTier),
		ratelimit.WithEngineLogger(logger),
	)
	if err != nil {
		zl.Fatal("build engine", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/v1/webhooks/green-api", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello from the gateway\n"))
	})

	admit := nethttp.Middleware(engine,
		ratelimit.WithLogger(logger),
		ratelimit.WithTrustForwardedFor(os.Getenv("TRUST_XFF") == "true"),
	)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	zl.Info("gateway listening",
		zap.String("addr", addr),
		zap.String("backend", cfg.Backend),
		zap.String("mode", cfg.Mode),
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           admit(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		zl.Fatal("serve", zap.Error(err))
	}
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("ADMISSION_RULES"); path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (ratelimit.CounterStore, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return store.NewRedis(client), nil
	default:
		return store.NewMemory(ctx, time.Minute), nil
	}
}

// staticTier stands in for the persistence-layer tier lookup in this demo;
// real deployments inject a database-backed TierFunc.
func staticTier(hotelID string) string {
	return "standard"
}
