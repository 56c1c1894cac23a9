package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"medguard/internal/audit"
	certservice "medguard/internal/certifier/service"
	"medguard/internal/contentstore"
	discservice "medguard/internal/disclosure/service"
	"medguard/internal/groupsig"
	idservice "medguard/internal/identity/service"
	challengestore "medguard/internal/identity/store/challenge"
	rolestore "medguard/internal/identity/store/role"
	sessionstore "medguard/internal/identity/store/session"
	"medguard/internal/jwttoken"
	"medguard/internal/keyvault"
	"medguard/internal/ledger"
	openingservice "medguard/internal/opening/service"
	openingstore "medguard/internal/opening/store"
	"medguard/internal/platform/config"
	"medguard/internal/platform/httpserver"
	"medguard/internal/platform/logger"
	"medguard/internal/platform/metrics"
	"medguard/internal/platform/ratelimit"
	platformredis "medguard/internal/platform/redis"
	pseudoservice "medguard/internal/pseudonym/service"
	pseudostore "medguard/internal/pseudonym/store"
	regservice "medguard/internal/registry/service"
	regstore "medguard/internal/registry/store"
	httptransport "medguard/internal/transport/http"
)

// main wires dependencies and owns the server lifecycle. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()
	ctx := context.Background()

	keyStore, err := keyvault.NewFileKeyStore(cfg.KeyDir)
	if err != nil {
		fatal(log, "opening key store", err)
	}
	vault := keyvault.New(keyStore, cfg.BootstrapMode, log)
	if cfg.BootstrapMode {
		log.Warn("bootstrap mode enabled, missing keys will be generated on demand")
	}

	oracle, err := groupsig.NewLocalOracle(vault, cfg.GroupManagerAddress, cfg.RevocationManagerAddress, log)
	if err != nil {
		fatal(log, "initializing group signature oracle", err)
	}

	var content contentstore.Store
	if cfg.ContentDir != "" {
		content, err = contentstore.NewFileStore(cfg.ContentDir)
		if err != nil {
			fatal(log, "opening content store", err)
		}
	} else {
		content = contentstore.NewInMemoryStore()
	}

	var registryStore regservice.Store
	if cfg.DB.URL != "" {
		pool, poolErr := pgxpool.New(ctx, cfg.DB.URL)
		if poolErr != nil {
			fatal(log, "connecting to postgres", poolErr)
		}
		defer pool.Close()
		registryStore = regstore.NewPostgresStore(pool)
	} else {
		registryStore, err = regstore.NewFileStore(cfg.RegistryPath, log)
		if err != nil {
			fatal(log, "opening registry document", err)
		}
	}
	registry := regservice.New(registryStore, log)

	var sessions idservice.SessionStore = sessionstore.New()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		fatal(log, "connecting to redis", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = sessionstore.NewRedis(redisClient.Client, config.SessionTTL)
	}

	roles, err := rolestore.NewFile(filepath.Join(filepath.Dir(cfg.RegistryPath), "roles.json"), log)
	if err != nil {
		fatal(log, "opening role store", err)
	}

	identity := idservice.New(challengestore.New(), sessions, roles, log, idservice.WithMetrics(m))
	broker := pseudoservice.NewBroker(pseudostore.NewInMemoryStore(), log)
	chain := ledger.NewMemoryRecorder(log)
	certifier := certservice.New(vault, oracle, content, registry, broker,
		cfg.GroupManagerAddress, log, certservice.WithMetrics(m), certservice.WithLedger(chain))
	disclosure := discservice.New(vault, oracle, content, registry, log, discservice.WithMetrics(m))
	coordinator := openingservice.NewCoordinator(
		oracle, certifier, registry, openingstore.NewInMemoryStore(), broker,
		audit.NewTrail(log), chain, log,
		openingservice.WithMetrics(m),
	)

	tokens := jwttoken.New(cfg.JWTSigningKey, "medguard")
	authLimiter := ratelimit.New(cfg.AuthRateLimit, cfg.AuthRateWindow)
	handler := httptransport.NewHandler(identity, tokens, certifier, disclosure,
		coordinator, broker, config.SessionTTL, log, m,
		httptransport.WithAuthLimiter(authLimiter))
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	log.Info("starting medguard", slog.String("addr", cfg.Addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fatal(log, "graceful shutdown failed", err)
	}
	log.Info("shutdown complete")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
