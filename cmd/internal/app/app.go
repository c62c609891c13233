// Package app wires the server runtime: config, logging, stores, the quota
// service, the outbox retry job, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"interviewprep/cmd/internal/api"
	"interviewprep/cmd/internal/auth/session"
	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/outbox"
	"interviewprep/cmd/internal/questions"
	"interviewprep/cmd/internal/quota"
	"interviewprep/cmd/internal/realtime"
	"interviewprep/cmd/internal/scoring"
	"interviewprep/cmd/internal/settings"
	"interviewprep/cmd/security/password"
)

// App owns the HTTP server wiring and the lifecycle of pool, Redis client and scheduler.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	redis     *redis.Client

	metrics *Metrics
	outbox  *outbox.Scheduler
	api     *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg, sessCfg); err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	scoreCfg, err := scoring.LoadConfig()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: NewMetrics()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var (
		ls ledger.Store
		ss settings.Store
		qs questions.Store
	)
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		ls = ledger.NewMemoryStore()
		ss = settings.NewMemoryStore()
		qs = questions.NewMemoryStore(questions.StarterSet())
	} else {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool, a.dbEnabled = pool, true
		pg, err := openPostgres(ctx, pool, cfg, log)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
		ls, ss, qs = pg.ledger, pg.settings, pg.questions
	}

	var queue outbox.Queue
	if cfg.RedisURL == "" {
		log.Warn("outbox.memory", "detail", "deferred outcomes are lost on restart; set PREP_REDIS_URL")
		queue = outbox.NewMemoryQueue()
	} else {
		client, err := outbox.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = outbox.Ping(pingCtx, client)
		cancel()
		if err != nil {
			return nil, err
		}
		log.Info("outbox.redis", "key", cfg.OutboxKey)
		queue = outbox.NewRedisQueue(client, cfg.OutboxKey)
	}

	var oracle scoring.Oracle
	if scoreCfg.APIKey == "" {
		log.Warn("scoring.disabled", "detail", "PREP_SCORING_API_KEY not set; every answer gets the fallback evaluation")
	} else {
		gemini, err := scoring.NewGeminiClient(ctx, scoreCfg, &http.Client{Timeout: scoreCfg.Timeout + 5*time.Second})
		if err != nil {
			return nil, err
		}
		oracle = gemini
		log.Info("scoring.enabled", "model", scoreCfg.Model)
	}
	evaluator := scoring.NewEvaluator(oracle,
		scoring.WithTimeout(scoreCfg.Timeout),
		scoring.WithLogger(log),
		scoring.WithFallbackHook(a.metrics.ScoringFallback),
	)

	tokens, err := session.NewManager(sessCfg)
	if err != nil {
		return nil, err
	}
	if tokens.Ephemeral() {
		log.Warn("auth.signing_key.ephemeral", "detail", "tokens will not survive a restart; set PREP_PASETO_V4_SECRET_KEY_HEX")
	}

	hub := realtime.NewHub(log)
	svc, err := quota.NewService(ls, ss, qs, evaluator,
		quota.WithGroupPolicy(quota.RandomGroupPolicy{ProbabilityA: cfg.GroupAProbability}),
		quota.WithPasswordConfig(pwCfg),
		quota.WithOutbox(queue),
		quota.WithPublisher(hub),
		quota.WithObserver(a.metrics),
		quota.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	a.outbox = outbox.NewScheduler(cfg.outbox(), queue, svc,
		outbox.WithLogger(log),
		outbox.WithObserver(a.metrics),
	)

	ws := realtime.NewWSGateway(log, hub, tokens, ls)
	a.api, err = api.NewHandler(log, api.LoadConfigFromEnv(), svc, qs, ss, tokens, api.WithRealtime(ws))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Handler returns the full middleware-wrapped route tree.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)
	return WithRequestLogging(WithSecurityHeaders(WithCORS(mux, a.cfg, a.log)), a.log)
}

// Run starts the outbox job and the HTTP server and blocks until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 45*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	if err := a.outbox.Start(ctx); err != nil {
		return err
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled, "redis_enabled", a.redis != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}
	if err := a.outbox.Shutdown(); err != nil {
		a.log.Error("outbox.shutdown.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return runErr
}

func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
