package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/questions"
	"interviewprep/cmd/internal/settings"
	"interviewprep/cmd/internal/storage"
)

// NewDBPool builds a pgxpool and validates connectivity.
// Schema creation is opt-in through PREP_DB_APPLY_SCHEMA (see storage.Apply).
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

type pgBackends struct {
	ledger    *ledger.PostgresStore
	settings  *settings.PostgresStore
	questions *questions.PostgresStore
}

// openPostgres builds the Postgres stores over pool. With cfg.DBApplySchema it
// first creates the schema and seeds the starter questions and marketing copy.
func openPostgres(ctx context.Context, pool *pgxpool.Pool, cfg Config, log Logger) (pgBackends, error) {
	if cfg.DBApplySchema {
		if err := storage.Apply(ctx, pool, cfg.DBSchema); err != nil {
			return pgBackends{}, err
		}
		log.Info("db.schema.applied", "schema", cfg.DBSchema)
	}

	ls, err := ledger.NewPostgresStore(pool, ledger.WithSchema(cfg.DBSchema))
	if err != nil {
		return pgBackends{}, err
	}
	ss, err := settings.NewPostgresStore(pool, settings.WithSchema(cfg.DBSchema), settings.WithLogger(log))
	if err != nil {
		return pgBackends{}, err
	}
	qs, err := questions.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return pgBackends{}, err
	}

	if cfg.DBApplySchema {
		if err := ss.SeedMarketing(ctx, settings.DefaultMarketing()); err != nil {
			return pgBackends{}, err
		}
		starter := questions.StarterSet()
		if err := qs.Seed(ctx, starter); err != nil {
			return pgBackends{}, err
		}
		log.Info("db.seed.done", "questions", len(starter))
	}

	return pgBackends{ledger: ls, settings: ss, questions: qs}, nil
}
