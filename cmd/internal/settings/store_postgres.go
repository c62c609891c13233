package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads app_config and marketing_config.
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	log    *slog.Logger
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "prep").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("settings: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithLogger sets the logger used for lookup failures.
func WithLogger(log *slog.Logger) PostgresOption {
	return func(s *PostgresStore) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "prep", log: slog.Default()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("settings: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) GetConfigValue(ctx context.Context, key, group string) int {
	table := pgx.Identifier{s.schema, "app_config"}.Sanitize()

	var v int
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM `+table+` WHERE key = $1 AND ab_group = $2`,
		key, group,
	).Scan(&v)
	if err == nil {
		return v
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		s.log.Warn("settings.lookup.fail", "key", key, "group", group, "err", err)
	}
	return Default(key)
}

func (s *PostgresStore) GetMarketingConfig(ctx context.Context, group string) map[string]string {
	table := pgx.Identifier{s.schema, "marketing_config"}.Sanitize()
	out := make(map[string]string)

	rows, err := s.pool.Query(ctx,
		`SELECT message_type, content FROM `+table+` WHERE ab_group = $1`,
		group,
	)
	if err != nil {
		s.log.Warn("settings.marketing.fail", "group", group, "err", err)
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var typ, content string
		if err := rows.Scan(&typ, &content); err != nil {
			s.log.Warn("settings.marketing.scan.fail", "group", group, "err", err)
			return out
		}
		out[typ] = content
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("settings.marketing.fail", "group", group, "err", err)
	}
	return out
}

// SetConfigValue upserts a value. Used by seeding and tests.
func (s *PostgresStore) SetConfigValue(ctx context.Context, key, group string, value int) error {
	table := pgx.Identifier{s.schema, "app_config"}.Sanitize()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+` (key, ab_group, value) VALUES ($1, $2, $3)
		 ON CONFLICT (key, ab_group) DO UPDATE SET value = EXCLUDED.value`,
		key, group, value,
	)
	return err
}

// SeedMarketing inserts messages that do not exist yet; existing copy is left alone.
func (s *PostgresStore) SeedMarketing(ctx context.Context, messages map[string]map[string]string) error {
	table := pgx.Identifier{s.schema, "marketing_config"}.Sanitize()

	batch := &pgx.Batch{}
	for group, m := range messages {
		for typ, content := range m {
			batch.Queue(
				`INSERT INTO `+table+` (ab_group, message_type, content) VALUES ($1, $2, $3)
				 ON CONFLICT (ab_group, message_type) DO NOTHING`,
				group, typ, content,
			)
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.pool.SendBatch(ctx, batch).Close()
}
