package questions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads questions from Postgres.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresStore constructs a PostgresStore for schema.
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("questions: nil pool")
	}
	if !pgIdentRe.MatchString(schema) {
		return nil, fmt.Errorf("questions: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

const questionColumns = `id, question_text, reference_text, chapter, section, category, difficulty, tip, created_at`

func scanQuestion(row pgx.Row) (Question, error) {
	var q Question
	err := row.Scan(&q.ID, &q.QuestionText, &q.ReferenceText, &q.Chapter, &q.Section, &q.Category, &q.Difficulty, &q.Tip, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	return q, err
}

func (s *PostgresStore) Random(ctx context.Context, exclude []string) (Question, error) {
	if exclude == nil {
		exclude = []string{}
	}
	table := pgx.Identifier{s.schema, "questions"}.Sanitize()
	return scanQuestion(s.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM `+table+`
		  WHERE NOT (id = ANY($1))
		  ORDER BY random()
		  LIMIT 1`,
		exclude,
	))
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Question, error) {
	table := pgx.Identifier{s.schema, "questions"}.Sanitize()
	return scanQuestion(s.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM `+table+` WHERE id = $1`,
		id,
	))
}

// Insert stores q. An empty ID gets a new UUID; an existing ID is left untouched.
func (s *PostgresStore) Insert(ctx context.Context, q Question) (Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	table := pgx.Identifier{s.schema, "questions"}.Sanitize()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+` (`+questionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		q.ID, q.QuestionText, q.ReferenceText, q.Chapter, q.Section, q.Category, q.Difficulty, q.Tip, q.CreatedAt,
	)
	return q, err
}

// Seed inserts qs, skipping IDs that already exist.
func (s *PostgresStore) Seed(ctx context.Context, qs []Question) error {
	for _, q := range qs {
		if _, err := s.Insert(ctx, q); err != nil {
			return fmt.Errorf("questions: seed %s: %w", q.ID, err)
		}
	}
	return nil
}
