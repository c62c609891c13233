package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the ledgers over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema/table identifiers are quoted via pgx.Identifier.
type PostgresStore struct {
	*pgQueries
	pool *pgxpool.Pool
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the ledger (default "prep").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("ledger: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("ledger: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithCodeGenerator overrides the referral code generator.
func WithCodeGenerator(gen CodeGenerator) PostgresOption {
	return func(s *PostgresStore) error {
		if gen == nil {
			return fmt.Errorf("ledger: nil code generator")
		}
		s.newCode = gen
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pgQueries: &pgQueries{db: pool, schema: "prep", newCode: NewReferralCode},
		pool:      pool,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("ledger: nil pool")
	}
	return st, nil
}

// InTx runs fn inside one ReadCommitted transaction. Row-level serialization comes
// from the conditional UPDATEs, so a stronger isolation level is not needed.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := &pgQueries{db: tx, schema: s.schema, newCode: s.newCode}
	if err := fn(ctx, q); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgQueries struct {
	db      dbtx
	schema  string
	newCode CodeGenerator
}

const accountColumns = `id, email, password_hash, ab_group, referral_code,
	questions_available, questions_completed, total_score, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Group,
		&a.ReferralCode,
		&a.QuestionsAvailable,
		&a.QuestionsCompleted,
		&a.TotalScore,
		&a.CreatedAt,
	)
	return a, err
}

func (q *pgQueries) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "ledger.CreateAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if in.Email == "" {
		return Account{}, opErr(op, ErrInvalidInput, "email is required")
	}
	if in.Group == "" {
		return Account{}, opErr(op, ErrInvalidInput, "group is required")
	}
	if in.QuestionsAvailable < 0 {
		return Account{}, opErr(op, ErrInvalidInput, "negative starting quota")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	accounts := pgIdent(q.schema, "accounts")

	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code, err := q.newCode()
		if err != nil {
			return Account{}, err
		}

		// A referral code collision inserts nothing; an e-mail collision raises 23505.
		a, err := scanAccount(q.db.QueryRow(ctx,
			`INSERT INTO `+accounts+` (
			     id, email, password_hash, ab_group, referral_code,
			     questions_available, questions_completed, total_score, created_at
			   ) VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)
			 ON CONFLICT (referral_code) DO NOTHING
			 RETURNING `+accountColumns,
			id, in.Email, in.PasswordHash, in.Group, code, in.QuestionsAvailable, now,
		))
		if err == nil {
			return a, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if field, ok := pgClassifyUniqueViolation(err); ok && field == "email" {
			return Account{}, opErr(op, ErrDuplicateEmail, "")
		}
		return Account{}, err
	}

	return Account{}, opErr(op, ErrCodeGenerationExhausted, fmt.Sprintf("%d attempts", MaxCodeAttempts))
}

func (q *pgQueries) getAccountBy(ctx context.Context, op, column, value string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	accounts := pgIdent(q.schema, "accounts")
	a, err := scanAccount(q.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+accounts+` WHERE `+column+` = $1`,
		value,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, opErr(op, ErrNotFound, "")
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

func (q *pgQueries) GetAccount(ctx context.Context, id string) (Account, error) {
	return q.getAccountBy(ctx, "ledger.GetAccount", "id", id)
}

func (q *pgQueries) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return q.getAccountBy(ctx, "ledger.GetAccountByEmail", "email", email)
}

func (q *pgQueries) GetAccountByReferralCode(ctx context.Context, code string) (Account, error) {
	return q.getAccountBy(ctx, "ledger.GetAccountByReferralCode", "referral_code", code)
}

func (q *pgQueries) AdjustQuestionsAvailable(ctx context.Context, accountID string, delta int) (int, error) {
	const op = "ledger.AdjustQuestionsAvailable"

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	accounts := pgIdent(q.schema, "accounts")
	var n int
	err := q.db.QueryRow(ctx,
		`UPDATE `+accounts+`
		    SET questions_available = questions_available + $2
		  WHERE id = $1
		    AND questions_available + $2 >= 0
		RETURNING questions_available`,
		accountID, delta,
	).Scan(&n)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	return 0, q.missingOrExhausted(ctx, op, accountID)
}

func (q *pgQueries) ConsumeQuestion(ctx context.Context, accountID string) (int, error) {
	const op = "ledger.ConsumeQuestion"

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	accounts := pgIdent(q.schema, "accounts")
	var n int
	err := q.db.QueryRow(ctx,
		`UPDATE `+accounts+`
		    SET questions_available = questions_available - 1
		  WHERE id = $1
		    AND questions_available > 0
		RETURNING questions_available`,
		accountID,
	).Scan(&n)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	return 0, q.missingOrExhausted(ctx, op, accountID)
}

// missingOrExhausted distinguishes a missing account from a floor-check miss.
func (q *pgQueries) missingOrExhausted(ctx context.Context, op, accountID string) error {
	if _, err := q.GetAccount(ctx, accountID); err != nil {
		if IsNotFound(err) {
			return opErr(op, ErrNotFound, "")
		}
		return err
	}
	return opErr(op, ErrQuotaExhausted, "")
}

func (q *pgQueries) RecordCompletion(ctx context.Context, accountID string, scoreDelta float64) error {
	const op = "ledger.RecordCompletion"

	if err := ctx.Err(); err != nil {
		return err
	}
	if scoreDelta < 0 {
		return opErr(op, ErrInvalidInput, "negative score")
	}

	accounts := pgIdent(q.schema, "accounts")
	tag, err := q.db.Exec(ctx,
		`UPDATE `+accounts+`
		    SET questions_completed = questions_completed + 1,
		        total_score = total_score + $2
		  WHERE id = $1`,
		accountID, scoreDelta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return opErr(op, ErrNotFound, "")
	}
	return nil
}

func (q *pgQueries) SetPasswordHash(ctx context.Context, accountID, hash string) error {
	const op = "ledger.SetPasswordHash"

	if hash == "" {
		return opErr(op, ErrInvalidInput, "empty hash")
	}

	tag, err := q.db.Exec(ctx,
		`UPDATE `+pgIdent(q.schema, "accounts")+` SET password_hash = $2 WHERE id = $1`,
		accountID, hash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return opErr(op, ErrNotFound, "")
	}
	return nil
}

func (q *pgQueries) RecordReferral(ctx context.Context, referrerID, referredEmail string) (ReferralRecord, error) {
	const op = "ledger.RecordReferral"

	if err := ctx.Err(); err != nil {
		return ReferralRecord{}, err
	}
	if referrerID == "" || referredEmail == "" {
		return ReferralRecord{}, opErr(op, ErrInvalidInput, "referrer and referred email are required")
	}

	now := time.Now().UTC()
	id, err := NewULID(now)
	if err != nil {
		return ReferralRecord{}, err
	}

	referrals := pgIdent(q.schema, "referrals")
	rec := ReferralRecord{ID: id, ReferrerID: referrerID, ReferredEmail: referredEmail}
	err = q.db.QueryRow(ctx,
		`INSERT INTO `+referrals+` (id, referrer_id, referred_email, bonus_granted, created_at)
		 VALUES ($1, $2, $3, false, $4)
		 ON CONFLICT (referred_email) DO NOTHING
		 RETURNING created_at`,
		id, referrerID, referredEmail, now,
	).Scan(&rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReferralRecord{}, opErr(op, ErrDuplicateReferral, "")
	}
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return ReferralRecord{}, opErr(op, ErrNotFound, "referrer")
		}
		return ReferralRecord{}, err
	}
	return rec, nil
}

func (q *pgQueries) MarkBonusGranted(ctx context.Context, referrerID, referredEmail string) error {
	const op = "ledger.MarkBonusGranted"

	if err := ctx.Err(); err != nil {
		return err
	}

	referrals := pgIdent(q.schema, "referrals")
	tag, err := q.db.Exec(ctx,
		`UPDATE `+referrals+`
		    SET bonus_granted = true
		  WHERE referrer_id = $1
		    AND referred_email = $2`,
		referrerID, referredEmail,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return opErr(op, ErrNotFound, "")
	}
	return nil
}

func (q *pgQueries) CountGrantedReferrals(ctx context.Context, referrerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	referrals := pgIdent(q.schema, "referrals")
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM `+referrals+` WHERE referrer_id = $1 AND bonus_granted`,
		referrerID,
	).Scan(&n)
	return n, err
}

func (q *pgQueries) SaveAnswer(ctx context.Context, a Answer) (bool, error) {
	const op = "ledger.SaveAnswer"

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if a.ID == "" || a.AccountID == "" || a.QuestionID == "" {
		return false, opErr(op, ErrInvalidInput, "id, account and question are required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	feedback, err := json.Marshal(a.Feedback)
	if err != nil {
		return false, err
	}

	answers := pgIdent(q.schema, "user_answers")
	tag, err := q.db.Exec(ctx,
		`INSERT INTO `+answers+` (id, account_id, question_id, answer, score, feedback, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.AccountID, a.QuestionID, a.Answer, a.Score, feedback, a.CreatedAt,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return false, opErr(op, ErrNotFound, "account or question")
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *pgQueries) ListAnswers(ctx context.Context, accountID string) ([]Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answers := pgIdent(q.schema, "user_answers")
	rows, err := q.db.Query(ctx,
		`SELECT id, account_id, question_id, answer, score, feedback, created_at
		   FROM `+answers+`
		  WHERE account_id = $1
		  ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Answer, 0, 16)
	for rows.Next() {
		var a Answer
		var feedback []byte
		if err := rows.Scan(&a.ID, &a.AccountID, &a.QuestionID, &a.Answer, &a.Score, &feedback, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(feedback, &a.Feedback); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_accounts_email":
		return "email", true
	case "uq_accounts_referral_code":
		return "referral_code", true
	case "uq_referrals_referred_email":
		return "referred_email", true
	default:
		switch {
		case strings.Contains(c, "referred"):
			return "referred_email", true
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "code"):
			return "referral_code", true
		default:
			return "unique", true
		}
	}
}
