// Package storage holds the Postgres schema shared by the ledger, settings and
// question stores.
package storage

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"text/template"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

var (
	schemaTmpl = template.Must(template.New("schema").Parse(schemaSQL))
	identRe    = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// DefaultSchema is the schema used when none is configured.
const DefaultSchema = "prep"

// Render returns the DDL for schema with identifiers quoted.
func Render(schema string) (string, error) {
	if !identRe.MatchString(schema) {
		return "", fmt.Errorf("storage: invalid schema identifier %q", schema)
	}
	var buf bytes.Buffer
	err := schemaTmpl.Execute(&buf, struct{ Schema string }{
		Schema: pgx.Identifier{schema}.Sanitize(),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Apply creates the schema and its tables if they do not exist. It is idempotent.
func Apply(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	ddl, err := Render(schema)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("storage: apply schema %q: %w", schema, err)
	}
	return nil
}
