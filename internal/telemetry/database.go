package telemetry

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// WithSearchPath appends search_path=<schema> to a Postgres DSN, in either
// the URL or the key/value form. lib/pq forwards unrecognized parameters to
// the server as run-time session parameters, so the schema applies to every
// connection the pool opens rather than only the session a SET would touch.
func WithSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	if dsn == "" {
		return "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}

// OpenDB opens an instrumented Postgres handle scoped to the schema owned by
// the calling service. Each saga step owns exactly one schema; nothing else
// ever writes to it.
func OpenDB(dsn, schema string) (*sql.DB, error) {
	db, err := otelsql.Open("postgres", WithSearchPath(dsn, schema),
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return db, nil
}
