package ops

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
)

const (
	reportMaxRows    = 200
	reportTimeout    = 15 * time.Second
	reportCellLimit  = 300
	reportMaxConns   = 2
	reportConnExpiry = 5 * time.Minute
)

// readOnlyPrefixes are the only statement prefixes query_report accepts.
var readOnlyPrefixes = []string{"SELECT", "WITH", "EXPLAIN", "SHOW"}

// writePrefixes are rejected outright before the allowlist check so the
// operator gets a clear reason.
var writePrefixes = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE",
	"GRANT", "REVOKE", "COPY", "VACUUM", "SET ", "RESET", "BEGIN",
	"COMMIT", "ROLLBACK", "PREPARE", "EXECUTE", "LISTEN", "NOTIFY",
}

// ReportConfig points query_report at a reporting replica. The DSN is kept
// separate from the panel's own database so ad-hoc queries never compete
// with writes.
type ReportConfig struct {
	DSN     string
	MaxRows int
}

type queryReportOp struct {
	cfg    ReportConfig
	logger *slog.Logger

	// The executor is shared by every gateway, so Execute runs
	// concurrently; the pool is opened exactly once.
	openOnce sync.Once
	db       *sql.DB
	openErr  error
}

// RegisterReportOp registers the read-only SQL reporting operation.
// Skipped entirely when no DSN is configured.
func RegisterReportOp(r *Registry, cfg ReportConfig, logger *slog.Logger) {
	if cfg.DSN == "" {
		return
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = reportMaxRows
	}
	r.Register(&queryReportOp{cfg: cfg, logger: logger})
}

func (o *queryReportOp) Name() string      { return "query_report" }
func (o *queryReportOp) Destructive() bool { return false }
func (o *queryReportOp) Description() string {
	return "Run a read-only SQL query against the reporting database."
}

func (o *queryReportOp) InputSchema() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Read-only SQL (SELECT, WITH, EXPLAIN, SHOW); one statement",
		},
	})
}

func (o *queryReportOp) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	if err := checkReadOnly(query); err != nil {
		return nil, err
	}
	if err := o.connect(); err != nil {
		return nil, fmt.Errorf("report database: %w", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	o.logger.InfoContext(ctx, "running report query",
		slog.String("query", firstLine(query, 120)))

	rows, err := o.db.QueryContext(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	table, count, err := tabulate(rows, o.cfg.MaxRows)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:   table,
		Metadata: map[string]any{"rows": count},
	}, nil
}

func (o *queryReportOp) connect() error {
	o.openOnce.Do(func() {
		db, err := sql.Open("pgx", o.cfg.DSN)
		if err != nil {
			o.openErr = err
			return
		}
		db.SetMaxOpenConns(reportMaxConns)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(reportConnExpiry)
		o.db = db
	})
	return o.openErr
}

// checkReadOnly rejects anything that is not a single read-only statement.
func checkReadOnly(query string) error {
	stmt := strings.TrimSpace(stripSQLComments(query))
	if stmt == "" {
		return fmt.Errorf("query must not be empty")
	}
	upper := strings.ToUpper(stmt)
	for _, p := range writePrefixes {
		if strings.HasPrefix(upper, p) {
			return fmt.Errorf("%s statements are not allowed here", strings.TrimSpace(p))
		}
	}
	ok := false
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(upper, p) {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("query must start with one of: %s", strings.Join(readOnlyPrefixes, ", "))
	}
	if strings.Contains(strings.TrimRight(stmt, "; \t\n\r"), ";") {
		return fmt.Errorf("only one statement per query")
	}
	return nil
}

func stripSQLComments(s string) string {
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.Index(s, "\n")
			if idx < 0 {
				return ""
			}
			s = s[idx+1:]
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = s[idx+2:]
		default:
			return s
		}
	}
}

// tabulate renders rows as a tab-separated table with a header line.
func tabulate(rows *sql.Rows, maxRows int) (string, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", 0, fmt.Errorf("reading columns: %w", err)
	}

	var b strings.Builder
	b.WriteString(strings.Join(cols, "\t"))
	b.WriteByte('\n')

	values := make([]any, len(cols))
	scan := make([]any, len(cols))
	for i := range values {
		scan[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if count >= maxRows {
			fmt.Fprintf(&b, "... (truncated at %d rows)\n", maxRows)
			break
		}
		if err := rows.Scan(scan...); err != nil {
			return "", count, fmt.Errorf("scanning row %d: %w", count, err)
		}
		for i, v := range values {
			if i > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(cellString(v))
		}
		b.WriteByte('\n')
		count++
	}
	if err := rows.Err(); err != nil {
		return "", count, err
	}
	if count == 0 {
		b.WriteString("(no rows)\n")
	}
	return b.String(), count, nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		s := string(t)
		if len(s) > reportCellLimit {
			return s[:reportCellLimit] + "..."
		}
		return s
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
