package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTable = "rapidchat_turns"

const postgresSchema = `CREATE TABLE IF NOT EXISTS %s (
    seq        BIGSERIAL PRIMARY KEY,
    id         TEXT NOT NULL UNIQUE,
    chat_id    TEXT NOT NULL,
    turn_id    TEXT NOT NULL DEFAULT '',
    model      TEXT NOT NULL DEFAULT '',
    message    TEXT NOT NULL DEFAULT '',
    content    TEXT NOT NULL DEFAULT '',
    reasoning  TEXT NOT NULL DEFAULT '',
    start_time TIMESTAMPTZ NOT NULL,
    end_time   TIMESTAMPTZ NOT NULL
)`

const postgresIndex = `CREATE INDEX IF NOT EXISTS %s ON %s (chat_id, seq)`

// Querier is the subset of pgx used by Postgres. *pgxpool.Pool, *pgx.Conn,
// pgx.Tx and pgxmock pools all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres stores entries in one table shared by every chat.
type Postgres struct {
	db       Querier
	table    string
	rawTable string
	closer   func()
}

// PostgresOption configures Postgres.
type PostgresOption func(*Postgres)

// WithTable overrides the table name. It is quoted with pgx.Identifier
// because it is interpolated into SQL.
func WithTable(name string) PostgresOption {
	return func(p *Postgres) {
		p.rawTable = name
		p.table = pgx.Identifier{name}.Sanitize()
	}
}

// NewPostgres wraps an existing connection. It does not create the schema;
// call EnsureSchema for that.
func NewPostgres(db Querier, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, table: defaultTable, rawTable: defaultTable}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenPostgres connects a pool to dsn and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger, opts ...PostgresOption) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping postgres: %w", err)
	}
	p := NewPostgres(pool, opts...)
	p.closer = pool.Close
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("history: postgres ready", "table", p.rawTable)
	}
	return p, nil
}

// EnsureSchema creates the table and its index if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, fmt.Sprintf(postgresSchema, p.table)); err != nil {
		return fmt.Errorf("history: create table: %w", err)
	}
	index := pgx.Identifier{"idx_" + p.rawTable + "_chat_seq"}.Sanitize()
	if _, err := p.db.Exec(ctx, fmt.Sprintf(postgresIndex, index, p.table)); err != nil {
		return fmt.Errorf("history: create index: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s
		(id, chat_id, turn_id, model, message, content, reasoning, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, p.table)
	if _, err := p.db.Exec(ctx, query,
		e.ID, e.ChatID, e.TurnID, e.Model, e.Message, e.Content, e.Reasoning, e.StartTime, e.EndTime,
	); err != nil {
		return fmt.Errorf("history: postgres insert: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, chatID string, limit int) ([]Entry, error) {
	const columns = `id, chat_id, turn_id, model, message, content, reasoning, start_time, end_time`

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		query := fmt.Sprintf(`SELECT %s FROM (
			SELECT seq, %s FROM %s WHERE chat_id = $1 ORDER BY seq DESC LIMIT $2
		) sub ORDER BY sub.seq ASC`, columns, columns, p.table)
		rows, err = p.db.Query(ctx, query, chatID, limit)
	} else {
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE chat_id = $1 ORDER BY seq ASC`, columns, p.table)
		rows, err = p.db.Query(ctx, query, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("history: postgres list: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ChatID, &e.TurnID, &e.Model, &e.Message, &e.Content, &e.Reasoning, &e.StartTime, &e.EndTime); err != nil {
			return nil, fmt.Errorf("history: postgres scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: postgres rows: %w", err)
	}
	return out, nil
}

// Close releases the pool when Postgres owns it.
func (p *Postgres) Close() error {
	if p.closer != nil {
		p.closer()
	}
	return nil
}
