package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dealgen/internal/db"
	"github.com/sells-group/dealgen/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, seed, input, started_at) VALUES ($1, $2, $3, $4)`,
	"complete_run": `UPDATE runs SET summary = $1, completed_at = $2 WHERE id = $3`,
	"fail_run":     `UPDATE runs SET error = $1, completed_at = $2 WHERE id = $3`,
	"get_run":      `SELECT id, seed, input, started_at, completed_at, summary, error FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	seed         TEXT NOT NULL,
	input        TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	summary      JSONB,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS decisions (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	company_id  TEXT NOT NULL,
	name        TEXT NOT NULL,
	domain      TEXT NOT NULL,
	created     BOOLEAN NOT NULL,
	probability DOUBLE PRECISION NOT NULL,
	draw        DOUBLE PRECISION NOT NULL,
	p_win_base  DOUBLE PRECISION NOT NULL,
	outcome     TEXT NOT NULL,
	signals     JSONB NOT NULL,
	PRIMARY KEY (run_id, company_id)
);

CREATE TABLE IF NOT EXISTS deals (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	id               TEXT NOT NULL,
	company_id       TEXT NOT NULL,
	owner            TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	outcome          TEXT NOT NULL,
	sales_cycle_days INTEGER NOT NULL,
	closed_at        TIMESTAMPTZ,
	win_probability  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS stage_events (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	deal_id    TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	stage      TEXT NOT NULL,
	entered_at TIMESTAMPTZ NOT NULL,
	exited_at  TIMESTAMPTZ,
	PRIMARY KEY (run_id, deal_id, seq)
);

CREATE TABLE IF NOT EXISTS billing (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	id          TEXT NOT NULL,
	deal_id     TEXT NOT NULL,
	company_id  TEXT NOT NULL,
	size_band   TEXT NOT NULL,
	arr         BIGINT NOT NULL,
	mrr         DOUBLE PRECISION NOT NULL,
	term        TEXT NOT NULL,
	term_months INTEGER NOT NULL,
	start_date  DATE NOT NULL,
	end_date    DATE NOT NULL,
	currency    TEXT NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON decisions(run_id, outcome);
CREATE INDEX IF NOT EXISTS idx_billing_deal_id ON billing(run_id, deal_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, seed uint64, input string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, seed, input, started_at) VALUES ($1, $2, $3, $4)`,
		id, formatSeed(seed), input, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{ID: id, Seed: seed, Input: input, StartedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary model.BatchSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, completed_at = $2 WHERE id = $3`,
		summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, completed_at = $2 WHERE id = $3`,
		reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, seed, input, started_at, completed_at, summary, error FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, seed, input, started_at, completed_at, summary, error FROM runs ORDER BY started_at DESC`
	args := []any{}
	argIdx := 1

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveResults bulk-loads every result row for the run with COPY inside one
// transaction.
func (s *PostgresStore) SaveResults(ctx context.Context, runID string, results []model.CompanyResult) (int64, error) {
	tables, err := resultTables(runID, results)
	if err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin save results")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := db.CopyTables(ctx, tx, tables...)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save results for run %s", runID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit save results")
	}
	return n, nil
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var seed string
	var completed *time.Time
	var summary []byte
	var runErr *string

	if err := row.Scan(&r.ID, &seed, &r.Input, &r.StartedAt, &completed, &summary, &runErr); err != nil {
		return nil, err
	}
	if runErr != nil {
		r.Error = *runErr
	}

	var err error
	if r.Seed, err = parseSeed(seed); err != nil {
		return nil, err
	}
	r.CompletedAt = completed
	if r.Summary, err = unmarshalSummary(summary); err != nil {
		return nil, err
	}
	return &r, nil
}
