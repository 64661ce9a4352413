package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dealgen/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	seed         TEXT NOT NULL,
	input        TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	summary      TEXT,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS decisions (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	company_id  TEXT NOT NULL,
	name        TEXT NOT NULL,
	domain      TEXT NOT NULL,
	created     INTEGER NOT NULL,
	probability REAL NOT NULL,
	draw        REAL NOT NULL,
	p_win_base  REAL NOT NULL,
	outcome     TEXT NOT NULL,
	signals     TEXT NOT NULL,
	PRIMARY KEY (run_id, company_id)
);

CREATE TABLE IF NOT EXISTS deals (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	id               TEXT NOT NULL,
	company_id       TEXT NOT NULL,
	owner            TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	outcome          TEXT NOT NULL,
	sales_cycle_days INTEGER NOT NULL,
	closed_at        DATETIME,
	win_probability  REAL NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS stage_events (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	deal_id    TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	stage      TEXT NOT NULL,
	entered_at DATETIME NOT NULL,
	exited_at  DATETIME,
	PRIMARY KEY (run_id, deal_id, seq)
);

CREATE TABLE IF NOT EXISTS billing (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	id          TEXT NOT NULL,
	deal_id     TEXT NOT NULL,
	company_id  TEXT NOT NULL,
	size_band   TEXT NOT NULL,
	arr         INTEGER NOT NULL,
	mrr         REAL NOT NULL,
	term        TEXT NOT NULL,
	term_months INTEGER NOT NULL,
	start_date  DATETIME NOT NULL,
	end_date    DATETIME NOT NULL,
	currency    TEXT NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON decisions(run_id, outcome);
CREATE INDEX IF NOT EXISTS idx_billing_deal_id ON billing(run_id, deal_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, seed uint64, input string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, seed, input, started_at) VALUES (?, ?, ?, ?)`,
		id, formatSeed(seed), input, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{ID: id, Seed: seed, Input: input, StartedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary model.BatchSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, completed_at = ? WHERE id = ?`,
		string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, completed_at = ? WHERE id = ?`,
		reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, seed, input, started_at, completed_at, summary, error FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, seed, input, started_at, completed_at, summary, error FROM runs ORDER BY started_at DESC`
	var args []any

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveResults inserts every result row for the run in one transaction.
func (s *SQLiteStore) SaveResults(ctx context.Context, runID string, results []model.CompanyResult) (int64, error) {
	tables, err := resultTables(runID, results)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save results")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, t := range tables {
		if len(t.Rows) == 0 {
			continue
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO `+t.Name+` (`+strings.Join(t.Columns, ", ")+`) VALUES (`+placeholders+`)`,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: prepare insert %s", t.Name)
		}
		for _, row := range t.Rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				stmt.Close()
				return 0, eris.Wrapf(err, "sqlite: insert %s", t.Name)
			}
			total++
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save results")
	}
	return total, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var seed string
	var completed sql.NullTime
	var summary sql.NullString
	var runErr sql.NullString

	err := row.Scan(&r.ID, &seed, &r.Input, &r.StartedAt, &completed, &summary, &runErr)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if r.Seed, err = parseSeed(seed); err != nil {
		return nil, err
	}
	r.Error = runErr.String
	if completed.Valid {
		t := completed.Time.UTC()
		r.CompletedAt = &t
	}
	if summary.Valid {
		if r.Summary, err = unmarshalSummary([]byte(summary.String)); err != nil {
			return nil, err
		}
	}
	return &r, nil
}
