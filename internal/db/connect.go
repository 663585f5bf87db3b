package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:courselab.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/courselab?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

// The unique constraints on content_records, content_attempts and
// attempt_question_sets are load-bearing: concurrent get-or-create and
// attempt creation rely on them as the authoritative race-breakers.
const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'student'
);

CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'student',
  withdrawn INTEGER NOT NULL DEFAULT 0,
  UNIQUE (course_id, user_id)
);

CREATE TABLE IF NOT EXISTS contents (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL,
  object_json TEXT NOT NULL,
  points REAL NOT NULL DEFAULT 0,
  aggregation TEXT NOT NULL DEFAULT 'Max',
  record_scores INTEGER NOT NULL DEFAULT 1,
  available_before_assigned INTEGER NOT NULL DEFAULT 0,
  assigned INTEGER,
  due INTEGER,
  time_limit_sec INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS content_records (
  id TEXT PRIMARY KEY,
  content_id TEXT NOT NULL REFERENCES contents(id) ON DELETE CASCADE,
  enrollment_id TEXT NOT NULL DEFAULT '',
  score REAL,
  score_override REAL,
  assigned_adjustment INTEGER,
  initial_due_adjustment INTEGER,
  final_due_adjustment INTEGER,
  UNIQUE (content_id, enrollment_id)
);

CREATE TABLE IF NOT EXISTS content_attempts (
  id TEXT PRIMARY KEY,
  record_id TEXT NOT NULL REFERENCES content_records(id) ON DELETE CASCADE,
  number INTEGER NOT NULL,
  attempt_began INTEGER,
  seed TEXT NOT NULL,
  version TEXT NOT NULL,
  valid INTEGER NOT NULL DEFAULT 0,
  closed INTEGER NOT NULL DEFAULT 0,
  score REAL,
  score_override REAL,
  base_attempt_id TEXT,
  UNIQUE (record_id, number)
);

CREATE TABLE IF NOT EXISTS attempt_question_sets (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES content_attempts(id) ON DELETE CASCADE,
  question_set INTEGER NOT NULL,
  question_number INTEGER NOT NULL,
  credit_override REAL,
  UNIQUE (attempt_id, question_number),
  UNIQUE (attempt_id, question_set)
);

CREATE TABLE IF NOT EXISTS question_attempts (
  id TEXT PRIMARY KEY,
  attempt_question_set_id TEXT NOT NULL REFERENCES attempt_question_sets(id) ON DELETE CASCADE,
  attempt_id TEXT NOT NULL,
  question_set INTEGER NOT NULL,
  question_id TEXT NOT NULL,
  seed TEXT NOT NULL,
  valid INTEGER NOT NULL DEFAULT 0,
  credit REAL,
  solution_viewed INTEGER,
  created INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS question_responses (
  id TEXT PRIMARY KEY,
  question_attempt_id TEXT NOT NULL REFERENCES question_attempts(id) ON DELETE CASCADE,
  payload TEXT NOT NULL,
  credit REAL NOT NULL DEFAULT 0,
  valid INTEGER NOT NULL DEFAULT 0,
  submitted INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS change_log (
  id TEXT PRIMARY KEY,
  level TEXT NOT NULL,
  ref_id TEXT NOT NULL,
  action TEXT NOT NULL,
  old_state TEXT NOT NULL,
  new_state TEXT NOT NULL,
  at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'student'
);

CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'student',
  withdrawn BOOLEAN NOT NULL DEFAULT FALSE,
  UNIQUE (course_id, user_id)
);

CREATE TABLE IF NOT EXISTS contents (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL,
  object_json TEXT NOT NULL,
  points DOUBLE PRECISION NOT NULL DEFAULT 0,
  aggregation TEXT NOT NULL DEFAULT 'Max',
  record_scores BOOLEAN NOT NULL DEFAULT TRUE,
  available_before_assigned BOOLEAN NOT NULL DEFAULT FALSE,
  assigned BIGINT,
  due BIGINT,
  time_limit_sec BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS content_records (
  id TEXT PRIMARY KEY,
  content_id TEXT NOT NULL REFERENCES contents(id) ON DELETE CASCADE,
  enrollment_id TEXT NOT NULL DEFAULT '',
  score DOUBLE PRECISION,
  score_override DOUBLE PRECISION,
  assigned_adjustment BIGINT,
  initial_due_adjustment BIGINT,
  final_due_adjustment BIGINT,
  UNIQUE (content_id, enrollment_id)
);

CREATE TABLE IF NOT EXISTS content_attempts (
  id TEXT PRIMARY KEY,
  record_id TEXT NOT NULL REFERENCES content_records(id) ON DELETE CASCADE,
  number INTEGER NOT NULL,
  attempt_began BIGINT,
  seed TEXT NOT NULL,
  version TEXT NOT NULL,
  valid BOOLEAN NOT NULL DEFAULT FALSE,
  closed BOOLEAN NOT NULL DEFAULT FALSE,
  score DOUBLE PRECISION,
  score_override DOUBLE PRECISION,
  base_attempt_id TEXT,
  UNIQUE (record_id, number)
);

CREATE TABLE IF NOT EXISTS attempt_question_sets (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES content_attempts(id) ON DELETE CASCADE,
  question_set INTEGER NOT NULL,
  question_number INTEGER NOT NULL,
  credit_override DOUBLE PRECISION,
  UNIQUE (attempt_id, question_number),
  UNIQUE (attempt_id, question_set)
);

CREATE TABLE IF NOT EXISTS question_attempts (
  id TEXT PRIMARY KEY,
  attempt_question_set_id TEXT NOT NULL REFERENCES attempt_question_sets(id) ON DELETE CASCADE,
  attempt_id TEXT NOT NULL,
  question_set INTEGER NOT NULL,
  question_id TEXT NOT NULL,
  seed TEXT NOT NULL,
  valid BOOLEAN NOT NULL DEFAULT FALSE,
  credit DOUBLE PRECISION,
  solution_viewed BIGINT,
  created BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS question_responses (
  id TEXT PRIMARY KEY,
  question_attempt_id TEXT NOT NULL REFERENCES question_attempts(id) ON DELETE CASCADE,
  payload TEXT NOT NULL,
  credit DOUBLE PRECISION NOT NULL DEFAULT 0,
  valid BOOLEAN NOT NULL DEFAULT FALSE,
  submitted BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS change_log (
  id TEXT PRIMARY KEY,
  level TEXT NOT NULL,
  ref_id TEXT NOT NULL,
  action TEXT NOT NULL,
  old_state TEXT NOT NULL,
  new_state TEXT NOT NULL,
  at BIGINT NOT NULL
);
`
