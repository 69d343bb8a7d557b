package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/core"
)

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

const schema = `
CREATE TABLE IF NOT EXISTS competition_results (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    mode        TEXT NOT NULL,
    winner_id   TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ NOT NULL,
    payload     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS competition_results_ended_at_idx ON competition_results (ended_at DESC);
`

// PostgresStore keeps results in a single table with the full result as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and applies the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Save(ctx context.Context, res competition.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO competition_results (id, name, mode, winner_id, started_at, ended_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.CompetitionID, res.Name, string(res.Mode), winnerID(res), res.StartedAt, res.EndedAt, payload,
	)
	if isDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, res.CompetitionID)
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*competition.Result, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM competition_results WHERE id = $1`, id).Scan(&payload)
	if isNotFoundError(err) {
		return nil, core.ErrCompetitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}

	var res competition.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]competition.Result, error) {
	where, args := buildWhere(filter)
	query := "SELECT payload FROM competition_results" + where + " ORDER BY ended_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []competition.Result{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var res competition.Result
		if err := json.Unmarshal(payload, &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := buildWhere(filter)
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM competition_results"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

func buildWhere(filter ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Mode != "" {
		add("mode = $%d", string(filter.Mode))
	}
	if filter.WinnerID != "" {
		add("winner_id = $%d", filter.WinnerID)
	}
	if !filter.From.IsZero() {
		add("ended_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("ended_at <= $%d", filter.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ Store = (*PostgresStore)(nil)
