package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
)

// Schema is the SQL DDL for the peer_responses table. Execute it via
// [PostgresSource.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS peer_responses (
    id          BIGSERIAL   PRIMARY KEY,
    lesson_id   INTEGER     NOT NULL,
    response    TEXT        NOT NULL DEFAULT '',
    choice      TEXT        NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_peer_responses_lesson ON peer_responses(lesson_id);
`

// DefaultResponseLimit caps how many stored responses are merged into one
// cloud so a popular lesson does not drown out its seed.
const DefaultResponseLimit = 200

// DB is the database interface used by [PostgresSource]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSource is a [Source] that merges each lesson's seed with answers
// recorded by earlier learners.
type PostgresSource struct {
	db    DB
	limit int
}

var _ Source = (*PostgresSource)(nil)

// PostgresOption configures a [PostgresSource].
type PostgresOption func(*PostgresSource)

// WithResponseLimit overrides [DefaultResponseLimit].
func WithResponseLimit(n int) PostgresOption {
	return func(s *PostgresSource) {
		if n > 0 {
			s.limit = n
		}
	}
}

// NewPostgresSource wraps db. The caller is responsible for calling
// [PostgresSource.Migrate] before the first query.
func NewPostgresSource(db DB, opts ...PostgresOption) *PostgresSource {
	s := &PostgresSource{db: db, limit: DefaultResponseLimit}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OpenPostgres connects a pool to dsn, pings it and runs [Schema]. The
// returned close function releases the pool.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresSource, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("insight: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("insight: ping: %w", err)
	}
	s := NewPostgresSource(pool, opts...)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate executes [Schema].
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("insight: migrate: %w", err)
	}
	return nil
}

// Ping runs a trivial query. It is used as a readiness check.
func (s *PostgresSource) Ping(ctx context.Context) error {
	rows, err := s.db.Query(ctx, "SELECT 1")
	if err != nil {
		return fmt.Errorf("insight: ping: %w", err)
	}
	rows.Close()
	return rows.Err()
}

// Peers implements [Source]. Stored responses are appended after the seed
// responses; stored choices are added onto the seed buckets, and choices the
// seed does not know get their own bucket in first-seen order.
func (s *PostgresSource) Peers(ctx context.Context, lesson catalog.Lesson) (catalog.Peers, error) {
	peers := clonePeers(lesson.Peers)

	responses, err := s.responses(ctx, lesson.ID)
	if err != nil {
		return peers, err
	}
	peers.Responses = append(peers.Responses, responses...)

	if lesson.ChoiceQuestion() < 0 {
		return peers, nil
	}
	counts, order, err := s.choices(ctx, lesson.ID)
	if err != nil {
		return peers, err
	}
	for i := range peers.Stats {
		label := peers.Stats[i].Label
		peers.Stats[i].Count += counts[label]
		delete(counts, label)
	}
	for _, label := range order {
		if n, ok := counts[label]; ok {
			peers.Stats = append(peers.Stats, catalog.Stat{Label: label, Count: n})
		}
	}
	return peers, nil
}

func (s *PostgresSource) responses(ctx context.Context, lessonID int) ([]string, error) {
	const q = `
		SELECT response
		FROM   peer_responses
		WHERE  lesson_id = $1 AND response <> ''
		ORDER  BY created_at DESC
		LIMIT  $2`

	rows, err := s.db.Query(ctx, q, lessonID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("insight: query responses: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("insight: scan responses: %w", err)
	}
	return out, nil
}

func (s *PostgresSource) choices(ctx context.Context, lessonID int) (map[string]int, []string, error) {
	const q = `
		SELECT choice, count(*)
		FROM   peer_responses
		WHERE  lesson_id = $1 AND choice <> ''
		GROUP  BY choice
		ORDER  BY min(created_at)`

	rows, err := s.db.Query(ctx, q, lessonID)
	if err != nil {
		return nil, nil, fmt.Errorf("insight: query choices: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	var order []string
	for rows.Next() {
		var (
			label string
			n     int64
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, nil, fmt.Errorf("insight: scan choices: %w", err)
		}
		counts[label] = int(n)
		order = append(order, label)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("insight: iterate choices: %w", err)
	}
	return counts, order, nil
}

// Record implements [Source]. Every non-blank answer becomes one row; the
// choice is stored on its own row so it is counted once per learner.
func (s *PostgresSource) Record(ctx context.Context, lessonID int, answers []string, choice string) error {
	const q = `INSERT INTO peer_responses (lesson_id, response, choice) VALUES ($1, $2, $3)`

	for _, a := range answers {
		a = strings.TrimSpace(a)
		if a == "" || a == choice {
			continue
		}
		if _, err := s.db.Exec(ctx, q, lessonID, a, ""); err != nil {
			return fmt.Errorf("insight: record response: %w", err)
		}
	}
	if choice != "" {
		if _, err := s.db.Exec(ctx, q, lessonID, "", choice); err != nil {
			return fmt.Errorf("insight: record choice: %w", err)
		}
	}
	return nil
}
