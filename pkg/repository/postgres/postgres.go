package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
)

// DefaultTable holds pending acknowledgement checks
const DefaultTable = "ackbot_pending"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Postgres stores the retry queue in a table keyed by "channel:timestamp" with an index on score
type Postgres struct {
	db    *sqlx.DB
	table string
}

var _ interfaces.RetryQueue = &Postgres{}

type Option func(*Postgres)

// WithTable sets the table name
func WithTable(table string) Option {
	return func(p *Postgres) {
		p.table = table
	}
}

type row struct {
	Channel   string    `db:"channel"`
	Timestamp string    `db:"ts"`
	Score     time.Time `db:"score"`
}

func (r row) entry() *model.QueueEntry {
	return &model.QueueEntry{
		Ref:   model.NewMessageRef(r.Channel, r.Timestamp),
		Score: r.Score,
	}
}

// New connects to PostgreSQL and creates the table when it does not exist
func New(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	p := &Postgres{table: DefaultTable}
	for _, o := range opts {
		o(p)
	}
	if !tableNamePattern.MatchString(p.table) {
		return nil, goerr.New("invalid table name", goerr.V("table", p.table))
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open postgres connection")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to connect to postgres")
	}
	p.db = db

	if err := p.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key     TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			ts      TEXT NOT NULL,
			score   TIMESTAMPTZ NOT NULL
		)`, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_score_idx ON %s (score)`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to migrate queue table", goerr.V("table", p.table))
		}
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, ref model.MessageRef, score time.Time) error {
	if err := ref.Validate(); err != nil {
		return goerr.Wrap(err, "invalid message reference")
	}

	query := fmt.Sprintf(`INSERT INTO %[1]s (key, channel, ts, score) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET score = GREATEST(%[1]s.score, EXCLUDED.score)`, p.table)
	if _, err := p.db.ExecContext(ctx, query, ref.Key(), ref.Channel, ref.Timestamp, score.UTC()); err != nil {
		return goerr.Wrap(err, "failed to upsert queue entry", goerr.V("key", ref.Key()))
	}
	return nil
}

func (p *Postgres) RangeByScore(ctx context.Context, max time.Time) ([]*model.QueueEntry, error) {
	var rows []row
	query := fmt.Sprintf(`SELECT channel, ts, score FROM %s WHERE score <= $1 ORDER BY score, key`, p.table)
	if err := p.db.SelectContext(ctx, &rows, query, max.UTC()); err != nil {
		return nil, goerr.Wrap(err, "failed to range queue entries", goerr.V("max", max))
	}

	entries := make([]*model.QueueEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry()
	}
	return entries, nil
}

func (p *Postgres) Remove(ctx context.Context, refs []model.MessageRef) error {
	if len(refs) == 0 {
		return nil
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = ref.Key()
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ANY($1)`, p.table)
	if _, err := p.db.ExecContext(ctx, query, pq.Array(keys)); err != nil {
		return goerr.Wrap(err, "failed to remove queue entries", goerr.V("count", len(refs)))
	}
	return nil
}

func (p *Postgres) Score(ctx context.Context, ref model.MessageRef) (*model.QueueEntry, error) {
	var r row
	query := fmt.Sprintf(`SELECT channel, ts, score FROM %s WHERE key = $1`, p.table)
	if err := p.db.GetContext(ctx, &r, query, ref.Key()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get queue entry", goerr.V("key", ref.Key()))
	}
	return r.entry(), nil
}

func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
