package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const defaultPostgresTable = "interview_checkpoints"

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Postgres stores snapshots as JSONB rows keyed by session id.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres opens a pool, verifies the connection and creates the
// checkpoint table if it does not exist yet.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("postgres url is required")
	}

	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultPostgresTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid postgres table name %q", table)
	}

	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1

	// Transaction poolers (PgBouncer) do not support prepared statements.
	if poolCfg.ConnConfig.Port == 6543 && poolCfg.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	store := &Postgres{pool: pool, table: table}

	if err := store.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres checkpoint store",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.String("table", table),
	)

	return store, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			session_id TEXT PRIMARY KEY,
			state      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, p.table)

	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

func (p *Postgres) Put(ctx context.Context, key string, blob []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, p.table)

	// Passing a string lets postgres parse the JSON text into JSONB.
	if _, err := p.pool.Exec(ctx, query, key, string(blob)); err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT state::text FROM %s WHERE session_id = $1`, p.table)

	var state string
	err := p.pool.QueryRow(ctx, query, key).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	return []byte(state), nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
