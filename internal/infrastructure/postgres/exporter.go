package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/shelfscout/backend/internal/domain"
)

// Config holds Postgres export settings
type Config struct {
	DSN       string
	Schema    string
	MaxConns  int
	BatchSize int
	// ViaBouncer switches to the simple protocol for PgBouncer transaction pooling
	ViaBouncer bool
}

// Exporter upserts the scored products of every run into Postgres.
// It implements domain.Exporter.
type Exporter struct {
	pool      *pgxpool.Pool
	table     string
	schema    string
	batchSize int
	rows      func(*domain.RunSnapshot) []domain.ExportRow
	logger    zerolog.Logger
}

// NewExporter opens a connection pool. rows flattens a snapshot into export rows.
func NewExporter(ctx context.Context, cfg Config, rows func(*domain.RunSnapshot) []domain.ExportRow, logger zerolog.Logger) (*Exporter, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 2
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	if cfg.ViaBouncer {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}

	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}

	return &Exporter{
		pool:      pool,
		table:     tableName(cfg.Schema),
		schema:    cfg.Schema,
		batchSize: cfg.BatchSize,
		rows:      rows,
		logger:    logger.With().Str("component", "postgres").Logger(),
	}, nil
}

// Close closes the pool
func (e *Exporter) Close() {
	e.pool.Close()
}

func tableName(schema string) string {
	return fmt.Sprintf(`"%s".scored_products`, strings.ReplaceAll(schema, `"`, `""`))
}

// EnsureSchema creates the schema and table when missing
func (e *Exporter) EnsureSchema(ctx context.Context) error {
	schema := strings.ReplaceAll(e.schema, `"`, `""`)
	if _, err := e.pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, schema)); err != nil {
		return eris.Wrap(err, "postgres: create schema")
	}
	if _, err := e.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+e.table+` (
		run_id            TEXT NOT NULL,
		group_id          TEXT NOT NULL,
		run_created_at    TIMESTAMPTZ NOT NULL,
		representative    TEXT NOT NULL,
		category          TEXT NOT NULL,
		avg_market_price  NUMERIC NOT NULL,
		recommended_price NUMERIC NOT NULL,
		best_rating       DOUBLE PRECISION,
		total_reviews     INTEGER NOT NULL,
		sources_count     INTEGER NOT NULL,
		score             DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, group_id)
	)`); err != nil {
		return eris.Wrap(err, "postgres: create table")
	}
	return nil
}

// Export upserts the snapshot's rows in batches
func (e *Exporter) Export(ctx context.Context, snapshot *domain.RunSnapshot) error {
	rows := e.rows(snapshot)
	if len(rows) == 0 {
		return nil
	}

	query := upsertQuery(e.table)
	total := 0
	for i := 0; i < len(rows); i += e.batchSize {
		j := min(i+e.batchSize, len(rows))

		b := &pgx.Batch{}
		for _, r := range rows[i:j] {
			b.Queue(query, upsertArgs(snapshot.RunID, snapshot.CreatedAt, r)...)
		}

		br := e.pool.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return eris.Wrapf(err, "postgres: upsert %s", rows[k].GroupID)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return eris.Wrap(err, "postgres: close batch")
		}
	}

	e.logger.Info().Str("run_id", snapshot.RunID).Int("rows", total).Msg("scored products exported")
	return nil
}

func upsertQuery(table string) string {
	return `INSERT INTO ` + table + `
		(run_id, group_id, run_created_at, representative, category,
		 avg_market_price, recommended_price, best_rating, total_reviews, sources_count, score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (run_id, group_id) DO UPDATE SET
			representative = EXCLUDED.representative,
			category = EXCLUDED.category,
			avg_market_price = EXCLUDED.avg_market_price,
			recommended_price = EXCLUDED.recommended_price,
			best_rating = EXCLUDED.best_rating,
			total_reviews = EXCLUDED.total_reviews,
			sources_count = EXCLUDED.sources_count,
			score = EXCLUDED.score`
}

// upsertArgs returns the positional arguments of upsertQuery. Prices are passed as
// text so NUMERIC columns keep the exact decimal value.
func upsertArgs(runID string, created time.Time, r domain.ExportRow) []any {
	return []any{
		runID,
		r.GroupID,
		created.UTC(),
		r.RepresentativeName,
		r.Category,
		r.AvgMarketPrice.String(),
		r.RecommendedPrice.String(),
		r.BestRating,
		r.TotalReviews,
		r.SourcesCount,
		r.Score,
	}
}
