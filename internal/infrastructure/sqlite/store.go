package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/shelfscout/backend/internal/domain"
)

// Fixed-width so lexical order on created_at matches chronological order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS run_snapshots (
	run_id         TEXT PRIMARY KEY,
	created_at     TEXT NOT NULL,
	valid_listings INTEGER NOT NULL,
	groups_count   INTEGER NOT NULL,
	empty_input    INTEGER NOT NULL,
	payload        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_snapshots_created_at ON run_snapshots (created_at);

CREATE TABLE IF NOT EXISTS scored_products (
	run_id              TEXT NOT NULL,
	group_id            TEXT NOT NULL,
	category            TEXT NOT NULL,
	position            INTEGER NOT NULL,
	representative_name TEXT NOT NULL,
	avg_market_price    TEXT NOT NULL,
	recommended_price   TEXT NOT NULL,
	score               REAL NOT NULL,
	PRIMARY KEY (run_id, group_id)
);
`

// Store persists run snapshots in a SQLite database file.
// It implements domain.SnapshotRepository.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; concurrent writers would otherwise hit SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: busy timeout")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: apply schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a snapshot and its ranked products, replacing any run with the same ID
func (s *Store) Save(ctx context.Context, snapshot *domain.RunSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return eris.Wrapf(err, "encode snapshot %s", snapshot.RunID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_snapshots
		(run_id, created_at, valid_listings, groups_count, empty_input, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snapshot.RunID,
		snapshot.CreatedAt.UTC().Format(timeLayout),
		snapshot.Report.ValidListings,
		snapshot.Report.Groups,
		snapshot.Report.EmptyInput,
		string(payload),
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert snapshot %s", snapshot.RunID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scored_products WHERE run_id = ?`, snapshot.RunID); err != nil {
		return eris.Wrap(err, "sqlite: clear scored products")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scored_products
		(run_id, group_id, category, position, representative_name, avg_market_price, recommended_price, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare scored products")
	}
	defer stmt.Close()

	for _, ranking := range snapshot.Rankings {
		for i, p := range ranking.Products {
			if _, err := stmt.ExecContext(ctx,
				snapshot.RunID,
				p.Group.GroupID,
				ranking.Category,
				i+1,
				p.Group.RepresentativeName,
				p.AvgMarketPrice.String(),
				p.RecommendedPrice.String(),
				p.Score,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert scored product %s", p.Group.GroupID)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Get retrieves a snapshot by run ID
func (s *Store) Get(ctx context.Context, runID string) (*domain.RunSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM run_snapshots WHERE run_id = ?`, runID)
	return scanSnapshot(row)
}

// Latest retrieves the snapshot with the newest creation time
func (s *Store) Latest(ctx context.Context) (*domain.RunSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM run_snapshots ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	return scanSnapshot(row)
}

// List returns up to limit summaries, newest first
func (s *Store) List(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	summaries := make([]domain.RunSummary, 0)
	if limit <= 0 {
		return summaries, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created_at, valid_listings, groups_count, empty_input
		FROM run_snapshots ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			summary domain.RunSummary
			created string
		)
		if err := rows.Scan(&summary.RunID, &created, &summary.ValidListings, &summary.Groups, &summary.EmptyInput); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		if summary.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse created_at of %s", summary.RunID)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate summaries")
	}
	return summaries, nil
}

// Delete removes a snapshot and its scored products
func (s *Store) Delete(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM run_snapshots WHERE run_id = ?`, runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete snapshot %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return domain.ErrSnapshotMiss
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scored_products WHERE run_id = ?`, runID); err != nil {
		return eris.Wrap(err, "sqlite: delete scored products")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// TopScores returns the stored top k products of one category for a run,
// without decoding the full snapshot
func (s *Store) TopScores(ctx context.Context, runID, category string, k int) ([]domain.ExportRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, representative_name, avg_market_price, recommended_price, score
		FROM scored_products WHERE run_id = ? AND category = ? ORDER BY position LIMIT ?`,
		runID, category, k)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query scored products")
	}
	defer rows.Close()

	var out []domain.ExportRow
	for rows.Next() {
		r := domain.ExportRow{Category: category}
		var avg, recommended string
		if err := rows.Scan(&r.GroupID, &r.RepresentativeName, &avg, &recommended, &r.Score); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scored product")
		}
		if err := r.AvgMarketPrice.UnmarshalText([]byte(avg)); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse avg price")
		}
		if err := r.RecommendedPrice.UnmarshalText([]byte(recommended)); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse recommended price")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate scored products")
}

func scanSnapshot(row *sql.Row) (*domain.RunSnapshot, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSnapshotMiss
		}
		return nil, eris.Wrap(err, "sqlite: read snapshot")
	}

	var snapshot domain.RunSnapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, eris.Wrap(err, "decode snapshot")
	}
	return &snapshot, nil
}
