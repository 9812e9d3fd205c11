package csvexport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/shelfscout/backend/internal/domain"
)

// Header is the fixed column order of exported files
var Header = []string{
	"groupId",
	"representativeName",
	"category",
	"avgMarketPrice",
	"recommendedPrice",
	"bestRating",
	"totalReviews",
	"sourcesCount",
	"score",
}

// Write writes the header and one line per row to w
func Write(w io.Writer, rows []domain.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return eris.Wrapf(err, "csv: write row %s", r.GroupID)
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(r domain.ExportRow) []string {
	rating := ""
	if r.BestRating != nil {
		rating = strconv.FormatFloat(*r.BestRating, 'f', -1, 64)
	}
	return []string{
		r.GroupID,
		r.RepresentativeName,
		r.Category,
		r.AvgMarketPrice.String(),
		r.RecommendedPrice.String(),
		rating,
		strconv.Itoa(r.TotalReviews),
		strconv.Itoa(r.SourcesCount),
		strconv.FormatFloat(r.Score, 'f', 4, 64),
	}
}

// FileExporter writes one CSV file per run into a directory.
// It is safe for concurrent use.
type FileExporter struct {
	mu   sync.Mutex
	dir  string
	rows func(*domain.RunSnapshot) []domain.ExportRow
}

// NewFileExporter creates an exporter writing to dir. rows flattens a snapshot
// into export rows in the order they should appear.
func NewFileExporter(dir string, rows func(*domain.RunSnapshot) []domain.ExportRow) *FileExporter {
	return &FileExporter{dir: dir, rows: rows}
}

// Path returns the file a run is exported to
func (e *FileExporter) Path(runID string) string {
	return filepath.Join(e.dir, fmt.Sprintf("scored-%s.csv", runID))
}

// Export writes the snapshot to its file, replacing any previous export of the run.
// Intermediate directories are created automatically.
func (e *FileExporter) Export(ctx context.Context, snapshot *domain.RunSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return eris.Wrap(err, "csv: create output dir")
	}

	path := e.Path(snapshot.RunID)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "csv: create file %q", tmp)
	}

	if err := Write(f, e.rows(snapshot)); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "csv: close file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrap(err, "csv: rename export")
	}
	return nil
}
