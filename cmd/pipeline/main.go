// Command pipeline runs one reconciliation pass over exported listing files
// and prints the top products of every category.
//
//	pipeline -k 3 -out ./exports jumia.csv konga.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/shelfscout/backend/config"
	"github.com/shelfscout/backend/internal/domain"
	"github.com/shelfscout/backend/internal/infrastructure/cache"
	"github.com/shelfscout/backend/internal/infrastructure/csvexport"
	"github.com/shelfscout/backend/internal/infrastructure/filesource"
	"github.com/shelfscout/backend/internal/infrastructure/logging"
	"github.com/shelfscout/backend/internal/infrastructure/sqlite"
	"github.com/shelfscout/backend/internal/usecase"
)

type options struct {
	configPath string
	currency   string
	outDir     string
	dbPath     string
	topK       int
	files      []string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "config file (defaults to ./config.yaml when present)")
	flag.StringVar(&opts.currency, "currency", "", "currency of prices without a currency marker")
	flag.StringVar(&opts.outDir, "out", "", "directory for the scored CSV export")
	flag.StringVar(&opts.dbPath, "db", "", "SQLite database to store the run in")
	flag.IntVar(&opts.topK, "k", 0, "products to print per category (defaults to ranking.default_top_k)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	opts.files = flag.Args()

	if len(opts.files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout carries only the rankings
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	k := opts.topK
	if k == 0 {
		k = cfg.Ranking.DefaultTopK
	}
	if k <= 0 {
		return domain.ErrInvalidTopK
	}

	settings, err := cfg.PipelineSettings()
	if err != nil {
		return err
	}
	pipeline, err := usecase.NewPipeline(settings, logger)
	if err != nil {
		return err
	}

	var repo domain.SnapshotRepository
	var store *sqlite.Store
	if opts.dbPath != "" {
		store, err = sqlite.Open(ctx, opts.dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		repo = store
	} else {
		mem := cache.NewSnapshotStore(0, 1)
		defer mem.Close()
		repo = mem
	}

	var exporters []domain.Exporter
	var exporter *csvexport.FileExporter
	if opts.outDir != "" {
		exporter = csvexport.NewFileExporter(opts.outDir, usecase.SnapshotRows)
		exporters = append(exporters, exporter)
	}

	runs := usecase.NewRunService(
		pipeline,
		map[string]domain.RawListingSource{"file": filesource.New(logger)},
		repo,
		exporters,
		usecase.RunServiceConfig{Sources: fileSources(opts.files, opts.currency)},
		logger,
	)

	snapshot, err := runs.Collect(ctx)
	if errors.Is(err, domain.ErrEmptyInputRun) {
		printReport(out, snapshot)
		return err
	}
	if err != nil {
		return err
	}

	printReport(out, snapshot)
	if exporter != nil {
		fmt.Fprintf(out, "export: %s\n", exporter.Path(snapshot.RunID))
	}

	rows, err := topRows(ctx, runs, store, snapshot, k)
	if err != nil {
		return err
	}
	return printRows(out, rows)
}

// fileSources names each input after its file without extension.
// Repeated names get a numeric suffix.
func fileSources(files []string, currency string) []domain.SourceConfig {
	sources := make([]domain.SourceConfig, 0, len(files))
	seen := make(map[string]int)
	for _, f := range files {
		base := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		seen[base]++
		name := base
		if n := seen[base]; n > 1 {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		sources = append(sources, domain.SourceConfig{
			Name:     name,
			Kind:     "file",
			Path:     f,
			Currency: currency,
			Enabled:  true,
		})
	}
	return sources
}

// topRows reads the top k rows per category, from the database when one is used
func topRows(ctx context.Context, runs *usecase.RunService, store *sqlite.Store, snapshot *domain.RunSnapshot, k int) ([]domain.ExportRow, error) {
	if store == nil {
		rankings, err := runs.Rankings(ctx, snapshot.RunID, k)
		if err != nil {
			return nil, err
		}
		return usecase.SnapshotRows(&domain.RunSnapshot{Rankings: rankings}), nil
	}

	var rows []domain.ExportRow
	for _, ranking := range snapshot.Rankings {
		top, err := store.TopScores(ctx, snapshot.RunID, ranking.Category, k)
		if err != nil {
			return nil, err
		}
		rows = append(rows, top...)
	}
	return rows, nil
}

func printReport(w io.Writer, snapshot *domain.RunSnapshot) {
	if snapshot == nil {
		return
	}
	r := snapshot.Report
	fmt.Fprintf(w, "run %s: %d records, %d valid, %d rejected, %d groups in %d categories\n",
		snapshot.RunID, r.TotalRecords, r.ValidListings, r.RejectedRecords, r.Groups, r.Categories)
	for _, reason := range slices.Sorted(maps.Keys(r.RejectionsByReason)) {
		fmt.Fprintf(w, "  rejected %s: %d\n", reason, r.RejectionsByReason[reason])
	}
	for _, f := range r.SourceFailures {
		fmt.Fprintf(w, "  source %s failed: %s\n", f.Source, f.Error)
	}
	if len(r.AmbiguousGroups) > 0 {
		fmt.Fprintf(w, "  ambiguous groups: %s\n", strings.Join(r.AmbiguousGroups, ", "))
	}
}

func printRows(w io.Writer, rows []domain.ExportRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tPRODUCT\tAVG PRICE\tRECOMMENDED\tSCORE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\n",
			r.Category, r.RepresentativeName, r.AvgMarketPrice.String(), r.RecommendedPrice.String(), r.Score)
	}
	return tw.Flush()
}
