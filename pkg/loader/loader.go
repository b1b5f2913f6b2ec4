// Package loader bulk loads the anonymised UK MOT test result files into a document store.
//
// Each file is named test_result_NNNN.txt, where NNNN is the year of the tests it holds, and
// contains one '|' separated record per line after a header line. Every record becomes one
// TestResult document.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pkdone/mongo-uk-car-data/pkg/logger"
)

const (
	// FilePattern matches the MOT result files inside a load directory.
	FilePattern = "test_result_*.txt"

	DefaultBatchSize   = 1000
	DefaultConcurrency = 1
)

// Writer stores a batch of documents. Implementations must be safe for concurrent use when the
// loader runs with a concurrency above one.
type Writer interface {
	InsertMany(ctx context.Context, docs []any) error
}

type Option func(*Loader)

func WithLogger(l logger.Logger) Option {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// WithBatchSize sets how many documents are sent per InsertMany call.
func WithBatchSize(n int) Option {
	return func(ld *Loader) {
		ld.batchSize = n
	}
}

// WithConcurrency sets how many files are loaded at the same time.
func WithConcurrency(n int) Option {
	return func(ld *Loader) {
		ld.concurrency = n
	}
}

type Loader struct {
	writer      Writer
	logger      logger.Logger
	batchSize   int
	concurrency int
}

func New(w Writer, opts ...Option) *Loader {
	l := &Loader{
		writer:      w,
		logger:      logger.NewNoopLogger(),
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.batchSize < 1 {
		l.batchSize = DefaultBatchSize
	}
	if l.concurrency < 1 {
		l.concurrency = DefaultConcurrency
	}
	return l
}

// Stats summarises a load.
type Stats struct {
	Files        int
	Documents    int64
	InvalidDates int64
}

// FindFiles returns the MOT result files directly inside dir, sorted by name.
func FindFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid or not found path for folder containing MOT documents to import: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("invalid or not found path for folder containing MOT documents to import: %s is not a directory", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, FilePattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// LoadDir loads every MOT result file in dir. The first failing file cancels the others.
func (l *Loader) LoadDir(ctx context.Context, dir string) (Stats, error) {
	files, err := FindFiles(dir)
	if err != nil {
		return Stats{}, err
	}

	start := time.Now()
	l.logger.InfoWithContext(ctx, "load starting", zap.String("dir", dir), zap.Int("files", len(files)))

	var documents, invalidDates atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, path := range files {
		g.Go(func() error {
			stats, err := l.LoadFile(ctx, path)
			documents.Add(stats.Documents)
			invalidDates.Add(stats.InvalidDates)
			return err
		})
	}
	err = g.Wait()

	stats := Stats{
		Files:        len(files),
		Documents:    documents.Load(),
		InvalidDates: invalidDates.Load(),
	}
	if err != nil {
		return stats, err
	}

	l.logger.InfoWithContext(ctx, "load finished",
		zap.Int("files", stats.Files),
		zap.Int64("documents", stats.Documents),
		zap.Int64("invalid_dates", stats.InvalidDates),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

// LoadFile loads a single MOT result file. The MOT year is taken from the file name.
func (l *Loader) LoadFile(ctx context.Context, path string) (Stats, error) {
	year, err := YearFromFilename(filepath.Base(path))
	if err != nil {
		return Stats{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	l.logger.InfoWithContext(ctx, "processing file", zap.String("file", filepath.Base(path)), zap.Int("mot_year", year))

	stats, err := l.load(ctx, f, year)
	stats.Files = 1
	if err != nil {
		return stats, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return stats, nil
}

func (l *Loader) load(ctx context.Context, r io.Reader, year int) (Stats, error) {
	var stats Stats

	reader := csv.NewReader(r)
	reader.Comma = '|'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	// header
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		return stats, err
	}

	batch := make([]any, 0, l.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.writer.InsertMany(ctx, batch); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		stats.Documents += int64(len(batch))
		batch = make([]any, 0, l.batchSize)
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}

		doc, invalid, err := ParseRecord(fields, year)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		if invalid > 0 {
			stats.InvalidDates += int64(invalid)
			line, _ := reader.FieldPos(0)
			l.logger.DebugWithContext(ctx, "could not convert date field", zap.Int("line", line))
		}

		batch = append(batch, doc)
		if len(batch) == l.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	return stats, flush()
}
