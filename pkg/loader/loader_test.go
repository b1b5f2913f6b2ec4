package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pkdone/mongo-uk-car-data/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]any
	failOn  int // fail the n-th call (1 based), 0 never
	calls   int
}

func (w *recordingWriter) InsertMany(_ context.Context, docs []any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls++
	if w.failOn > 0 && w.calls == w.failOn {
		return errors.New("write concern error")
	}
	w.batches = append(w.batches, append([]any(nil), docs...))
	return nil
}

func (w *recordingWriter) docs() []TestResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []TestResult
	for _, b := range w.batches {
		for _, d := range b {
			out = append(out, d.(TestResult))
		}
	}
	return out
}

const header = "test_id|vehicle_id|test_date|test_class_id|test_type|test_result|test_mileage|postcode_area|make|model|colour|fuel_type|cylinder_capacity|first_use_date\n"

func writeFile(t *testing.T, dir, name string, rows int, vehicleMake string) {
	t.Helper()

	var sb strings.Builder
	sb.WriteString(header)
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "%d|%d|2013-02-0%d|4|N|P|%d|SN|%s|MODEL%d|RED|PE|1200|2001-01-01\n", i+1, 1000+i, i%9+1, 1000*i, vehicleMake, i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sb.String()), 0o600))
}

func TestFindFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test_result_2014.txt", 1, "FORD")
	writeFile(t, dir, "test_result_2013.txt", 1, "FORD")
	writeFile(t, dir, "test_item_2013.txt", 1, "FORD")

	files, err := FindFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "test_result_2013.txt"),
		filepath.Join(dir, "test_result_2014.txt"),
	}, files)

	_, err = FindFiles(filepath.Join(dir, "missing"))
	require.ErrorContains(t, err, "invalid or not found path")

	_, err = FindFiles(filepath.Join(dir, "test_result_2013.txt"))
	require.ErrorContains(t, err, "is not a directory")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test_result_2013.txt", 7, "FORD")
	writeFile(t, dir, "test_result_2014.txt", 5, "VAUXHALL")

	w := &recordingWriter{}
	log, logs := logger.NewObserverLogger("info")

	stats, err := New(w, WithBatchSize(3), WithConcurrency(2), WithLogger(log)).LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, Stats{Files: 2, Documents: 12}, stats)

	// 7 rows -> 3+3+1, 5 rows -> 3+2
	require.Len(t, w.batches, 5)

	byYear := map[int]int{}
	for _, d := range w.docs() {
		byYear[d.MotYear]++
		switch d.MotYear {
		case 2013:
			require.Equal(t, "FORD", d.Make)
		case 2014:
			require.Equal(t, "VAUXHALL", d.Make)
		}
	}
	require.Equal(t, map[int]int{2013: 7, 2014: 5}, byYear)

	require.Equal(t, 2, logs.FilterMessage("processing file").Len())
	require.Equal(t, 1, logs.FilterMessage("load finished").Len())
}

func TestLoadFileKeepsRecordOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test_result_2015.txt", 4, "FORD")

	w := &recordingWriter{}
	stats, err := New(w).LoadFile(context.Background(), filepath.Join(dir, "test_result_2015.txt"))
	require.NoError(t, err)
	require.Equal(t, int64(4), stats.Documents)

	docs := w.docs()
	for i, d := range docs {
		require.Equal(t, int64(i+1), d.TestID)
	}
}

func TestLoadFileHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test_result_2016.txt", 0, "FORD")

	w := &recordingWriter{}
	stats, err := New(w).LoadFile(context.Background(), filepath.Join(dir, "test_result_2016.txt"))
	require.NoError(t, err)
	require.Zero(t, stats.Documents)
	require.Empty(t, w.batches)
}

func TestLoadFileShortRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_result_2013.txt")
	require.NoError(t, os.WriteFile(path, []byte(header+"1|2|2013-01-01\n"), 0o600))

	_, err := New(&recordingWriter{}).LoadFile(context.Background(), path)
	require.ErrorContains(t, err, "test_result_2013.txt: line 2: expected at least 14 fields, got 3")
}

func TestLoadFileCountsInvalidDates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_result_2013.txt")
	row := "1|2|2013-99-01|4|N|P|100|SN|FORD|KA|RED|PE|1200|\n"
	require.NoError(t, os.WriteFile(path, []byte(header+row), 0o600))

	w := &recordingWriter{}
	stats, err := New(w).LoadFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.InvalidDates)
	require.Equal(t, InvalidDate, w.docs()[0].TestDate)
	require.Equal(t, InvalidDate, w.docs()[0].FirstUseDate)
}

func TestLoadDirWriterFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test_result_2013.txt", 10, "FORD")

	w := &recordingWriter{failOn: 2}
	stats, err := New(w, WithBatchSize(4)).LoadDir(context.Background(), dir)
	require.ErrorContains(t, err, "insert batch: write concern error")
	require.Equal(t, int64(4), stats.Documents)
}

func TestLoadDirCanceled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test_result_2013.txt", 3, "FORD")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&recordingWriter{}).LoadDir(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
}
