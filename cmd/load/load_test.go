package load

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/pkdone/mongo-uk-car-data/pkg/config"
	"github.com/pkdone/mongo-uk-car-data/pkg/logger"
)

type fakeCollection struct {
	mu       sync.Mutex
	docs     int
	indexes  int
	indexErr error
}

func (c *fakeCollection) InsertMany(_ context.Context, docs []any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs += len(docs)
	return nil
}

func (c *fakeCollection) EnsureIndexes(_ context.Context) (string, error) {
	c.indexes++
	return "Make_1_Model_1", c.indexErr
}

const sample = `test_id|vehicle_id|test_date|test_class_id|test_type|test_result|test_mileage|postcode_area|make|model|colour|fuel_type|cylinder_capacity|first_use_date
1|10|2013-01-02|4|N|P|40000|SN|FORD|FOCUS|RED|PE|1600|2006-03-01
2|11|2013-13-45|4|N|F|65000|BS|VAUXHALL|ASTRA|BLUE|DI|1700|2004-07-12
`

func newTestLoad(t *testing.T, ensureIndexes bool) (*load, *bytes.Buffer, logger.Logs, string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test_result_2013.txt"), []byte(sample), 0o600))

	var out bytes.Buffer
	log, logs := logger.NewObserverLogger("info")

	l := &load{
		out:           &out,
		logger:        log,
		cfg:           config.DefaultConfig().Load,
		ensureIndexes: ensureIndexes,
		now:           func() time.Time { return time.Date(2017, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	return l, &out, logs, dir
}

func TestRun(t *testing.T) {
	l, out, logs, dir := newTestLoad(t, false)
	coll := &fakeCollection{}

	require.NoError(t, l.run(context.Background(), coll, dir))

	require.Equal(t, 2, coll.docs)
	require.Zero(t, coll.indexes)
	require.Equal(t, "Load starting 2017-05-01 12:00:00.000000\n"+
		"Load finished 2017-05-01 12:00:00.000000: 2 documents from 1 files (1 invalid dates)\n", out.String())
	require.Zero(t, logs.FilterMessage("index ready").Len())
}

func TestRunEnsuresIndexes(t *testing.T) {
	l, _, logs, dir := newTestLoad(t, true)
	coll := &fakeCollection{}

	require.NoError(t, l.run(context.Background(), coll, dir))
	require.Equal(t, 1, coll.indexes)
	require.Equal(t, 1, logs.FilterMessage("index ready").Len())
}

func TestRunIndexFailure(t *testing.T) {
	l, _, _, dir := newTestLoad(t, true)
	coll := &fakeCollection{indexErr: errors.New("not primary")}

	err := l.run(context.Background(), coll, dir)
	require.EqualError(t, err, "failed to create index: not primary")
}

func TestLoadCommand(t *testing.T) {
	t.Run("requires_a_folder", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		cmd := NewLoadCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{})

		require.ErrorContains(t, cmd.Execute(), "accepts 1 arg(s), received 0")
	})

	t.Run("missing_folder_fails_before_connecting", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		cmd := NewLoadCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing")})

		require.ErrorContains(t, cmd.Execute(), "invalid or not found path for folder containing MOT documents to import")
	})

	t.Run("invalid_batch_size", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		cmd := NewLoadCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--batch-size", "0", t.TempDir()})

		require.EqualError(t, cmd.Execute(), "config 'load.batchSize' (0) must be greater than zero")
	})
}
