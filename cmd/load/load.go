// Package load contains the command that bulk loads the MOT test result files into MongoDB.
package load

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pkdone/mongo-uk-car-data/cmd/util"
	"github.com/pkdone/mongo-uk-car-data/pkg/config"
	"github.com/pkdone/mongo-uk-car-data/pkg/loader"
	"github.com/pkdone/mongo-uk-car-data/pkg/logger"
	"github.com/pkdone/mongo-uk-car-data/pkg/storage/mongodb"
)

const (
	batchSizeFlag     = "batch-size"
	concurrencyFlag   = "concurrency"
	ensureIndexesFlag = "ensure-indexes"

	timestampLayout = "2006-01-02 15:04:05.000000"
)

func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load DIR",
		Short: "Load the MOT test result files of a folder into MongoDB",
		Long: `Load every "test_result_*.txt" file of DIR into the MOT collection.

The files are the '|' delimited test result exports published by the DVSA. The MOT year of each
document is taken from the first four digit run in the file name.`,
		RunE: runLoad,
		Args: cobra.ExactArgs(1),
	}

	defaultConfig := config.DefaultConfig()
	flags := cmd.Flags()

	flags.Int(batchSizeFlag, defaultConfig.Load.BatchSize, "the number of documents sent to the server in one insert")
	flags.Int(concurrencyFlag, defaultConfig.Load.Concurrency, "the number of files loaded concurrently")
	flags.Bool(ensureIndexesFlag, false, "create the index the example pipelines rely on once the data is loaded")

	util.AddCommonFlags(flags)

	// NOTE: if you add a new flag here, update the function below, too

	cmd.PreRun = bindRunFlagsFunc(flags)

	return cmd
}

func bindRunFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	bindCommon := util.BindCommonFlagsFunc(flags)

	return func(command *cobra.Command, args []string) {
		bindCommon(command, args)

		util.MustBindPFlag("load.batchSize", flags.Lookup(batchSizeFlag))
		util.MustBindEnv("load.batchSize", "MOTAGG_LOAD_BATCH_SIZE")

		util.MustBindPFlag("load.concurrency", flags.Lookup(concurrencyFlag))
		util.MustBindEnv("load.concurrency", "MOTAGG_LOAD_CONCURRENCY")
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	dir := args[0]

	cfg, err := util.ReadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Verify(); err != nil {
		return err
	}

	// fail on a bad folder before dialing the server
	if _, err := loader.FindFiles(dir); err != nil {
		return err
	}

	ensureIndexes, _ := cmd.Flags().GetBool(ensureIndexesFlag)

	rt, err := util.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
		defer cancel()
		if err := rt.Close(ctx); err != nil {
			rt.Logger.Warn("failed to shutdown cleanly", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logger.ContextWithInvocationID(ctx, ulid.Make().String())

	ds, err := mongodb.Connect(ctx, cfg.MongoDB.URI,
		mongodb.WithLogger(rt.Logger),
		mongodb.WithConnectTimeout(cfg.MongoDB.ConnectTimeout),
		mongodb.WithMaxPoolSize(cfg.MongoDB.MaxPoolSize),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(context.Background()); err != nil {
			rt.Logger.Warn("failed to disconnect from mongodb", zap.Error(err))
		}
	}()

	coll := ds.Collection(cfg.MongoDB.Database, cfg.MongoDB.Collection)

	l := &load{
		out:           cmd.OutOrStdout(),
		logger:        rt.Logger,
		cfg:           cfg.Load,
		ensureIndexes: ensureIndexes,
		now:           time.Now,
	}
	return l.run(ctx, coll, dir)
}

// collection is the part of *mongodb.Collection the load command needs.
type collection interface {
	loader.Writer
	EnsureIndexes(ctx context.Context) (string, error)
}

type load struct {
	out           io.Writer
	logger        logger.Logger
	cfg           config.LoadConfig
	ensureIndexes bool
	now           func() time.Time
}

func (l *load) run(ctx context.Context, coll collection, dir string) error {
	fmt.Fprintf(l.out, "Load starting %s\n", l.now().Format(timestampLayout))

	ldr := loader.New(coll,
		loader.WithLogger(l.logger),
		loader.WithBatchSize(l.cfg.BatchSize),
		loader.WithConcurrency(l.cfg.Concurrency),
	)

	stats, err := ldr.LoadDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("load failed after %d documents: %w", stats.Documents, err)
	}

	if l.ensureIndexes {
		name, err := coll.EnsureIndexes(ctx)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		l.logger.InfoWithContext(ctx, "index ready", zap.String("index", name))
	}

	fmt.Fprintf(l.out, "Load finished %s: %d documents from %d files (%d invalid dates)\n",
		l.now().Format(timestampLayout), stats.Documents, stats.Files, stats.InvalidDates)

	return nil
}
