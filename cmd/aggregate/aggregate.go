// Package aggregate contains the command that runs an aggregation pipeline against the MOT collection.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/pkdone/mongo-uk-car-data/cmd/util"
	"github.com/pkdone/mongo-uk-car-data/pkg/config"
	"github.com/pkdone/mongo-uk-car-data/pkg/facet"
	"github.com/pkdone/mongo-uk-car-data/pkg/logger"
	"github.com/pkdone/mongo-uk-car-data/pkg/pipelines"
	"github.com/pkdone/mongo-uk-car-data/pkg/storage/mongodb"
	"github.com/pkdone/mongo-uk-car-data/pkg/storage/storagewrappers"
)

const (
	pipelineFlag      = "pipeline"
	fileFlag          = "file"
	sequentialFlag    = "sequential"
	cancelOnErrorFlag = "cancel-on-error"

	timestampLayout = "2006-01-02 15:04:05.000000"
)

// Execution modes printed before the result.
const (
	modeParallel = "PARALLEL"
	modeSerial   = "SERIAL"
	modeSingle   = "SINGLE"
)

func NewAggregateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Run an aggregation pipeline against the MOT test results",
		Long: `Run an aggregation pipeline against the MOT test results and print the pipeline and its output.

A pipeline made of a single "$facet" stage is split into one aggregation per facet, which run
concurrently; their outputs are merged into the document a server side "$facet" would return.
Any other pipeline is sent to the server unchanged.`,
		RunE: runAggregate,
		Args: cobra.NoArgs,
	}

	defaultConfig := config.DefaultConfig()
	flags := cmd.Flags()

	flags.String(pipelineFlag, pipelines.CarsFacetsName, fmt.Sprintf("the built-in pipeline to run (one of %v)", pipelines.Names()))
	flags.String(fileFlag, "", "the path of a JSON or YAML file holding the pipeline as an Extended JSON array of stages")
	flags.Bool(sequentialFlag, defaultConfig.Aggregate.Sequential, "send a \"$facet\" pipeline to the server as a single aggregation")
	flags.Bool(cancelOnErrorFlag, defaultConfig.Aggregate.CancelOnError, "cancel the remaining facets as soon as one of them fails")

	cmd.MarkFlagsMutuallyExclusive(pipelineFlag, fileFlag)

	util.AddCommonFlags(flags)

	// NOTE: if you add a new flag here, update the function below, too

	cmd.PreRun = bindRunFlagsFunc(flags)

	return cmd
}

func bindRunFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	bindCommon := util.BindCommonFlagsFunc(flags)

	return func(command *cobra.Command, args []string) {
		bindCommon(command, args)

		util.MustBindPFlag("aggregate.sequential", flags.Lookup(sequentialFlag))
		util.MustBindEnv("aggregate.sequential", "MOTAGG_AGGREGATE_SEQUENTIAL")

		util.MustBindPFlag("aggregate.cancelOnError", flags.Lookup(cancelOnErrorFlag))
		util.MustBindEnv("aggregate.cancelOnError", "MOTAGG_AGGREGATE_CANCEL_ON_ERROR")
	}
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfg, err := util.ReadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Verify(); err != nil {
		return err
	}

	flags := cmd.Flags()
	name, _ := flags.GetString(pipelineFlag)
	file, _ := flags.GetString(fileFlag)

	name, pipeline, err := resolvePipeline(name, file)
	if err != nil {
		return err
	}

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
		mongodb.WithAllowDiskUse(cfg.MongoDB.AllowDiskUse),
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

	var collection facet.Engine = ds.Collection(cfg.MongoDB.Database, cfg.MongoDB.Collection)
	if cfg.MongoDB.MaxConcurrentAggregates > 0 {
		collection = storagewrappers.NewBoundedConcurrencyEngine(collection, cfg.MongoDB.MaxConcurrentAggregates)
	}
	engine := storagewrappers.NewInstrumentedEngine(collection)

	a := newAggregator(cmd.OutOrStdout(), rt.Logger, cfg.Aggregate)
	if err := a.run(ctx, engine, name, pipeline); err != nil {
		return err
	}

	m := engine.GetMetrics()
	rt.Logger.InfoWithContext(ctx, "engine usage",
		zap.Uint32("aggregate_calls", m.AggregateCount),
		zap.Uint64("documents", m.DocumentCount),
	)

	return nil
}

// resolvePipeline returns the pipeline stored in file, or else the built-in pipeline called name.
func resolvePipeline(name, file string) (string, mongo.Pipeline, error) {
	if file != "" {
		pipeline, err := pipelines.LoadFile(file)
		if err != nil {
			return "", nil, err
		}
		return file, pipeline, nil
	}

	pipeline, ok := pipelines.Lookup(name)
	if !ok {
		return "", nil, fmt.Errorf("unknown pipeline '%s' (must be one of %v)", name, pipelines.Names())
	}
	return name, pipeline, nil
}

type aggregator struct {
	out    io.Writer
	logger logger.Logger
	cfg    config.AggregateConfig
	now    func() time.Time
}

func newAggregator(out io.Writer, log logger.Logger, cfg config.AggregateConfig) *aggregator {
	return &aggregator{out: out, logger: log, cfg: cfg, now: time.Now}
}

// run prints pipeline, executes it against engine and prints its output. A single $facet stage
// is fanned out per facet unless the sequential mode is configured.
func (a *aggregator) run(ctx context.Context, engine facet.Engine, name string, pipeline mongo.Pipeline) error {
	fmt.Fprint(a.out, "Aggregation pipeline to be executed:\n\n")
	if err := writeDocuments(a.out, pipeline); err != nil {
		return err
	}

	mode := modeParallel
	if _, err := facet.Validate(pipeline); err != nil {
		a.logger.DebugWithContext(ctx, "pipeline is not a parallel facet plan, running it as is",
			zap.String("pipeline", name),
			zap.Error(err),
		)
		mode = modeSingle
	} else if a.cfg.Sequential {
		mode = modeSerial
	}

	start := a.now()
	fmt.Fprintf(a.out, "\nAggregation starting %s\n(%s)\n\n", start.Format(timestampLayout), mode)

	docs, err := a.execute(ctx, engine, mode, pipeline)
	if err != nil {
		a.logger.ErrorWithContext(ctx, "aggregation failed", zap.String("pipeline", name), zap.Error(err))

		var engineErr *facet.EngineError
		if errors.As(err, &engineErr) {
			return fmt.Errorf("pipeline '%s' failed in facet '%s': %w", name, engineErr.Facet, engineErr.Err)
		}
		return fmt.Errorf("pipeline '%s' failed: %w", name, err)
	}

	if err := writeDocuments(a.out, docs); err != nil {
		return err
	}

	finish := a.now()
	fmt.Fprintf(a.out, "\nAggregation finished %s\n", finish.Format(timestampLayout))

	a.logger.InfoWithContext(ctx, "aggregation finished",
		zap.String("pipeline", name),
		zap.String("mode", mode),
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", finish.Sub(start)),
	)

	return nil
}

func (a *aggregator) execute(ctx context.Context, engine facet.Engine, mode string, pipeline mongo.Pipeline) ([]bson.D, error) {
	var (
		envelope facet.Envelope
		err      error
	)

	switch mode {
	case modeSingle:
		return engine.Aggregate(ctx, pipeline)
	case modeSerial:
		envelope, err = facet.AggregateSequential(ctx, engine, pipeline)
	default:
		envelope, err = facet.AggregateInParallel(ctx, engine, pipeline,
			facet.WithLogger(a.logger),
			facet.WithCancelOnError(a.cfg.CancelOnError),
		)
	}
	if err != nil {
		return nil, err
	}

	docs := make([]bson.D, 0, len(envelope))
	for _, results := range envelope {
		docs = append(docs, results.Document())
	}
	return docs, nil
}

// writeDocuments prints docs as an indented relaxed Extended JSON array.
func writeDocuments(w io.Writer, docs []bson.D) error {
	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}

	if _, err := fmt.Fprintln(w, "["); err != nil {
		return err
	}
	for i, doc := range docs {
		b, err := bson.MarshalExtJSONIndent(doc, false, false, "  ", "  ")
		if err != nil {
			return fmt.Errorf("failed to print document %d: %w", i, err)
		}

		sep := ","
		if i == len(docs)-1 {
			sep = ""
		}
		if _, err := fmt.Fprintf(w, "  %s%s\n", b, sep); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "]")
	return err
}
