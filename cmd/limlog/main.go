package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"limlog/internal/api"
	"limlog/internal/config"
	"limlog/internal/engine"
	"limlog/internal/glimmon"
	"limlog/internal/ingest"
	"limlog/internal/logging"
	"limlog/internal/metadata"
	"limlog/internal/metrics"
	"limlog/internal/rejects"
	"limlog/internal/report"
	"limlog/internal/storage"
	"limlog/internal/timeconv"
)

// Version is set during build.
var Version = "dev"

const usage = `usage:
  limlog aggregate [-config file] [-format table|json|yaml|msgpack] [-o out] [-save] file...
  limlog serve -config file
  limlog limits [-format yaml|json] file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "aggregate":
		err = runAggregate(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "limits":
		err = runLimits(os.Args[2:])
	case "version":
		fmt.Println(Version)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "limlog: %v\n", err)
		os.Exit(1)
	}
}

func runAggregate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (yaml or json)")
	format := fs.String("format", report.FormatTable, "output format: table, json, yaml or msgpack")
	outPath := fs.String("o", "", "write the report to this file instead of stdout")
	save := fs.Bool("save", false, "persist the run to the configured storage")
	_ = fs.Parse(args)

	cfg, err := config.LoadOrDefault(config.ResolvePath(*configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewLogger(cfg.LogLevel, os.Stderr)

	var store storage.Store
	if *save || cfg.Metadata.Source == config.MetadataStorage {
		if !cfg.Storage.Enabled {
			return errors.New("storage.enabled is false in the config")
		}
		store, err = openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	meta, err := buildMetadata(cfg, store, logger)
	if err != nil {
		return err
	}
	pass := engine.NewPass(cfg, meta, timeconv.Greta{}, logger)

	files := fs.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}
	// A failed file stops the pass; the records built so far are still reported.
	var runErr error
	for _, path := range files {
		if runErr = aggregateFile(ctx, pass, path); runErr != nil {
			break
		}
	}

	run := pass.Finish(uuid.New().String(), strings.Join(files, ","))
	logger.Info("aggregation finished",
		"run_id", run.ID,
		"lines", run.Stats.Lines,
		"signals", run.Stats.Signals,
		"skipped", run.Stats.Skipped,
		"malformed", run.Stats.Malformed,
	)
	if runErr != nil {
		logger.Warn("aggregation stopped early, reporting partial run", "err", runErr)
	}
	if *save && runErr == nil {
		if err := store.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		logger.Info("run saved", "run_id", run.ID)
	}

	var out io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return errors.Join(runErr, err)
		}
		defer f.Close()
		out = f
	}
	if err := report.Render(out, *format, report.NewDocument(run)); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func aggregateFile(ctx context.Context, pass *engine.Pass, path string) error {
	if path == "-" {
		return pass.Run(ctx, os.Stdin, "stdin")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := pass.Run(ctx, f, path); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "limlog.yaml", "path to config file (yaml or json)")
	_ = fs.Parse(args)

	manager, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel, os.Stderr)

	var store storage.Store
	if cfg.Storage.Enabled {
		store, err = openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	meta, err := buildMetadata(cfg, store, logger)
	if err != nil {
		return err
	}

	metricsStore := metrics.NewStore()
	rejectsStore := rejects.NewStore(cfg.Rejects.StoreLimit)
	eng := engine.NewEngine(cfg, logger, meta, metricsStore, rejectsStore)

	lines := make(chan ingest.Line, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, lines)
	ingest.StartFileTail(ctx, cfg.Ingest.FileTail, lines, logger)
	if _, err := ingest.StartTCPStream(ctx, cfg.Ingest.TCPStream, lines, logger); err != nil {
		return err
	}
	ingest.StartKafka(ctx, cfg.Ingest.Kafka, lines, logger)

	deps := api.Dependencies{
		Config:   manager,
		Engine:   eng,
		Metadata: meta,
		Metrics:  metricsStore,
		Rejects:  rejectsStore,
		Logger:   logger,
		Version:  Version,
	}
	if store != nil {
		deps.Runs = store
	}
	api.Start(ctx, deps)

	go manager.Watch(ctx, 3*time.Second, func(next *config.Config) {
		eng.UpdateConfig(next)
		logger.Info("config reloaded", "path", manager.Path())
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	})

	logger.Info("limlog serving", "version", Version, "config", manager.Path())
	<-ctx.Done()

	if store != nil {
		run := eng.Checkpoint("serve")
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.SaveRun(saveCtx, run); err != nil {
			logger.Error("save run failed", "run_id", run.ID, "err", err)
			return err
		}
		logger.Info("run saved", "run_id", run.ID, "signals", run.Stats.Signals)
	}
	return nil
}

func runLimits(args []string) error {
	fs := flag.NewFlagSet("limits", flag.ExitOnError)
	format := fs.String("format", "yaml", "output format: yaml or json")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("limits takes exactly one file")
	}
	spec, err := glimmon.ParseFile(fs.Arg(0))
	if err != nil {
		return err
	}
	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(spec)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(spec); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q", *format)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

func buildMetadata(cfg *config.Config, store storage.Store, logger *slog.Logger) (engine.MetadataSource, error) {
	var backend metadata.Resolver
	switch cfg.Metadata.Source {
	case config.MetadataFile:
		table, err := metadata.LoadTable(cfg.Metadata.File)
		if err != nil {
			return nil, fmt.Errorf("load metadata: %w", err)
		}
		backend = table
	case config.MetadataStorage:
		if store == nil {
			return nil, errors.New("metadata.source storage needs storage enabled")
		}
		backend = storage.MetadataResolver(store)
	default:
		return metadata.NewSafe(nil, logger), nil
	}
	cached, err := metadata.NewCached(backend, cfg.Metadata.CacheSize)
	if err != nil {
		return nil, err
	}
	return metadata.NewSafe(cached, logger), nil
}
