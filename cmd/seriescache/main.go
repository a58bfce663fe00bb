package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"seriescache/internal/app"
	"seriescache/internal/config"
	"seriescache/internal/logging"
	"seriescache/internal/market"
	"seriescache/internal/metrics"
	"seriescache/internal/seriescache"

	"go.uber.org/zap"
)

const usage = `usage: seriescache [-config path] <command> [flags]

commands:
  run      refresh, stream and serve the cache until interrupted
  show     print one cached series and its staleness
  export   write one series or the whole cache
  import   load a series or an array of series
  delete   remove one series
  clear    remove every series
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional .env file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envPath, err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "run" {
		err = runServer(ctx, cfg, log)
	} else {
		err = runAdmin(ctx, cfg, log, cmd, args)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("command failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	log.Info("app initialized", zap.Int("series", len(cfg.Series)))
	return application.Run(ctx)
}

func runAdmin(ctx context.Context, cfg *config.Config, log *zap.Logger, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	symbol := fs.String("symbol", "", "series symbol")
	interval := fs.String("interval", "", "series interval")
	formatName := fs.String("format", "json", "transfer format: json or msgpack")
	in := fs.String("in", "", "import file (default stdin)")
	out := fs.String("out", "", "export file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key := market.NewKey(*symbol, *interval)
	format, err := seriescache.ParseFormat(*formatName)
	if err != nil {
		return err
	}

	cache := app.NewCache(cfg, log, metrics.NewNoop())
	if err := cache.Initialize(ctx); err != nil {
		return err
	}
	defer cache.Close()

	switch cmd {
	case "show":
		if !key.Valid() {
			return errors.New("show requires -symbol and -interval")
		}
		entry := cache.Get(ctx, key)
		if entry == nil {
			return fmt.Errorf("%w: %s", seriescache.ErrNotFound, key)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*seriescache.Entry
			Stale bool `json:"stale"`
		}{entry, cache.IsStale(entry)})
	case "export":
		var payload []byte
		if *symbol == "" && *interval == "" {
			payload, err = cache.ExportAll(ctx, format)
		} else if key.Valid() {
			payload, err = cache.ExportEntry(ctx, key, format)
		} else {
			return errors.New("export needs both -symbol and -interval, or neither")
		}
		if err != nil {
			return err
		}
		return writeOutput(*out, payload)
	case "import":
		payload, err := readInput(*in)
		if err != nil {
			return err
		}
		entries, err := cache.Import(ctx, payload, format)
		if err != nil {
			return err
		}
		for _, e := range entries {
			log.Info("imported series", zap.String("key", e.Key().String()), zap.Int("candles", len(e.Candles)))
		}
		return nil
	case "delete":
		if !key.Valid() {
			return errors.New("delete requires -symbol and -interval")
		}
		cache.Delete(ctx, key)
		log.Info("series deleted", zap.String("key", key.String()))
		return nil
	case "clear":
		cache.Clear(ctx)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, payload []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(payload)
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
