// Command flatdb inspects and modifies flatdb collections from the shell.
//
// Settings come from an optional YAML config file; flags given on the
// command line take precedence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreyvit/flatdb"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(os.Args[1:], os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "flatdb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl(argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("flatdb", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	dataDir := fs.String("data-dir", "", "data directory, .bolt file or s3://bucket/prefix")
	format := fs.String("format", "", "file format: json, zst or binary")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: flatdb [flags] <command> [args]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output())
		printCommands(fs.Output())
	}
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}
	cmd := findCommand(fs.Arg(0))
	if cmd == nil {
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if set["data-dir"] {
		cfg.DataDir = *dataDir
	}
	if set["format"] {
		cfg.Format = *format
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(level)
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	adapter, err := openAdapter(ctx, &cfg)
	if err != nil {
		return err
	}
	opt := flatdb.Options{
		Logf:      storeLogf(ctx, slog.LevelDebug),
		Verbose:   level <= slog.LevelDebug,
		Validator: cfg.validator(),
	}
	if cmd.watch {
		opt.Logf = storeLogf(ctx, slog.LevelInfo)
		opt.Verbose = true
	}
	store := flatdb.Open(adapter, opt)
	defer store.Close()

	return cmd.run(ctx, &env{cfg: cfg, store: store, out: stdout}, fs.Args()[1:])
}
