// tradexd is the TradeX supervision daemon: it launches the configured
// programs (dashboard, webhook receiver, email reader), restarts them
// according to policy and serves the control API used by tradexctl.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/kelseyhightower/envconfig"

	"github.com/tradex-ops/tradexd/pkg/daemon"
	"github.com/tradex-ops/tradexd/pkg/logging"
)

// options are filled in three layers: built-in defaults, TRADEX_*
// environment variables, then command-line flags.
type options struct {
	Config      string `long:"config" short:"c" description:"Path to the tradexd configuration file" envconfig:"CONFIG"`
	LogLevel    string `long:"log-level" description:"Log level (debug, info, warn, error)" envconfig:"LOG_LEVEL"`
	Watch       bool   `long:"watch" description:"Reload the configuration automatically when the file changes" envconfig:"WATCH"`
	NoPreflight bool   `long:"no-preflight" description:"Skip startup diagnostics" envconfig:"NO_PREFLIGHT"`
	Development bool   `long:"dev" description:"Human-readable development logging" envconfig:"DEV"`
}

func main() {
	opts := options{
		Config:   "/etc/tradex/tradexd.yaml",
		LogLevel: "info",
	}

	if err := envconfig.Process("tradex", &opts); err != nil {
		fmt.Fprintf(os.Stderr, "tradexd: invalid environment: %v\n", err)
		os.Exit(1)
	}

	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	sugar, logFuncs, err := logging.NewZapBackend(logging.ZapConfig{
		Level:       opts.LogLevel,
		Development: opts.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tradexd: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer sugar.Sync()

	logger := logging.NewLogger("tradexd: ", logFuncs)
	logger.Infof("Starting tradexd, config: %s", opts.Config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOptions := daemon.Options{
		ConfigPath:    opts.Config,
		WatchConfig:   opts.Watch,
		SkipPreflight: opts.NoPreflight,
	}
	if err := daemon.Run(ctx, runOptions, sugar.Desugar(), logger); err != nil {
		logger.Errorf("Daemon exited with error: %v", err)
		os.Exit(1)
	}
}
