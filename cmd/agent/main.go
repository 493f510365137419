package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"
	"github.com/waqasmani/hris-autoclock/internal/app"
	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
)

type options struct {
	envFile     string
	credentials string
	once        bool
	version     bool
	help        bool
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("hris-autoclock", pflag.ContinueOnError)
	flagSet.StringVar(&opts.envFile, "env-file", ".env", "dotenv file merged into the environment (missing file is ignored)")
	flagSet.StringVar(&opts.credentials, "credentials", "", "credentials file, overrides CREDENTIALS_PATH")
	flagSet.BoolVar(&opts.once, "once", false, "run a single poll cycle and exit")
	flagSet.BoolVar(&opts.version, "version", false, "print the version and exit")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, flagSet, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, flagSet, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `hris-autoclock clocks employees out of the HRIS at a random time inside
a daily window. Configuration comes from the environment (and --env-file);
API_URL, TIME_WINDOW_START and TIME_WINDOW_END are required.

Usage:
  hris-autoclock [flags]

Flags:
%s`, flagSet.FlagUsages())
}

func main() {
	opts, flagSet, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return
		}
		printHelp(flagSet)
		log.Fatalf("Invalid arguments: %v", err)
	}
	if opts.help {
		printHelp(flagSet)
		return
	}
	if opts.version {
		fmt.Println(app.Version)
		return
	}

	if opts.credentials != "" {
		os.Setenv("CREDENTIALS_PATH", opts.credentials)
	}

	// Configuration is validated before any resource is opened.
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("Failed to sync logger: %v", err)
		}
	}()

	container, err := app.NewContainer(cfg, logger)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	server := app.NewServer(container)

	if opts.once {
		if err := server.RunOnce(context.Background()); err != nil {
			log.Fatalf("Poll cycle failed: %v", err)
		}
		return
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Agent error: %v", err)
	}
}
