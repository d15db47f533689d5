package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"supportdesk/internal/app"
	"supportdesk/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// options holds command-line overrides; zero values leave the config untouched
type options struct {
	configPath   string
	port         int
	databasePath string
	redisAddr    string
	help         bool
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	opts := &options{}

	flagSet := pflag.NewFlagSet("supportdesk", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to JSON config file (default: $SUPPORTDESK_CONFIG_FILE)")
	flagSet.IntVarP(&opts.port, "port", "p", 0, "HTTP port, overrides config")
	flagSet.StringVar(&opts.databasePath, "database", "", "SQLite database path, overrides config")
	flagSet.StringVar(&opts.redisAddr, "redis-addr", "", "enable the Redis state mirror at this address")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	if opts.configPath == "" {
		opts.configPath = os.Getenv("SUPPORTDESK_CONFIG_FILE")
	}
	return opts, flagSet, nil
}

// loadConfig resolves flags > file > environment > defaults
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.LoadConfigWithPrecedence(opts.configPath)

	if opts.port != 0 {
		cfg.HTTP.Port = opts.port
	}
	if opts.databasePath != "" {
		cfg.Database.Path = opts.databasePath
	}
	if opts.redisAddr != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = opts.redisAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(args []string) error {
	opts, flagSet, err := parseFlags(args)
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if opts.help {
		fmt.Fprintln(os.Stderr, "Usage: supportdesk [flags]")
		flagSet.PrintDefaults()
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	if err := application.Start(ctx); err != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = application.Stop(shutdownCtx)
		return fmt.Errorf("application error: %w", err)
	}

	sig := <-signalCh
	log.Printf("Received signal %v, shutting down gracefully", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
