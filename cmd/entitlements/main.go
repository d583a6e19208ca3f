// Command entitlements administers the entitlement engine: it applies the
// schema and seed data, inspects usage and records consumption by hand.
//
//	entitlements migrate
//	entitlements seed -file seed.yaml
//	entitlements summary -org <uuid> -plan pro
//	entitlements consume -org <uuid> -plan pro -feature api_calls -amount 10
//	entitlements unconsume -org <uuid> -plan pro -feature api_calls -amount 10
//	entitlements history -org <uuid> -feature api_calls
//	entitlements override -org <uuid> -feature team_members -value 50 -expires 720h
//	entitlements allocate -org <uuid> -workspace <uuid> -feature connections_per_workspace -limit 20
//	entitlements health
//
// Configuration comes from the environment (see pg.Config, redis.Config,
// mongo.Config and entitlement.Config) and an optional .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"` // overrides the environment default when set
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"migrate", "apply database migrations", runMigrate},
	{"seed", "write features and plans from a seed file", runSeed},
	{"summary", "print the usage summary of an organization", runSummary},
	{"consume", "consume a feature quota", runConsume},
	{"unconsume", "release previously consumed quota", runUnconsume},
	{"history", "print recorded usage windows", runHistory},
	{"override", "set or remove an organization override", runOverride},
	{"allocate", "set or remove a workspace allocation", runAllocate},
	{"health", "check backend connectivity", runHealth},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := []logger.Option{
		logger.WithOutput(os.Stderr),
		logger.WithEnvironment(cfg.Environment, "entitlements"),
	}
	if cfg.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		opts = append(opts, logger.WithLevel(level))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, os.Args[1], os.Args[2:]); err != nil {
		log.ErrorContext(ctx, "command failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, name string, args []string) error {
	for _, c := range commands {
		if c.name != name {
			continue
		}

		a, err := newApp(ctx, log)
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		err = c.run(ctx, a, args)
		log.DebugContext(ctx, "command finished",
			slog.String("command", c.name),
			logger.Duration(time.Since(start)),
		)
		return err
	}

	usage()
	return fmt.Errorf("%w: %q", errUnknownCommand, name)
}

var errUnknownCommand = errors.New("unknown command")

func usage() {
	fmt.Fprintln(os.Stderr, "usage: entitlements <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.usage)
	}
}
