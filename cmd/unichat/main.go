package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/lrhodin/unichat/pkg/engine"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyLogger
)

func getConfig(ctx *cli.Context) *engine.Config {
	return ctx.Context.Value(contextKeyConfig).(*engine.Config)
}

func getLogger(ctx *cli.Context) zerolog.Logger {
	return ctx.Context.Value(contextKeyLogger).(zerolog.Logger)
}

func prepareApp(ctx *cli.Context) error {
	cfg, err := engine.LoadConfig(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if db := ctx.String("db"); db != "" {
		cfg.DatabasePath = db
	}

	level := zerolog.InfoLevel
	if ctx.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}).
		With().Timestamp().Logger().Level(level)

	newCtx := context.WithValue(ctx.Context, contextKeyConfig, &cfg)
	newCtx = context.WithValue(newCtx, contextKeyLogger, log)
	ctx.Context = newCtx
	return nil
}

func main() {
	app := &cli.App{
		Name:    "unichat",
		Usage:   "Unified conversation list over multi-channel message stores",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to config file",
				Value: "unichat.yaml",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the sqlite database (overrides config)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			listCommand,
			watchCommand,
			importCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
