package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/marginalia/internal"
	pkgconfig "github.com/starford/marginalia/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.Bool("debug") {
		cfg.App.Debug = true
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func syncOnce(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.SyncOnce(ctx, cmd.Bool("full"), opts...)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func status(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Status(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "marginalia",
		Usage:   "Mirror a remote highlights library into a Markdown vault",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml or .toml)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable verbose logging",
				Sources: cli.EnvVars("APP_DEBUG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Run one sync pass and exit",
				Action: syncOnce,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Ignore the checkpoint and refetch the whole library",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, vault watcher and scheduled sync",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Expose sync tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:   "status",
				Usage:  "Print the checkpoint and index counters",
				Action: status,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
