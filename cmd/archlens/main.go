package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/archlens/archlens/internal"
	"github.com/archlens/archlens/internal/apperr"
	pkgconfig "github.com/archlens/archlens/pkg/config"
)

// DefaultConfigName is searched for upward from the working directory when
// no config path is given.
const DefaultConfigName = "archlens.json"

var version = "dev"

type runner func(ctx context.Context, opts ...internal.Option) error

// loadConfig resolves the config path from the positional argument, the
// --config flag or an upward search, in that order.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.Args().First()
	if configPath == "" {
		configPath = cmd.String("config")
	}
	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		found, err := pkgconfig.FindUpward(wd, DefaultConfigName)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrConfig, err)
		}
		configPath = found
	}

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Resolve(configPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

func action(fn runner) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}

		if err := fn(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:      "archlens",
		Usage:     "Incremental namespace dependency graphs for source trees",
		Version:   version,
		ArgsUsage: "[config]",
		Action:    action(internal.Run),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default: nearest " + DefaultConfigName + ")",
				Sources: cli.EnvVars("ARCHLENS_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "serve",
				Usage:     "Scan once, then serve the graph over HTTP",
				ArgsUsage: "[config]",
				Action:    action(internal.Serve),
			},
			{
				Name:      "mcp",
				Usage:     "Serve graph tools over MCP stdio",
				ArgsUsage: "[config]",
				Action:    action(internal.ServeMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
