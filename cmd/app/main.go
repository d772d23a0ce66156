package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/contentgraph/internal"
	pkgconfig "github.com/starford/contentgraph/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func exportFallback(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if dir := cmd.String("dir"); dir != "" {
		cfg.Fallback.Dir = dir
	}
	n, err := internal.ExportFallback(ctx, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("export fallback: %w", err)
	}
	fmt.Fprintf(os.Stdout, "exported %d documents to %s\n", n, cfg.Fallback.Dir)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "contentgraph",
		Usage:   "Resolves, caches and serves linked content from a headless CMS",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve content tools over MCP on stdio",
				Action: serveMCP,
			},
			{
				Name:  "fallback",
				Usage: "Manage static fallback documents",
				Commands: []*cli.Command{
					{
						Name:   "export",
						Usage:  "Write stored snapshots into the fallback directory",
						Action: exportFallback,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "dir",
								Usage: "Override fallback.dir from the config",
							},
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
