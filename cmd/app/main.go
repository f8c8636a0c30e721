package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/nbsync/internal"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/nbformat"
	pkgconfig "github.com/starford/nbsync/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func inspectRecovery(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: recover <location>")
	}
	loc, err := models.ParseLocation(cmd.Args().First())
	if err != nil {
		return err
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	hit, ok, err := internal.InspectRecovery(ctx, loc, opts...)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "no recovery record for %s\n", loc)
		return nil
	}
	fmt.Fprintf(os.Stderr, "recovery record for %s from tier %s\n", loc, hit.Tier)
	_, err = fmt.Fprintln(os.Stdout, hit.Contents)
	return err
}

func formatNotebook(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return fmt.Errorf("usage: fmt [--write] <file.ipynb>...")
	}
	for _, path := range cmd.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out, err := nbformat.Format(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if !cmd.Bool("write") {
			if _, err := os.Stdout.Write(out); err != nil {
				return err
			}
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "nbsync",
		Usage:   "Notebook document server with undo/redo, replica sync and crash recovery",
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
				Usage:  "Run the HTTP API, watcher and backup loop",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve notebook tools over MCP on stdio",
				Action: serveMCP,
			},
			{
				Name:      "recover",
				Usage:     "Print the recovery record a load of the location would use",
				ArgsUsage: "<location>",
				Action:    inspectRecovery,
			},
			{
				Name:      "fmt",
				Usage:     "Re-serialize notebook files in canonical form",
				ArgsUsage: "<file.ipynb>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "write", Aliases: []string{"w"}, Usage: "Rewrite files in place"},
				},
				Action: formatNotebook,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
