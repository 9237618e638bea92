package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/marknest/internal"
	"github.com/starford/marknest/internal/mcpserver"
	"github.com/starford/marknest/internal/tree"
	pkgconfig "github.com/starford/marknest/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// openCore opens the stores for one-shot commands. Logs go to stderr so
// stdout carries only command output.
func openCore(cmd *cli.Command) (*internal.Core, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open([]internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	})
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	user, err := core.DB.UserByID(ctx, cmd.String("user"))
	if err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	core.Logger.Info("MCP server starting", slog.String("user", user.Username))
	return mcpserver.New(core.Files, user.ID, version).ServeStdio()
}

func reconcile(ctx context.Context, cmd *cli.Command) error {
	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	var res any
	if id := cmd.String("user"); id != "" {
		res, err = core.Files.Reconcile(ctx, id)
	} else {
		res, err = core.ReconcileAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func printTree(ctx context.Context, cmd *cli.Command) error {
	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	user, err := core.DB.UserByID(ctx, cmd.String("user"))
	if err != nil {
		return fmt.Errorf("tree: %w", err)
	}
	nodes, err := core.Files.GetTree(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("tree: %w", err)
	}
	fmt.Print(tree.Render(user.Username, nodes))
	return nil
}

func main() {
	userFlag := func(required bool) *cli.StringFlag {
		return &cli.StringFlag{
			Name:     "user",
			Aliases:  []string{"u"},
			Usage:    "User id",
			Required: required,
		}
	}

	cmd := &cli.Command{
		Name:    "marknest",
		Usage:   "Multi-user Markdown notes with per-user file trees and a public feed",
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
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve one user's notes to an MCP client over stdio",
				Flags:  []cli.Flag{userFlag(true)},
				Action: serveMCP,
			},
			{
				Name:   "reconcile",
				Usage:  "Resync file metadata from disk for one user or all users",
				Flags:  []cli.Flag{userFlag(false)},
				Action: reconcile,
			},
			{
				Name:   "tree",
				Usage:  "Print a user's file tree",
				Flags:  []cli.Flag{userFlag(true)},
				Action: printTree,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
