// Package main provides the nbpress binary: publish notebooks to a
// repository through the contents API, from the command line or over HTTP.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nbpress/internal/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "nbpress"
)

// errPartialFailure ends the process with exit code 1 after the outcome
// message has already been printed.
var errPartialFailure = errors.New("publish partially failed")

func main() {
	if err := rootCmd().Execute(); err != nil {
		if !errors.Is(err, errPartialFailure) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	mirrorDir  string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Publish Jupyter notebooks to a repository",
		Long: `nbpress publishes notebooks through the repository contents API.

A blog post is written to {blog_dir}/{PostId}.ipynb in the configured blog
repository. An ebook chapter names its repository and file with GithubUrl and
FileName lines in its first markdown cell. Large notebooks are split into
chunks written side by side.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("NBPRESS_CONFIG"), "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.mirrorDir, "mirror", "", "Publish into local git repositories under this directory")

	cmd.AddCommand(
		publishCmd(flags, "blog"),
		publishCmd(flags, "ebook"),
		loginCmd(flags),
		logoutCmd(flags),
		repoCmd(flags),
		historyCmd(flags),
		searchCmd(flags),
		reindexCmd(flags),
		archiveCmd(flags),
		serveCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

// load reads the configuration and installs the default logger.
func (f *globalFlags) load() (config.Config, *slog.Logger, error) {
	cfg := config.Load()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(f.configPath); err != nil {
			return config.Config{}, nil, err
		}
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.mirrorDir != "" {
		cfg.MirrorDir = f.mirrorDir
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
