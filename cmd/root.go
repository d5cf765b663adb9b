// Package cmd provides the kmt command line: the HTTP server plus one-shot
// topic, consumer group, send and listen commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/OliveiraNt/kmt/internal/application"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/infrastructure/kafka"
	"github.com/OliveiraNt/kmt/internal/infrastructure/repository"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// rootOptions carries the persistent flags and the broker plumbing.
type rootOptions struct {
	configPath string
	logLevel   string

	factory domain.ClientFactory
	prober  domain.Prober
}

// Execute runs the root command.
func Execute() {
	root := newRootCmd(&rootOptions{factory: kafka.NewFactory(), prober: kafka.NewProber()})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kmt",
		Short: "Kafka message tool: manage topics, inspect consumer groups, send and listen",
		Long: `kmt talks to the Kafka brokers declared in its YAML configuration.
Run "kmt serve" for the HTTP API and live event stream, or use the one-shot commands.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.logLevel != "" {
				utils.SetLogLevel(opts.logLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the configuration file (default: $KMT_CONFIG or the first config.yml found)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newTopicCmd(opts),
		newGroupCmd(opts),
		newSendCmd(opts),
		newListenCmd(opts),
	)
	return rootCmd
}

// app is a loaded configuration with a coordinator on top of it.
type app struct {
	repo  *repository.ConfigRepository
	coord *application.Coordinator
}

// bootstrap loads the configuration and builds the coordinator. A config
// file that fails to load is reported but leaves an empty store usable.
func (o *rootOptions) bootstrap() *app {
	path := o.configPath
	if path == "" {
		path = os.Getenv("KMT_CONFIG")
	}
	if path == "" {
		path = findConfigPath()
	}

	repo := repository.NewConfigRepository(path)
	if err := repo.LoadFromFile(); err != nil {
		utils.Logger.Warn("failed to load config file", "path", path, "err", err)
	} else {
		utils.Logger.Debug("configuration loaded", "path", path)
	}

	coord := application.New(repo, repo.Settings(), o.factory, o.prober)
	repo.OnChange(coord.OnConfigChange)
	return &app{repo: repo, coord: coord}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.coord.Close(ctx); err != nil {
		utils.Logger.Warn("coordinator shutdown incomplete", "err", err)
	}
	if err := a.repo.Close(); err != nil {
		utils.Logger.Warn("config watcher close failed", "err", err)
	}
}
