package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/metagraph/internal/config"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/tracing"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config

	// Set by loadConfig, released by shutdown.
	tracer     *tracing.Provider
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "metagraph",
	Short: "Incremental metadata for workspace artifacts",
	Long: `metagraph computes metadata for the artifacts named in a manifest, tracks
which files and artifacts each one depends on, and recomputes only what a
change actually affects.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	// Assigned here rather than in the literal: loadConfig refers to rootCmd.
	rootCmd.PersistentPreRunE = loadConfig
	rootCmd.PersistentPostRunE = shutdown

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .metagraph/config.yaml or ~/.config/metagraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (also METAGRAPH_DEBUG=1)")
	rootCmd.PersistentFlags().StringP("manifest", "m", "",
		"artifact manifest, relative to the workspace root (default: metagraph.yaml)")
	rootCmd.PersistentFlags().StringP("root", "r", "",
		"workspace root (default: current directory)")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	_ = v.BindPFlag("manifest", rootCmd.PersistentFlags().Lookup("manifest"))
	_ = v.BindPFlag("watcher.root", rootCmd.PersistentFlags().Lookup("root"))

	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	if debugFlag || os.Getenv("METAGRAPH_DEBUG") != "" {
		cleanup, err := log.Init(cfg.Log.Path)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		log.SetMinLevel(level)
		log.Info(log.CatConfig, "metagraph starting", "command", cmd.Name(), "version", version)
	}

	provider, err := tracing.NewProvider(cfg.Tracing.ProviderConfig())
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	tracer = provider
	return nil
}

func shutdown(_ *cobra.Command, _ []string) error {
	var err error
	if tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = tracer.Shutdown(ctx)
		tracer = nil
	}
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return err
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
