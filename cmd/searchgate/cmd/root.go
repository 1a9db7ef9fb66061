// Package cmd provides the CLI commands for searchgate.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchgate/internal/config"
	"github.com/Aman-CERP/searchgate/internal/errors"
	"github.com/Aman-CERP/searchgate/internal/logging"
	"github.com/Aman-CERP/searchgate/internal/profiling"
	"github.com/Aman-CERP/searchgate/pkg/version"
)

// globals holds state shared by every subcommand, filled in by the root
// command's pre-run hook.
type globals struct {
	configPath string
	debug      bool
	profile    profiling.Options

	cfg            *config.Config
	logger         *slog.Logger
	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the searchgate CLI.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "searchgate",
		Short: "Index and query named full-text indexes",
		Long: `searchgate applies write batches to named full-text indexes and answers
queries against them.

Writes arrive over HTTP (POST /index), from a Redis stream, or from the
'index' command. Queries arrive over HTTP (POST /query) or from the 'query'
command.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("searchgate version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to configuration file (default: searchgate.yaml in the working directory)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.searchgate/logs/")
	cmd.PersistentFlags().StringVar(&g.profile.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.HeapPath, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&g.profile.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = g.setup
	cmd.PersistentPostRunE = g.teardown

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newIndexCmd(g))
	cmd.AddCommand(newQueryCmd(g))
	cmd.AddCommand(newDropCmd(g))
	cmd.AddCommand(newSizeCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and configures logging.
func (g *globals) setup(cmd *cobra.Command, _ []string) error {
	if skipsSetup(cmd) {
		return nil
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	g.cfg = cfg

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.LogToStderr(),
	}
	if g.debug {
		logCfg.Level = "debug"
		if logCfg.FilePath == "" {
			logCfg.FilePath = logging.DefaultLogPath()
		}
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	g.logger = logger
	g.loggingCleanup = cleanup
	slog.SetDefault(logger)

	if g.debug {
		logger.Debug("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}

	if g.profile.Enabled() {
		session, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.profiler = session
	}
	return nil
}

// skipsSetup reports whether cmd runs without loading configuration.
func skipsSetup(cmd *cobra.Command) bool {
	switch cmd.CommandPath() {
	case "searchgate version", "searchgate config init":
		return true
	}
	return false
}

func (g *globals) teardown(_ *cobra.Command, _ []string) error {
	if err := g.profiler.Stop(); err != nil {
		g.logger.Warn("profile_write_failed", slog.String("error", err.Error()))
	}
	g.profiler = nil
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, errors.FormatForCLI(err))
		return err
	}
	return nil
}
