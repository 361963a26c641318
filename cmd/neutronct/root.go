package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"neutronct/internal/logger"
	"neutronct/pkg/config"
	"neutronct/pkg/reconstruction"
	"neutronct/pkg/store"
)

// app holds the state shared by all subcommands
type app struct {
	logLevel  string
	logFormat string
	dbPath    string

	log zerolog.Logger

	// newEngine builds the reconstruction engine of a session
	newEngine func(command []string, log zerolog.Logger) reconstruction.Engine
}

func newRootCmd() *cobra.Command {
	return newAppCmd(&app{log: logger.Default(), newEngine: commandEngine})
}

func newAppCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "neutronct",
		Short: "Neutron CT preprocessing and reconstruction",
		Long: `neutronct configures a neutron imaging CT session, runs the
preprocessing pipeline (normalization, intensity fluctuation correction,
crop, minus-log, ring removal, smoothing) and hands the projections to an
external reconstruction program.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(cmd.ErrOrStderr(), a.logLevel, a.logFormat)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "profile and run database (default in the user config dir)")

	rootCmd.AddCommand(
		newConfigCmd(a),
		newWorkflowCmd(a),
		newRunCmd(a),
		newInspectCmd(a),
		newAnglesCmd(a),
		newRunsCmd(a),
	)
	return rootCmd
}

func (a *app) openStore() (*store.Bolt, error) {
	path := a.dbPath
	if path == "" {
		var err error
		if path, err = store.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}

// withStore opens the store for the duration of fn only, so long running
// commands do not hold its file lock
func (a *app) withStore(fn func(db *store.Bolt) error) error {
	db, err := a.openStore()
	if err != nil {
		return err
	}
	if err := fn(db); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

func commandEngine(command []string, log zerolog.Logger) reconstruction.Engine {
	return reconstruction.NewCommandEngine(command, log)
}

// sessionLogger applies the logging section of cfg unless the flags were
// given explicitly
func (a *app) sessionLogger(cmd *cobra.Command, cfg *config.Config) (zerolog.Logger, error) {
	level, format := cfg.Logging.Level, cfg.Logging.Format
	if cmd.Flags().Changed("log-level") || level == "" {
		level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") || format == "" {
		format = a.logFormat
	}
	return logger.New(cmd.ErrOrStderr(), level, format)
}
