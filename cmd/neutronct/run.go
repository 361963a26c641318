package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"neutronct/internal/logger"
	"neutronct/pkg/config"
	"neutronct/pkg/pipeline"
	"neutronct/pkg/reconstruction"
	"neutronct/pkg/store"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		configPath string
		profile    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the preprocessing and reconstruction session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (configPath == "") == (profile == "") {
				return errors.New("give exactly one of --config or --profile")
			}

			var cfg *config.Config
			err := a.withStore(func(db *store.Bolt) error {
				var err error
				if profile != "" {
					cfg, err = db.LoadConfig(profile)
				} else {
					cfg, err = loadExisting(configPath)
				}
				return err
			})
			if err != nil {
				return err
			}
			if len(cfg.Reconstruction.Command) == 0 {
				return reconstruction.ErrNoCommand
			}

			log, err := a.sessionLogger(cmd, cfg)
			if err != nil {
				return err
			}

			run := store.NewRun(profile, cfg)
			if err := a.withStore(func(db *store.Bolt) error { return db.RecordRun(run) }); err != nil {
				return err
			}
			log = log.With().Str("run", run.ID).Logger()

			engine := a.newEngine(cfg.Reconstruction.Command, logger.Component(log, "reconstruction"))
			dir, runErr := pipeline.Run(cmd.Context(), cfg, engine, log)
			run.Finish(dir, runErr)
			if err := a.withStore(func(db *store.Bolt) error { return db.RecordRun(run) }); err != nil {
				log.Error().Err(err).Msg("failed to record run")
			}
			if runErr != nil {
				return runErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Volume saved to %s\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "stored profile name")
	return cmd
}
