package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"neutronct/pkg/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, inspect and store session configurations",
	}
	cmd.AddCommand(
		newConfigInitCmd(a),
		newConfigShowCmd(),
		newConfigValidateCmd(),
		newConfigSaveCmd(a),
		newConfigLoadCmd(a),
		newConfigListCmd(a),
	)
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		out         string
		interactive bool
		from        string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if from != "" {
				var err error
				if cfg, err = config.LoadConfig(from); err != nil {
					return err
				}
			}
			if interactive {
				if err := config.Prompt(cmd.InOrStdin(), cmd.OutOrStdout(), cfg); err != nil {
					return err
				}
			}
			if err := config.SaveConfig(cfg, out); err != nil {
				return err
			}
			a.log.Info().Str("path", out).Msg("configuration written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "neutronct.yaml", "path of the configuration file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask for the key fields")
	cmd.Flags().StringVar(&from, "from", "", "start from an existing configuration file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Print a configuration with defaults filled in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadExisting(args[0])
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	var checkPaths bool
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadExisting(args[0])
			if err != nil {
				return err
			}
			if err := cfg.Validate(checkPaths); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkPaths, "check-paths", true, "require the data directories to exist")
	return cmd
}

func newConfigSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save NAME FILE",
		Short: "Store a configuration file as a named profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadExisting(args[1])
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.SaveConfig(args[0], cfg); err != nil {
				return err
			}
			a.log.Info().Str("profile", args[0]).Msg("configuration saved")
			return nil
		},
	}
}

func newConfigLoadCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "load NAME",
		Short: "Write a stored profile to a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			cfg, err := db.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := config.SaveConfig(cfg, out); err != nil {
				return err
			}
			a.log.Info().Str("profile", args[0]).Str("path", out).Msg("configuration written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "neutronct.yaml", "path of the configuration file")
	return cmd
}

func newConfigListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			names, err := db.ListConfigs()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// loadExisting loads a configuration file that must exist
func loadExisting(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("configuration file: %w", err)
	}
	return config.LoadConfig(path)
}
