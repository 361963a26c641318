package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"neutronct/internal/logger"
	"neutronct/pkg/reconstruction"
	"neutronct/pkg/workflow"
)

func newWorkflowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Validate and run JSON workflow documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Check a workflow against the schema and the function registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := workflow.Load(args[0])
			if err != nil {
				return err
			}
			if err := wf.Validate(workflow.DefaultRegistry()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d tasks)\n", args[0], len(wf.Tasks))
			return nil
		},
	})

	var (
		command []string
		workers int
	)
	runCmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := workflow.Load(args[0])
			if err != nil {
				return err
			}
			engine := workflow.NewEngine(nil, workflow.Env{
				Logger:     a.log,
				MaxWorkers: workers,
				Recon:      reconstruction.NewCommandEngine(command, logger.Component(a.log, "reconstruction")),
			})
			data, err := engine.Run(cmd.Context(), wf)
			if err != nil {
				return err
			}
			for name, v := range data {
				if dir, ok := v.(string); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, dir)
				}
			}
			return nil
		},
	}
	runCmd.Flags().StringArrayVar(&command, "recon-command", nil, "reconstruction command argument template, repeat for each argument")
	runCmd.Flags().IntVar(&workers, "max-workers", 0, "parallel workers, 0 uses all cores")
	cmd.AddCommand(runCmd)

	return cmd
}
