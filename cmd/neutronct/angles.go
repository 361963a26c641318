package main

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/spf13/cobra"

	"neutronct/pkg/dataio"
)

func newAnglesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "angles FILES...",
		Short: "Print the rotation angle of each projection file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			angles, err := dataio.ExtractAngles(args)
			if err != nil {
				return err
			}
			if angles == nil {
				a.log.Warn().Msg("no rotation angles found")
			}
			for i, f := range args {
				value := "unknown"
				if angles != nil && !math.IsNaN(angles[i]) {
					value = fmt.Sprintf("%.3f", angles[i])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", filepath.Base(f), value)
			}
			return nil
		},
	}
}
