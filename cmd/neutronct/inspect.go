package main

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/spf13/cobra"

	"neutronct/internal/models"
	"neutronct/pkg/dataio"
	"neutronct/pkg/normalize"
	"neutronct/pkg/visualization"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		configPath string
		out        string
		roiFlag    string
		slices     bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Export normalized preview images for picking an ROI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadExisting(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(true); err != nil {
				return err
			}
			log, err := a.sessionLogger(cmd, cfg)
			if err != nil {
				return err
			}

			var roi *models.ROI
			if roiFlag != "" {
				r, err := models.ParseROI(roiFlag)
				if err != nil {
					return err
				}
				roi = &r
			}

			ds, err := dataio.LoadData(cmd.Context(), dataio.LoadOptions{
				CTDir:      cfg.Paths.DataDir,
				OBDirs:     cfg.Paths.OBDirs,
				DCDirs:     cfg.Paths.DCDirs,
				CTPattern:  cfg.Patterns.CT,
				OBPattern:  cfg.Patterns.OB,
				DCPattern:  cfg.Patterns.DC,
				MaxWorkers: cfg.Processing.MaxWorkers,
				Logger:     log,
			})
			if err != nil {
				return err
			}
			normalized, err := normalize.Normalize(cmd.Context(), ds.CT, ds.OB, ds.DC, normalize.Options{
				Average:    cfg.Processing.NormalizeAverage,
				Cutoff:     cfg.Processing.Cutoff,
				MaxWorkers: cfg.Processing.MaxWorkers,
			})
			if err != nil {
				return err
			}

			viewer, err := visualization.NewViewer(normalized)
			if err != nil {
				return err
			}
			written, err := writePreviews(viewer, normalized, roi, out, slices)
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "neutronct.yaml", "configuration file")
	cmd.Flags().StringVarP(&out, "out", "o", "preview", "directory for the preview images")
	cmd.Flags().StringVar(&roiFlag, "roi", "", "overlay an roi given as top,left,bottom,right")
	cmd.Flags().BoolVar(&slices, "slices", false, "also export every projection and sinogram")
	return cmd
}

// writePreviews saves the mean projection, the first and last projections
// and the middle sinogram, each with the roi outlined when given
func writePreviews(viewer *visualization.Viewer, s *models.Stack, roi *models.ROI, out string, slices bool) ([]string, error) {
	var written []string
	save := func(name, axis string, pos int) error {
		var img image.Image
		if axis == "" {
			img = viewer.Projection()
		} else {
			slice, err := viewer.ExtractSlice(axis, pos)
			if err != nil {
				return err
			}
			img = slice
		}

		path := filepath.Join(out, name+".png")
		if roi != nil && axis != "y" {
			outlined, err := visualization.DrawROI(img, *roi)
			if err != nil {
				return err
			}
			img = outlined
		}
		if err := visualization.SavePreview(img, path); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := save("projection_mean", "", 0); err != nil {
		return nil, err
	}
	if err := save("projection_first", "z", 0); err != nil {
		return nil, err
	}
	if err := save("projection_last", "z", s.Depth-1); err != nil {
		return nil, err
	}
	if err := save("sinogram_middle", "y", s.Height/2); err != nil {
		return nil, err
	}

	if slices {
		for _, axis := range []string{"z", "y"} {
			dir := filepath.Join(out, axis)
			if err := viewer.SaveSliceSequence(axis, dir); err != nil {
				return nil, err
			}
			written = append(written, dir)
		}
	}
	return written, nil
}
