package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/pixel-trigger/internal/calibrate"
	"github.com/GriffinCanCode/pixel-trigger/internal/config"
	"github.com/GriffinCanCode/pixel-trigger/internal/screen"
)

var (
	calibrateSnapshot string
	calibrateScale    int
	calibrateDryRun   bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Set the target color from the live focal region",
	Long: `Wait until the region around the focal point is visually stable, take the
blurred center color and store it as target.color in the config file.`,
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateSnapshot, "snapshot", "", "also write an upsampled PNG of the region to this path")
	calibrateCmd.Flags().IntVar(&calibrateScale, "scale", 8, "snapshot upsampling factor")
	calibrateCmd.Flags().BoolVar(&calibrateDryRun, "dry-run", false, "print the color without saving it")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	reader, err := screen.Open()
	if err != nil {
		return err
	}
	defer reader.Close()

	cal := calibrate.New(reader, focalFor(reader, settings))
	res, err := cal.Sample(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printSection(w, "Calibration",
		fmt.Sprintf("color   %s", swatch(res.Color)),
		fmt.Sprintf("frames  %d", res.Frames),
		fmt.Sprintf("region  %v", res.Region),
	)

	if calibrateSnapshot != "" {
		img, err := calibrate.Grab(reader, res.Region)
		if err != nil {
			return err
		}
		png, err := calibrate.Snapshot(img, calibrateScale)
		if err != nil {
			return err
		}
		if err := os.WriteFile(calibrateSnapshot, png, 0o644); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		fmt.Fprintln(w, mutedStyle.Render("snapshot written to "+calibrateSnapshot))
	}

	if calibrateDryRun {
		return nil
	}
	cfg.Target.Color = res.Color.Hex()
	if err := config.Save(cfgFile, cfg); err != nil {
		return err
	}
	fmt.Fprintln(w, okStyle.Render("target.color saved to "+cfgFile))
	return nil
}
