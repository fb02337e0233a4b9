package cli

import (
	"fmt"
	"image"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/pixel-trigger/internal/detect"
	"github.com/GriffinCanCode/pixel-trigger/internal/engine"
	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
	"github.com/GriffinCanCode/pixel-trigger/internal/screen"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run one scan and print every sample",
	Long: `Read the configured grid once around the focal point and print each sample's
color and similarity to the target, followed by the detector's verdict.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, _ []string) error {
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

	report, err := probe(reader, settings)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), report)
	return nil
}

// probe scans once and renders the samples and verdict.
func probe(reader screen.Reader, s engine.Settings) (string, error) {
	det, err := detect.New(detect.Params{
		Strategy:  s.Strategy,
		Target:    s.Target,
		Tolerance: s.Tolerance,
		MinPixels: s.MinPixels,
		Preset:    s.Preset,
	})
	if err != nil {
		return "", err
	}
	focal := focalFor(reader, s)
	samples, err := s.Grid.Scan(reader, focal)
	if err != nil {
		return "", err
	}
	res := det.Evaluate(samples)

	rows := make([][]string, 0, len(samples))
	for _, smp := range samples {
		rows = append(rows, sampleRow(smp, s))
	}
	out := titleStyle.Render(fmt.Sprintf("%s grid at (%d,%d), detector %s", s.Grid.Name(), focal.X, focal.Y, det.Name())) + "\n"
	out += renderTable([]string{"dx", "dy", "weight", "x", "y", "color", "similarity", "match"}, rows) + "\n"
	out += fmt.Sprintf("target %s  tolerance %.2f  readable %d/%d  matching %d  average %.3f  %s",
		swatch(s.Target), s.Tolerance, res.Readable, len(samples), res.Matching, res.Average,
		verdict(res.Detected, "DETECTED", "not detected"))
	return out, nil
}

func sampleRow(smp grid.Sample, s engine.Settings) []string {
	row := []string{
		strconv.Itoa(smp.Point.DX), strconv.Itoa(smp.Point.DY),
		strconv.FormatFloat(smp.Point.Weight, 'f', 1, 64),
		strconv.Itoa(smp.X), strconv.Itoa(smp.Y),
	}
	if !smp.OK {
		return append(row, mutedStyle.Render("unreadable"), "-", "-")
	}
	sim := pixel.Similarity(smp.Color, s.Target)
	return append(row, swatch(smp.Color), fmt.Sprintf("%.3f", sim), verdict(sim >= s.Tolerance, "yes", "no"))
}

func focalFor(reader screen.Reader, s engine.Settings) image.Point {
	if s.Focal != nil {
		return *s.Focal
	}
	return screen.Center(reader.Bounds())
}
