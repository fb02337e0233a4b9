package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/pixel-trigger/internal/input"
)

var (
	clickDelay  time.Duration
	clickMethod string
)

var clickTestCmd = &cobra.Command{
	Use:   "click-test",
	Short: "Fire one click with the configured method",
	RunE:  runClickTest,
}

func init() {
	clickTestCmd.Flags().DurationVar(&clickDelay, "delay", 3*time.Second, "wait before clicking so the pointer can be placed")
	clickTestCmd.Flags().StringVar(&clickMethod, "method", "", "override input.method")
	rootCmd.AddCommand(clickTestCmd)
}

func runClickTest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if clickMethod != "" {
		cfg.Input.Method = clickMethod
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	inj, err := input.Open(settings.Input)
	if err != nil {
		return err
	}
	defer inj.Close()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "clicking with %s in %s...\n", settings.Input.Method, clickDelay)
	select {
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	case <-time.After(clickDelay):
	}

	start := time.Now()
	err = inj.Click(cmd.Context())
	fmt.Fprintf(w, "%s in %s\n", verdict(err == nil, "click delivered", "click failed"), time.Since(start).Round(time.Microsecond))
	return err
}
