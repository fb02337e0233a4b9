// Command pixeltrigger watches a screen region for a color signal and clicks when it appears.
package main

import (
	"os"

	"github.com/GriffinCanCode/pixel-trigger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
