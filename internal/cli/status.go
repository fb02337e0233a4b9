package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/pixel-trigger/internal/grpcclient"
	"github.com/GriffinCanCode/pixel-trigger/internal/server"
)

var (
	statusAddr  string
	statusWatch bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running instance's health over gRPC",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "gRPC address (default server.grpc_addr)")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "stream engine status changes")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.Server.GRPCAddr
	}
	c, err := grpcclient.New(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	w := cmd.OutOrStdout()
	ctx := cmd.Context()
	proc, err := c.Check(ctx, "")
	if err != nil {
		return fmt.Errorf("instance at %s unreachable: %w", addr, err)
	}
	fmt.Fprintf(w, "process  %s\n", statusWord(proc))

	if !statusWatch {
		eng, err := c.Check(ctx, server.HealthService)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "engine   %s\n", statusWord(eng))
		return nil
	}
	return c.Watch(ctx, server.HealthService, func(s grpcclient.Status) {
		fmt.Fprintf(w, "engine   %s\n", statusWord(s))
	})
}

func statusWord(s grpcclient.Status) string {
	return verdict(s == healthpb.HealthCheckResponse_SERVING, s.String(), s.String())
}
