package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/pixel-trigger/internal/config"
	"github.com/GriffinCanCode/pixel-trigger/internal/engine"
	apperrors "github.com/GriffinCanCode/pixel-trigger/internal/errors"
	"github.com/GriffinCanCode/pixel-trigger/internal/feedback"
	"github.com/GriffinCanCode/pixel-trigger/internal/server"
)

// ShutdownTimeout bounds graceful shutdown of the control plane.
const ShutdownTimeout = 5 * time.Second

var (
	runHeadless bool
	runIdle     bool
	runWatch    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start detection and the control plane",
	Long: `Start the detection loop together with the HTTP/WebSocket control plane and
the gRPC health server. Blocks until SIGINT or SIGTERM, then stops the loop and
shuts the servers down gracefully.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "do not start the HTTP and gRPC servers")
	runCmd.Flags().BoolVar(&runIdle, "idle", false, "start the control plane without starting detection")
	runCmd.Flags().BoolVar(&runWatch, "watch", true, "reload the config file when it changes")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	beeper := feedback.New(cfg.Feedback.Enabled)
	beeper.Start(ctx)
	defer beeper.Wait()

	eng := engine.New(engine.Deps{Cue: beeper})
	if err := eng.Configure(settings); err != nil {
		return err
	}
	srv := server.New(eng, cfg, server.Options{
		ConfigPath:     cfgFile,
		PushInterval:   cfg.PushInterval(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	var wg conc.WaitGroup
	defer wg.Wait()

	if runHeadless {
		wg.Go(func() { logEvents(ctx, eng) })
	} else {
		httpServer, gs, lis, err := listen(cfg, srv, eng)
		if err != nil {
			return err
		}
		wg.Go(func() { srv.Run(ctx) })
		wg.Go(func() {
			slog.Info("control plane starting", "http", cfg.Server.HTTPAddr, "grpc", cfg.Server.GRPCAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "error", err)
			}
		})
		wg.Go(func() {
			if err := gs.Serve(lis); err != nil {
				slog.Error("grpc server error", "error", err)
			}
		})
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("http shutdown error", "error", err)
			}
			gs.GracefulStop()
		}()
	}

	if runWatch && fileExists(cfgFile) {
		wg.Go(func() {
			err := config.Watch(ctx, cfgFile, func(next *config.Config) {
				if err := srv.ApplyConfig(next); err != nil {
					slog.Warn("reloaded config rejected", "error", err)
				}
			})
			if err != nil {
				slog.Warn("config watch unavailable", "error", err)
			}
		})
	}

	if !runIdle {
		if err := eng.Start(ctx); err != nil {
			cancel()
			return err
		}
	}

	<-ctx.Done()
	slog.Info("shutting down...")
	if err := eng.Stop(); err != nil && !apperrors.IsCode(err, apperrors.NotRunning) {
		slog.Error("engine stop error", "error", err)
	}
	st := eng.Snapshot()
	slog.Info("shutdown complete",
		"detections", st.Stats.Detections, "actions", st.Stats.Actions,
		"errors", st.Stats.Errors, "recoveries", st.Stats.Recoveries)
	return nil
}

func listen(cfg *config.Config, srv *server.Server, eng *engine.Engine) (*http.Server, grpcServer, net.Listener, error) {
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return nil, nil, nil, apperrors.Wrapf(err, apperrors.PlatformUnavailable, "listen %s", cfg.Server.GRPCAddr)
	}
	gs, _ := server.NewGRPC(eng)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpServer, gs, lis, nil
}

// grpcServer is the part of *grpc.Server run needs.
type grpcServer interface {
	Serve(net.Listener) error
	GracefulStop()
}

// logEvents drains engine events to the log when no control plane consumes them.
func logEvents(ctx context.Context, eng *engine.Engine) {
	events := eng.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			slog.Info("engine event", "kind", ev.Kind, "message", ev.Message)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
