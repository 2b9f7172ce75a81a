package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/lanerace/racecontrol/internal/api"
	"github.com/lanerace/racecontrol/internal/config"
	"github.com/lanerace/racecontrol/internal/control"
	"github.com/lanerace/racecontrol/internal/indicator"
	"github.com/lanerace/racecontrol/internal/lane"
	"github.com/lanerace/racecontrol/internal/logging"
	"github.com/lanerace/racecontrol/internal/race"
	"github.com/lanerace/racecontrol/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the race controller with its control, telemetry and HTTP servers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()

	ind, err := indicator.New(cfg.Indicator.Kind, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	// Red until every surface is up
	ind.SetColor(indicator.Red)
	ind.Tick(0)

	logger.Info().
		Int("laps", cfg.Race.Laps).
		Int("tracks", cfg.Race.TrackCount).
		Str("indicator", cfg.Indicator.Kind).
		Msg("starting race controller")

	udp, err := telemetry.NewUDPChannel(cfg.Network.Telemetry, logging.Component(logger, "telemetry"))
	if err != nil {
		return fmt.Errorf("failed to open telemetry: %w", err)
	}
	defer udp.Close()

	lanes := lane.NewBank(cfg.Race.TrackStart, cfg.Race.TrackCount)
	controlServer := control.NewServer(cfg.Network.Control, lanes, logger)
	defer controlServer.Close()

	controller, err := race.New(race.OptionsFromConfig(cfg), race.Deps{
		Indicator: ind,
		Publisher: udp,
		Monitors:  lanes.Monitors(),
		Inboxes:   []race.Inbox{controlServer, udp},
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	var apiServer *api.Server
	if cfg.Network.API.Enabled {
		apiServer = api.NewServer(cfg.Network.API, controller, controlServer, logger)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 3)
	var wg conc.WaitGroup
	wg.Go(func() {
		if err := controlServer.ListenAndServe(); err != nil {
			serveErr <- fmt.Errorf("control server: %w", err)
		}
	})
	wg.Go(func() {
		if err := udp.Serve(); err != nil {
			serveErr <- fmt.Errorf("telemetry listener: %w", err)
		}
	})
	if apiServer != nil {
		wg.Go(func() {
			if err := apiServer.ListenAndServe(); err != nil {
				serveErr <- fmt.Errorf("api server: %w", err)
			}
		})
	}

	ind.SetColor(indicator.Green)
	ind.Tick(0)

	runErr := runTicks(ctx, controller, time.Duration(cfg.Timing.TickIntervalMs)*time.Millisecond, serveErr, logger)

	logger.Info().Msg("shutting down")
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api server shutdown error")
		}
		cancel()
	}
	if err := controlServer.Close(); err != nil {
		logger.Warn().Err(err).Msg("control server shutdown error")
	}
	if err := udp.Close(); err != nil {
		logger.Warn().Err(err).Msg("telemetry shutdown error")
	}
	wg.Wait()

	ind.SetColor(indicator.Black)
	ind.Tick(0)
	logger.Info().Msg("race controller stopped")
	return runErr
}

// runTicks drives the controller with the milliseconds elapsed since it
// started, until ctx is done or a server fails
func runTicks(ctx context.Context, c *race.Controller, interval time.Duration, serveErr <-chan error, logger zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			logger.Error().Err(err).Msg("server failed")
			return err
		case t := <-ticker.C:
			c.Tick(t.Sub(start).Milliseconds())
		}
	}
}
