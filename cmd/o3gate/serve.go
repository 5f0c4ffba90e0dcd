package main

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

	"github.com/alfredjeanlab/o3gate/internal/config"
	"github.com/alfredjeanlab/o3gate/internal/cycle"
	"github.com/alfredjeanlab/o3gate/internal/events"
	"github.com/alfredjeanlab/o3gate/internal/gate"
	"github.com/alfredjeanlab/o3gate/internal/gpio"
	"github.com/alfredjeanlab/o3gate/internal/machine"
	"github.com/alfredjeanlab/o3gate/internal/metrics"
	"github.com/alfredjeanlab/o3gate/internal/server"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the gate controller",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create an API client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)
		logger.Info("o3gate starting", "version", version)

		// Resolve the machine record.
		provider := machineProvider(cfg)
		loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
		mc, err := machine.Resolve(loadCtx, provider, cfg.FacilityID)
		loadCancel()
		if err != nil {
			return err
		}
		logger.Info("machine config loaded",
			"source", provider.Source(),
			"facility_id", mc.FacilityID,
			"o3_flush", mc.Cycle.O3Flush,
			"entrance_timeout", mc.Cycle.EntranceTimeout,
		)

		// Open the pin driver. Missing hardware degrades to simulation.
		drv, err := gpio.Open(mc.Pins, gpio.Options{
			ActiveLow:          cfg.ActiveLow,
			ForceSimulation:    cfg.ForceSimulation,
			SimulatedReadLevel: cfg.SimulatedReadLevel,
		}, logger)
		if err != nil {
			return err
		}

		m := metrics.New()
		m.DriverSimulated(drv.Simulated())

		// Create event publisher.
		var busPublisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to connect event publisher, continuing without it", "err", err)
				busPublisher = &events.NoopPublisher{}
			} else {
				busPublisher = pub
				logger.Info("events enabled", "nats_url", cfg.NATSURL)
			}
		} else {
			busPublisher = &events.NoopPublisher{}
			logger.Info("events disabled (O3GATE_NATS_URL not set)")
		}

		// Create components. The service host is built before the engine so
		// the engine can publish into its event stream.
		srv := server.New(server.Options{
			Machine:    *mc,
			Metrics:    m,
			DriverName: drv.Name(),
			Simulated:  drv.Simulated(),
			Version:    version,
			Logger:     logger,
		})
		publisher := events.Fanout{busPublisher, srv.Publisher()}

		engine := cycle.New(drv, cycle.Config{
			Cycle:        mc.Cycle,
			Pins:         mc.Pins,
			FacilityID:   mc.FacilityID,
			PollInterval: cfg.PollInterval,
			Logger:       logger,
			Publisher:    publisher,
			Metrics:      m,
		})
		g := gate.New(engine, gate.Config{
			FacilityID: mc.FacilityID,
			Logger:     logger,
			Metrics:    m,
		})
		srv.Attach(engine, g)

		// Start the trigger subscriber if NATS is available. Failing to
		// connect is not fatal: HTTP triggers keep working.
		var subCancel context.CancelFunc
		subDone := make(chan struct{})
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL,
				nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
					srv.SetTransportConnected(false)
				}),
				nats.ReconnectHandler(func(_ *nats.Conn) {
					srv.SetTransportConnected(true)
				}),
			)
			if err != nil {
				logger.Error("failed to create trigger subscriber", "err", err)
				close(subDone)
			} else {
				srv.SetTransportConnected(sub.Connected())
				var subCtx context.Context
				subCtx, subCancel = context.WithCancel(context.Background())
				go func() {
					defer close(subDone)
					if err := g.StartSubscriber(subCtx, sub, cfg.TriggerSubject); err != nil {
						logger.Error("trigger subscriber error", "err", err)
					}
					sub.Close()
				}()
			}
		} else {
			close(subDone)
		}

		grpcServer := srv.NewGRPCServer()

		// Start gRPC listener.
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			if subCancel != nil {
				subCancel()
			}
			<-subDone
			_ = g.Shutdown(context.Background())
			publisher.Close()
			drv.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: srv.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("ready",
			"facility_id", mc.FacilityID,
			"driver", drv.Name(),
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown: stop taking triggers, bring the chamber to a
		// safe state, then take the surfaces down.
		if subCancel != nil {
			subCancel()
		}
		<-subDone
		logger.Info("trigger subscriber stopped")

		gateCtx, gateCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := g.Shutdown(gateCtx); err != nil {
			logger.Error("cycle did not finish before shutdown timeout", "err", err)
		}
		gateCancel()
		logger.Info("gate stopped")

		srv.Shutdown()
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := drv.Close(); err != nil {
			logger.Error("error closing pin driver", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// machineProvider picks the machine record source from the configuration.
func machineProvider(cfg *config.Config) machine.Provider {
	if cfg.MachineURL != "" {
		return machine.NewHTTPProvider(cfg.MachineURL, cfg.MachineID, cfg.MachineToken)
	}
	return machine.NewFileProvider(cfg.MachineConfigPath)
}
