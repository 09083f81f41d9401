package main

import (
	"context"
	"fmt"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/satellite"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var satelliteCmd = &cobra.Command{
	Use:   "satellite",
	Short: "Run the satellite on a storage node",
	Long: `Run the satellite. It listens for the controller, applies the state the
controller pushes, and deploys the local resources.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("node-name"); name != "" {
			cfg.Satellite.NodeName = name
		}
		if err := cfg.ValidateSatellite(); err != nil {
			return err
		}
		return runSatellite(cfg)
	},
}

func init() {
	satelliteCmd.Flags().String("node-name", "", "Name of the local node")
}

func runSatellite(cfg *config.Config) error {
	logger := log.WithComponent("main")

	var devices satellite.DeviceManager = satellite.NoopDeviceManager{}
	if cfg.Satellite.DeviceDir != "" {
		dm, err := satellite.NewDirDeviceManager(cfg.Satellite.DeviceDir)
		if err != nil {
			return err
		}
		devices = dm
	}
	sat, err := satellite.New(satellite.Config{
		NodeName: cfg.Satellite.NodeName,
		Devices:  devices,
	})
	if err != nil {
		return err
	}

	creds, err := cfg.TLS.ServerCredentials()
	if err != nil {
		return fmt.Errorf("failed to load tls credentials: %w", err)
	}
	// The controller is the only peer that connects to a satellite
	tracker := peer.NewConnTracker(sat.Peers(), func(transport.Connection) *security.AccessContext {
		return security.NewSystemContext()
	}, sat)
	server := transport.NewServer(creds, tracker, sat)

	metrics.SetCriticalComponents(metrics.ComponentTransport)
	metrics.SetComponent(metrics.ComponentController, false, "waiting for the controller")
	collector := metrics.NewCollector(sat, 0)
	collector.Start()
	defer collector.Stop()
	status := api.NewStatusServer(sat.Reporter())

	ctx, cancel := signalContext()
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sat.Run(ctx) })
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Satellite.ListenAddr).Msg("Satellite listening")
		return server.Start(cfg.Satellite.ListenAddr)
	})
	g.Go(func() error {
		return status.Start(cfg.Satellite.MetricsAddr)
	})
	g.Go(func() error {
		<-ctx.Done()
		server.Stop()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return status.Stop(sctx)
	})

	logger.Info().Str("node", cfg.Satellite.NodeName).Str("version", Version).Msg("Satellite running")
	err = ignoreCanceled(g.Wait())
	logger.Info().Msg("Satellite stopped")
	return err
}
