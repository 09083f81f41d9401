package main

import (
	"context"
	"fmt"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/controller"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/manifest"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Run the controller",
	Long: `Run the controller. It loads the cluster state from its store, connects
to every satellite node, and keeps them in sync until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("manifest"); path != "" {
			cfg.Controller.Manifest = path
		}
		if err := cfg.ValidateController(); err != nil {
			return err
		}
		return runController(cfg)
	},
}

func init() {
	controllerCmd.Flags().String("manifest", "", "Manifest applied after the state is loaded")
}

// openStore opens the store the configuration selects
func openStore(cfg *config.Config) (storage.Store, func(), error) {
	if cfg.Controller.Store == config.StoreMemory {
		return storage.NewMemStore(), func() {}, nil
	}
	store, err := storage.NewBoltStore(cfg.Controller.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// newController creates a controller over store and loads its state
func newController(cfg *config.Config, store storage.Store, broker *events.Broker) (*controller.Controller, error) {
	level, err := security.ParseLevel(cfg.Controller.SecurityLevel)
	if err != nil {
		return nil, err
	}
	ctrl, err := controller.New(controller.Options{
		Store:  store,
		Policy: security.NewPolicy(level),
		Props:  cfg.Controller.Props,
		Events: broker,
	})
	if err != nil {
		return nil, err
	}
	if err := ctrl.Load(); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return ctrl, nil
}

func runController(cfg *config.Config) error {
	logger := log.WithComponent("main")

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	ctrl, err := newController(cfg, store, broker)
	if err != nil {
		closeStore()
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close controller")
		}
	}()
	metrics.SetCriticalComponents(metrics.ComponentStore)

	creds, err := cfg.TLS.ClientCredentials()
	if err != nil {
		return fmt.Errorf("failed to load tls credentials: %w", err)
	}
	tracker := peer.NewConnTracker(ctrl.Peers(), nil, ctrl)
	dialer := transport.NewDialer(creds, tracker, ctrl)
	reconnect := peer.NewReconnectService(ctrl.DialFunc(dialer),
		cfg.Controller.ReconnectInterval, cfg.Controller.ConnectRate)
	ctrl.SetConnector(reconnect)

	if cfg.Controller.Manifest != "" {
		m, err := manifest.Load(cfg.Controller.Manifest)
		if err != nil {
			return err
		}
		sum, err := manifest.Apply(ctrl, ctrl.SystemContext(), m)
		if err != nil {
			return err
		}
		logger.Info().
			Int("created", sum.Created).
			Int("skipped", sum.Skipped).
			Msg("Manifest applied")
	}

	n := ctrl.ConnectSatellites()
	logger.Info().Int("satellites", n).Msg("Connecting to satellites")

	recon := reconciler.NewReconciler(ctrl, cfg.Controller.ResyncInterval, cfg.Controller.PurgeInterval)
	collector := metrics.NewCollector(ctrl, 0)
	collector.Start()
	defer collector.Stop()
	status := api.NewStatusServer(ctrl.Reporter())

	ctx, cancel := signalContext()
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reconnect.Run(ctx) })
	g.Go(func() error { return recon.Run(ctx) })
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Controller.MetricsAddr).Msg("Status server listening")
		return status.Start(cfg.Controller.MetricsAddr)
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return status.Stop(sctx)
	})

	logger.Info().Str("version", Version).Msg("Controller running")
	err = ignoreCanceled(g.Wait())
	logger.Info().Msg("Controller stopped")
	return err
}
