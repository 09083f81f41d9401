package satellite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/errorreport"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/transport"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultRetryInterval is how often failed device work is retried
const DefaultRetryInterval = 30 * time.Second

// Satellite represents the agent of one storage node
type Satellite struct {
	state    *State
	devices  DeviceManager
	reporter *errorreport.Reporter
	peers    *peer.Map
	retry    time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	nodeName   string
	controller *peer.Peer
	// pending holds the names of resources waiting for the device manager
	pending map[string]string
	// refetch holds resources to request again once their diverged local
	// copy is gone
	refetch map[string]bool

	trigger chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config holds satellite configuration
type Config struct {
	// NodeName is the name of the local node. If empty the satellite takes
	// the name from the first full sync it receives.
	NodeName      string
	Devices       DeviceManager
	Reporter      *errorreport.Reporter
	RetryInterval time.Duration
}

// New creates a new satellite instance
func New(cfg Config) (*Satellite, error) {
	state, err := NewState()
	if err != nil {
		return nil, err
	}
	if cfg.Devices == nil {
		cfg.Devices = NoopDeviceManager{}
	}
	if cfg.Reporter == nil {
		cfg.Reporter = errorreport.New("satellite", 0)
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}

	return &Satellite{
		state:    state,
		devices:  cfg.Devices,
		reporter: cfg.Reporter,
		peers:    peer.NewMap(),
		retry:    cfg.RetryInterval,
		logger:   log.WithComponent("satellite"),
		nodeName: cfg.NodeName,
		pending:  make(map[string]string),
		refetch:  make(map[string]bool),
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// State returns the local state
func (s *Satellite) State() *State { return s.state }

// Peers returns the map of connected peers, fed by a peer.ConnTracker
func (s *Satellite) Peers() *peer.Map { return s.peers }

// Reporter returns the satellite's error reporter
func (s *Satellite) Reporter() *errorreport.Reporter { return s.reporter }

// NodeName returns the name of the local node, empty before it is known
func (s *Satellite) NodeName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeName
}

// ObjectCounts implements metrics.Source
func (s *Satellite) ObjectCounts() map[string]int { return s.state.Counts() }

// ConnectedPeers implements metrics.Source
func (s *Satellite) ConnectedPeers() int { return s.peers.Len() }

// Start starts the device loop
func (s *Satellite) Start() {
	go s.deviceLoop()
	s.logger.Info().Str("node", s.NodeName()).Msg("Satellite started")
}

// Stop stops the device loop and waits for it to finish
func (s *Satellite) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info().Msg("Satellite stopped")
}

// Run starts the satellite and stops it when ctx is done
func (s *Satellite) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Satellite) deviceLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.retry)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	for {
		select {
		case <-s.trigger:
			s.processPending(ctx)
		case <-ticker.C:
			s.processPending(ctx)
		case <-s.stopCh:
			return
		}
	}
}

// DeployResource applies the snapshot of one local resource
func (s *Satellite) DeployResource(snap api.ResourceSnapshot) (Result, error) {
	res, err := s.reconcile("resource", func(node string) (Result, error) {
		return s.state.DeployResource(node, snap)
	})
	var uuidErr *DivergentUUIDsError
	if errors.As(err, &uuidErr) {
		s.resolveDivergence(snap)
	}
	return res, err
}

// DeployStorPool applies the snapshot of one local storage pool
func (s *Satellite) DeployStorPool(snap api.StorPoolSnapshot) (Result, error) {
	return s.reconcile("stor_pool", func(node string) (Result, error) {
		return s.state.DeployStorPool(node, snap)
	})
}

// ApplyFullSync replaces the local state with fs
func (s *Satellite) ApplyFullSync(fs api.FullSync) (Result, error) {
	s.mu.Lock()
	if s.nodeName == "" && fs.Node.Name != "" {
		s.nodeName = fs.Node.Name
		s.logger.Info().Str("node", fs.Node.Name).Msg("Local node name taken from full sync")
	}
	s.mu.Unlock()

	return s.reconcile("full_sync", func(node string) (Result, error) {
		return s.state.ApplyFullSync(node, fs)
	})
}

func (s *Satellite) reconcile(kind string, apply func(node string) (Result, error)) (Result, error) {
	node := s.NodeName()
	if node == "" {
		metrics.ReconciliationsTotal.WithLabelValues(kind, "failed").Inc()
		return Result{}, &DivergentDataError{Object: kind, Reason: "local node name is not known yet"}
	}

	timer := metrics.NewTimer()
	res, err := apply(node)
	timer.ObserveDuration(metrics.ReconcileDuration)
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues(kind, "failed").Inc()
		if k := divergenceKind(err); k != "" {
			metrics.DivergencesTotal.WithLabelValues(k).Inc()
		}
		id := s.reporter.Report(err, "reconciliation failed", "kind", kind, "node", node)
		s.logger.Error().Err(err).Str("kind", kind).Str("report", id).Msg("Reconciliation failed")
		return Result{}, err
	}

	outcome := "unchanged"
	if res.Changes() > 0 {
		outcome = "applied"
	}
	metrics.ReconciliationsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.ReconcileChangesTotal.Add(float64(res.Changes()))
	s.logger.Debug().
		Str("kind", kind).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("tombstoned", res.Tombstoned).
		Strs("resources", res.Resources).
		Msg("Reconciliation applied")

	s.enqueue(res.Resources)
	return res, nil
}

// enqueue hands resources to the device loop
func (s *Satellite) enqueue(names []string) {
	if len(names) == 0 {
		return
	}
	s.mu.Lock()
	for _, name := range names {
		s.pending[nameKey(name)] = name
	}
	s.mu.Unlock()

	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// resolveDivergence asks the controller about the local copy of a resource
// it recreated under a new UUID. The controller answers with a removal, and
// once the local copy is gone the resource is requested again.
func (s *Satellite) resolveDivergence(snap api.ResourceSnapshot) {
	rsc := snap.RscDfn.Name
	view, ok := s.state.Resource(s.NodeName(), rsc)
	if !ok || view.Resource.UUID == snap.LocalRsc.UUID {
		return
	}
	s.mu.Lock()
	s.refetch[nameKey(rsc)] = true
	s.mu.Unlock()
	if err := s.RequestResource(rsc, view.Resource.UUID); err != nil {
		s.logger.Warn().Err(err).Str("rsc", rsc).Msg("Failed to request diverged resource")
	}
}

// processPending runs the device manager for every queued resource, then
// drops tombstones nothing waits for anymore. Failed resources stay queued.
func (s *Satellite) processPending(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.pending))
	for _, name := range s.pending {
		names = append(names, name)
	}
	s.pending = make(map[string]string)
	s.mu.Unlock()
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		if err := s.processResource(ctx, name); err != nil {
			id := s.reporter.Report(err, "device update failed", "rsc", name)
			s.logger.Error().Err(err).Str("rsc", name).Str("report", id).Msg("Device update failed")
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		s.mu.Lock()
		for _, name := range failed {
			if _, queued := s.pending[nameKey(name)]; !queued {
				s.pending[nameKey(name)] = name
			}
		}
		s.mu.Unlock()
	}

	if n, err := s.state.compact(s.NodeName()); err != nil {
		s.reporter.Report(err, "state compaction failed")
	} else if n > 0 {
		s.logger.Debug().Int("records", n).Msg("Dropped tombstones")
	}
}

func (s *Satellite) processResource(ctx context.Context, name string) error {
	node := s.NodeName()
	view, ok := s.state.Resource(node, name)
	if !ok {
		return nil
	}
	logger := s.logger.With().Str("rsc", name).Logger()

	if view.Deleting() {
		if err := s.devices.Remove(ctx, view); err != nil {
			return fmt.Errorf("failed to remove devices of %s: %w", name, err)
		}
		forgotten, err := s.state.forgetResource(view)
		if err != nil || !forgotten {
			return err
		}
		logger.Info().Bool("removed", view.Removed).Msg("Resource removed")
		if !view.Removed {
			s.confirm(api.ResourceDeleted{NodeName: node, RscName: view.Resource.RscName, RscUUID: view.Resource.UUID})
		}
		if s.takeRefetch(name) {
			if err := s.RequestResource(name, uuid.Nil); err != nil {
				logger.Warn().Err(err).Msg("Failed to request resource")
			}
		}
		return nil
	}

	if err := s.devices.Deploy(ctx, view); err != nil {
		return fmt.Errorf("failed to deploy devices of %s: %w", name, err)
	}
	var removed []int
	for _, v := range view.Volumes {
		if v.Flags.IsSet(types.FlagDelete) {
			removed = append(removed, v.VolNr)
		}
	}
	if len(removed) == 0 {
		logger.Debug().Msg("Resource deployed")
		return nil
	}
	confirmed, err := s.state.settleVolumes(view, removed)
	if err != nil {
		return err
	}
	logger.Info().Ints("volumes", removed).Msg("Volumes removed")
	if len(confirmed) > 0 {
		s.confirm(api.ResourceDeleted{
			NodeName: node,
			RscName:  view.Resource.RscName,
			RscUUID:  view.Resource.UUID,
			VolNrs:   confirmed,
		})
	}
	return nil
}

func (s *Satellite) takeRefetch(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.refetch[nameKey(name)] {
		return false
	}
	delete(s.refetch, nameKey(name))
	return true
}

// controllerPeer returns the peer of the connected controller
func (s *Satellite) controllerPeer() *peer.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller
}

func (s *Satellite) send(t api.MessageType, payload any) error {
	p := s.controllerPeer()
	if p == nil {
		return peer.ErrNotConnected
	}
	return p.Send(t, payload)
}

// confirm tells the controller about a completed deletion. Without a
// controller connection the confirmation is dropped; the next full sync
// repeats the deletion.
func (s *Satellite) confirm(msg api.ResourceDeleted) {
	if err := s.send(api.MsgNotifyResourceDeleted, msg); err != nil {
		s.logger.Warn().Err(err).Str("rsc", msg.RscName).Msg("Failed to confirm deletion")
	}
}

// RequestResource asks the controller for the current snapshot of a local
// resource. id is the UUID of the local copy, uuid.Nil if there is none.
func (s *Satellite) RequestResource(rsc string, id uuid.UUID) error {
	return s.send(api.MsgRequestResource, api.ResourceRequest{NodeName: s.NodeName(), RscName: rsc, RscUUID: id})
}

// RequestStorPool asks the controller for the current state of a local
// storage pool
func (s *Satellite) RequestStorPool(name string, id uuid.UUID) error {
	return s.send(api.MsgRequestStorPool, api.StorPoolRequest{NodeName: s.NodeName(), StorPoolName: name, StorPoolUUID: id})
}

// PeerConnected implements peer.Listener. Only the controller connects to
// a satellite.
func (s *Satellite) PeerConnected(p *peer.Peer, outbound bool) {
	s.mu.Lock()
	s.controller = p
	s.mu.Unlock()
	metrics.SetComponent(metrics.ComponentController, true, "connected to "+p.ID())
	s.logger.Info().Str("peer", p.ID()).Bool("outbound", outbound).Msg("Controller connected")
}

// PeerDisconnected implements peer.Listener
func (s *Satellite) PeerDisconnected(p *peer.Peer) {
	s.mu.Lock()
	current := s.controller == p
	if current {
		s.controller = nil
	}
	s.mu.Unlock()
	if current {
		metrics.SetComponent(metrics.ComponentController, false, "controller disconnected")
	}
	s.logger.Info().Str("peer", p.ID()).Msg("Controller disconnected")
}

// HandleMessage implements transport.MessageHandler for the controller
// connection. Failures are reported and logged, never answered.
func (s *Satellite) HandleMessage(_ context.Context, conn transport.Connection, msg *api.Message) {
	logger := s.logger.With().Str("conn", conn.ID()).Str("type", string(msg.Type)).Int64("msg_id", msg.ID).Logger()

	var err error
	switch msg.Type {
	case api.MsgApplyResource:
		var snap api.ResourceSnapshot
		if err = msg.Decode(&snap); err == nil {
			_, err = s.DeployResource(snap)
		}
	case api.MsgApplyStorPool:
		var snap api.StorPoolSnapshot
		if err = msg.Decode(&snap); err == nil {
			_, err = s.DeployStorPool(snap)
		}
	case api.MsgApplyFullSync:
		var fs api.FullSync
		if err = msg.Decode(&fs); err == nil {
			_, err = s.ApplyFullSync(fs)
			ack := api.FullSyncApplied{SyncID: fs.SyncID, Success: err == nil}
			if err != nil {
				ack.Error = err.Error()
			}
			if sendErr := s.replyTo(conn, api.MsgNotifyFullSyncApplied, ack); sendErr != nil {
				logger.Warn().Err(sendErr).Msg("Failed to acknowledge full sync")
			}
		}
	default:
		err = fmt.Errorf("unexpected message type %q", msg.Type)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to handle controller message")
	}
}

// replyTo sends on the peer attached to conn, falling back to the tracked
// controller peer
func (s *Satellite) replyTo(conn transport.Connection, t api.MessageType, payload any) error {
	if p, ok := conn.Attachment().(*peer.Peer); ok {
		return p.Send(t, payload)
	}
	return s.send(t, payload)
}

var (
	_ peer.Listener            = (*Satellite)(nil)
	_ transport.MessageHandler = (*Satellite)(nil)
	_ metrics.Source           = (*Satellite)(nil)
)
