package controller

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/errorreport"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/transaction"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Connector schedules connection attempts to satellites.
// peer.ReconnectService implements it.
type Connector interface {
	Add(target peer.Target)
	Remove(node string)
}

// Options configures a Controller
type Options struct {
	Store storage.Store
	// Policy defaults to RBAC
	Policy *security.Policy
	// Props are merged over config.DefaultControllerProps
	Props     map[string]string
	Peers     *peer.Map
	Events    *events.Broker
	Reporter  *errorreport.Reporter
	Connector Connector
}

// Controller holds the authoritative cluster state and implements the
// api-call handlers. Every handler returns a result record and never
// panics or returns an error.
type Controller struct {
	state     *ClusterState
	txMgr     *transaction.Manager
	policy    *security.Policy
	props     *types.Props
	sysCtx    *security.AccessContext
	peers     *peer.Map
	events    *events.Broker
	reporter  *errorreport.Reporter
	connector Connector
	logger    zerolog.Logger
	newSecret func() (string, error)
}

// New creates a controller. Load must be called before the handlers are used.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("controller requires a store")
	}
	policy := opts.Policy
	if policy == nil {
		policy = security.NewPolicy(security.LevelRBAC)
	}
	props := types.NewProps()
	if err := props.Replace(config.DefaultControllerProps()); err != nil {
		return nil, fmt.Errorf("failed to apply default controller properties: %w", err)
	}
	for k, v := range opts.Props {
		if _, _, err := props.Set(k, v); err != nil {
			return nil, fmt.Errorf("failed to apply controller property %s: %w", k, err)
		}
	}
	peers := opts.Peers
	if peers == nil {
		peers = peer.NewMap()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = errorreport.New("controller", 0)
	}

	return &Controller{
		state:     NewClusterState(),
		txMgr:     transaction.NewManager(opts.Store),
		policy:    policy,
		props:     props,
		sysCtx:    security.NewSystemContext(),
		peers:     peers,
		events:    opts.Events,
		reporter:  reporter,
		connector: opts.Connector,
		logger:    log.WithComponent("controller"),
		newSecret: generateSecret,
	}, nil
}

// Close waits for running api calls to finish and closes the store. It
// holds the reconfiguration lock while doing so; calls made afterwards
// fail with a persistence error.
func (c *Controller) Close() error {
	release := c.state.LockReconfiguration()
	defer release()

	if err := c.txMgr.Store().Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	c.logger.Info().Msg("Controller store closed")
	return nil
}

// State returns the cluster state
func (c *Controller) State() *ClusterState { return c.state }

// Props returns the controller property map
func (c *Controller) Props() *types.Props { return c.props }

// Peers returns the peer map
func (c *Controller) Peers() *peer.Map { return c.peers }

// SystemContext returns the controller's system access context
func (c *Controller) SystemContext() *security.AccessContext { return c.sysCtx }

// Reporter returns the controller's error reporter
func (c *Controller) Reporter() *errorreport.Reporter { return c.reporter }

// SetConnector sets the satellite connector
func (c *Controller) SetConnector(conn Connector) { c.connector = conn }

// ObjectCounts implements metrics.Source
func (c *Controller) ObjectCounts() map[string]int { return c.state.Counts() }

// ConnectedPeers implements metrics.Source
func (c *Controller) ConnectedPeers() int { return c.peers.Len() }

var _ metrics.Source = (*Controller)(nil)

// apiCall describes one handler invocation
type apiCall struct {
	name    string
	op      uint64
	obj     uint64
	accCtx  *security.AccessContext
	client  *peer.Peer
	locks   LockSpec
	objRefs map[string]string
}

func (call apiCall) code(severity, low uint64) uint64 {
	return severity | call.op | call.obj | low
}

// run is the error boundary of every handler. It takes the locks, runs
// body in one transaction and commits it. Any failure, including a panic,
// rolls the transaction back and becomes a single error entry.
func (c *Controller) run(call apiCall, body func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error) (rc *apicallrc.ApiCallRc) {
	rc = apicallrc.New()
	timer := metrics.NewTimer()
	logger := c.logger.With().Str("api_call", call.name).Str("peer", peerID(call.client)).Logger()

	release := c.state.Lock(call.locks)
	tx := c.txMgr.Begin()
	defer func() {
		if r := recover(); r != nil {
			id := c.reporter.ReportPanic(r, "API call panicked", "api_call", call.name, "peer", peerID(call.client))
			f := fail(KindInternal, 0, "Internal error").withCause("%v", r)
			f.reportID = id
			c.abort(tx, rc, call, f, logger)
		}
		release()
		metrics.APICallsTotal.WithLabelValues(call.name, resultLabel(rc)).Inc()
		timer.ObserveDurationVec(metrics.APICallDuration, call.name)
	}()

	if err := body(tx, rc); err != nil {
		c.abort(tx, rc, call, classify(err), logger)
		return rc
	}
	dirty := tx.IsDirty()
	if err := tx.Commit(); err != nil {
		c.abort(tx, rc, call, persistenceFailure(err), logger)
		return rc
	}
	if dirty {
		metrics.SetComponent(metrics.ComponentStore, true, "")
	}
	for _, e := range rc.Entries {
		if e.ObjRefs == nil && call.objRefs != nil {
			e.ObjRefs = call.objRefs
		}
	}
	logger.Debug().Msg("API call succeeded")
	return rc
}

// abort replaces the entries of rc with the failure and rolls tx back
func (c *Controller) abort(tx *transaction.Tx, rc *apicallrc.ApiCallRc, call apiCall, f *Failure, logger zerolog.Logger) {
	rc.Entries = nil
	entry := f.entry(call.op, call.obj)
	entry.ObjRefs = call.objRefs

	if f.Kind == KindPersistence {
		metrics.SetComponent(metrics.ComponentStore, false, f.Cause)
	}
	switch f.Kind {
	case KindInternal, KindPersistence:
		if f.reportID == "" {
			f.reportID = c.reporter.Report(f, f.Message, "api_call", call.name, "peer", peerID(call.client))
		}
		entry.Details = "Error report " + f.reportID
	default:
		logger.Info().Str("kind", f.Kind.String()).Str("cause", f.Cause).Msg(f.Message)
	}
	rc.Add(entry)

	dirty := tx.IsDirty()
	if err := tx.Rollback(); err != nil && !errors.Is(err, transaction.ErrDone) {
		id := c.reporter.Report(err, "Transaction rollback failed", "api_call", call.name)
		rc.Add(&apicallrc.RcEntry{
			ReturnCode: call.code(apicallrc.MaskError, apicallrc.FailRollback),
			Message:    "Failed to roll back the transaction",
			Cause:      err.Error(),
			Details:    "Error report " + id,
			ObjRefs:    call.objRefs,
		})
	}
	if dirty {
		metrics.RollbacksTotal.Inc()
	}
}

func resultLabel(rc *apicallrc.ApiCallRc) string {
	if rc.HasErrors() {
		return "error"
	}
	for _, e := range rc.Entries {
		if e.IsWarning() {
			return "warning"
		}
	}
	return "success"
}

func peerID(p *peer.Peer) string {
	if p == nil {
		return "local"
	}
	return p.ID()
}

// publish emits an event once the transaction committed
func (c *Controller) publish(tx *transaction.Tx, t events.EventType, msg string, meta map[string]string) {
	if c.events == nil {
		return
	}
	tx.OnCommit(func() {
		c.events.Publish(&events.Event{Type: t, Message: msg, Metadata: meta})
	})
}
