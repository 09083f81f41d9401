package peer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/transport"
	"github.com/google/uuid"
)

// ErrNotConnected is returned when sending to a peer without a connection
var ErrNotConnected = errors.New("peer is not connected")

// Peer is the context attached to one peer connection
type Peer struct {
	id     string
	accCtx *security.AccessContext

	mu          sync.RWMutex
	conn        transport.Connection
	node        string
	connectedAt time.Time

	nextMsgID atomic.Int64
	// fullSyncID is the id of the last full sync sent to or applied by the peer
	fullSyncID atomic.Int64
}

// New creates a peer context. node is the name of the node the peer
// belongs to if it is already known, empty otherwise.
func New(node string, accCtx *security.AccessContext) *Peer {
	return &Peer{
		id:     uuid.NewString(),
		node:   node,
		accCtx: accCtx,
	}
}

func (p *Peer) ID() string { return p.id }
func (p *Peer) AccessContext() *security.AccessContext { return p.accCtx }

// Node returns the name of the node the peer belongs to
func (p *Peer) Node() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.node
}

// SetNode sets the name of the node the peer belongs to
func (p *Peer) SetNode(node string) {
	p.mu.Lock()
	p.node = node
	p.mu.Unlock()
}

// Conn returns the peer's connection, nil before it was bound
func (p *Peer) Conn() transport.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

// ConnectedAt returns when the peer's connection was established
func (p *Peer) ConnectedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connectedAt
}

// Connected reports whether the peer has a live connection
func (p *Peer) Connected() bool {
	conn := p.Conn()
	if conn == nil {
		return false
	}
	select {
	case <-conn.Done():
		return false
	default:
		return true
	}
}

// bind associates the peer with conn unless it already has a connection
func (p *Peer) bind(conn transport.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		p.conn = conn
		p.connectedAt = time.Now()
	}
}

// NextFullSyncID allocates the id of a new full sync
func (p *Peer) NextFullSyncID() int64 { return p.fullSyncID.Add(1) }

// FullSyncID returns the id of the last allocated full sync
func (p *Peer) FullSyncID() int64 { return p.fullSyncID.Load() }

// Send encodes payload and queues it on the peer's connection
func (p *Peer) Send(t api.MessageType, payload any) error {
	conn := p.Conn()
	if conn == nil {
		return ErrNotConnected
	}
	msg, err := api.NewMessage(p.nextMsgID.Add(1), t, payload)
	if err != nil {
		return err
	}
	if err := conn.Send(msg); err != nil {
		return fmt.Errorf("failed to send %s to peer %s: %w", t, p.id, err)
	}
	return nil
}

// Map holds the connected peers. It has its own lock, independent of the
// cluster state locks.
type Map struct {
	mu    sync.Mutex
	peers map[string]*Peer
}

// NewMap creates an empty peer map
func NewMap() *Map {
	return &Map{peers: make(map[string]*Peer)}
}

// Put inserts the peer. It reports false if the peer was already present.
func (m *Map) Put(p *Peer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[p.id]; ok {
		return false
	}
	m.peers[p.id] = p
	return true
}

// Remove deletes a peer by id and returns it
func (m *Map) Remove(id string) (*Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if ok {
		delete(m.peers, id)
	}
	return p, ok
}

// Get looks up a peer by id
func (m *Map) Get(id string) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peers[id]
}

// ByNode returns the connected peer of a node, nil if there is none.
// Node names compare case-insensitively.
func (m *Map) ByNode(node string) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.peers {
		if n := p.Node(); n != "" && strings.EqualFold(n, node) {
			return p
		}
	}
	return nil
}

// Len returns the number of peers
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// All returns the peers ordered by node name, then id
func (m *Map) All() []*Peer {
	m.mu.Lock()
	out := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ni, nj := out[i].Node(), out[j].Node()
		if ni != nj {
			return ni < nj
		}
		return out[i].id < out[j].id
	})
	return out
}
