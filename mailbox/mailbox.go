// Package mailbox is the wire-transport binding for tablemeta.Transport
// (§4.13): it opens one netio.Connection per peer, frames each send with
// a zstd-compressed length-prefixed frame (frame.go), and gob-encodes
// the payload. It is the real-network counterpart of tablemeta/peertest's
// in-process broker.
package mailbox

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/latticedb/lattice/netio"
	"github.com/latticedb/lattice/tablemeta"
)

// Address is the concrete tablemeta.Address this package hands out:
// enough to route a Send both to the right peer connection and to the
// right mailbox once delivered.
type Address struct {
	Peer    tablemeta.PeerID
	Mailbox uint64
}

func init() {
	gob.Register(Address{})
	gob.Register(tablemeta.ActionRequest{})
	gob.Register(tablemeta.ActionReply{})
	gob.Register(tablemeta.GetConfigRequest{})
	gob.Register(tablemeta.GetConfigReply{})
	gob.Register(tablemeta.SetConfigRequest{})
	gob.Register(tablemeta.SetConfigReply{})
}

type wireEnvelope struct {
	Mailbox uint64
	Msg     any
}

// PeerLocator resolves where to dial a peer that mailbox has not yet
// connected to. Left as a small interface (rather than a fixed registry)
// because how peers advertise their listen address is outside this
// core's scope (§1) — a real deployment plugs in whatever discovery it
// already has.
type PeerLocator interface {
	Locate(peer tablemeta.PeerID) (ip string, port int, ok bool)
}

// Manager implements tablemeta.Transport over real netio connections.
type Manager struct {
	self    tablemeta.PeerID
	reactor *netio.Reactor
	locator PeerLocator
	frames  *frameCodec
	log     *zap.SugaredLogger

	mu          sync.Mutex
	peers       map[tablemeta.PeerID]*peerLink
	mailboxes   map[uint64]func(msg any)
	nextMailbox atomic.Uint64
}

// NewManager builds a Manager driven by reactor's event loop; every
// Connection it dials or accepts is adopted onto that same reactor, so
// all of mailbox's own state is only ever touched from the reactor's
// home thread except for the parts explicitly guarded by mu (mailbox
// registration and the peer table, which callers may touch from
// tablemeta's own home thread when sending).
func NewManager(self tablemeta.PeerID, reactor *netio.Reactor, locator PeerLocator, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		self:      self,
		reactor:   reactor,
		locator:   locator,
		frames:    newFrameCodec(),
		log:       log.Sugar(),
		peers:     make(map[tablemeta.PeerID]*peerLink),
		mailboxes: make(map[uint64]func(msg any)),
	}
}

// Accept adopts an already-accepted connection (from a netio.Listener's
// on_accept) as the link for peer. Used on the server side, where the
// remote end dialed us rather than the reverse.
func (m *Manager) Accept(peer tablemeta.PeerID, c *netio.Connection) {
	link := newPeerLink(m, peer, c)
	m.mu.Lock()
	m.peers[peer] = link
	m.mu.Unlock()
	link.startReading()
}

func (m *Manager) linkFor(peer tablemeta.PeerID) (*peerLink, error) {
	m.mu.Lock()
	link, ok := m.peers[peer]
	m.mu.Unlock()
	if ok {
		return link, nil
	}

	if m.locator == nil {
		return nil, fmt.Errorf("mailbox: no connection to peer %s and no locator configured", peer)
	}
	ip, port, ok := m.locator.Locate(peer)
	if !ok {
		return nil, fmt.Errorf("mailbox: cannot locate peer %s", peer)
	}
	conn, err := netio.Connect(m.reactor, ip, port)
	if err != nil {
		return nil, err
	}
	link = newPeerLink(m, peer, conn)

	m.mu.Lock()
	if existing, raced := m.peers[peer]; raced {
		m.mu.Unlock()
		// Lost the race to dial this peer first; drop the redundant
		// connection rather than leaking the fd. Nothing was ever read or
		// written on it; both halves are shut down here because Close
		// requires that first.
		conn.ShutdownRead()
		conn.ShutdownWrite()
		_ = conn.Close()
		return existing, nil
	}
	m.peers[peer] = link
	m.mu.Unlock()

	link.startReading()
	return link, nil
}

func (m *Manager) forgetPeer(peer tablemeta.PeerID) {
	m.mu.Lock()
	delete(m.peers, peer)
	m.mu.Unlock()
}

// registerMailbox allocates a mailbox id bound to handler; the handler
// runs on whatever goroutine drained the owning connection's read
// buffer, i.e. the reactor's home thread.
func (m *Manager) registerMailbox(handler func(msg any)) uint64 {
	id := m.nextMailbox.Add(1)
	m.mu.Lock()
	m.mailboxes[id] = handler
	m.mu.Unlock()
	return id
}

func (m *Manager) unregisterMailbox(id uint64) {
	m.mu.Lock()
	delete(m.mailboxes, id)
	m.mu.Unlock()
}

func (m *Manager) dispatch(id uint64, msg any) {
	m.mu.Lock()
	h, ok := m.mailboxes[id]
	m.mu.Unlock()
	if ok {
		h(msg)
	}
}

// RegisterMailbox exposes a permanent mailbox address on this manager,
// e.g. for the three role mailboxes a real table-manager server answers.
func (m *Manager) RegisterMailbox(handler func(msg any)) tablemeta.Address {
	return Address{Peer: m.self, Mailbox: m.registerMailbox(handler)}
}

// Send implements tablemeta.Transport.
func (m *Manager) Send(addr tablemeta.Address, msg any) error {
	a, ok := addr.(Address)
	if !ok {
		return fmt.Errorf("mailbox: address of wrong type %T", addr)
	}

	if a.Peer == m.self {
		m.dispatch(a.Mailbox, msg)
		return nil
	}

	link, err := m.linkFor(a.Peer)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wireEnvelope{Mailbox: a.Mailbox, Msg: msg}); err != nil {
		return err
	}
	frame, err := m.frames.encode(buf.Bytes())
	if err != nil {
		return err
	}
	link.enqueue(frame)
	return nil
}

// DisconnectWatcher implements tablemeta.Transport. Callers (fan-out RPCs)
// install this before the matching Send, so it dials lazily the same way
// linkFor does rather than reporting a not-yet-dialed peer as already
// disconnected.
func (m *Manager) DisconnectWatcher(peer tablemeta.PeerID) <-chan struct{} {
	link, err := m.linkFor(peer)
	if err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return link.disconnected
}

// NewReplyMailbox implements tablemeta.Transport: a one-shot mailbox
// that self-unregisters after either its single reply arrives or cancel
// is called, whichever happens first.
func (m *Manager) NewReplyMailbox() (tablemeta.Address, <-chan any, func()) {
	ch := make(chan any, 1)
	var id uint64
	id = m.registerMailbox(func(msg any) {
		select {
		case ch <- msg:
		default:
		}
		m.unregisterMailbox(id)
	})
	addr := Address{Peer: m.self, Mailbox: id}
	cancel := func() { m.unregisterMailbox(id) }
	return addr, ch, cancel
}
