// Package peertest is a minimal in-process peer-side responder for the
// table metadata client's RPC surface (§4.12). The real table-manager
// server mutates Raft-backed table state and republishes to the cluster
// directory; that server is out of scope. This package holds an
// in-memory table catalog per simulated peer, answers get_config/
// set_config/action mailbox sends, and republishes matching business
// cards into a shared tablemeta.Directory, driven purely by the
// mailbox/directory interfaces the client already consumes. It exists to
// exercise the client end-to-end in tests; it is not a production module.
package peertest

import (
	"errors"
	"sync"

	"github.com/latticedb/lattice/tablemeta"
)

// replyAddress is the concrete Address type peertest hands out; it is
// only ever compared for equality by the Broker itself.
type replyAddress uint64

// Broker is a process-local mailbox switchboard: every peertest.Responder
// registers its three mailboxes on one shared Broker, and every
// tablemeta.Client under test is configured with that Broker as its
// tablemeta.Transport.
type Broker struct {
	mu        sync.Mutex
	mailboxes map[tablemeta.Address]func(msg any)
	peers     map[tablemeta.PeerID]*peerState
	nextAddr  uint64
}

type peerState struct {
	once sync.Once
	ch   chan struct{}
}

// NewBroker constructs an empty broker.
func NewBroker() *Broker {
	return &Broker{
		mailboxes: make(map[tablemeta.Address]func(msg any)),
		peers:     make(map[tablemeta.PeerID]*peerState),
	}
}

// register allocates a permanent mailbox address bound to handler, used by
// Responder to publish its three role mailboxes.
func (b *Broker) register(handler func(msg any)) tablemeta.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextAddr++
	addr := replyAddress(b.nextAddr)
	b.mailboxes[addr] = handler
	return addr
}

// Send implements tablemeta.Transport. Delivery is asynchronous, like a
// real mailbox transport, so callers cannot accidentally rely on
// synchronous ordering with the sender.
func (b *Broker) Send(addr tablemeta.Address, msg any) error {
	b.mu.Lock()
	h, ok := b.mailboxes[addr]
	b.mu.Unlock()
	if !ok {
		return errors.New("peertest: send to unknown mailbox")
	}
	go h(msg)
	return nil
}

func (b *Broker) peerState(peer tablemeta.PeerID) *peerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps, ok := b.peers[peer]
	if !ok {
		ps = &peerState{ch: make(chan struct{})}
		b.peers[peer] = ps
	}
	return ps
}

// DisconnectWatcher implements tablemeta.Transport.
func (b *Broker) DisconnectWatcher(peer tablemeta.PeerID) <-chan struct{} {
	return b.peerState(peer).ch
}

// Disconnect simulates peer vanishing: every current and future
// DisconnectWatcher(peer) channel fires, and every mailbox that peer
// registered stops answering new sends immediately (in-flight goroutines
// already dispatched still run to completion, matching a real transport
// that can't unwind work already handed to the network).
func (b *Broker) Disconnect(peer tablemeta.PeerID) {
	ps := b.peerState(peer)
	ps.once.Do(func() { close(ps.ch) })
}

// NewReplyMailbox implements tablemeta.Transport: a one-shot mailbox
// delivering at most one reply, released by cancel.
func (b *Broker) NewReplyMailbox() (tablemeta.Address, <-chan any, func()) {
	ch := make(chan any, 1)
	var addr tablemeta.Address
	addr = b.register(func(msg any) {
		select {
		case ch <- msg:
		default:
		}
	})
	cancel := func() {
		b.mu.Lock()
		delete(b.mailboxes, addr)
		b.mu.Unlock()
	}
	return addr, ch, cancel
}
