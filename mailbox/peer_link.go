package mailbox

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/eapache/queue"

	"github.com/latticedb/lattice/netio"
	"github.com/latticedb/lattice/tablemeta"
)

// peerLink is one netio.Connection to one peer, plus the outbound
// backlog write_exact needs whenever a send arrives while a previous
// frame is still draining: netio.Connection permits only one write in
// flight per direction (§4.2), so anything past the first frame queues
// here until the in-flight write's OnWriteExact fires.
type peerLink struct {
	m    *Manager
	peer tablemeta.PeerID
	conn *netio.Connection

	mu      sync.Mutex
	backlog *queue.Queue
	writing bool

	disconnected chan struct{}
	closeOnce    sync.Once
}

func newPeerLink(m *Manager, peer tablemeta.PeerID, conn *netio.Connection) *peerLink {
	return &peerLink{
		m:            m,
		peer:         peer,
		conn:         conn,
		backlog:      queue.New(),
		disconnected: make(chan struct{}),
	}
}

func (l *peerLink) enqueue(frame []byte) {
	l.mu.Lock()
	if l.writing {
		l.backlog.Add(frame)
		l.mu.Unlock()
		return
	}
	l.writing = true
	l.mu.Unlock()
	l.write(frame)
}

func (l *peerLink) write(frame []byte) {
	if err := l.conn.WriteExact(frame, writeCB{l}); err != nil {
		l.m.log.Warnw("mailbox: write_exact rejected, dropping link", "peer", l.peer, "err", err)
		l.onDisconnect()
	}
}

// writeCB adapts peerLink to netio.WriteCallback.
type writeCB struct{ l *peerLink }

func (w writeCB) OnWriteExact() {
	l := w.l
	l.mu.Lock()
	if l.backlog.Length() == 0 {
		l.writing = false
		l.mu.Unlock()
		return
	}
	next := l.backlog.Remove().([]byte)
	l.mu.Unlock()
	l.write(next)
}

func (w writeCB) OnClose(err error) {
	w.l.onDisconnect()
}

func (l *peerLink) startReading() {
	if err := l.conn.ReadBuffered(readCB{l}); err != nil {
		l.m.log.Warnw("mailbox: read_buffered rejected, dropping link", "peer", l.peer, "err", err)
		l.onDisconnect()
	}
}

// readCB adapts peerLink to netio.BufferedReadCallback: every delivery
// of buffered bytes is handed to the frame parser, which may surface
// zero or more decoded envelopes before returning how much it consumed.
type readCB struct{ l *peerLink }

func (r readCB) OnReadBuffered(c *netio.Connection, data []byte) {
	l := r.l
	consumed, err := l.m.frames.parse(data, func(body []byte) error {
		var env wireEnvelope
		if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&env); err != nil {
			return err
		}
		l.m.dispatch(env.Mailbox, env.Msg)
		return nil
	})
	if err != nil {
		l.m.log.Warnw("mailbox: frame parse error, closing link", "peer", l.peer, "err", err)
		c.ShutdownRead()
		c.ShutdownWrite()
		return
	}
	if consumed == 0 {
		// Only a partial frame so far: decline the offer, so the
		// connection keeps the bytes and offers them again once more
		// have been read.
		return
	}
	c.AcceptBuffer(consumed)
	// AcceptBuffer ends this delivery (§4.1); re-arm from inside the
	// callback so the link keeps reading. A partial frame left behind is
	// offered to the new read at once and declined above.
	if err := c.ReadBuffered(r); err != nil {
		l.m.log.Warnw("mailbox: failed to re-arm read_buffered", "peer", l.peer, "err", err)
	}
}

func (r readCB) OnClose(err error) {
	r.l.onDisconnect()
}

func (l *peerLink) onDisconnect() {
	l.closeOnce.Do(func() {
		close(l.disconnected)
		l.m.forgetPeer(l.peer)
	})
}
