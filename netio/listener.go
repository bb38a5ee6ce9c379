package netio

import (
	"golang.org/x/sys/unix"

	"github.com/latticedb/lattice/netio/poller"
)

// AcceptCallback receives every Connection produced by a Listener's accept
// loop. It is invoked synchronously, on the reactor's home goroutine, once
// per accepted descriptor.
type AcceptCallback interface {
	OnAccept(c *Connection)
}

// Listener owns exactly one bound, listening, nonblocking IPv4 TCP socket.
// A construction failure (port already in use, permission denied, ...)
// leaves the Listener in a permanently defunct state instead of returning
// an error, mirroring the source's bind_sockets_t: callers ask Err() once
// and decide whether a defunct listener among several bound ports is
// tolerable.
type Listener struct {
	fd      int
	port    int
	r       *Reactor
	cb      AcceptCallback
	defunct bool
	bindErr error
}

// NewListener binds and listens on the given port and registers with the
// reactor. Call SetCallback before returning control to the reactor's Run
// loop, or accepted connections will be silently dropped after being
// registered (matching the source's "callback may be set after
// construction" contract, minus the drop -- we still adopt the fd so the
// poller doesn't spin on level-triggered readability with nobody home).
func NewListener(r *Reactor, port int) *Listener {
	l := &Listener{r: r, port: port, fd: -1}
	fd, err := bindListenSocket(port)
	if err != nil {
		l.defunct = true
		l.bindErr = err
		r.log.Warnw("netio: listener bind failed, marking defunct", "port", port, "err", err)
		return l
	}
	l.fd = fd
	if err := r.adoptListener(l); err != nil {
		l.defunct = true
		l.bindErr = err
		_ = unix.Close(fd)
		l.fd = -1
		return l
	}
	return l
}

// Err returns the reason this listener is defunct, or nil if it is bound
// and listening.
func (l *Listener) Err() error { return l.bindErr }

// Defunct reports whether construction failed.
func (l *Listener) Defunct() bool { return l.defunct }

// Port returns the port this listener is bound to.
func (l *Listener) Port() int { return l.port }

// SetCallback installs the accept callback.
func (l *Listener) SetCallback(cb AcceptCallback) { l.cb = cb }

func bindListenSocket(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	// TCP_NODELAY on a listening socket has no effect on the socket itself,
	// but source sets it here deliberately so it is inherited verbatim on
	// platforms that copy listener sockopts into accepted sockets; we also
	// set it explicitly on each accepted fd below, so this is belt and
	// braces rather than load-bearing.
	if err := applySockOpts(fd, optReuseAddr(), optNoDelay()); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := applySockOpts(fd, optNonblocking()); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// onEvent drains the accept queue until it hits EAGAIN, exactly as the
// source's accept loop does for a level-triggered listening descriptor.
func (l *Listener) onEvent(mask poller.Mask) {
	if l.defunct {
		return
	}
	for {
		nfd, _, err := unix.Accept(l.fd)
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			if l.r.acceptTEC.IsTemporary(err) {
				continue
			}
			l.r.log.Warnw("netio: accept failed", "port", l.port, "err", err)
			if l.r.m != nil {
				l.r.m.acceptErrors.Inc()
			}
			continue
		}
		if err := applySockOpts(nfd, optNonblocking()); err != nil {
			l.r.log.Warnw("netio: accepted fd could not be set nonblocking, dropping", "err", err)
			_ = unix.Close(nfd)
			continue
		}
		_ = applySockOpts(nfd, optNoDelay())

		c := newConnection(nfd, l.r)
		if err := l.r.adopt(c); err != nil {
			l.r.log.Warnw("netio: failed to register accepted fd with poller, dropping", "err", err)
			_ = unix.Close(nfd)
			continue
		}
		if l.cb != nil {
			l.cb.OnAccept(c)
		}
	}
}

// Close unregisters and closes the listening descriptor. Unlike
// Connection.Close, failures here are returned rather than swallowed:
// a listener that won't close cleanly indicates a programming error, not
// an expected peer-driven race.
func (l *Listener) Close() error {
	if l.defunct || l.fd < 0 {
		return nil
	}
	l.r.forgetListener(l.fd)
	if err := l.r.pl.Unregister(l.fd); err != nil {
		return err
	}
	if err := unix.Shutdown(l.fd, unix.SHUT_RDWR); err != nil && err != unix.ENOTCONN {
		return err
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}
