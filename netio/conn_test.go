package netio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/latticedb/lattice/netio/poller"
)

// fakePoller lets a Connection's Mod/Register/Unregister calls be
// observed synchronously in a test without a real epoll/kqueue fd, since
// exercising the write-interest toggle only needs to see what mask was
// requested, not an actual readiness notification.
type fakePoller struct {
	registered map[int]struct{ r, w bool }
}

func newFakePoller() *fakePoller {
	return &fakePoller{registered: make(map[int]struct{ r, w bool })}
}

func (p *fakePoller) Register(fd poller.FD, readable, writable bool) error {
	p.registered[fd] = struct{ r, w bool }{readable, writable}
	return nil
}
func (p *fakePoller) Mod(fd poller.FD, readable, writable bool) error {
	p.registered[fd] = struct{ r, w bool }{readable, writable}
	return nil
}
func (p *fakePoller) Unregister(fd poller.FD) error {
	delete(p.registered, fd)
	return nil
}
func (p *fakePoller) Run(t poller.Target) error   { return nil }
func (p *fakePoller) Wake() error                 { return nil }
func (p *fakePoller) Close() error                { return nil }
func (p *fakePoller) EdgeTriggered() bool         { return false }

func newTestReactor() (*Reactor, *fakePoller) {
	fp := newFakePoller()
	return NewReactor(fp), fp
}

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}

type recordingReadCB struct {
	done   chan struct{}
	closed error
}

func (r *recordingReadCB) OnReadExact()      { close(r.done) }
func (r *recordingReadCB) OnClose(err error) { r.closed = err; close(r.done) }

// TestReadExactDrainsPeekBufferFirst covers §8 scenario 1: bytes already
// sitting in the peek buffer from a prior buffered read must be handed
// back before any new syscall is issued, and in the same order they
// arrived on the wire.
func TestReadExactDrainsPeekBufferFirst(t *testing.T) {
	r, _ := newTestReactor()
	a, b := socketpair(t)
	defer unix.Close(b)

	c := newConnection(a, r)
	require.NoError(t, r.adopt(c))

	_, err := unix.Write(b, []byte("hello-world"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	bufCB := &recordingBufferedCB{done: make(chan struct{}, 1)}
	require.NoError(t, c.ReadBuffered(bufCB))
	c.dispatchRead()
	<-bufCB.done
	assert.Equal(t, "hello-world"[:bufCB.acceptedLen], string(bufCB.gotData[:bufCB.acceptedLen]))

	remaining := c.peek.Len()
	require.Greater(t, remaining, 0)

	out := make([]byte, remaining)
	rd := &recordingReadCB{done: make(chan struct{}, 1)}
	require.NoError(t, c.ReadExact(out, rd))
	<-rd.done
	assert.Equal(t, "hello-world"[len("hello-world")-remaining:], string(out))
}

type recordingBufferedCB struct {
	done        chan struct{}
	gotData     []byte
	acceptedLen int
}

func (r *recordingBufferedCB) OnReadBuffered(c *Connection, data []byte) {
	r.gotData = append([]byte(nil), data...)
	r.acceptedLen = len(data) / 2
	if r.acceptedLen == 0 && len(data) > 0 {
		r.acceptedLen = 1
	}
	c.AcceptBuffer(r.acceptedLen)
	select {
	case r.done <- struct{}{}:
	default:
	}
}
func (r *recordingBufferedCB) OnClose(err error) {
	select {
	case r.done <- struct{}{}:
	default:
	}
}

// TestWriteInterestTogglesOnWouldBlock covers §8's writable-toggling
// invariant: a write that can't complete in one shot must switch the
// poller registration to include writable interest, and switch it back
// off once the write finishes.
func TestWriteInterestTogglesOnWouldBlock(t *testing.T) {
	r, fp := newTestReactor()
	a, b := socketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	c := newConnection(a, r)
	require.NoError(t, r.adopt(c))

	assert.False(t, fp.registered[a].w)

	// Fill the kernel send buffer so the next write can't complete in one
	// shot without the peer ever reading.
	big := make([]byte, 8<<20)
	cb := &recordingWriteCB{done: make(chan struct{}, 1)}
	err := c.WriteExact(big, cb)
	require.NoError(t, err)

	assert.True(t, c.registeredForWrites)
	assert.True(t, fp.registered[a].w)

	// Drain the peer until the write completes; the writable interest must
	// then be switched back off.
	sink := make([]byte, 1<<20)
	deadline := time.Now().Add(5 * time.Second)
	for c.writeMode != WriteNone && time.Now().Before(deadline) {
		if _, rerr := unix.Read(b, sink); rerr != nil && rerr != unix.EAGAIN {
			require.NoError(t, rerr)
		}
		c.dispatchWrite()
	}
	require.Equal(t, WriteNone, c.writeMode)
	assert.False(t, c.registeredForWrites)
	assert.False(t, fp.registered[a].w)
}

type recordingWriteCB struct {
	done chan struct{}
}

func (r *recordingWriteCB) OnWriteExact() {
	select {
	case r.done <- struct{}{}:
	default:
	}
}
func (r *recordingWriteCB) OnClose(err error) {
	select {
	case r.done <- struct{}{}:
	default:
	}
}

// TestReentrantSelfDeleteFromBufferedCallback covers §8 scenario 3: a
// buffered callback that closes its own connection must not cause the
// outer dispatch to touch the connection again afterward.
func TestReentrantSelfDeleteFromBufferedCallback(t *testing.T) {
	r, _ := newTestReactor()
	a, b := socketpair(t)
	defer unix.Close(b)

	c := newConnection(a, r)
	require.NoError(t, r.adopt(c))

	selfDeleting := &selfDeletingBufferedCB{}
	require.NoError(t, c.ReadBuffered(selfDeleting))

	_, err := unix.Write(b, []byte("x"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	assert.NotPanics(t, func() {
		c.dispatch(poller.Readable)
	})
	assert.True(t, selfDeleting.called)
}

type selfDeletingBufferedCB struct {
	called bool
}

func (s *selfDeletingBufferedCB) OnReadBuffered(c *Connection, data []byte) {
	s.called = true
	c.AcceptBuffer(len(data))
	c.ShutdownRead()
	c.ShutdownWrite()
	_ = c.Close()
}
func (s *selfDeletingBufferedCB) OnClose(err error) {}
