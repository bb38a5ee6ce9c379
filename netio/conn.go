package netio

import (
	"golang.org/x/sys/unix"

	"github.com/latticedb/lattice/internal/home"
	"github.com/latticedb/lattice/netio/internal/peekbuf"
	"github.com/latticedb/lattice/netio/poller"
)

// ioChunk 是 read_buffered 每次向内核多要一点数据时使用的临时缓冲区大小。
const ioChunk = 64 << 10

// ReadMode / WriteMode 编码一个方向上"最多一个活跃操作"这一不变式。
type ReadMode uint8

const (
	ReadNone ReadMode = iota
	ReadExact
	ReadBuffered
)

type WriteMode uint8

const (
	WriteNone WriteMode = iota
	WriteExact
)

// ReadCallback 接收 read_exact 的完成通知。
type ReadCallback interface {
	OnReadExact()
	OnClose(err error)
}

// BufferedReadCallback 接收 read_buffered 的预读通知；回调可以在返回之前
// 调用一次 Connection.AcceptBuffer，声明消费了多少字节（可以是 0）并结束这次
// 读；也可以不调用就返回，表示拒绝这次 offer：peek 缓冲区原样保留，连接再读
// 一块数据后带着更多字节重新 offer。
type BufferedReadCallback interface {
	OnReadBuffered(c *Connection, data []byte)
	OnClose(err error)
}

// WriteCallback 接收 write_exact 的完成通知。
type WriteCallback interface {
	OnWriteExact()
	OnClose(err error)
}

// Connection 是一个非阻塞流套接字之上的读写状态机，只允许在其注册所在的
// goroutine（home 线程）上被驱动。它对应源里的 linux_nonthrowing_tcp_conn_t：
// 每个方向最多一个进行中的操作，另一个方向的失败通过独立的 on_close 通知。
type Connection struct {
	fd int
	r  *Reactor
	aff home.Affinity

	peek *peekbuf.Buffer

	readMode ReadMode
	readBuf  []byte
	readCB   ReadCallback

	bufferedCB   BufferedReadCallback
	inBufferedCB bool

	writeMode WriteMode
	writeBuf  []byte
	writeCB   WriteCallback

	readShutDown        bool
	writeShutDown       bool
	registeredForWrites bool

	// delSentinel 指向当前调度帧安装的删除哨兵；Close 在其非 nil 时把它
	// 置真，令外层调度帧在回调返回后立刻停止继续碰这个已经被释放的对象。
	delSentinel *bool
}

func newConnection(fd int, r *Reactor) *Connection {
	return &Connection{
		fd:   fd,
		r:    r,
		peek: peekbuf.New(4096),
	}
}

// enterDispatch 安装（或复用）本次调用链的删除哨兵，返回哨兵指针以及本次
// 调用是否是它的拥有者（拥有者负责在退出时清空 delSentinel 字段）。
func (c *Connection) enterDispatch() (del *bool, owned bool) {
	if c.delSentinel != nil {
		return c.delSentinel, false
	}
	v := false
	c.delSentinel = &v
	return &v, true
}

func (c *Connection) exitDispatch(owned bool) {
	if owned {
		c.delSentinel = nil
	}
}

// dispatch 是 Reactor 在收到该连接 fd 的就绪事件时调用的入口，对应
// 源里 event_listener_t::on_event 的可读/可写/出错分支。
func (c *Connection) dispatch(mask poller.Mask) {
	c.aff.Check()
	del, owned := c.enterDispatch()
	defer c.exitDispatch(owned)

	if mask.Has(poller.Readable) && !c.readShutDown {
		c.dispatchRead()
		if *del {
			return
		}
	}
	if mask.Has(poller.Writable) && !c.writeShutDown {
		c.dispatchWrite()
		if *del {
			return
		}
	}
	if mask.Has(poller.Err) {
		if mask.Has(poller.Hup) {
			// 对端已经明确挂断，读写路径会在各自下一次系统调用里返回 0
			// 或 ECONNRESET，不需要在这里强行级联关闭。
			return
		}
		c.r.log.Warnw("netio: descriptor reported an error condition", "fd", c.fd)
		c.onShutdownRead(errPollerErr)
		if *del {
			return
		}
		c.onShutdownWrite(errPollerErr)
	}
}

func (c *Connection) dispatchRead() {
	switch c.readMode {
	case ReadExact:
		c.pumpReadExact()
	case ReadBuffered:
		c.pumpReadBuffered()
	}
}

func (c *Connection) dispatchWrite() {
	if c.writeMode == WriteExact {
		c.pumpWriteExact()
	}
}

// ReadExact 请求恰好 len(buf) 字节，写满后调用 cb.OnReadExact；在此之前
// 到来的任何错误或 EOF 都会调用 cb.OnClose 并把读方向锁存为已关闭。
func (c *Connection) ReadExact(buf []byte, cb ReadCallback) error {
	c.aff.Check()
	if c.readShutDown {
		return ErrReadShutDown
	}
	if c.readMode != ReadNone {
		return ErrReadInProgress
	}
	c.readMode = ReadExact
	c.readCB = cb
	c.readBuf = buf
	if c.peek.Len() > 0 {
		n := c.peek.Drain(c.readBuf)
		c.readBuf = c.readBuf[n:]
	}
	c.pumpReadExact()
	return nil
}

func (c *Connection) pumpReadExact() {
	for len(c.readBuf) > 0 {
		n, err := unix.Read(c.fd, c.readBuf)
		switch {
		case n > 0:
			if c.r.m != nil {
				c.r.m.bytesRead.Add(float64(n))
			}
			c.readBuf = c.readBuf[n:]
			continue
		case err != nil:
			if c.r.ioTEC.IsTemporary(err) {
				return
			}
			c.failRead(err)
			return
		default: // n == 0, err == nil: 对端有序关闭了写方向
			c.failRead(nil)
			return
		}
	}
	cb := c.readCB
	c.readMode = ReadNone
	c.readCB = nil
	if cb != nil {
		cb.OnReadExact()
	}
}

// ReadBuffered 请求任意数量（可以是 0）的预读字节；cb.OnReadBuffered 被
// 调用时可以在返回前调用一次 c.AcceptBuffer(n) 接受，也可以不调用而拒绝
// （见 BufferedReadCallback）。如果调用时 peek 缓冲区里已经有残留数据，会
// 立即用现有数据发起一次 offer 而不等待新的可读事件。
func (c *Connection) ReadBuffered(cb BufferedReadCallback) error {
	c.aff.Check()
	if c.readShutDown {
		return ErrReadShutDown
	}
	if c.readMode != ReadNone {
		return ErrReadInProgress
	}
	c.readMode = ReadBuffered
	c.bufferedCB = cb
	c.pumpReadBuffered()
	return nil
}

func (c *Connection) pumpReadBuffered() {
	// 被拒绝的 offer 不会用同样的字节重复发起，要等读到更多数据之后再 offer。
	offer := c.peek.Len() > 0
	for {
		if c.readMode != ReadBuffered {
			return
		}
		if offer {
			if c.offerBuffered(c.peek.Peek(c.peek.Len())) {
				return
			}
			c.inBufferedCB = false
			offer = false
			continue
		}
		var tmp [ioChunk]byte
		n, err := unix.Read(c.fd, tmp[:])
		switch {
		case n > 0:
			c.peek.Write(tmp[:n])
			if c.r.m != nil {
				c.r.m.bytesRead.Add(float64(n))
			}
			offer = true
			continue
		case err != nil:
			if c.r.ioTEC.IsTemporary(err) {
				return
			}
			c.failRead(err)
			return
		default:
			c.failRead(nil)
			return
		}
	}
}

// offerBuffered 派发一次带缓冲的预读回调，报告连接是否已经在回调内被删除
// 或者该次预读是否已经被 AcceptBuffer 消费掉（两者都意味着调用方应停止
// 继续 pump）。
func (c *Connection) offerBuffered(data []byte) (done bool) {
	c.inBufferedCB = true
	del, owned := c.enterDispatch()
	cb := c.bufferedCB
	cb.OnReadBuffered(c, data)
	c.exitDispatch(owned)
	if *del {
		return true
	}
	return c.readMode != ReadBuffered
}

// AcceptBuffer 只能在 BufferedReadCallback.OnReadBuffered 内部调用：声明
// 消费了 n 字节（可以是 0），随后立刻允许在同一次回调返回之前发起下一次
// 读或写。
func (c *Connection) AcceptBuffer(n int) {
	c.aff.Check()
	if !c.inBufferedCB {
		panic(ErrNotInBufferedCallback)
	}
	c.peek.Discard(n)
	c.readMode = ReadNone
	c.bufferedCB = nil
	c.inBufferedCB = false
}

func (c *Connection) failRead(err error) {
	if err != nil && !isPeerCloseErrno(err) {
		c.r.log.Warnw("netio: unexpected read error, treating as peer close", "fd", c.fd, "err", err)
	}
	c.onShutdownRead(err)
}

// WriteExact 请求把 buf 完整写出，完成后调用 cb.OnWriteExact。写不满时
// 会打开可写兴趣，等下一次可写事件恢复。
func (c *Connection) WriteExact(buf []byte, cb WriteCallback) error {
	c.aff.Check()
	if c.writeShutDown {
		return ErrWriteShutDown
	}
	if c.writeMode != WriteNone {
		return ErrWriteInProgress
	}
	c.writeMode = WriteExact
	c.writeCB = cb
	c.writeBuf = buf
	c.pumpWriteExact()
	return nil
}

func (c *Connection) pumpWriteExact() {
	for len(c.writeBuf) > 0 {
		n, err := unix.Write(c.fd, c.writeBuf)
		switch {
		case n > 0:
			if c.r.m != nil {
				c.r.m.bytesWritten.Add(float64(n))
			}
			c.writeBuf = c.writeBuf[n:]
			continue
		case err != nil:
			if c.r.ioTEC.IsTemporary(err) {
				c.enableWriteInterest()
				return
			}
			c.failWrite(err)
			return
		default:
			c.failWrite(errZeroWrite)
			return
		}
	}
	c.disableWriteInterest()
	cb := c.writeCB
	c.writeMode = WriteNone
	c.writeCB = nil
	if cb != nil {
		cb.OnWriteExact()
	}
}

func (c *Connection) enableWriteInterest() {
	if c.registeredForWrites {
		return
	}
	c.registeredForWrites = true
	if c.r.m != nil {
		c.r.m.writeToggles.Inc()
	}
	_ = c.r.pl.Mod(c.fd, !c.readShutDown, true)
}

func (c *Connection) disableWriteInterest() {
	if !c.registeredForWrites {
		return
	}
	c.registeredForWrites = false
	_ = c.r.pl.Mod(c.fd, !c.readShutDown, false)
}

func (c *Connection) failWrite(err error) {
	if !isHardWriteErrno(err) {
		c.r.log.Warnw("netio: unexpected write error, treating as hard failure", "fd", c.fd, "err", err)
	}
	c.onShutdownWrite(err)
}

// ShutdownRead 半关闭读方向；对已经关闭的读方向是幂等的。
func (c *Connection) ShutdownRead() {
	c.aff.Check()
	if c.readShutDown {
		return
	}
	if err := unix.Shutdown(c.fd, unix.SHUT_RD); err != nil && err != unix.ENOTCONN {
		c.r.log.Warnw("netio: shutdown(SHUT_RD) failed", "fd", c.fd, "err", err)
	}
	c.onShutdownRead(nil)
}

// ShutdownWrite 半关闭写方向；对已经关闭的写方向是幂等的。
func (c *Connection) ShutdownWrite() {
	c.aff.Check()
	if c.writeShutDown {
		return
	}
	if err := unix.Shutdown(c.fd, unix.SHUT_WR); err != nil && err != unix.ENOTCONN {
		c.r.log.Warnw("netio: shutdown(SHUT_WR) failed", "fd", c.fd, "err", err)
	}
	c.onShutdownWrite(nil)
}

// onShutdownRead 是读方向关闭的唯一锁存点：不论触发源是显式 ShutdownRead
// 还是一次失败的读，都在这里统一更新 poller 兴趣并通知当时活跃的回调。
func (c *Connection) onShutdownRead(err error) {
	if c.readShutDown {
		return
	}
	c.readShutDown = true
	c.updatePollerInterest()

	switch c.readMode {
	case ReadExact:
		cb := c.readCB
		c.readMode, c.readCB = ReadNone, nil
		if cb != nil {
			cb.OnClose(err)
		}
	case ReadBuffered:
		cb := c.bufferedCB
		c.readMode, c.bufferedCB, c.inBufferedCB = ReadNone, nil, false
		if cb != nil {
			cb.OnClose(err)
		}
	}
}

func (c *Connection) onShutdownWrite(err error) {
	if c.writeShutDown {
		return
	}
	c.writeShutDown = true
	c.registeredForWrites = false
	c.updatePollerInterest()

	if c.writeMode == WriteExact {
		cb := c.writeCB
		c.writeMode, c.writeCB = WriteNone, nil
		if cb != nil {
			cb.OnClose(err)
		}
	}
}

// updatePollerInterest 让底层 poller 注册的兴趣跟上 read/write 的关闭状态：
// 两个方向都关闭后彻底注销，否则保留尚未关闭方向的兴趣（写兴趣只在真正
// 阻塞过一次之后才打开，见 enableWriteInterest）。
func (c *Connection) updatePollerInterest() {
	if c.readShutDown && c.writeShutDown {
		_ = c.r.pl.Unregister(c.fd)
		return
	}
	readable := !c.readShutDown
	writable := !c.writeShutDown && c.registeredForWrites
	_ = c.r.pl.Mod(c.fd, readable, writable)
}

// Close 是这个连接的析构点：如果调用时正处在这个连接自身回调的调用栈中
// （比如回调决定自毁），会先标记当前调度帧的删除哨兵，让外层帧安全地
// 提前返回，再要求两个方向此前都已经完成半关闭（不满足即视为契约违规）。
func (c *Connection) Close() error {
	if c.delSentinel != nil {
		*c.delSentinel = true
	}
	if c.fd < 0 {
		return nil
	}
	if !c.readShutDown || !c.writeShutDown {
		panic("netio: Connection.Close called before both directions were shut down")
	}
	c.r.forget(c.fd)
	err := unix.Close(c.fd)
	c.fd = -1
	if c.r.m != nil {
		c.r.m.connsClosed.Inc()
	}
	return err
}
