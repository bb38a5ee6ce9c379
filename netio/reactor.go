// Package netio 是单线程、非阻塞的连接与监听器引擎：一个瘦的 Poller Adapter
// 之上，Connection 支持精确大小读、带缓冲的预读、精确大小写以及按方向的半关闭，
// Listener 拥有一个监听描述符并把每个 accept 到的描述符交给回调包装成新连接。
//
// 整个包假定单线程协作式调度：一个 Reactor 绑定一个 poller.Poller，在自己专属
// 的 goroutine 上跑事件循环；这个 goroutine 就是它名下所有 Connection 和
// Listener 的 home 线程（§5）。
package netio

import (
	temperrcatcher "github.com/jbenet/go-temp-err-catcher"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/latticedb/lattice/netio/poller"
)

// Reactor 把 poller 的就绪事件按 fd 分发给持有该 fd 的 Connection 或
// Listener。它自己不加锁：conns/listeners 只会在拥有它的那个事件循环
// goroutine 上被访问，这正是 home 线程模型所要求的。
type Reactor struct {
	pl        poller.Poller
	conns     map[int]*Connection
	listeners map[int]*Listener

	log        *zap.SugaredLogger
	m          *metrics
	acceptTEC  temperrcatcher.TempErrCatcher
	ioTEC      temperrcatcher.TempErrCatcher
}

// ReactorOption 定制 Reactor 及其名下 Connection/Listener 的可观测性行为。
type ReactorOption func(*Reactor)

// WithLogger 注入结构化日志器；未提供时使用一个无操作 logger。
func WithLogger(l *zap.Logger) ReactorOption {
	return func(r *Reactor) {
		if l != nil {
			r.log = l.Sugar()
		}
	}
}

// WithMetrics 打开 Prometheus 指标并注册到 reg（传 nil 等价于不注册，
// 计数器仍然会在内存里累积）。
func WithMetrics(reg prometheus.Registerer, namespace string) ReactorOption {
	return func(r *Reactor) {
		r.m = newMetrics(reg, namespace)
	}
}

// NewReactor 构造一个绑定给定 poller 的反应器。
func NewReactor(pl poller.Poller, opts ...ReactorOption) *Reactor {
	r := &Reactor{
		pl:        pl,
		conns:     make(map[int]*Connection),
		listeners: make(map[int]*Listener),
		log:       zap.NewNop().Sugar(),
		m:         noopMetrics(),
	}
	r.acceptTEC = temperrcatcher.TempErrCatcher{IsTemp: isTransientAcceptErrno}
	r.ioTEC = temperrcatcher.TempErrCatcher{IsTemp: isWouldBlock}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnEvent 实现 poller.Target；它是 Run 循环调用的唯一入口。
func (r *Reactor) OnEvent(fd poller.FD, mask poller.Mask) {
	if l, ok := r.listeners[fd]; ok {
		l.onEvent(mask)
		return
	}
	if c, ok := r.conns[fd]; ok {
		c.dispatch(mask)
	}
}

// Run 驱动底层 poller 的事件循环；调用 goroutine 即成为本反应器名下所有
// 资源的 home 线程。
func (r *Reactor) Run() error { return r.pl.Run(r) }

// Wake 从其他 goroutine 唤醒 Run 所在的事件循环（例如用于触发关闭）。
func (r *Reactor) Wake() error { return r.pl.Wake() }

// Close 停止底层 poller；不会遍历关闭已注册的连接/监听器，调用方须自行
// 先完成各自的半关闭+Close。
func (r *Reactor) Close() error { return r.pl.Close() }

// adopt 把一个已经拥有 fd 的 Connection 注册进 poller 并记录到 fd 表；
// 这一步即 registration_thread 的绑定点。
func (r *Reactor) adopt(c *Connection) error {
	c.aff.Bind()
	r.conns[c.fd] = c
	if err := r.pl.Register(c.fd, true, false); err != nil {
		return err
	}
	if r.m != nil {
		r.m.connsOpened.Inc()
	}
	return nil
}

// forget 从 fd 表移除一个 Connection；不会触碰 poller 注册（调用方在
// shutdown 路径里已经处理过 Unregister）。
func (r *Reactor) forget(fd int) {
	delete(r.conns, fd)
}

// adoptListener 类似 adopt，但用于 Listener 的监听描述符。
func (r *Reactor) adoptListener(l *Listener) error {
	r.listeners[l.fd] = l
	return r.pl.Register(l.fd, true, false)
}

func (r *Reactor) forgetListener(fd int) {
	delete(r.listeners, fd)
}
