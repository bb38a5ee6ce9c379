// Package home 实现 §5/§9 的“home 线程”约定：每个可变对象只允许在其注册所在
// 的 goroutine 上被修改，跨线程调用者必须先跳转（hop）到 home 线程，并让取消
// 信号在跳转之后依然可观察。
package home

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/latticedb/lattice/internal/gid"
)

// ErrClosed 表示目标 loop 已经停止接受新任务。
var ErrClosed = errors.New("home: loop closed")

// Affinity 是一个运行时断言：第一次 Bind 或 Check 会记录当前 goroutine 的 id
// (对应源里的 registration_thread 未注册哨兵)；此后每次 Check 都必须在同一个
// goroutine 上进行，否则说明调用方违反了 home-thread 约定。
type Affinity struct {
	id atomic.Uint64
}

// unregistered 是 id 字段的哨兵值；真实 goroutine id 从 1 开始，故 0 可安全复用。
const unregistered = 0

// Bind 显式把当前 goroutine 记录为 home 线程，供尚未发生过任何 I/O 的对象
// （例如刚创建、还没被 poller 派发过事件的 Connection）预先声明归属。
func (a *Affinity) Bind() {
	a.id.Store(gid.Current())
}

// Check 断言当前 goroutine 就是 home 线程；首次调用时惰性绑定。
func (a *Affinity) Check() {
	cur := gid.Current()
	if a.id.CompareAndSwap(unregistered, cur) {
		return
	}
	if got := a.id.Load(); got != cur {
		panic("home: object accessed from a goroutine other than its registration goroutine")
	}
}

// Owns 报告当前 goroutine 是否已经是记录中的 home 线程（未绑定时返回 false）。
func (a *Affinity) Owns() bool {
	return a.id.Load() == gid.Current() && a.id.Load() != unregistered
}

// Loop 是一个专职驱动单个资源（table 元数据客户端、目录镜像……）的事件循环
// goroutine，配合 Submit 实现“跳转到 home 线程”原语。
type Loop struct {
	tasks chan func()
	done  chan struct{}
	aff   Affinity
}

// NewLoop 启动一个新的 home 循环并立即返回；循环 goroutine 本身即为 home 线程。
func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	started := make(chan struct{})
	go l.run(started)
	<-started
	return l
}

func (l *Loop) run(started chan struct{}) {
	l.aff.Bind()
	close(started)
	for {
		select {
		case f := <-l.tasks:
			f()
		case <-l.done:
			return
		}
	}
}

// Submit 把 fn 提交到 loop 的 home goroutine 上执行，并阻塞到 fn 返回或者
// ctx 被取消为止；取消信号在跳转前后都可观察，对应源里的 cross_thread_signal_t。
// 若调用方本身已经在 home goroutine 上（例如一次 RPC 内部再次调用 Lookup),
// 直接同步调用 fn，避免自死锁。
func (l *Loop) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.aff.Owns() {
		return fn(ctx)
	}
	errCh := make(chan error, 1)
	task := func() { errCh <- fn(ctx) }
	select {
	case l.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止循环；已经排队但尚未执行的任务不会被丢弃是不保证的，调用方不应
// 在 Close 之后再依赖排队中的任务完成。
func (l *Loop) Close() {
	close(l.done)
}
