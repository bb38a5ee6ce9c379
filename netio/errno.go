package netio

import (
	"errors"

	"golang.org/x/sys/unix"
)

// errZeroWrite 标记 write(2) 返回 0 且未报错的反常情况；源里把它当作硬失败处理。
var errZeroWrite = errors.New("netio: write(2) returned 0 without an error")

// errPollerErr 是 EPOLLERR/kqueue EV_ERROR 单独出现（没有配对 EOF）时合成的
// 关闭原因；对应 §4.3 on_event 里"只有 err"的分支。
var errPollerErr = errors.New("netio: poller reported an error condition on the descriptor")

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// isPeerCloseErrno 判断一个 read(2) 错误是否属于"对端悄悄消失"这一类，
// 值得静默处理而不是记警告日志。
func isPeerCloseErrno(err error) bool {
	return errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.ENOTCONN) ||
		errors.Is(err, unix.ETIMEDOUT)
}

// isHardWriteErrno 判断一个 write(2) 错误是否属于预期内的连接失效，同样
// 不值得记警告日志。
func isHardWriteErrno(err error) bool {
	if errors.Is(err, errZeroWrite) {
		return true
	}
	return errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ENOTCONN) ||
		errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.EHOSTUNREACH) ||
		errors.Is(err, unix.ENETDOWN) || errors.Is(err, unix.EHOSTDOWN)
}

// isTransientAcceptErrno 是 accept(2) 循环里"不记日志、直接继续拉取下一个"
// 的错误集合：这些都是对端在三次握手完成之前就消失或者路由抖动造成的，跟
// EAGAIN 的"暂时没有更多连接"是两回事，因此不能直接复用 isWouldBlock。这
// 个谓词被喂给一个独立配置的 go-temp-err-catcher 实例（见 Reactor.acceptTEC）。
func isTransientAcceptErrno(err error) bool {
	switch {
	case errors.Is(err, unix.EPROTO),
		errors.Is(err, unix.ENOPROTOOPT),
		errors.Is(err, unix.ENETDOWN),
		errors.Is(err, unix.ENONET),
		errors.Is(err, unix.ENETUNREACH),
		errors.Is(err, unix.EINTR):
		return true
	}
	return false
}
