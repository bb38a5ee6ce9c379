package netio

import "errors"

var (
	// ErrDNSConnectUnimplemented 对应源里"deliberately unimplemented"的
	// host+port 构造函数：一般化的 DNS 客户端连接不在这个核心的范围内。
	ErrDNSConnectUnimplemented = errors.New("netio: connect-by-host-port is deliberately unimplemented")

	// ErrReadInProgress / ErrWriteInProgress 对应"每个方向最多一个活跃操作"不变式。
	ErrReadInProgress  = errors.New("netio: a read is already in progress")
	ErrWriteInProgress = errors.New("netio: a write is already in progress")

	// ErrHalfClosed 表示对应方向已经被 shutdown，不能再发起新操作。
	ErrReadShutDown  = errors.New("netio: read half is shut down")
	ErrWriteShutDown = errors.New("netio: write half is shut down")

	// ErrNotInBufferedCallback 表示 AcceptBuffer 在缓冲回调之外被调用：契约
	// 违规，不是运行期条件，因此在调用点会被包成 panic 而不是返回值。
	ErrNotInBufferedCallback = errors.New("netio: AcceptBuffer called outside a buffered read callback")
)
