// Package gid 提供一个仅用于契约断言的当前 goroutine id 读取器。
//
// 源实现在每个可变对象上运行时断言 home_thread()；Go 没有编译期的
// non-Send 标记，因此我们退而求其次，在调试断言里解析 runtime.Stack 的
// "goroutine N [...]" 前缀来获得一个可比较的执行体身份。它只被 home.Affinity
// 使用：Bind/Check 用它记录和断言 home 线程，Owns 用它判断调用方是否已在
// home 线程上（home.Loop.Submit 据此决定是否直接同步执行）。
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current 返回调用者所在 goroutine 的 id。
func Current() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if idx := bytes.IndexByte(b, ' '); idx >= 0 {
		b = b[:idx]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
