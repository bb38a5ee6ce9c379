// Package peekbuf 实现连接的 peek_buffer：一段有序字节序列，被 buffered 读
// 提供给回调预览，并在后续 exact 读发起新的系统调用之前被优先消费。
package peekbuf

// Buffer 是一个会按需增长的环形字节缓冲。调用方（netio.Connection）在自己的
// home goroutine 上串行访问，因此不需要内部锁。
type Buffer struct {
	buf      []byte
	mask     int
	readPos  int
	writePos int
}

// New 返回初始容量为 2 的幂次的缓冲；capacity<=0 时使用一个较小的默认值。
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 4096
	}
	capPow2 := 1
	for capPow2 < capacity {
		capPow2 <<= 1
	}
	return &Buffer{buf: make([]byte, capPow2), mask: capPow2 - 1}
}

func (b *Buffer) Cap() int { return len(b.buf) }

func (b *Buffer) Len() int { return b.writePos - b.readPos }

func (b *Buffer) Free() int { return b.Cap() - b.Len() }

// grow 确保至少有 n 字节的空闲空间，必要时把底层数组翻倍并重新排布已有数据。
func (b *Buffer) grow(n int) {
	if b.Free() >= n {
		return
	}
	newCap := b.Cap() * 2
	if newCap == 0 {
		newCap = 4096
	}
	for newCap-b.Len() < n {
		newCap *= 2
	}
	nb := make([]byte, newCap)
	copy(nb, b.Peek(b.Len()))
	length := b.Len()
	b.buf = nb
	b.mask = newCap - 1
	b.readPos = 0
	b.writePos = length
}

// Write 将数据追加到缓冲尾部，按需扩容，永不返回错误——peek_buffer 不是一个
// 有界的 SPSC 环，而是一段可以线性增长的读前缓冲。
func (b *Buffer) Write(p []byte) (int, error) {
	b.grow(len(p))
	n := len(p)
	start := b.writePos & b.mask
	end := start + n
	if end <= len(b.buf) {
		copy(b.buf[start:end], p)
	} else {
		l := len(b.buf) - start
		copy(b.buf[start:], p[:l])
		copy(b.buf[:end-l], p[l:])
	}
	b.writePos += n
	return n, nil
}

// Peek 读取最多 n 字节但不前进读指针；返回的切片可能是拷贝（跨越环边界时）。
func (b *Buffer) Peek(n int) []byte {
	if n <= 0 {
		return nil
	}
	ln := b.Len()
	if n > ln {
		n = ln
	}
	if n == 0 {
		return nil
	}
	start := b.readPos & b.mask
	end := start + n
	if end <= len(b.buf) {
		return b.buf[start:end]
	}
	buf := make([]byte, n)
	l := len(b.buf) - start
	copy(buf[:l], b.buf[start:])
	copy(buf[l:], b.buf[:end-l])
	return buf
}

// Discard 前进读指针，返回实际丢弃的字节数（不超过 Len）。
func (b *Buffer) Discard(n int) int {
	ln := b.Len()
	if n > ln {
		n = ln
	}
	b.readPos += n
	return n
}

// Drain 把最多 len(dst) 字节从缓冲头部复制进 dst 并丢弃，返回复制的字节数。
// 用于 read_exact 在发起新的系统调用之前优先排空 peek_buffer。
func (b *Buffer) Drain(dst []byte) int {
	n := copy(dst, b.Peek(len(dst)))
	b.Discard(n)
	return n
}
