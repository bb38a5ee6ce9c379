package netio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// sockOpt bundles one setsockopt call with a name, so a failure can be
// reported as "which option" rather than a bare errno.
type sockOpt struct {
	name string
	set  func(fd int) error
}

func optReuseAddr() sockOpt {
	return sockOpt{"SO_REUSEADDR", func(fd int) error {
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}}
}

func optNoDelay() sockOpt {
	return sockOpt{"TCP_NODELAY", func(fd int) error {
		return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}}
}

func optNonblocking() sockOpt {
	return sockOpt{"O_NONBLOCK", func(fd int) error {
		return unix.SetNonblock(fd, true)
	}}
}

// applySockOpts runs each option against fd in order, stopping at the
// first failure.
func applySockOpts(fd int, opts ...sockOpt) error {
	for _, o := range opts {
		if err := o.set(fd); err != nil {
			return fmt.Errorf("netio: setsockopt %s: %w", o.name, err)
		}
	}
	return nil
}
