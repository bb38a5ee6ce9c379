package netio

import (
	"net"

	"golang.org/x/sys/unix"
)

// Connect opens an outbound nonblocking TCP connection to ip:port and
// adopts it into r as a Connection, mirroring the accept path in
// listener.go: same socket options, same adoption sequence, just dialing
// instead of accepting. ip must already be a resolved IPv4/IPv6 literal;
// resolving a hostname is the "generalized DNS client-side connect"
// explicitly out of scope (§1), so passing a hostname here returns
// ErrDNSConnectUnimplemented instead of silently calling into the
// resolver.
func Connect(r *Reactor, ip string, port int) (*Connection, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return nil, ErrDNSConnectUnimplemented
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if v4 := addr.To4(); v4 != nil {
		var sa4 unix.SockaddrInet4
		sa4.Port = port
		copy(sa4.Addr[:], v4)
		sa = &sa4
	} else {
		domain = unix.AF_INET6
		var sa6 unix.SockaddrInet6
		sa6.Port = port
		copy(sa6.Addr[:], addr.To16())
		sa = &sa6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	if err := applySockOpts(fd, optNonblocking(), optNoDelay()); err != nil {
		unix.Close(fd)
		return nil, err
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, err
	}

	c := newConnection(fd, r)
	if err := r.adopt(c); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return c, nil
}
