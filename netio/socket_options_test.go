package netio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestApplySockOptsSetsEachOption(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.NoError(t, applySockOpts(fds[0], optNonblocking()))

	flags, err := unix.FcntlInt(uintptr(fds[0]), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)
}

func TestApplySockOptsStopsAtFirstFailure(t *testing.T) {
	var secondRan bool
	first := sockOpt{"BAD_OPT", func(fd int) error { return unix.EBADF }}
	second := sockOpt{"NEVER_RUNS", func(fd int) error { secondRan = true; return nil }}

	err := applySockOpts(-1, first, second)
	assert.Error(t, err)
	assert.False(t, secondRan)
}
