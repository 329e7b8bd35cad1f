//go:build unix

package transport_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/CreatorDev/creator-wifire-app-sub001/transport"
)

func TestClassifyErrno(t *testing.T) {
	wrap := func(errno unix.Errno) error {
		return fmt.Errorf("read tcp: %w", os.NewSyscallError("read", errno))
	}

	require.Equal(t, transport.KindConnectionReset, transport.Classify(wrap(unix.ECONNRESET)))
	require.Equal(t, transport.KindConnectionReset, transport.Classify(wrap(unix.EPIPE)))
	require.Equal(t, transport.KindConnectionClosed, transport.Classify(wrap(unix.EBADF)))
	require.Equal(t, transport.KindWouldBlock, transport.Classify(wrap(unix.EAGAIN)))
	require.Equal(t, transport.KindTimeout, transport.Classify(wrap(unix.ETIMEDOUT)))
	require.Equal(t, transport.KindUnspecified, transport.Classify(wrap(unix.ENOMEM)))
}
