package server

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
)

// listen binds the game port. It prefers a single IPv6 socket with
// V6ONLY switched off so one listener serves both address families, and
// falls back to plain IPv4 on hosts without IPv6.
func listen(ctx context.Context, port int) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}
	ln, err := lc.Listen(ctx, "tcp6", fmt.Sprintf("[::]:%d", port))
	if err == nil {
		return ln, nil
	}
	logging.Warn(ctx, "ipv6 bind failed, falling back to ipv4", zap.Error(err))

	lc = net.ListenConfig{}
	ln, err = lc.Listen(ctx, "tcp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("binding port %d: %w", port, err)
	}
	return ln, nil
}
