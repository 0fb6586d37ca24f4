//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/PizzaHomicide/playcore/internal/log"
)

// Dial connects to the unix domain socket at path
func Dial(ctx context.Context, path string) (net.Conn, error) {
	log.Debug("Connecting to Unix socket", "path", path)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	return conn, nil
}

// Listen creates a unix domain socket at path, replacing a stale socket file left behind by a previous run
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on socket: %w", err)
	}
	return l, nil
}

func socketReady(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
