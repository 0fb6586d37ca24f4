//go:build windows

package ipc

import (
	"context"
	"fmt"
	"net"
	"time"

	"gopkg.in/natefinch/npipe.v2"

	"github.com/PizzaHomicide/playcore/internal/log"
)

// Dial connects to the named pipe at path
func Dial(ctx context.Context, path string) (net.Conn, error) {
	log.Debug("Connecting to Windows named pipe", "path", path)

	var (
		conn *npipe.PipeConn
		err  error
	)
	if deadline, ok := ctx.Deadline(); ok {
		conn, err = npipe.DialTimeout(path, time.Until(deadline))
	} else {
		conn, err = npipe.Dial(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pipe: %w", err)
	}
	return conn, nil
}

// Listen creates the named pipe at path
func Listen(path string) (net.Listener, error) {
	l, err := npipe.Listen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on pipe: %w", err)
	}
	return l, nil
}

// Named pipes have no file to stat, so just try dialing
func socketReady(string) bool {
	return true
}
