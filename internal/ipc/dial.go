package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/PizzaHomicide/playcore/internal/log"
)

// SocketPath returns the default local socket address for name on this OS
func SocketPath(name string) string {
	if runtime.GOOS == "windows" {
		// Windows uses named pipes instead of unix sockets
		return `\\.\pipe\` + name
	}

	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, name)
	}
	return filepath.Join(os.TempDir(), name)
}

// DialRetry keeps trying to dial path until it succeeds, the attempts run out or ctx is done.  Used while waiting for a
// freshly started process to create its socket.
func DialRetry(ctx context.Context, path string, maxAttempts int, retryDelay time.Duration) (net.Conn, error) {
	log.Debug("Waiting for socket", "socket_path", path, "max_attempts", maxAttempts)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if socketReady(path) {
			conn, err := Dial(ctx, path)
			if err == nil {
				log.Debug("Connected to socket", "socket_path", path, "attempt", attempt)
				return conn, nil
			}
			log.Debug("Failed to connect to socket", "attempt", attempt, "error", err)
		} else {
			log.Debug("Socket does not exist yet", "attempt", attempt, "path", path)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
			// Continue and retry
		}
	}

	return nil, fmt.Errorf("failed to connect to %s after %d attempts", path, maxAttempts)
}
