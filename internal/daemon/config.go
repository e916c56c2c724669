// Package daemon runs amanfind as a background service. The daemon owns
// one engine: it keeps every container current with the file watcher and
// answers CLI queries over a Unix socket, so searches skip loading the
// model and opening the store.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config locates the daemon's socket and PID file.
type Config struct {
	SocketPath string
	PIDPath    string

	// Timeout bounds one client request, including the search itself.
	Timeout time.Duration

	// ShutdownGracePeriod is how long Stop waits for the process to exit.
	ShutdownGracePeriod time.Duration
}

// DefaultConfig places the socket and PID file in dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		SocketPath:          filepath.Join(dataDir, "daemon.sock"),
		PIDPath:             filepath.Join(dataDir, "daemon.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directories of the socket and PID file.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
