// Package networking provides utilities for network operations,
// such as finding available localhost ports for callback listeners.
package networking

import (
	"errors"
	"fmt"
	"net"

	"github.com/entralite/entralite/pkg/logger"
)

const (
	// CallbackPortStart is the first port probed for the OAuth callback listener.
	CallbackPortStart = 3000
	// CallbackPortEnd is the last port probed for the OAuth callback listener.
	CallbackPortEnd = 3010
)

// ErrNoPortAvailable is returned when every port in the probed range is bound.
var ErrNoPortAvailable = errors.New("no available port in range")

// ProbeFunc reports whether a port on localhost can be bound. It exists so
// port selection can be tested without touching real sockets.
type ProbeFunc func(port int) bool

// IsAvailable checks if a port is available by binding it and immediately
// releasing it.
func IsAvailable(port int) bool {
	tcpAddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}

	tcpListener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return false
	}
	if err := tcpListener.Close(); err != nil {
		// Log the error but continue, as we're just checking if the port is available
		logger.Warnf("Failed to close TCP listener while probing port %d: %v", port, err)
	}

	return true
}

// FindAvailablePort probes ports sequentially in [start, end] and returns the
// first one that can be bound. A nil probe uses IsAvailable. Returns
// ErrNoPortAvailable when the whole range is exhausted.
func FindAvailablePort(start, end int, probe ProbeFunc) (int, error) {
	if probe == nil {
		probe = IsAvailable
	}
	if start <= 0 || end < start {
		return 0, fmt.Errorf("invalid port range %d-%d", start, end)
	}

	for port := start; port <= end; port++ {
		if probe(port) {
			logger.Debugf("Selected available port %d for callback listener", port)
			return port, nil
		}
		logger.Debugf("Port %d is in use, trying next", port)
	}

	return 0, fmt.Errorf("%w %d-%d", ErrNoPortAvailable, start, end)
}
