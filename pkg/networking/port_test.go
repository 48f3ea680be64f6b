package networking

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAvailablePort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		start     int
		end       int
		probe     ProbeFunc
		wantPort  int
		wantErr   error
		wantCalls int
	}{
		{
			name:     "first port free",
			start:    3000,
			end:      3010,
			probe:    func(int) bool { return true },
			wantPort: 3000,
		},
		{
			name:  "skips bound ports",
			start: 3000,
			end:   3010,
			probe: func(port int) bool {
				return port >= 3004
			},
			wantPort: 3004,
		},
		{
			name:    "whole range exhausted",
			start:   3000,
			end:     3010,
			probe:   func(int) bool { return false },
			wantErr: ErrNoPortAvailable,
		},
		{
			name:    "invalid range",
			start:   3010,
			end:     3000,
			probe:   func(int) bool { return true },
			wantErr: nil, // plain error, checked below
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			port, err := FindAvailablePort(tt.start, tt.end, tt.probe)
			if tt.wantPort != 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.wantPort, port)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFindAvailablePortProbesInOrder(t *testing.T) {
	t.Parallel()

	var probed []int
	probe := func(port int) bool {
		probed = append(probed, port)
		return false
	}

	_, err := FindAvailablePort(3000, 3002, probe)
	require.ErrorIs(t, err, ErrNoPortAvailable)
	assert.Equal(t, []int{3000, 3001, 3002}, probed)
}

func TestIsAvailable(t *testing.T) {
	t.Parallel()

	// Hold a listener on an OS-assigned port and verify the probe sees it as busy.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	assert.False(t, IsAvailable(port))

	require.NoError(t, listener.Close())
	assert.True(t, IsAvailable(port))
}
