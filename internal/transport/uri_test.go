package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Endpoint
		wantErr bool
	}{
		{in: "unix:///tmp/agent.sock", want: Endpoint{Network: "unix", Address: "/tmp/agent.sock"}},
		{in: "/tmp/agent.sock", want: Endpoint{Network: "unix", Address: "/tmp/agent.sock"}},
		{in: "tcp://127.0.0.1:6590", want: Endpoint{Network: "tcp", Address: "127.0.0.1:6590"}},
		{in: "tcp://localhost", wantErr: true},
		{in: "http://example.com", wantErr: true},
		{in: "unix://", wantErr: true},
		{in: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpointString(t *testing.T) {
	assert.Equal(t, "unix:///tmp/a.sock", Endpoint{Network: "unix", Address: "/tmp/a.sock"}.String())
	assert.Equal(t, "tcp://h:1", Endpoint{Network: "tcp", Address: "h:1"}.String())
}
