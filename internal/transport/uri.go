package transport

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Endpoint is a parsed agent socket address
type Endpoint struct {
	Network string // "unix" or "tcp"
	Address string
}

func (e Endpoint) String() string {
	if e.Network == "unix" {
		return "unix://" + e.Address
	}
	return e.Network + "://" + e.Address
}

// IsUnix reports whether the endpoint is a Unix domain socket
func (e Endpoint) IsUnix() bool {
	return e.Network == "unix"
}

// ParseEndpoint accepts "unix:///path", a bare path, or "tcp://host:port".
func ParseEndpoint(uri string) (Endpoint, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Endpoint{}, fmt.Errorf("empty socket address")
	}
	if !strings.Contains(uri, "://") {
		return Endpoint{Network: "unix", Address: uri}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse socket address %q: %w", uri, err)
	}

	switch u.Scheme {
	case "unix":
		path := u.Path
		if u.Host != "" {
			// unix://relative/path
			path = u.Host + u.Path
		}
		if path == "" {
			return Endpoint{}, fmt.Errorf("socket address %q has no path", uri)
		}
		return Endpoint{Network: "unix", Address: path}, nil
	case "tcp":
		if _, _, err := net.SplitHostPort(u.Host); err != nil {
			return Endpoint{}, fmt.Errorf("socket address %q: %w", uri, err)
		}
		return Endpoint{Network: "tcp", Address: u.Host}, nil
	default:
		return Endpoint{}, fmt.Errorf("unsupported socket scheme %q", u.Scheme)
	}
}
