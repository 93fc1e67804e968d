// ABOUTME: Server endpoint records: connection descriptors and selection policy
// ABOUTME: Validates the at-least-one-descriptor invariant and the 26-char remote id format
package endpoint

import (
	"fmt"
	"regexp"
)

// SelectionPolicy constrains which transport variants ConnectionSupervisor
// may attempt for an endpoint.
type SelectionPolicy int

const (
	PolicyAuto SelectionPolicy = iota
	PolicyLocalOnly
	PolicyRemoteOnly
	PolicyProxyOnly
)

func (p SelectionPolicy) String() string {
	switch p {
	case PolicyAuto:
		return "auto"
	case PolicyLocalOnly:
		return "local-only"
	case PolicyRemoteOnly:
		return "remote-only"
	case PolicyProxyOnly:
		return "proxy-only"
	default:
		return "unknown"
	}
}

// LocalAddress is a directly-reachable host+port+path descriptor, typically
// discovered via mDNS or entered manually.
type LocalAddress struct {
	Host string
	Port int
	Path string
}

// RemoteHandle is a 26-character upper-case alphanumeric identifier used to
// request a WebRTC connection through the signaling server.
type RemoteHandle string

var remoteHandlePattern = regexp.MustCompile(`^[A-Z0-9]{26}$`)

// Valid reports whether the handle matches the required 26-character
// upper-case alphanumeric format.
func (h RemoteHandle) Valid() bool {
	return remoteHandlePattern.MatchString(string(h))
}

// ProxyAuth carries exactly one of a bearer token or a username/password
// pair for an authenticated-proxy descriptor.
type ProxyAuth struct {
	BearerToken string
	Username    string
	Password    string
}

// HasBearer reports whether this auth carries a bearer token rather than
// basic credentials.
func (a ProxyAuth) HasBearer() bool {
	return a.BearerToken != ""
}

// ProxyDescriptor is an authenticated-proxy WebSocket URL plus credentials.
type ProxyDescriptor struct {
	URL  string
	Auth ProxyAuth
}

// Endpoint is a server record with a stable identifier, a display name, and
// zero-or-more connection descriptors.
type Endpoint struct {
	ID       string
	Name     string
	Policy   SelectionPolicy
	Local    *LocalAddress
	Remote   RemoteHandle
	Proxy    *ProxyDescriptor
}

// Validate enforces the at-least-one-descriptor invariant and, if a remote
// handle is present, that it is well-formed.
func (e Endpoint) Validate() error {
	if e.Local == nil && e.Remote == "" && e.Proxy == nil {
		return fmt.Errorf("endpoint %q: at least one of local, remote, or proxy descriptor is required", e.ID)
	}
	if e.Remote != "" && !e.Remote.Valid() {
		return fmt.Errorf("endpoint %q: remote handle %q is not a 26-character upper-case alphanumeric id", e.ID, e.Remote)
	}
	if e.Proxy != nil && e.Proxy.URL == "" {
		return fmt.Errorf("endpoint %q: proxy descriptor requires a URL", e.ID)
	}
	return nil
}

// HasLocal, HasRemote, and HasProxy report whether the corresponding
// descriptor is configured, used by ConnectionSupervisor's variant
// selection to skip unconfigured variants.
func (e Endpoint) HasLocal() bool  { return e.Local != nil }
func (e Endpoint) HasRemote() bool { return e.Remote != "" }
func (e Endpoint) HasProxy() bool  { return e.Proxy != nil }
