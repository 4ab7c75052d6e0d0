// Package osintegration defines the boundary between the core engine and
// the operating system's proxy settings and trust store. Installing a
// system-wide HTTP proxy and trusting a root certificate are host-specific
// procedures the core never performs itself; this package only names the
// contract so cmd/proxyd can be wired against a real implementation later
// without the core depending on it.
package osintegration

import "context"

// Integration applies and detects the OS's system-wide proxy setting and
// installs the root CA certificate into the OS trust store. All three
// operations are inherently platform-specific and out of scope for the
// core engine; see NoOp for the default stand-in.
type Integration interface {
	ApplySystemProxy(ctx context.Context, host string, port int) error
	DetectSystemProxy(ctx context.Context) (host string, port int, enabled bool, err error)
	InstallRootCA(ctx context.Context, certPEM []byte) error
}

// NoOp satisfies Integration without touching the host: ApplySystemProxy and
// InstallRootCA succeed trivially, DetectSystemProxy always reports nothing
// configured. cmd/proxyd does not construct an Integration of any kind.
type NoOp struct{}

func (NoOp) ApplySystemProxy(ctx context.Context, host string, port int) error { return nil }

func (NoOp) DetectSystemProxy(ctx context.Context) (string, int, bool, error) {
	return "", 0, false, nil
}

func (NoOp) InstallRootCA(ctx context.Context, certPEM []byte) error { return nil }
