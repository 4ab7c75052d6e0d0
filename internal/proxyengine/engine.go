// Package proxyengine accepts client connections, classifies them as plain
// HTTP or CONNECT, and owns forwarding: plain passthrough, raw tunnel
// splicing, and per-host MITM interception.
package proxyengine

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/r3e-network/debugproxy/infrastructure/errors"
	"github.com/r3e-network/debugproxy/infrastructure/logging"
	"github.com/r3e-network/debugproxy/infrastructure/metrics"
	"github.com/r3e-network/debugproxy/internal/ca"
	"github.com/r3e-network/debugproxy/internal/flow"
	"github.com/r3e-network/debugproxy/internal/recorder"
)

// ProxyAgent is advertised in the CONNECT 200 response and is otherwise
// inert; it identifies the engine to curious clients inspecting the tunnel
// handshake.
const ProxyAgent = "debugproxy"

// Engine owns the listener, the set of live connections (for aggressive
// Stop), and the per-host MITM endpoint table.
type Engine struct {
	authority *ca.Authority
	rec       *recorder.Recorder
	flows     *flow.Engine
	log       *logging.Logger
	metrics   *metrics.Metrics

	upstreamTimeout time.Duration

	mu   sync.Mutex
	ln   net.Listener
	conn map[net.Conn]struct{}

	mitmMu      sync.Mutex
	mitmEnabled bool
	mitm        map[string]*mitmEndpoint
}

// New constructs an Engine. mitmEnabled is the initial MITM routing state
// and may be changed at runtime via SetMITMEnabled.
func New(authority *ca.Authority, rec *recorder.Recorder, flows *flow.Engine, log *logging.Logger, mitmEnabled bool) *Engine {
	return &Engine{
		authority:       authority,
		rec:             rec,
		flows:           flows,
		log:             log,
		upstreamTimeout: 30 * time.Second,
		conn:            make(map[net.Conn]struct{}),
		mitm:            make(map[string]*mitmEndpoint),
		mitmEnabled:     mitmEnabled,
	}
}

// SetMetrics attaches a Metrics sink. Nil (the default) disables recording.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// SetMITMEnabled toggles whether future CONNECTs are routed through MITM.
// Existing tunnels are unaffected; they naturally end.
func (e *Engine) SetMITMEnabled(enabled bool) {
	e.mitmMu.Lock()
	defer e.mitmMu.Unlock()
	e.mitmEnabled = enabled
}

func (e *Engine) mitmRoutingEnabled() bool {
	e.mitmMu.Lock()
	defer e.mitmMu.Unlock()
	return e.mitmEnabled
}

// Start binds addr and begins accepting connections in the background.
func (e *Engine) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.ListenerFailed(err)
	}
	e.mu.Lock()
	e.ln = ln
	e.mu.Unlock()

	go e.acceptLoop(ln)
	return nil
}

// Addr returns the listener's bound address, valid after Start succeeds.
func (e *Engine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

func (e *Engine) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		e.track(conn)
		go e.handleConn(conn)
	}
}

func (e *Engine) track(conn net.Conn) {
	e.mu.Lock()
	e.conn[conn] = struct{}{}
	e.mu.Unlock()
}

func (e *Engine) untrack(conn net.Conn) {
	e.mu.Lock()
	delete(e.conn, conn)
	e.mu.Unlock()
}

// Stop is aggressive and bounded: every tracked live socket is destroyed
// before the listener and MITM endpoints close, so a stop completes
// quickly even with open tunnels.
func (e *Engine) Stop() error {
	e.mu.Lock()
	ln := e.ln
	conns := make([]net.Conn, 0, len(e.conn))
	for c := range e.conn {
		conns = append(conns, c)
	}
	e.conn = make(map[net.Conn]struct{})
	e.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	var err error
	if ln != nil {
		err = ln.Close()
	}

	e.mitmMu.Lock()
	endpoints := e.mitm
	e.mitm = make(map[string]*mitmEndpoint)
	e.mitmMu.Unlock()
	for _, ep := range endpoints {
		_ = ep.listener.Close()
	}

	return err
}

func (e *Engine) handleConn(conn net.Conn) {
	defer e.untrack(conn)
	defer conn.Close()
	e.serveOnce(conn, "http", "")
}

// serveOnce reads exactly one request off conn and dispatches it. scheme
// and forcedHost are set by a MITM endpoint's accept loop, which knows the
// true host:port the CONNECT was issued for; a plain client connection
// passes scheme "http" with an empty forcedHost and lets
// handleConnect/handlePlain derive the target from the request itself.
func (e *Engine) serveOnce(conn net.Conn, scheme, forcedHost string) {
	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		return
	}
	defer req.Body.Close()

	if scheme == "http" && forcedHost == "" && req.Method == http.MethodConnect {
		e.handleConnect(conn, req)
		return
	}
	e.handlePlain(context.Background(), conn, req, scheme, forcedHost)
}

func clampTimeout(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
