package proxyengine

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
)

// mitmEndpoint is a local TLS listener presenting the leaf certificate
// minted for one hostname, servicing CONNECT tunnels routed through MITM.
// The real destination port varies per CONNECT (the same hostname can be
// dialed on different ports across requests), so it is tracked separately
// from the cached listener and refreshed on every CONNECT.
type mitmEndpoint struct {
	hostname string
	listener net.Listener

	portMu sync.Mutex
	port   string
}

func (ep *mitmEndpoint) setPort(port string) {
	ep.portMu.Lock()
	ep.port = port
	ep.portMu.Unlock()
}

func (ep *mitmEndpoint) currentPort() string {
	ep.portMu.Lock()
	defer ep.portMu.Unlock()
	return ep.port
}

func (e *Engine) handleConnect(conn net.Conn, req *http.Request) {
	host, port := splitHostPort(req.Host, "443")

	if !e.mitmRoutingEnabled() {
		e.tunnel(conn, net.JoinHostPort(host, port))
		return
	}

	ep, err := e.getOrCreateMITM(host)
	if err != nil {
		writeStatusLine(conn, 500, "Internal Server Error")
		if e.log != nil {
			e.log.WithError(err).Error("mitm endpoint setup failed")
		}
		return
	}
	ep.setPort(port)
	e.tunnel(conn, ep.listener.Addr().String())
}

// getOrCreateMITM returns the cached local TLS endpoint for host, minting
// one (idempotently, under lock) on first use.
func (e *Engine) getOrCreateMITM(host string) (*mitmEndpoint, error) {
	e.mitmMu.Lock()
	if ep, ok := e.mitm[host]; ok {
		e.mitmMu.Unlock()
		return ep, nil
	}
	e.mitmMu.Unlock()

	leaf, err := e.authority.CertificateFor(context.Background(), host)
	if err != nil {
		return nil, err
	}

	tcpLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("proxyengine: bind mitm listener for %s: %w", host, err)
	}
	tlsLn := tls.NewListener(tcpLn, &tls.Config{Certificates: []tls.Certificate{*leaf.TLS}})

	ep := &mitmEndpoint{hostname: host, listener: tlsLn}

	e.mitmMu.Lock()
	if existing, ok := e.mitm[host]; ok {
		// Another goroutine won the race; keep theirs, discard ours.
		e.mitmMu.Unlock()
		_ = tlsLn.Close()
		return existing, nil
	}
	e.mitm[host] = ep
	e.mitmMu.Unlock()

	go e.serveMITMEndpoint(ep)
	return ep, nil
}

// serveMITMEndpoint accepts client-facing TLS connections (really the
// loopback end of a spliced tunnel) and re-enters the plain HTTP path,
// forcing scheme=https and the original hostname per the CONNECT contract.
func (e *Engine) serveMITMEndpoint(ep *mitmEndpoint) {
	for {
		conn, err := ep.listener.Accept()
		if err != nil {
			return
		}
		e.track(conn)
		go func(c net.Conn) {
			defer e.untrack(c)
			defer c.Close()
			e.serveOnce(c, "https", net.JoinHostPort(ep.hostname, ep.currentPort()))
		}(conn)
	}
}

// tunnel responds 200 Connection Established, then splices conn to a fresh
// connection to target bidirectionally until either side closes. In MITM
// mode target is the local TLS endpoint's loopback address; in tunnel mode
// it is the real upstream host:port.
func (e *Engine) tunnel(conn net.Conn, target string) {
	upstream, err := net.DialTimeout("tcp", target, e.upstreamTimeout)
	if err != nil {
		writeStatusLine(conn, 502, "Bad Gateway")
		return
	}
	defer upstream.Close()

	if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\nProxy-Agent: " + ProxyAgent + "\r\n\r\n")); err != nil {
		return
	}

	e.track(upstream)
	defer e.untrack(upstream)

	if e.metrics != nil {
		e.metrics.TunnelsTotal.Inc()
		e.metrics.TunnelsActive.Inc()
		defer e.metrics.TunnelsActive.Dec()
	}

	done := make(chan struct{}, 2)
	go func() { io.Copy(upstream, conn); done <- struct{}{} }()
	go func() { io.Copy(conn, upstream); done <- struct{}{} }()
	<-done
}

func writeStatusLine(conn net.Conn, code int, reason string) {
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Length: 0\r\n\r\n", code, reason)
}

func splitHostPort(hostport, defaultPort string) (string, string) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.TrimSpace(hostport), defaultPort
	}
	return host, port
}
