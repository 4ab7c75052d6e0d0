package proxyengine

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/r3e-network/debugproxy/infrastructure/errors"
	"github.com/r3e-network/debugproxy/internal/model"
)

// hopByHop headers are stripped before forwarding to the upstream, per the
// proxy engine's plain HTTP path contract.
var hopByHop = []string{"Proxy-Connection", "Connection"}

// textualContentTypes are the Content-Type families the engine considers
// safe to treat as text for recording purposes.
var textualContentTypes = []string{"text/", "json", "javascript", "xml", "x-www-form-urlencoded"}

// handlePlain processes one non-CONNECT request: construct an HttpRequest,
// record it, run it through the Flow Engine, then either serve a
// synthesized response or forward upstream and relay the response
// byte-for-byte.
func (e *Engine) handlePlain(ctx context.Context, conn net.Conn, req *http.Request, scheme, forcedHost string) {
	start := time.Now()

	modelReq, err := e.buildModelRequest(conn, req, scheme, forcedHost)
	if err != nil {
		writeStatusLine(conn, 400, "Bad Request")
		return
	}

	rec := &model.RequestRecord{ID: modelReq.ID, Request: modelReq}
	e.rec.Upsert(rec)

	outcome, err := e.flows.Handle(ctx, modelReq)
	if err != nil {
		// Flow Engine infrastructure failure (store unavailable): degrade
		// to pass-through rather than fail the request on the client.
		outcome.Context = model.NewComponentContext(modelReq)
	}
	finalReq := outcome.Context.Request
	if finalReq == nil {
		finalReq = modelReq
	}

	if matched := outcome.MatchedID; matched != "" {
		rec.MatchedFlow = &matched
	}

	var resp *model.HttpResponse
	var upstreamStart time.Time
	if outcome.Context.Response != nil {
		resp = outcome.Context.Response
		e.recordProxied("synthesized", 0)
	} else {
		upstreamStart = time.Now()
		resp, err = e.roundTrip(ctx, finalReq)
		if err != nil {
			e.recordProxied("bad_gateway", time.Since(upstreamStart))
			writeStatusLine(conn, 502, "Bad Gateway")
			duration := time.Since(start).Milliseconds()
			rec.DurationMS = &duration
			e.rec.Upsert(rec)
			return
		}
		e.recordProxied("forwarded", time.Since(upstreamStart))
	}

	writeResponse(conn, resp)

	duration := time.Since(start).Milliseconds()
	rec.DurationMS = &duration
	rec.Response = resp
	e.rec.Upsert(rec)
}

func (e *Engine) recordProxied(outcome string, upstreamDuration time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordProxied(outcome, upstreamDuration)
	}
}

// buildModelRequest reads the request body (if any) and assembles the
// engine's normalized HttpRequest, reconstructing an absolute URL whether
// the request arrived in origin form, absolute form, or as a MITM
// re-entry (forcedHost set, scheme forced to https).
func (e *Engine) buildModelRequest(conn net.Conn, req *http.Request, scheme, forcedHost string) (*model.HttpRequest, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("proxyengine: read request body: %w", err)
		}
	}

	host, port, path, query := resolveTarget(req, scheme, forcedHost)

	headers := model.NewHeader()
	for k, vs := range req.Header {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	clientAddr := conn.RemoteAddr().String()
	if host2, _, err := net.SplitHostPort(clientAddr); err == nil {
		clientAddr = host2
	}

	return &model.HttpRequest{
		ID:            model.NewID(),
		Method:        req.Method,
		Scheme:        scheme,
		Host:          host,
		Port:          port,
		Path:          path,
		Query:         query,
		Headers:       headers,
		Body:          bodyIfTextual(req.Header.Get("Content-Type"), req.Header.Get("Content-Encoding"), bodyBytes),
		RawBody:       bodyBytes,
		Timestamp:     time.Now(),
		ClientAddress: clientAddr,
	}, nil
}

// resolveTarget computes the absolute host/port/path/query a request
// targets. Absolute-form request-targets (classic forward-proxy usage)
// are used as-is; origin-form requests fall back to the Host header, or to
// forcedHost ("host:port") when the connection is a MITM re-entry, since
// the Host header a TLS client sends to the local loopback endpoint says
// nothing about the original CONNECT's destination port.
func resolveTarget(req *http.Request, scheme, forcedHost string) (host, port, path, query string) {
	if req.URL.IsAbs() {
		h, p := splitHostPort(req.URL.Host, defaultPortFor(req.URL.Scheme))
		return h, p, req.URL.Path, req.URL.RawQuery
	}

	hostHeader := forcedHost
	if hostHeader == "" {
		hostHeader = req.Host
	}
	h, p := splitHostPort(hostHeader, defaultPortFor(scheme))
	return h, p, req.URL.Path, req.URL.RawQuery
}

func defaultPortFor(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// roundTrip opens a connection to req's host:port, writes the request
// (with hop-by-hop headers stripped), and reads the response back,
// preserving the exact response body bytes. A MITM-decrypted request
// (req.Scheme == "https") re-originates TLS to the upstream rather than
// writing cleartext to what is almost always a TLS-only port.
func (e *Engine) roundTrip(ctx context.Context, req *model.HttpRequest) (*model.HttpResponse, error) {
	addr := net.JoinHostPort(req.Host, nonEmptyPort(req.Port, req.Scheme))

	timeout := clampTimeout(e.upstreamTimeout, 30*time.Second)
	var conn net.Conn
	var err error
	if req.Scheme == "https" {
		dialer := &net.Dialer{Timeout: timeout}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: req.Host})
	} else {
		dialer := net.Dialer{Timeout: timeout}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, errors.BadGateway(err)
	}
	defer conn.Close()

	outBody := []byte(req.Body)
	if req.Body == "" && req.RawBody != nil {
		outBody = req.RawBody
	}
	outReq, err := http.NewRequest(req.Method, req.URL(), bytes.NewReader(outBody))
	if err != nil {
		return nil, errors.BadGateway(err)
	}
	outReq.ContentLength = int64(len(outBody))
	outReq.Header = make(http.Header, len(req.Headers))
	for k, vs := range req.Headers {
		for _, v := range vs {
			outReq.Header.Add(k, v)
		}
	}
	stripHopByHopHeaders(outReq.Header)
	outReq.Host = req.Host

	if err := outReq.Write(conn); err != nil {
		return nil, errors.BadGateway(err)
	}

	httpResp, err := http.ReadResponse(bufio.NewReader(conn), outReq)
	if err != nil {
		return nil, errors.BadGateway(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.BadGateway(err)
	}

	headers := model.NewHeader()
	for k, vs := range httpResp.Header {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	return &model.HttpResponse{
		StatusCode: httpResp.StatusCode,
		StatusText: strings.TrimPrefix(httpResp.Status, strconv.Itoa(httpResp.StatusCode)+" "),
		Headers:    headers,
		Body:       bodyIfTextual(httpResp.Header.Get("Content-Type"), httpResp.Header.Get("Content-Encoding"), raw),
		RawBody:    raw,
	}, nil
}

// writeResponse serializes resp to conn, writing the exact raw body bytes
// captured from upstream (or synthesized by a terminating component) after
// the status line and headers.
func writeResponse(conn net.Conn, resp *model.HttpResponse) {
	statusText := resp.StatusText
	if statusText == "" {
		statusText = http.StatusText(resp.StatusCode)
	}
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\n", resp.StatusCode, statusText)

	body := resp.RawBody
	if body == nil {
		body = []byte(resp.Body)
	}

	wroteContentLength := false
	for name, values := range resp.Headers {
		if strings.EqualFold(name, "Transfer-Encoding") {
			// raw is already the de-chunked body; forwarding this header
			// alongside a synthesized Content-Length would leave the
			// client trying to re-chunk-decode an already-decoded body.
			continue
		}
		if strings.EqualFold(name, "Content-Length") {
			wroteContentLength = true
		}
		for _, v := range values {
			fmt.Fprintf(conn, "%s: %s\r\n", name, v)
		}
	}
	if !wroteContentLength {
		fmt.Fprintf(conn, "Content-Length: %d\r\n", len(body))
	}
	io.WriteString(conn, "\r\n")
	conn.Write(body)
}

// bodyIfTextual returns body as a string when the content is textual per
// the binary-safety rule (absent Content-Encoding and a recognized
// Content-Type family); otherwise it returns "" so non-textual payloads
// (images, downloads, compressed bodies) never populate the recorded text
// field.
func bodyIfTextual(contentType, contentEncoding string, body []byte) string {
	if !textual(contentType, contentEncoding) {
		return ""
	}
	return string(body)
}

func textual(contentType, contentEncoding string) bool {
	if strings.TrimSpace(contentEncoding) != "" {
		return false
	}
	ct := strings.ToLower(contentType)
	for _, family := range textualContentTypes {
		if strings.Contains(ct, family) {
			return true
		}
	}
	return false
}

func stripHopByHopHeaders(h http.Header) {
	for _, name := range hopByHop {
		h.Del(name)
	}
}

func nonEmptyPort(port, scheme string) string {
	if port != "" {
		return port
	}
	return defaultPortFor(scheme)
}
