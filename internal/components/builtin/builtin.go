// Package builtin implements the fixed catalog of builtin components named
// in the component library's canonical table: header and cookie
// manipulation, URL and host rewriting, response synthesis, JSON body
// editing, timing and failure injection, and flow-local bookkeeping.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/debugproxy/internal/components"
	"github.com/r3e-network/debugproxy/internal/jsonpath"
	"github.com/r3e-network/debugproxy/internal/model"
	"github.com/r3e-network/debugproxy/internal/paramvalue"
)

// Register installs the full builtin catalog into reg.
func Register(reg *components.Registry) {
	for _, b := range catalog {
		reg.RegisterBuiltin(b.def, b.handler)
	}
}

type entry struct {
	def     model.ComponentDefinition
	handler components.Handler
}

func def(name, display string, schema ...model.ParamSpec) model.ComponentDefinition {
	return model.ComponentDefinition{
		ID:          name,
		DisplayName: display,
		BuiltinName: name,
		Schema:      schema,
	}
}

func strParam(name, desc string) model.ParamSpec {
	return model.ParamSpec{Name: name, Type: model.ParamString, Description: desc}
}

func requiredStrParam(name, desc string) model.ParamSpec {
	return model.ParamSpec{Name: name, Type: model.ParamString, Required: true, Description: desc}
}

func numParam(name, desc string, def float64) model.ParamSpec {
	v := paramvalue.Number(def)
	return model.ParamSpec{Name: name, Type: model.ParamNumber, Default: &v, Description: desc}
}

func boolParam(name, desc string, def bool) model.ParamSpec {
	v := paramvalue.Bool(def)
	return model.ParamSpec{Name: name, Type: model.ParamBoolean, Default: &v, Description: desc}
}

var catalog = []entry{
	{
		def: def("header-rewrite", "Header Rewrite",
			strParam("addHeaderName", "header to set"),
			strParam("addHeaderValue", "value to set it to"),
			strParam("removeHeaderNames", "comma-separated header names to remove")),
		handler: components.HandlerFunc(headerRewrite),
	},
	{
		def: def("mock-response", "Mock Response",
			numParam("statusCode", "status code", 200),
			strParam("statusMessage", "status line reason phrase"),
			strParam("contentType", "Content-Type of the synthesized body"),
			strParam("body", "response body text"),
			strParam("headersJson", "JSON object of extra response headers")),
		handler: components.HandlerFunc(mockResponse),
	},
	{
		def:     def("delay", "Delay", numParam("ms", "milliseconds to suspend the flow", 0)),
		handler: components.HandlerFunc(delay),
	},
	{
		def: def("url-host-rewrite", "URL Host Rewrite",
			requiredStrParam("targetHost", "replacement host[:port]"),
			strParam("targetScheme", "replacement scheme"),
			boolParam("preserveHostHeader", "keep the original Host header", false)),
		handler: components.HandlerFunc(urlHostRewrite),
	},
	{
		def: def("url-query-params", "URL Query Params",
			strParam("addParamsJson", "JSON object of query params to add"),
			strParam("removeParamNames", "comma-separated query param names to remove")),
		handler: components.HandlerFunc(urlQueryParams),
	},
	{
		def: def("upstream-host", "Upstream Host",
			requiredStrParam("targetHost", "replacement host[:port]"),
			strParam("targetScheme", "replacement scheme, default http")),
		handler: components.HandlerFunc(upstreamHost),
	},
	{
		def: def("json-body-modify", "JSON Body Modify",
			requiredStrParam("jsonPath", "seg(.seg|[idx])* path"),
			requiredStrParam("operation", "set | remove | append"),
			strParam("valueJson", "JSON-encoded value for set/append")),
		handler: components.HandlerFunc(jsonBodyModify),
	},
	{
		def: def("response-override", "Response Override",
			numParam("statusCode", "status code", 200),
			strParam("statusMessage", "status line reason phrase"),
			strParam("contentType", "Content-Type of the synthesized body"),
			strParam("body", "response body text")),
		handler: components.HandlerFunc(responseOverride),
	},
	{
		def: def("header-copy", "Header Copy",
			requiredStrParam("sourceHeader", "header to read"),
			requiredStrParam("targetHeader", "header to write")),
		handler: components.HandlerFunc(headerCopy),
	},
	{
		def: def("cookie-inject", "Cookie Inject",
			requiredStrParam("cookieName", "cookie name"),
			requiredStrParam("cookieValue", "cookie value")),
		handler: components.HandlerFunc(cookieInject),
	},
	{
		def: def("auth-inject", "Auth Inject",
			strParam("scheme", "auth scheme, e.g. Bearer"),
			requiredStrParam("token", "credential value"),
			boolParam("overrideExisting", "replace an existing Authorization header", true)),
		handler: components.HandlerFunc(authInject),
	},
	{
		def:     def("bandwidth-throttle", "Bandwidth Throttle", numParam("delayMs", "milliseconds to suspend the flow", 0)),
		handler: components.HandlerFunc(bandwidthThrottle),
	},
	{
		def: def("random-failure", "Random Failure",
			numParam("errorRate", "probability in [0,1] of synthesizing a failure", 0),
			numParam("statusCode", "status code to synthesize", 500),
			strParam("body", "synthesized failure body")),
		handler: components.HandlerFunc(randomFailure),
	},
	{
		def: def("retry-hint", "Retry Hint",
			numParam("maxRetries", "retry budget", 0),
			numParam("retryDelayMs", "delay between retries", 0),
			strParam("retryOnStatusCodes", "comma-separated status codes that warrant a retry")),
		handler: components.HandlerFunc(retryHint),
	},
	{
		def: def("cors-allow-all", "CORS Allow All",
			strParam("allowOrigins", "Access-Control-Allow-Origin value"),
			strParam("allowMethods", "Access-Control-Allow-Methods value"),
			strParam("allowHeaders", "Access-Control-Allow-Headers value")),
		handler: components.HandlerFunc(corsAllowAll),
	},
	{
		def: def("static-local-file", "Static Local File",
			requiredStrParam("filePath", "path to a local file to serve"),
			strParam("contentType", "Content-Type of the served file")),
		handler: components.HandlerFunc(staticLocalFile),
	},
	{
		def:     def("log-message", "Log Message", requiredStrParam("message", "text appended to the flow log")),
		handler: components.HandlerFunc(logMessage),
	},
	{
		def: def("tag-request", "Tag Request",
			requiredStrParam("tagKey", "tag name"),
			requiredStrParam("tagValue", "tag value")),
		handler: components.HandlerFunc(tagRequest),
	},
}

func headerRewrite(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	req := cctx.Request.Clone()
	if name := p.StringOr("addHeaderName", ""); name != "" {
		req.Headers.Set(name, p.StringOr("addHeaderValue", ""))
	}
	for _, name := range splitCSV(p.StringOr("removeHeaderNames", "")) {
		req.Headers.Del(name)
	}
	return model.ComponentResult{Request: req}, nil
}

func mockResponse(_ context.Context, _ *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	resp := synthesizeResponse(p)
	return model.ComponentResult{Response: resp, Terminate: true}, nil
}

func responseOverride(_ context.Context, _ *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	resp := synthesizeResponse(p)
	return model.ComponentResult{Response: resp, Terminate: true}, nil
}

func synthesizeResponse(p paramvalue.Map) *model.HttpResponse {
	body := p.StringOr("body", "")
	headers := model.NewHeader()
	if ct := p.StringOr("contentType", ""); ct != "" {
		headers.Set("Content-Type", ct)
	}
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	if raw := p.StringOr("headersJson", ""); raw != "" {
		var extra map[string]string
		if err := json.Unmarshal([]byte(raw), &extra); err == nil {
			for k, v := range extra {
				headers.Set(k, v)
			}
		}
	}
	return &model.HttpResponse{
		StatusCode: int(p.NumberOr("statusCode", 200)),
		StatusText: p.StringOr("statusMessage", ""),
		Headers:    headers,
		Body:       body,
	}
}

func delay(ctx context.Context, _ *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	sleep(ctx, time.Duration(p.NumberOr("ms", 0))*time.Millisecond)
	return model.ComponentResult{}, nil
}

func bandwidthThrottle(ctx context.Context, _ *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	sleep(ctx, time.Duration(p.NumberOr("delayMs", 0))*time.Millisecond)
	return model.ComponentResult{}, nil
}

// sleep suspends for d or until ctx is canceled, whichever comes first, so
// a `stop` aborts a pending delay instead of outliving it.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func urlHostRewrite(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	req := cctx.Request.Clone()
	rewriteHost(req, p.StringOr("targetHost", ""), p.StringOr("targetScheme", ""))
	if !p.BoolOr("preserveHostHeader", false) {
		req.Headers.Set("Host", hostHeaderValue(req))
	}
	return model.ComponentResult{Request: req}, nil
}

func upstreamHost(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	req := cctx.Request.Clone()
	scheme := p.StringOr("targetScheme", "")
	if scheme == "" {
		scheme = "http"
	}
	rewriteHost(req, p.StringOr("targetHost", ""), scheme)
	req.Headers.Set("Host", hostHeaderValue(req))
	return model.ComponentResult{Request: req}, nil
}

func rewriteHost(req *model.HttpRequest, targetHost, targetScheme string) {
	if targetScheme != "" {
		req.Scheme = targetScheme
	}
	if targetHost == "" {
		return
	}
	host, port, ok := strings.Cut(targetHost, ":")
	req.Host = host
	if ok {
		req.Port = port
	} else {
		req.Port = ""
	}
}

func hostHeaderValue(req *model.HttpRequest) string {
	if req.Port != "" {
		return req.Host + ":" + req.Port
	}
	return req.Host
}

func urlQueryParams(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	req := cctx.Request.Clone()
	values, _ := url.ParseQuery(req.Query)

	if raw := p.StringOr("addParamsJson", ""); raw != "" {
		var add map[string]string
		if err := json.Unmarshal([]byte(raw), &add); err == nil {
			for k, v := range add {
				values.Set(k, v)
			}
		}
	}
	for _, name := range splitCSV(p.StringOr("removeParamNames", "")) {
		values.Del(name)
	}

	req.Query = values.Encode()
	return model.ComponentResult{Request: req}, nil
}

// jsonBodyModify is a no-op when the request is not declared as JSON, per
// the boundary behavior "JSON body modify on a non-JSON request is a no-op".
func jsonBodyModify(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	req := cctx.Request
	if !strings.Contains(strings.ToLower(req.Headers.Get("Content-Type")), "application/json") {
		return model.ComponentResult{}, nil
	}
	if req.Body == "" || !gjson.Valid(req.Body) {
		return model.ComponentResult{}, nil
	}

	var root interface{}
	if err := json.Unmarshal([]byte(req.Body), &root); err != nil {
		return model.ComponentResult{}, nil
	}

	var value interface{}
	if raw := p.StringOr("valueJson", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return model.ComponentResult{}, fmt.Errorf("json-body-modify: invalid valueJson: %w", err)
		}
	}

	op := jsonpath.Op(p.StringOr("operation", ""))
	newRoot, err := jsonpath.Apply(root, p.StringOr("jsonPath", ""), op, value)
	if err != nil {
		return model.ComponentResult{}, fmt.Errorf("json-body-modify: %w", err)
	}

	out, err := json.Marshal(newRoot)
	if err != nil {
		return model.ComponentResult{}, fmt.Errorf("json-body-modify: re-serialize: %w", err)
	}

	clone := req.Clone()
	clone.Body = string(out)
	clone.Headers.Set("Content-Length", strconv.Itoa(len(out)))
	return model.ComponentResult{Request: clone}, nil
}

func headerCopy(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	source := p.StringOr("sourceHeader", "")
	if !cctx.Request.Headers.Has(source) {
		return model.ComponentResult{}, nil
	}
	req := cctx.Request.Clone()
	req.Headers.Set(p.StringOr("targetHeader", ""), cctx.Request.Headers.Get(source))
	return model.ComponentResult{Request: req}, nil
}

func cookieInject(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	req := cctx.Request.Clone()
	jar := parseCookieJar(req.Headers.Get("Cookie"))
	jar[p.StringOr("cookieName", "")] = p.StringOr("cookieValue", "")
	req.Headers.Set("Cookie", encodeCookieJar(jar))
	return model.ComponentResult{Request: req}, nil
}

func authInject(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	if cctx.Request.Headers.Has("Authorization") && !p.BoolOr("overrideExisting", true) {
		return model.ComponentResult{}, nil
	}
	req := cctx.Request.Clone()
	scheme := p.StringOr("scheme", "")
	if scheme == "" {
		scheme = "Bearer"
	}
	req.Headers.Set("Authorization", scheme+" "+p.StringOr("token", ""))
	return model.ComponentResult{Request: req}, nil
}

func randomFailure(_ context.Context, _ *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	rate := p.NumberOr("errorRate", 0)
	if rate <= 0 {
		return model.ComponentResult{}, nil
	}
	if rate < 1 && rand.Float64() >= rate {
		return model.ComponentResult{}, nil
	}
	body := p.StringOr("body", "")
	headers := model.NewHeader()
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	resp := &model.HttpResponse{
		StatusCode: int(p.NumberOr("statusCode", 500)),
		Headers:    headers,
		Body:       body,
	}
	return model.ComponentResult{Response: resp, Terminate: true}, nil
}

// retryHint attaches forward-compatible retry metadata to ctx.vars.retry; no
// reader in this engine acts on it.
func retryHint(_ context.Context, _ *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	hint := map[string]interface{}{
		"maxRetries":         p.NumberOr("maxRetries", 0),
		"retryDelayMs":       p.NumberOr("retryDelayMs", 0),
		"retryOnStatusCodes": splitCSV(p.StringOr("retryOnStatusCodes", "")),
	}
	return model.ComponentResult{
		VarUpdates: map[string]paramvalue.Value{"retry": paramvalue.JSON(hint)},
	}, nil
}

func corsAllowAll(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	if !strings.EqualFold(cctx.Request.Method, "OPTIONS") {
		return model.ComponentResult{}, nil
	}
	headers := model.NewHeader()
	headers.Set("Access-Control-Allow-Origin", orDefault(p.StringOr("allowOrigins", ""), "*"))
	headers.Set("Access-Control-Allow-Methods", orDefault(p.StringOr("allowMethods", ""), "GET, POST, PUT, PATCH, DELETE, OPTIONS"))
	headers.Set("Access-Control-Allow-Headers", orDefault(p.StringOr("allowHeaders", ""), "*"))
	headers.Set("Content-Length", "0")
	resp := &model.HttpResponse{StatusCode: 204, Headers: headers}
	return model.ComponentResult{Response: resp, Terminate: true}, nil
}

func staticLocalFile(_ context.Context, _ *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	content, err := os.ReadFile(p.StringOr("filePath", ""))
	headers := model.NewHeader()
	if err != nil {
		body := fmt.Sprintf("static-local-file: %v", err)
		headers.Set("Content-Length", strconv.Itoa(len(body)))
		return model.ComponentResult{
			Response:  &model.HttpResponse{StatusCode: 500, Headers: headers, Body: body},
			Terminate: true,
		}, nil
	}
	if ct := p.StringOr("contentType", ""); ct != "" {
		headers.Set("Content-Type", ct)
	}
	headers.Set("Content-Length", strconv.Itoa(len(content)))
	return model.ComponentResult{
		Response:  &model.HttpResponse{StatusCode: 200, Headers: headers, Body: string(content)},
		Terminate: true,
	}, nil
}

func logMessage(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	cctx.Log(p.StringOr("message", ""))
	return model.ComponentResult{}, nil
}

func tagRequest(_ context.Context, cctx *model.ComponentContext, p paramvalue.Map) (model.ComponentResult, error) {
	tags := map[string]interface{}{}
	if existing, ok := cctx.Vars["tags"]; ok {
		if m, ok := existing.AsJSON().(map[string]interface{}); ok {
			for k, v := range m {
				tags[k] = v
			}
		}
	}
	tags[p.StringOr("tagKey", "")] = p.StringOr("tagValue", "")
	return model.ComponentResult{
		VarUpdates: map[string]paramvalue.Value{"tags": paramvalue.JSON(tags)},
	}, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseCookieJar(header string) map[string]string {
	jar := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		jar[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return jar
}

func encodeCookieJar(jar map[string]string) string {
	parts := make([]string, 0, len(jar))
	for k, v := range jar {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "; ")
}
