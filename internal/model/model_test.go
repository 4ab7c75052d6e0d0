package model

import (
	"testing"

	"github.com/r3e-network/debugproxy/internal/paramvalue"
)

func TestHttpRequestURLReconstruction(t *testing.T) {
	r := &HttpRequest{Scheme: "https", Host: "example.test", Path: "/hello", Query: "x=1"}
	if got, want := r.URL(), "https://example.test/hello?x=1"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestHttpRequestURLWithPort(t *testing.T) {
	r := &HttpRequest{Scheme: "http", Host: "example.test", Port: "8080", Path: "/"}
	if got, want := r.URL(), "http://example.test:8080/"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestHttpRequestCloneIsIndependent(t *testing.T) {
	r := &HttpRequest{Headers: Header{"X-A": {"1"}}, RawBody: []byte("abc")}
	cp := r.Clone()
	cp.Headers.Set("X-A", "2")
	cp.RawBody[0] = 'z'

	if r.Headers.Get("X-A") != "1" {
		t.Error("mutating clone headers affected original")
	}
	if r.RawBody[0] != 'a' {
		t.Error("mutating clone raw body affected original")
	}
}

func TestHeaderCaseInsensitivity(t *testing.T) {
	h := NewHeader()
	h.Set("content-type", "text/plain")
	if got := h.Get("Content-Type"); got != "text/plain" {
		t.Errorf("Get() = %q, want text/plain", got)
	}
	if !h.Has("CONTENT-TYPE") {
		t.Error("Has() should be case-insensitive")
	}
	h.Del("Content-Type")
	if h.Has("content-type") {
		t.Error("Del() should remove regardless of case")
	}
}

func TestComponentContextMergeAppliesAllFields(t *testing.T) {
	ctx := NewComponentContext(&HttpRequest{Method: "GET"})
	newReq := &HttpRequest{Method: "POST"}
	res := ComponentResult{
		Request:    newReq,
		Response:   &HttpResponse{StatusCode: 200},
		VarUpdates: map[string]paramvalue.Value{"tag": paramvalue.String("x")},
	}
	ctx.Merge(res)

	if ctx.Request.Method != "POST" {
		t.Errorf("Request.Method = %q, want POST", ctx.Request.Method)
	}
	if ctx.Response == nil || ctx.Response.StatusCode != 200 {
		t.Error("Response not merged")
	}
	if ctx.Vars["tag"].AsString() != "x" {
		t.Error("VarUpdates not merged")
	}
}

func TestFlowDefinitionEntryIndex(t *testing.T) {
	f := &FlowDefinition{Nodes: []FlowNode{
		{Kind: NodeComponent},
		{Kind: NodeEntry},
		{Kind: NodeTerminator},
	}}
	if got := f.EntryIndex(); got != 1 {
		t.Errorf("EntryIndex() = %d, want 1", got)
	}
}

func TestFlowDefinitionOutgoingEdges(t *testing.T) {
	f := &FlowDefinition{Edges: []Edge{
		{From: 0, To: 1, Label: "true"},
		{From: 0, To: 2, Label: "false"},
		{From: 1, To: 3},
	}}
	edges := f.OutgoingEdges(0)
	if len(edges) != 2 {
		t.Fatalf("OutgoingEdges(0) len = %d, want 2", len(edges))
	}
}
