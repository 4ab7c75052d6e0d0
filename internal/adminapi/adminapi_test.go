package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/r3e-network/debugproxy/infrastructure/logging"
	"github.com/r3e-network/debugproxy/internal/ca"
	"github.com/r3e-network/debugproxy/internal/components"
	"github.com/r3e-network/debugproxy/internal/components/builtin"
	"github.com/r3e-network/debugproxy/internal/flow"
	"github.com/r3e-network/debugproxy/internal/model"
	"github.com/r3e-network/debugproxy/internal/paramvalue"
	"github.com/r3e-network/debugproxy/internal/recorder"
	"github.com/r3e-network/debugproxy/internal/sandbox"
)

type memStore struct{ keyPEM, certPEM []byte }

func (m *memStore) Load() ([]byte, []byte, error) {
	if m.keyPEM == nil {
		return nil, nil, ca.ErrNotFound
	}
	return m.keyPEM, m.certPEM, nil
}
func (m *memStore) Save(keyPEM, certPEM []byte) error {
	m.keyPEM, m.certPEM = keyPEM, certPEM
	return nil
}

func testServer(t *testing.T) (*Server, *recorder.Recorder, *flow.MemoryFlowStore) {
	t.Helper()
	log := logging.New("test", "error", "json")

	authority := ca.New(&memStore{}, log)
	if err := authority.Initialize(context.Background()); err != nil {
		t.Fatalf("authority.Initialize() error = %v", err)
	}

	rec := recorder.New(100)

	reg := components.NewRegistry(sandbox.New(time.Second))
	builtin.Register(reg)
	fs := flow.NewMemoryFlowStore()
	flowEngine := flow.New(fs, components.Store{Registry: reg}, reg, sandbox.New(time.Second), log)

	s := New(rec, authority, flowEngine, nil, log, Options{RateLimitPerSec: 0})
	return s, rec, fs
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthzAndReadyz(t *testing.T) {
	s, _, _ := testServer(t)
	router := s.Router()

	w := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want 200", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /readyz status = %d, want 200", w.Code)
	}

	s.SetReady(false)
	w = doJSON(t, router, http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /readyz after SetReady(false) status = %d, want 503", w.Code)
	}
}

func TestRequestsLifecycle(t *testing.T) {
	s, rec, _ := testServer(t)
	router := s.Router()

	req := &model.HttpRequest{ID: "req-1", Method: "GET", Host: "example.test", Path: "/a", Timestamp: time.Now()}
	rec.Upsert(&model.RequestRecord{ID: "req-1", Request: req})

	w := doJSON(t, router, http.MethodGet, "/api/requests", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/requests status = %d, want 200", w.Code)
	}
	var listed []model.RequestRecord
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed = %d records, want 1", len(listed))
	}

	w = doJSON(t, router, http.MethodGet, "/api/requests/req-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/requests/req-1 status = %d, want 200", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/requests/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /api/requests/missing status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/requests", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE /api/requests status = %d, want 204", w.Code)
	}
	if rec.Count() != 0 {
		t.Fatalf("recorder count after clear = %d, want 0", rec.Count())
	}
}

func TestRequestsFilterByMethod(t *testing.T) {
	s, rec, _ := testServer(t)
	router := s.Router()

	rec.Upsert(&model.RequestRecord{ID: "get-1", Request: &model.HttpRequest{ID: "get-1", Method: "GET", Host: "a.test"}})
	rec.Upsert(&model.RequestRecord{ID: "post-1", Request: &model.HttpRequest{ID: "post-1", Method: "POST", Host: "a.test"}})

	w := doJSON(t, router, http.MethodGet, "/api/requests?method=POST", nil)
	var filtered []model.RequestRecord
	if err := json.Unmarshal(w.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode filtered response: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "post-1" {
		t.Fatalf("filtered = %+v, want exactly post-1", filtered)
	}
}

func TestCAStatusAndImport(t *testing.T) {
	s, _, _ := testServer(t)
	router := s.Router()

	w := doJSON(t, router, http.MethodGet, "/api/ca/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/ca/status status = %d, want 200", w.Code)
	}
	var status caStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Loaded {
		t.Error("status.Loaded = false, want true (Initialize generated a root pair)")
	}

	w = doJSON(t, router, http.MethodPost, "/api/ca/import", caImportRequest{KeyPEM: "", CertPEM: ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("POST /api/ca/import with empty body status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/ca/import", caImportRequest{KeyPEM: "not pem", CertPEM: "not pem either"})
	if w.Code < 400 {
		t.Fatalf("POST /api/ca/import with garbage PEM status = %d, want 4xx/5xx", w.Code)
	}
}

func TestDebugFlowExecutesMockResponse(t *testing.T) {
	s, rec, fs := testServer(t)
	router := s.Router()

	fs.Put(model.FlowDefinition{
		ID:      "flow-1",
		Name:    "always mock",
		Enabled: true,
		Nodes: []model.FlowNode{
			{Kind: model.NodeEntry},
			{Kind: model.NodeComponent, ComponentID: "mock-response", Params: map[string]paramvalue.Value{
				"statusCode": paramvalue.Number(201),
				"body":       paramvalue.String("debugged"),
			}},
			{Kind: model.NodeTerminator, Mode: model.TerminatorEndWithResponse},
		},
		Edges: []model.Edge{{From: 0, To: 1}, {From: 1, To: 2}},
	})

	w := doJSON(t, router, http.MethodPost, "/api/flows/flow-1/debug", debugFlowRequest{
		Method: "GET", Host: "example.test", Path: "/hi",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/flows/flow-1/debug status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp debugFlowResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode debug response: %v", err)
	}
	if resp.Response == nil || resp.Response.StatusCode != 201 {
		t.Fatalf("resp.Response = %+v, want synthesized 201", resp.Response)
	}
	if resp.Response.Body != "debugged" {
		t.Errorf("resp.Response.Body = %q, want %q", resp.Response.Body, "debugged")
	}

	if rec.Count() != 0 {
		t.Error("debug execution must never touch the Recorder")
	}
}

func TestDebugFlowUnknownIDReturns404(t *testing.T) {
	s, _, _ := testServer(t)
	router := s.Router()

	w := doJSON(t, router, http.MethodPost, "/api/flows/does-not-exist/debug", debugFlowRequest{Method: "GET"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
