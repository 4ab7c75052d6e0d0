// Package model defines the core data entities shared across the proxy
// engine, flow engine, component library, and recorder: HttpRequest,
// HttpResponse, RequestRecord, FlowDefinition and its node variants,
// ComponentDefinition, ComponentContext, and ComponentResult.
package model

import (
	"net/textproto"
	"time"

	"github.com/google/uuid"
	"github.com/r3e-network/debugproxy/internal/paramvalue"
)

// NewID returns a fresh opaque identifier in the same uuid v4 convention
// used throughout the module.
func NewID() string {
	return uuid.New().String()
}

// Header is a case-insensitive header mapping that preserves the values and
// the canonical form of the last-set key, matching net/http's own
// textproto.MIMEHeader canonicalization.
type Header map[string][]string

// NewHeader constructs an empty Header.
func NewHeader() Header { return make(Header) }

// Set replaces all values for the given header name.
func (h Header) Set(name, value string) {
	h[textproto.CanonicalMIMEHeaderKey(name)] = []string{value}
}

// Add appends a value for the given header name.
func (h Header) Add(name, value string) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	h[key] = append(h[key], value)
}

// Get returns the first value for the given header name, or "".
func (h Header) Get(name string) string {
	vals := h[textproto.CanonicalMIMEHeaderKey(name)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Del removes all values for the given header name.
func (h Header) Del(name string) {
	delete(h, textproto.CanonicalMIMEHeaderKey(name))
}

// Has reports whether the header name has any value.
func (h Header) Has(name string) bool {
	_, ok := h[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	for k, v := range h {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// HttpRequest is the engine's normalized, in-memory view of an intercepted
// request. The URL is always absolute, even for requests that arrived with
// an origin-form request-target.
type HttpRequest struct {
	ID            string
	Method        string
	Scheme        string // "http" or "https"
	Host          string
	Port          string // empty when implied by scheme
	Path          string
	Query         string
	Headers       Header
	Body          string // textual body; empty when the payload is binary/unknown
	RawBody       []byte // raw bytes, used for non-textual passthrough; not part of the recorded view
	Timestamp     time.Time
	ClientAddress string
}

// URL reconstructs the absolute URL string for the request.
func (r *HttpRequest) URL() string {
	host := r.Host
	if r.Port != "" {
		host += ":" + r.Port
	}
	u := r.Scheme + "://" + host + r.Path
	if r.Query != "" {
		u += "?" + r.Query
	}
	return u
}

// Clone returns a deep copy suitable for a flow execution's mutable working
// copy, distinct from the original recorded request.
func (r *HttpRequest) Clone() *HttpRequest {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Headers = r.Headers.Clone()
	if r.RawBody != nil {
		cp.RawBody = append([]byte(nil), r.RawBody...)
	}
	return &cp
}

// HttpResponse is the engine's normalized view of a response, either
// captured from an upstream or synthesized by a terminating component.
type HttpResponse struct {
	StatusCode int
	StatusText string
	Headers    Header
	Body       string // textual body; empty when the payload is not known text
	RawBody    []byte // raw bytes written back to the client verbatim
}

// Clone returns a deep copy.
func (r *HttpResponse) Clone() *HttpResponse {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Headers = r.Headers.Clone()
	if r.RawBody != nil {
		cp.RawBody = append([]byte(nil), r.RawBody...)
	}
	return &cp
}

// RequestRecord is a single entry in the Recorder: a request, its eventual
// response, and bookkeeping about which flow (if any) decided its fate.
type RequestRecord struct {
	ID           string
	Request      *HttpRequest
	Response     *HttpResponse
	DurationMS   *int64
	MatchedFlow  *string
}

// ParamType is the declared type of a component parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamJSON    ParamType = "json"
)

// ParamSpec describes one entry in a component's declared parameter schema.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Default     *paramvalue.Value
	Required    bool
	Description string
}

// ComponentKind distinguishes a built-in handler from a user script.
type ComponentKind string

const (
	ComponentBuiltin ComponentKind = "builtin"
	ComponentScript  ComponentKind = "script"
)

// ComponentDefinition describes a registered component: a builtin keyed to
// an internal handler name, or a script's source text, plus its parameter
// schema. Builtin definitions cannot be overwritten or deleted.
type ComponentDefinition struct {
	ID          string
	DisplayName string
	Kind        ComponentKind
	BuiltinName string // set when Kind == ComponentBuiltin
	ScriptSource string // set when Kind == ComponentScript
	Schema      []ParamSpec
	Builtin     bool // true for the fixed, undeletable builtin catalog
}

// ComponentContext is the live, mutable state a component executes against:
// the in-flight request, an optional response, a free-form variable bag
// scoped to one flow execution, and a log sink.
type ComponentContext struct {
	Request  *HttpRequest
	Response *HttpResponse
	Vars     map[string]paramvalue.Value
	Logs     []string
}

// NewComponentContext builds a fresh context for a flow execution.
func NewComponentContext(req *HttpRequest) *ComponentContext {
	return &ComponentContext{
		Request: req.Clone(),
		Vars:    make(map[string]paramvalue.Value),
	}
}

// Log appends a line to the context's log sink.
func (c *ComponentContext) Log(line string) {
	c.Logs = append(c.Logs, line)
}

// ComponentResult is what a component handler returns: any subset of a
// replacement request, a synthesized response, variable updates, and a
// terminate flag.
type ComponentResult struct {
	Request   *HttpRequest
	Response  *HttpResponse
	VarUpdates map[string]paramvalue.Value
	Terminate bool
}

// Merge applies a ComponentResult onto a ComponentContext per the flow
// engine's component-dispatch merge rule: a new request replaces the live
// one, a new response installs on the context, variable updates merge over
// existing vars.
func (c *ComponentContext) Merge(res ComponentResult) {
	if res.Request != nil {
		c.Request = res.Request
	}
	if res.Response != nil {
		c.Response = res.Response
	}
	for k, v := range res.VarUpdates {
		c.Vars[k] = v
	}
}

// NodeKind distinguishes the four FlowNode variants.
type NodeKind string

const (
	NodeEntry      NodeKind = "entry"
	NodeComponent  NodeKind = "component"
	NodeCondition  NodeKind = "condition"
	NodeTerminator NodeKind = "terminator"
)

// TerminatorMode selects a Terminator node's behavior.
type TerminatorMode string

const (
	TerminatorPassThrough     TerminatorMode = "pass_through"
	TerminatorEndWithResponse TerminatorMode = "end_with_response"
)

// MatchRule constrains which requests an Entry node accepts. A nil/empty
// slice in any dimension means "match anything" for that dimension.
type MatchRule struct {
	Methods    []string
	HostGlobs  []string
	PathGlobs  []string
}

// FlowNode is one node in a flow graph, identified by its stable arena
// index (see Edge). Exactly one of the variant fields is meaningful,
// selected by Kind.
type FlowNode struct {
	Kind NodeKind

	// Entry
	Match MatchRule

	// Component
	ComponentID string
	Params      map[string]paramvalue.Value

	// Condition
	Expression string

	// Terminator
	Mode TerminatorMode
}

// Edge is a directed edge between two nodes addressed by their arena index
// within FlowDefinition.Nodes. Label distinguishes a Condition node's
// branches ("true"/"false"); it is empty for every other edge.
type Edge struct {
	From  int
	To    int
	Label string
}

// FlowDefinition is a user-authored directed graph mapping a matched
// request through components and conditions to a terminator.
type FlowDefinition struct {
	ID        string
	Name      string
	Enabled   bool
	Priority  int // resolves the "first match wins" iteration order; higher first
	Nodes     []FlowNode
	Edges     []Edge
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryIndex returns the arena index of the flow's unique Entry node, or -1
// if none exists.
func (f *FlowDefinition) EntryIndex() int {
	for i, n := range f.Nodes {
		if n.Kind == NodeEntry {
			return i
		}
	}
	return -1
}

// OutgoingEdges returns every edge leaving the given node index.
func (f *FlowDefinition) OutgoingEdges(from int) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.From == from {
			out = append(out, e)
		}
	}
	return out
}
