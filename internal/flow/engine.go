// Package flow implements the Flow Engine: matching an inbound request
// against the enabled flow catalog, and walking the matched flow's graph
// (Entry -> Component/Condition nodes -> Terminator) to produce the
// request/response pair a client ultimately sees.
package flow

import (
	"context"
	"time"

	"github.com/r3e-network/debugproxy/infrastructure/errors"
	"github.com/r3e-network/debugproxy/infrastructure/logging"
	"github.com/r3e-network/debugproxy/infrastructure/metrics"
	"github.com/r3e-network/debugproxy/internal/components"
	"github.com/r3e-network/debugproxy/internal/model"
	"github.com/r3e-network/debugproxy/internal/sandbox"
)

// maxSteps bounds a single graph walk so a malformed (cyclic) flow cannot
// hang a connection forever; exceeding it ends the walk where it stands,
// exactly like running off a dead-end node.
const maxSteps = 4096

// Engine matches requests against a FlowStore's enabled flows and executes
// the winning flow's graph against a ComponentContext.
type Engine struct {
	flows      FlowStore
	components ComponentStore
	registry   *components.Registry
	sandbox    *sandbox.Engine
	log        *logging.Logger
	metrics    *metrics.Metrics
}

// SetMetrics attaches a Metrics sink. Nil (the default) disables recording.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// New constructs an Engine. registry supplies builtin/script dispatch;
// sb evaluates Condition node expressions using the same language.
func New(flows FlowStore, componentStore ComponentStore, registry *components.Registry, sb *sandbox.Engine, log *logging.Logger) *Engine {
	return &Engine{flows: flows, components: componentStore, registry: registry, sandbox: sb, log: log}
}

// Outcome is the terminal state of a graph walk.
type Outcome struct {
	Context    *model.ComponentContext
	MatchedID  string // flow id, empty if nothing matched
	Terminated bool   // true if the walk ended with a response on the context
}

// Handle matches req against the enabled flow catalog (first match by
// priority desc, id asc wins) and executes it. If no flow matches, the
// request passes through unchanged.
func (e *Engine) Handle(ctx context.Context, req *model.HttpRequest) (Outcome, error) {
	flows, err := e.flows.ListEnabled(ctx)
	if err != nil {
		return Outcome{}, errors.StoreUnavailable(err)
	}

	for _, f := range flows {
		if matchEntry(f, req) {
			cctx, err := e.run(ctx, f, model.NewComponentContext(req))
			if err != nil {
				return Outcome{}, err
			}
			if e.metrics != nil {
				e.metrics.RecordFlowMatch(f.ID)
			}
			return Outcome{Context: cctx, MatchedID: f.ID, Terminated: cctx.Response != nil}, nil
		}
	}
	return Outcome{Context: model.NewComponentContext(req)}, nil
}

// Debug runs a specific flow by id against req without touching the
// network or the Recorder, collecting logs into the returned context.
func (e *Engine) Debug(ctx context.Context, flowID string, req *model.HttpRequest) (*model.ComponentContext, error) {
	f, err := e.flows.Get(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, f, model.NewComponentContext(req))
}

// matchEntry reports whether f's Entry node accepts req, per the
// "every constrained dimension passes" rule: an empty dimension always
// matches.
func matchEntry(f model.FlowDefinition, req *model.HttpRequest) bool {
	idx := f.EntryIndex()
	if idx < 0 {
		return false
	}
	rule := f.Nodes[idx].Match
	return matchAny(rule.Methods, req.Method) &&
		matchAny(rule.HostGlobs, req.Host) &&
		matchAny(rule.PathGlobs, req.Path)
}

// run walks f's graph starting at its Entry node, applying each visited
// node's effect onto cctx until a terminator, a terminating component, or a
// dead end (no outgoing edge, or a Condition with no matching labeled edge)
// is reached.
func (e *Engine) run(ctx context.Context, f model.FlowDefinition, cctx *model.ComponentContext) (*model.ComponentContext, error) {
	current := f.EntryIndex()
	if current < 0 {
		return cctx, nil
	}

	for step := 0; step < maxSteps; step++ {
		node := f.Nodes[current]

		switch node.Kind {
		case model.NodeEntry:
			next, ok := firstEdge(f, current, "")
			if !ok {
				return cctx, nil
			}
			current = next

		case model.NodeComponent:
			start := time.Now()
			def, err := e.components.Get(ctx, node.ComponentID)
			if err != nil {
				cctx.Log(err.Error())
				e.logNodeOutcome(ctx, f.ID, err, start)
				next, ok := firstEdge(f, current, "")
				if !ok {
					return cctx, nil
				}
				current = next
				continue
			}
			res, err := e.registry.Dispatch(ctx, def, node.Params, cctx)
			e.logNodeOutcome(ctx, f.ID, err, start)
			if err != nil {
				// Flow execution errors are logged and swallowed: the
				// offending node contributes no effect, and the walk
				// continues along its normal successor edge.
				cctx.Log(err.Error())
			} else {
				cctx.Merge(res)
				if res.Terminate {
					return cctx, nil
				}
			}
			next, ok := firstEdge(f, current, "")
			if !ok {
				return cctx, nil
			}
			current = next

		case model.NodeCondition:
			result := e.sandbox.EvaluateCondition(ctx, node.Expression, cctx)
			label := "false"
			if result {
				label = "true"
			}
			next, ok := firstEdge(f, current, label)
			if !ok {
				return cctx, nil
			}
			current = next

		case model.NodeTerminator:
			if node.Mode == model.TerminatorEndWithResponse && cctx.Response != nil {
				return cctx, nil
			}
			// pass_through, or end_with_response with nothing to send:
			// yield the request alone regardless of any prior response.
			cctx.Response = nil
			return cctx, nil

		default:
			return cctx, nil
		}
	}
	return cctx, nil
}

// logNodeOutcome records a component node's execution outcome: a failed
// node counts toward the flow error metric when metrics are attached, and
// the outcome is logged when the engine has a logger.
func (e *Engine) logNodeOutcome(ctx context.Context, flowID string, err error, start time.Time) {
	if err != nil && e.metrics != nil {
		e.metrics.RecordFlowError(string(model.NodeComponent))
	}
	if e.log == nil {
		return
	}
	e.log.LogFlowExecution(ctx, flowID, string(model.NodeComponent), time.Since(start), err)
}

// firstEdge returns the destination of the first outgoing edge from `from`
// whose label matches (exact match for Condition branches, or any edge when
// label is "").
func firstEdge(f model.FlowDefinition, from int, label string) (int, bool) {
	for _, e := range f.OutgoingEdges(from) {
		if label == "" || e.Label == label {
			return e.To, true
		}
	}
	return 0, false
}
