// Package sandbox executes user-supplied component scripts and condition
// expressions against a restricted context. It is a direct generalization
// of the teacher's TEE script engine (a fresh goja.Runtime per execution,
// console output captured into a log slice) to the proxy's
// config/ctx binding contract: only config (the component's parameter
// map), ctx (a deep copy of the component context, with ctx.log callable),
// and a restricted console are bound. Names for timers, network access,
// and module loading are never registered, so they are simply undefined.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/dop251/goja"

	"github.com/r3e-network/debugproxy/infrastructure/errors"
	"github.com/r3e-network/debugproxy/internal/model"
	"github.com/r3e-network/debugproxy/internal/paramvalue"
)

// DefaultTimeout bounds a single script execution.
const DefaultTimeout = 2 * time.Second

// Engine runs scripts in isolated goja runtimes.
type Engine struct {
	Timeout time.Duration
}

// New constructs an Engine with the given per-execution timeout
// (DefaultTimeout if zero).
func New(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{Timeout: timeout}
}

// Outcome is the result of one script execution.
type Outcome struct {
	Result model.ComponentResult
	Logs   []string
	Err    error
}

// Validate checks that script compiles, without running it.
func (e *Engine) Validate(script string) error {
	if _, err := goja.Compile("component-script", script, false); err != nil {
		return errors.ScriptCompileFailed(err)
	}
	return nil
}

// Execute runs script against cctx with the given parameter map. Each call
// gets a fresh VM for isolation. Exceptions thrown by user code are caught,
// appended to the log, and reported as a ScriptThrew error; the caller
// treats that as a failed execution for the offending node.
func (e *Engine) Execute(ctx context.Context, script string, params paramvalue.Map, cctx *model.ComponentContext) Outcome {
	vm := goja.New()

	var logs []string
	logFn := func(args ...interface{}) {
		logs = append(logs, formatArgs(args))
	}

	console := vm.NewObject()
	console.Set("log", logFn)
	console.Set("error", logFn)
	vm.Set("console", console)

	configData := paramsToJS(params)
	vm.Set("config", configData)

	ctxObj := vm.NewObject()
	ctxData := contextToJS(cctx)
	for k, v := range ctxData {
		ctxObj.Set(k, v)
	}
	ctxObj.Set("log", func(msg string) { logs = append(logs, msg) })
	ctxObj.Set("jsonPath", func(path string, target interface{}) (interface{}, error) {
		return evalJSONPath(path, target)
	})
	vm.Set("ctx", ctxObj)

	stop := make(chan struct{})
	defer close(stop)
	var timedOut atomic.Bool
	timer := time.AfterFunc(e.Timeout, func() {
		timedOut.Store(true)
		vm.Interrupt("script execution timed out")
	})
	defer timer.Stop()
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("script execution canceled")
		case <-stop:
		}
	}()

	if _, err := vm.RunString(script); err != nil {
		if timedOut.Load() {
			logs = append(logs, err.Error())
			return Outcome{Err: errors.ScriptTimeout(int(e.Timeout.Milliseconds())), Logs: logs}
		}
		return e.failure(err, logs)
	}

	if runFn, ok := goja.AssertFunction(vm.Get("run")); ok {
		ret, err := runFn(goja.Undefined(), vm.ToValue(configData), ctxObj)
		if err != nil {
			if timedOut.Load() {
				logs = append(logs, err.Error())
				return Outcome{Err: errors.ScriptTimeout(int(e.Timeout.Milliseconds())), Logs: logs}
			}
			return e.failure(err, logs)
		}
		result, err := exportResult(ret.Export())
		if err != nil {
			return Outcome{Err: errors.ScriptThrew(err), Logs: logs}
		}
		return Outcome{Result: result, Logs: logs}
	}

	result, err := projectContext(ctxObj.Export())
	if err != nil {
		return Outcome{Err: errors.ScriptThrew(err), Logs: logs}
	}
	return Outcome{Result: result, Logs: logs}
}

func (e *Engine) failure(err error, logs []string) Outcome {
	logs = append(logs, err.Error())
	return Outcome{Err: errors.ScriptThrew(err), Logs: logs}
}

// EvaluateCondition evaluates a boolean condition expression using the same
// language as the script sandbox, per the Flow Engine's expression
// semantics. Evaluation failure is treated as false (not propagated) per
// the condition-evaluation error rule.
func (e *Engine) EvaluateCondition(ctx context.Context, expression string, cctx *model.ComponentContext) bool {
	vm := goja.New()
	ctxObj := vm.NewObject()
	for k, v := range contextToJS(cctx) {
		ctxObj.Set(k, v)
	}
	vm.Set("ctx", ctxObj)

	timer := time.AfterFunc(e.Timeout, func() {
		vm.Interrupt("condition evaluation timed out")
	})
	defer timer.Stop()

	val, err := vm.RunString(expression)
	if err != nil {
		return false
	}
	return val.ToBoolean()
}

func formatArgs(args []interface{}) string {
	if len(args) == 1 {
		return fmt.Sprint(args[0])
	}
	return fmt.Sprint(args...)
}

// paramsToJS projects a parameter map into plain JSON-friendly data for
// binding as the script's `config` name.
func paramsToJS(params paramvalue.Map) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v.AsJSON()
	}
	return out
}

// contextToJS projects a ComponentContext into plain data for binding as
// the script's `ctx` name (before ctx.log/ctx.jsonPath are attached).
func contextToJS(cctx *model.ComponentContext) map[string]interface{} {
	out := map[string]interface{}{
		"request": requestToJS(cctx.Request),
		"vars":    varsToJS(cctx.Vars),
	}
	if cctx.Response != nil {
		out["response"] = responseToJS(cctx.Response)
	} else {
		out["response"] = nil
	}
	return out
}

func requestToJS(r *model.HttpRequest) map[string]interface{} {
	if r == nil {
		return nil
	}
	return map[string]interface{}{
		"method":  r.Method,
		"url":     r.URL(),
		"headers": flattenHeaders(r.Headers),
		"body":    r.Body,
	}
}

func responseToJS(r *model.HttpResponse) map[string]interface{} {
	if r == nil {
		return nil
	}
	return map[string]interface{}{
		"statusCode": r.StatusCode,
		"statusText": r.StatusText,
		"headers":    flattenHeaders(r.Headers),
		"body":       r.Body,
	}
}

func flattenHeaders(h model.Header) map[string]interface{} {
	out := make(map[string]interface{}, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func varsToJS(vars map[string]paramvalue.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		out[k] = v.AsJSON()
	}
	return out
}

// exportResult and projectContext both produce a model.ComponentResult from
// an exported goja value, routed through a JSON round trip so any nested
// value shape goja hands back (maps, slices, goja-internal types) lands on
// plain Go data before being typed.
type resultPayload struct {
	Request   *requestPayload        `json:"request"`
	Response  *responsePayload       `json:"response"`
	Vars      map[string]interface{} `json:"vars"`
	Terminate bool                   `json:"terminate"`
}

type requestPayload struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type responsePayload struct {
	StatusCode int               `json:"statusCode"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

func exportResult(raw interface{}) (model.ComponentResult, error) {
	payload, err := roundTrip(raw)
	if err != nil {
		return model.ComponentResult{}, err
	}
	return payload.toComponentResult(), nil
}

func projectContext(raw interface{}) (model.ComponentResult, error) {
	data, ok := raw.(map[string]interface{})
	if !ok {
		return model.ComponentResult{}, fmt.Errorf("sandbox: ctx export was not an object")
	}
	payload, err := roundTrip(data)
	if err != nil {
		return model.ComponentResult{}, err
	}
	res := payload.toComponentResult()
	// A post-execution ctx always carries its (possibly unchanged) request
	// and vars; only an explicit terminate is never implied by projection.
	return res, nil
}

func roundTrip(raw interface{}) (resultPayload, error) {
	var payload resultPayload
	b, err := json.Marshal(raw)
	if err != nil {
		return payload, fmt.Errorf("sandbox: marshal script result: %w", err)
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return payload, fmt.Errorf("sandbox: unmarshal script result: %w", err)
	}
	return payload, nil
}

func (p resultPayload) toComponentResult() model.ComponentResult {
	var res model.ComponentResult
	res.Terminate = p.Terminate
	if p.Request != nil {
		req := &model.HttpRequest{Method: p.Request.Method, Body: p.Request.Body, Headers: model.NewHeader()}
		if parsed, err := url.Parse(p.Request.URL); err == nil && parsed.Scheme != "" && parsed.Host != "" {
			req.Scheme = parsed.Scheme
			req.Host = parsed.Hostname()
			req.Port = parsed.Port()
			req.Path = parsed.Path
			req.Query = parsed.RawQuery
		}
		for k, v := range p.Request.Headers {
			req.Headers.Set(k, v)
		}
		res.Request = req
	}
	if p.Response != nil {
		resp := &model.HttpResponse{StatusCode: p.Response.StatusCode, StatusText: p.Response.StatusText, Body: p.Response.Body, Headers: model.NewHeader()}
		for k, v := range p.Response.Headers {
			resp.Headers.Set(k, v)
		}
		res.Response = resp
	}
	if len(p.Vars) > 0 {
		res.VarUpdates = make(map[string]paramvalue.Value, len(p.Vars))
		for k, v := range p.Vars {
			res.VarUpdates[k] = paramvalue.FromRaw(v)
		}
	}
	return res
}

// evalJSONPath exposes a read-only ad-hoc JSONPath query to scripts,
// distinct from the json-body-modify component's narrow set/remove/append
// grammar (internal/jsonpath), which requires write support this library
// does not provide.
func evalJSONPath(path string, target interface{}) (interface{}, error) {
	v, err := jsonpath.Get(path, target)
	if err != nil {
		return nil, fmt.Errorf("sandbox: jsonPath query failed: %w", err)
	}
	return v, nil
}
