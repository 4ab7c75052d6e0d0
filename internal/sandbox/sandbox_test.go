package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/r3e-network/debugproxy/internal/model"
	"github.com/r3e-network/debugproxy/internal/paramvalue"
)

func newCtx() *model.ComponentContext {
	return model.NewComponentContext(&model.HttpRequest{
		Method: "GET",
		Scheme: "http",
		Host:   "example.test",
		Path:   "/hello",
		Headers: model.Header{"X-A": {"1"}},
	})
}

func TestValidateAcceptsWellFormedScript(t *testing.T) {
	e := New(time.Second)
	if err := e.Validate(`function run(config, ctx) { return {}; }`); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejectsSyntaxError(t *testing.T) {
	e := New(time.Second)
	if err := e.Validate(`function run( { `); err == nil {
		t.Error("expected syntax error")
	}
}

func TestExecuteRunConventionReturnsComponentResult(t *testing.T) {
	e := New(time.Second)
	script := `
	function run(config, ctx) {
		console.log("hello from script");
		return {terminate: true, vars: {greeted: config.name}};
	}`
	out := e.Execute(context.Background(), script, paramvalue.Map{"name": paramvalue.String("world")}, newCtx())
	if out.Err != nil {
		t.Fatalf("Execute() error = %v", out.Err)
	}
	if !out.Result.Terminate {
		t.Error("expected Terminate = true")
	}
	if out.Result.VarUpdates["greeted"].AsString() != "world" {
		t.Errorf("VarUpdates[greeted] = %v, want world", out.Result.VarUpdates["greeted"])
	}
	if len(out.Logs) != 1 || out.Logs[0] != "hello from script" {
		t.Errorf("Logs = %v, want [hello from script]", out.Logs)
	}
}

func TestExecuteWithoutRunProjectsCtx(t *testing.T) {
	e := New(time.Second)
	script := `ctx.vars.tagged = "yes";`
	out := e.Execute(context.Background(), script, nil, newCtx())
	if out.Err != nil {
		t.Fatalf("Execute() error = %v", out.Err)
	}
	if out.Result.VarUpdates["tagged"].AsString() != "yes" {
		t.Errorf("projection did not capture ctx.vars mutation: %#v", out.Result.VarUpdates)
	}
}

func TestExecuteCapturesThrownException(t *testing.T) {
	e := New(time.Second)
	script := `throw new Error("boom");`
	out := e.Execute(context.Background(), script, nil, newCtx())
	if out.Err == nil {
		t.Fatal("expected error from thrown exception")
	}
	if len(out.Logs) == 0 {
		t.Error("expected thrown exception message to be logged")
	}
}

func TestExecuteTimesOutOnInfiniteLoop(t *testing.T) {
	e := New(50 * time.Millisecond)
	script := `while (true) {}`
	out := e.Execute(context.Background(), script, nil, newCtx())
	if out.Err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestEvaluateConditionTrueFalse(t *testing.T) {
	e := New(time.Second)
	cctx := newCtx()
	if !e.EvaluateCondition(context.Background(), `ctx.request.method === "GET"`, cctx) {
		t.Error("expected condition to evaluate true")
	}
	if e.EvaluateCondition(context.Background(), `ctx.request.method === "POST"`, cctx) {
		t.Error("expected condition to evaluate false")
	}
}

func TestEvaluateConditionFailureIsFalse(t *testing.T) {
	e := New(time.Second)
	if e.EvaluateCondition(context.Background(), `this is not valid js (((`, newCtx()) {
		t.Error("evaluation failure should be treated as false")
	}
}
