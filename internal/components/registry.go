// Package components implements the component library: a registry of
// builtin and script ComponentDefinitions, parameter schema validation, and
// dispatch to the appropriate handler.
package components

import (
	"context"
	"fmt"
	"sync"

	"github.com/r3e-network/debugproxy/infrastructure/errors"
	"github.com/r3e-network/debugproxy/internal/model"
	"github.com/r3e-network/debugproxy/internal/paramvalue"
	"github.com/r3e-network/debugproxy/internal/sandbox"
)

// Handler executes one builtin component against a context and its
// already-coerced parameter map.
type Handler interface {
	Execute(ctx context.Context, cctx *model.ComponentContext, params paramvalue.Map) (model.ComponentResult, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, cctx *model.ComponentContext, params paramvalue.Map) (model.ComponentResult, error)

func (f HandlerFunc) Execute(ctx context.Context, cctx *model.ComponentContext, params paramvalue.Map) (model.ComponentResult, error) {
	return f(ctx, cctx, params)
}

// Registry holds the fixed builtin catalog plus user-defined script
// components. Builtin definitions cannot be overwritten or deleted.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]model.ComponentDefinition
	handlers map[string]Handler // keyed by BuiltinName
	sandbox  *sandbox.Engine
}

// NewRegistry constructs an empty Registry. Builtins are added with
// RegisterBuiltin; the internal/components/builtin package supplies the
// canonical set via its Register function.
func NewRegistry(sb *sandbox.Engine) *Registry {
	return &Registry{
		defs:     make(map[string]model.ComponentDefinition),
		handlers: make(map[string]Handler),
		sandbox:  sb,
	}
}

// RegisterBuiltin installs a builtin component definition and its handler.
// Intended to be called once at startup, before any Put/Delete traffic.
func (r *Registry) RegisterBuiltin(def model.ComponentDefinition, h Handler) {
	def.Kind = model.ComponentBuiltin
	def.Builtin = true
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
	r.handlers[def.BuiltinName] = h
}

// Put inserts or updates a script component. Builtin ids are immutable.
func (r *Registry) Put(def model.ComponentDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.defs[def.ID]; ok && existing.Builtin {
		return errors.Conflict(fmt.Sprintf("component %q is builtin and cannot be overwritten", def.ID))
	}
	def.Kind = model.ComponentScript
	def.Builtin = false
	r.defs[def.ID] = def
	return nil
}

// Delete removes a script component. Builtin ids can never be deleted.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[id]
	if !ok {
		return errors.ComponentNotFound(id)
	}
	if def.Builtin {
		return errors.Conflict(fmt.Sprintf("component %q is builtin and cannot be deleted", id))
	}
	delete(r.defs, id)
	return nil
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (model.ComponentDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// List returns every registered definition, builtin and script alike.
func (r *Registry) List() []model.ComponentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ComponentDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}

// Store adapts a Registry to the flow engine's ComponentStore interface
// (context-ed, error-returning reads), so the same in-process registry that
// dispatches components also serves as their document store.
type Store struct{ *Registry }

func (s Store) List(_ context.Context) ([]model.ComponentDefinition, error) {
	return s.Registry.List(), nil
}

func (s Store) Get(_ context.Context, id string) (model.ComponentDefinition, error) {
	def, ok := s.Registry.Get(id)
	if !ok {
		return model.ComponentDefinition{}, errors.ComponentNotFound(id)
	}
	return def, nil
}

// Dispatch resolves raw, declared-schema parameters against def, then runs
// the component: a builtin's registered Handler, or the script sandbox for
// a script component. Script logs are appended onto cctx's log sink.
func (r *Registry) Dispatch(ctx context.Context, def model.ComponentDefinition, raw map[string]paramvalue.Value, cctx *model.ComponentContext) (model.ComponentResult, error) {
	params, err := resolveParams(def.Schema, raw)
	if err != nil {
		return model.ComponentResult{}, err
	}

	switch def.Kind {
	case model.ComponentBuiltin:
		r.mu.RLock()
		h, ok := r.handlers[def.BuiltinName]
		r.mu.RUnlock()
		if !ok {
			return model.ComponentResult{}, errors.ComponentNotFound(def.BuiltinName)
		}
		return h.Execute(ctx, cctx, params)
	case model.ComponentScript:
		outcome := r.sandbox.Execute(ctx, def.ScriptSource, params, cctx)
		for _, line := range outcome.Logs {
			cctx.Log(line)
		}
		if outcome.Err != nil {
			return model.ComponentResult{}, outcome.Err
		}
		return outcome.Result, nil
	default:
		return model.ComponentResult{}, fmt.Errorf("components: unknown component kind %q", def.Kind)
	}
}

// resolveParams coerces raw values against the declared schema, applying
// defaults for absent optional parameters and failing on a missing required
// one.
func resolveParams(schema []model.ParamSpec, raw map[string]paramvalue.Value) (paramvalue.Map, error) {
	out := make(paramvalue.Map, len(schema))
	for _, spec := range schema {
		v, present := raw[spec.Name]
		if !present || v.IsZero() {
			if spec.Required && spec.Default == nil {
				return nil, errors.MissingParameter(spec.Name)
			}
			if spec.Default != nil {
				out[spec.Name] = *spec.Default
			}
			continue
		}
		coerced, err := paramvalue.Coerce(v, paramKind(spec.Type))
		if err != nil {
			return nil, errors.InvalidInput(spec.Name, err.Error())
		}
		out[spec.Name] = coerced
	}
	// Parameters not declared in the schema pass through verbatim, so
	// builtins that accept free-form extras (none currently do) are not
	// silently dropped.
	for k, v := range raw {
		if _, declared := out[k]; !declared {
			if _, known := findSpec(schema, k); !known {
				out[k] = v
			}
		}
	}
	return out, nil
}

func findSpec(schema []model.ParamSpec, name string) (model.ParamSpec, bool) {
	for _, s := range schema {
		if s.Name == name {
			return s, true
		}
	}
	return model.ParamSpec{}, false
}

func paramKind(t model.ParamType) paramvalue.Kind {
	switch t {
	case model.ParamNumber:
		return paramvalue.KindNumber
	case model.ParamBoolean:
		return paramvalue.KindBool
	case model.ParamJSON:
		return paramvalue.KindJSON
	default:
		return paramvalue.KindString
	}
}
