package flow

import (
	"context"
	"sort"

	"github.com/r3e-network/debugproxy/infrastructure/errors"
	"github.com/r3e-network/debugproxy/internal/model"
)

// FlowStore is the flow engine's read-only view onto persisted flow
// documents. The document format, save/delete/toggle mutators, and their
// serialization live outside the core (the UI-facing side of the system);
// the engine only ever lists enabled flows and fetches one by id.
type FlowStore interface {
	ListEnabled(ctx context.Context) ([]model.FlowDefinition, error)
	Get(ctx context.Context, id string) (model.FlowDefinition, error)
}

// ComponentStore is the flow engine's read-only view onto registered
// component definitions (builtin and script alike).
type ComponentStore interface {
	List(ctx context.Context) ([]model.ComponentDefinition, error)
	Get(ctx context.Context, id string) (model.ComponentDefinition, error)
}

// MemoryFlowStore is a simple in-memory FlowStore, used by tests and as the
// straightforward backing for a standalone engine.
type MemoryFlowStore struct {
	flows map[string]model.FlowDefinition
}

// NewMemoryFlowStore builds a MemoryFlowStore seeded with the given flows.
func NewMemoryFlowStore(flows ...model.FlowDefinition) *MemoryFlowStore {
	s := &MemoryFlowStore{flows: make(map[string]model.FlowDefinition, len(flows))}
	for _, f := range flows {
		s.flows[f.ID] = f
	}
	return s
}

// Put inserts or replaces a flow definition.
func (s *MemoryFlowStore) Put(f model.FlowDefinition) {
	s.flows[f.ID] = f
}

func (s *MemoryFlowStore) ListEnabled(_ context.Context) ([]model.FlowDefinition, error) {
	out := make([]model.FlowDefinition, 0, len(s.flows))
	for _, f := range s.flows {
		if f.Enabled {
			out = append(out, f)
		}
	}
	sortByPriorityThenID(out)
	return out, nil
}

func (s *MemoryFlowStore) Get(_ context.Context, id string) (model.FlowDefinition, error) {
	f, ok := s.flows[id]
	if !ok {
		return model.FlowDefinition{}, errors.FlowNotFound(id)
	}
	return f, nil
}

// sortByPriorityThenID orders flows by priority descending, id ascending,
// resolving the matching order the Open Question left unspecified.
func sortByPriorityThenID(flows []model.FlowDefinition) {
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].Priority != flows[j].Priority {
			return flows[i].Priority > flows[j].Priority
		}
		return flows[i].ID < flows[j].ID
	})
}
