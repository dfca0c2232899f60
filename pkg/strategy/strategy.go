// Package strategy defines reasoning strategies: pure prompt construction
// and response post-processing rules identified by id. Strategies never
// perform I/O; providers and parsers live behind the llm package.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// Built-in strategy ids.
const (
	StrategyNone           = "none"
	StrategyChainOfThought = "chain_of_thought"
)

// Result is what a strategy extracts from a schema-valid response.
type Result struct {
	FinalAnswer   string
	ReasoningText string
	Metadata      map[string]any
}

// Strategy is one reasoning approach. BuildPrompt and ProcessResponse are
// pure functions; OutputSchemaID names the JSON schema the parsing layer
// must enforce on responses.
type Strategy interface {
	ID() string
	BuildPrompt(question models.Question, cfg models.AgentConfig) []models.Message
	ProcessResponse(response models.ParsedResponse) (*Result, error)
	OutputSchemaID() string
	ValidateConfig(cfg models.AgentConfig) error
}

// Registry holds the known strategies. It is populated at startup and
// read-only afterwards.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// DefaultRegistry returns a registry with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Built-ins cannot collide.
	_ = r.Register(NewDirectStrategy())
	_ = r.Register(NewChainOfThoughtStrategy())
	return r
}

// Register adds a strategy. Duplicate ids are rejected.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[s.ID()]; exists {
		return fmt.Errorf("strategy %q is already registered", s.ID())
	}
	r.strategies[s.ID()] = s
	return nil
}

// Get returns the strategy registered under id.
func (r *Registry) Get(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return nil, models.NewConfigurationFailure(
			fmt.Sprintf("unknown reasoning strategy %q", id),
			fmt.Sprintf("registered strategies: %v", r.idsLocked()),
		).AsError()
	}
	return s, nil
}

// IDs returns the registered strategy ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idsLocked()
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// answerFrom pulls the required "answer" field out of schema-validated data.
func answerFrom(data map[string]any, strategyID string) (string, error) {
	v, ok := data["answer"]
	if !ok {
		return "", fmt.Errorf("strategy %q: structured data has no answer field", strategyID)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("strategy %q: answer field is %T, want string", strategyID, v)
	}
	return s, nil
}
