package llm

import (
	"context"

	"github.com/caliperhq/caliper-engine/pkg/models"
)

// MockClient is a configurable Client double for tests.
type MockClient struct {
	ChatCompletionFunc func(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error)
	ProviderID         string

	ChatCompletionCalls int
	LastModel           string
	LastMessages        []models.Message
	LastOptions         Options
}

func (m *MockClient) ChatCompletion(ctx context.Context, model string, messages []models.Message, opts Options) (*models.ParsedResponse, error) {
	m.ChatCompletionCalls++
	m.LastModel = model
	m.LastMessages = messages
	m.LastOptions = opts
	if m.ChatCompletionFunc != nil {
		return m.ChatCompletionFunc(ctx, model, messages, opts)
	}
	return &models.ParsedResponse{Content: `{"answer": "mock"}`}, nil
}

func (m *MockClient) Provider() string {
	if m.ProviderID == "" {
		return "mock"
	}
	return m.ProviderID
}

// Reset clears recorded calls.
func (m *MockClient) Reset() {
	m.ChatCompletionCalls = 0
	m.LastModel = ""
	m.LastMessages = nil
	m.LastOptions = nil
}

// MockFactory is a configurable Factory double for tests.
type MockFactory struct {
	CreateClientFunc func(cfg models.AgentConfig) (Client, error)
	PlanFunc         func(cfg models.AgentConfig) (string, string, error)
	Client           Client

	CreateClientCalls int
}

func (f *MockFactory) CreateClient(cfg models.AgentConfig) (Client, error) {
	f.CreateClientCalls++
	if f.CreateClientFunc != nil {
		return f.CreateClientFunc(cfg)
	}
	if f.Client != nil {
		return f.Client, nil
	}
	return &MockClient{}, nil
}

func (f *MockFactory) Plan(cfg models.AgentConfig) (string, string, error) {
	if f.PlanFunc != nil {
		return f.PlanFunc(cfg)
	}
	return "mock", ParserPostProcess, nil
}

var (
	_ Client  = (*MockClient)(nil)
	_ Factory = (*MockFactory)(nil)
)
