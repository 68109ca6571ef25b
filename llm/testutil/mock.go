// Package testutil provides test doubles for the llm package.
package testutil

import (
	"context"
	"sync"

	"github.com/plotlinehq/plotline/llm"
)

// MockClient is a thread-safe llm.Completer for tests. It returns configured
// responses in sequence and records every request it receives.
//
//	mock := &testutil.MockClient{
//	    Responses: []*llm.Response{{Content: `[{"category": "Network", ...}]`}},
//	}
type MockClient struct {
	mu            sync.Mutex
	requests      []llm.Request
	responseIndex int

	// Responses are returned in order; the last one repeats once exhausted.
	Responses []*llm.Response

	// Err, when set, is returned instead of a response.
	Err error
}

// Complete implements llm.Completer.
func (m *MockClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return &llm.Response{Content: "", Model: "mock"}, nil
	}

	resp := m.Responses[m.responseIndex]
	if m.responseIndex < len(m.Responses)-1 {
		m.responseIndex++
	}
	return resp, nil
}

// CallCount returns how many times Complete was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the captured requests.
func (m *MockClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}
