// Package mocks provides test doubles for the relay's outbound dependencies.
package mocks

import (
	"context"
	"sync"
)

// Call records one Complete invocation.
type Call struct {
	Prompt string
	Model  string
}

// MockCompleter implements gateway.Completer for testing purposes.
// It records every call and delegates to CompleteFunc when set.
//
// Example usage:
//
//	completer := mocks.NewMockCompleter(func(ctx context.Context, prompt, model string) (string, error) {
//	    return "mocked response", nil
//	})
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, prompt, model string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// NewMockCompleter creates a new MockCompleter with an optional complete
// function. If completeFunc is nil, Complete returns an empty reply.
func NewMockCompleter(completeFunc func(ctx context.Context, prompt, model string) (string, error)) *MockCompleter {
	return &MockCompleter{CompleteFunc: completeFunc}
}

// Complete records the call and returns the configured result.
func (m *MockCompleter) Complete(ctx context.Context, prompt, model string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Prompt: prompt, Model: model})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, model)
	}
	return "", nil
}

// Calls returns a copy of the recorded calls in order.
func (m *MockCompleter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockTokenCounter stands in for the tiktoken counter so tests never load an
// encoding. Without CountFunc it counts bytes.
type MockTokenCounter struct {
	CountFunc func(text string) int
}

// CountTokens implements the handlers' token counter.
func (m *MockTokenCounter) CountTokens(text string) int {
	if m.CountFunc != nil {
		return m.CountFunc(text)
	}
	return len(text)
}
