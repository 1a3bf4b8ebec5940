package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type stub struct {
	match    string
	response string
}

// Mock returns deterministic responses for local runs and tests.
// Stubbed responses are matched by prompt substring, first match wins;
// queued failures are consumed before any response is returned.
type Mock struct {
	mu              sync.Mutex
	stubs           []stub
	defaultResponse string
	failures        []error
	calls           int
	prompts         []string
}

// NewMock creates a mock generator with a default response.
func NewMock() *Mock {
	return &Mock{defaultResponse: "mock response"}
}

// Name returns the generator identifier.
func (m *Mock) Name() string {
	return "mock"
}

// Stub registers a canned response returned when the prompt contains match.
func (m *Mock) Stub(match, response string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{match: match, response: response})
	return m
}

// SetDefault sets the response returned when no stub matches.
func (m *Mock) SetDefault(response string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResponse = response
	return m
}

// FailNext queues n copies of err to be returned before any response.
func (m *Mock) FailNext(n int, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, err)
	}
	return m
}

// Calls returns the number of Generate invocations so far.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts received so far, in call order.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Generate returns a deterministic response for the prompt.
func (m *Mock) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return "", err
	}

	for _, s := range m.stubs {
		if s.match != "" && strings.Contains(prompt, s.match) {
			return s.response, nil
		}
	}
	if m.defaultResponse != "" {
		return m.defaultResponse, nil
	}
	return "", fmt.Errorf("mock: no stub matched prompt")
}
