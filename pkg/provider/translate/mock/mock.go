// Package mock provides a test double for translate.Translator.
//
// Responses are looked up by source text in Replies; unknown texts fall back
// to Default. Set Block to hold calls until the test releases them, which
// makes in-flight states observable.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

var _ translate.Translator = (*Translator)(nil)

// Call records a single invocation of Translate.
type Call struct {
	Ctx context.Context
	Req translate.Request
}

// Translator is a mock implementation of translate.Translator.
type Translator struct {
	mu sync.Mutex

	// Replies maps source text to the translated text returned for it.
	Replies map[string]string

	// Default is returned for texts not present in Replies. When empty the
	// request text is echoed with a "tr:" prefix.
	Default string

	// Err, if non-nil, is returned from every call.
	Err error

	// Block, if non-nil, is received from before each call returns.
	Block chan struct{}

	// Calls records every call to Translate in order.
	Calls []Call
}

// Translate records the call and returns the configured reply.
func (m *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Ctx: ctx, Req: req})
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return translate.Result{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return translate.Result{}, m.Err
	}
	if v, ok := m.Replies[req.Text]; ok {
		return translate.Result{Text: v, Provider: "mock"}, nil
	}
	if m.Default != "" {
		return translate.Result{Text: m.Default, Provider: "mock"}, nil
	}
	return translate.Result{Text: "tr:" + req.Text, Provider: "mock"}, nil
}

// Texts returns the request texts of all recorded calls in order.
func (m *Translator) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Req.Text
	}
	return out
}

// CallCount returns the number of recorded calls.
func (m *Translator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
