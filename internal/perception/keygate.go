package perception

import (
	"context"
	"fmt"
	"sync"

	"ghostbot/internal/logging"
	"ghostbot/internal/usage"
)

// ClientFactory builds a model bound to one key.
type ClientFactory func(ctx context.Context, key string) (Model, error)

// KeyGate rotates round-robin through a pool of API keys. The current index
// is process-wide state: it is created once at boot and only ever advances.
type KeyGate struct {
	mu      sync.Mutex
	keys    []string
	index   int
	factory ClientFactory
	clients map[int]Model
}

// NewKeyGate creates a gate over keys. keys must not be empty.
func NewKeyGate(keys []string, factory ClientFactory) (*KeyGate, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key gate needs at least one key")
	}
	if factory == nil {
		return nil, fmt.Errorf("key gate needs a client factory")
	}
	return &KeyGate{
		keys:    append([]string(nil), keys...),
		factory: factory,
		clients: make(map[int]Model),
	}, nil
}

// Size returns the number of keys.
func (g *KeyGate) Size() int {
	return len(g.keys)
}

// Index returns the current key index.
func (g *KeyGate) Index() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index
}

// Acquire returns a model for the current key. Credential errors advance to
// the next key; a full cycle back to the starting key without success
// yields ErrUnavailable. Any other error aborts at once with ErrUnavailable
// and leaves the index where it is.
func (g *KeyGate) Acquire(ctx context.Context) (Model, error) {
	start := g.Index()
	for attempt := 0; attempt < len(g.keys); attempt++ {
		idx, cached := g.current()
		if cached != nil {
			return &gatedModel{Model: cached, gate: g, index: idx}, nil
		}

		m, err := g.factory(ctx, g.keys[idx])
		if err == nil {
			g.remember(idx, m)
			return &gatedModel{Model: m, gate: g, index: idx}, nil
		}
		if !IsCredentialError(err) {
			logging.APIError("Unexpected error initializing model with key #%d: %v", idx, err)
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		logging.APIWarn("API key #%d rejected: %v", idx, err)
		if next := g.rotateFrom(idx); next == start {
			break
		}
	}

	usage.RecordKeyPoolExhausted()
	logging.APIError("All %d API keys failed", len(g.keys))
	return nil, ErrUnavailable
}

// Report feeds a call error back to the gate. A credential error on the key
// at index rotates away from it; the rotation is skipped when another flow
// already moved past that key. It reports whether the error was a
// credential error.
func (g *KeyGate) Report(index int, err error) bool {
	if !IsCredentialError(err) {
		return false
	}
	logging.APIWarn("API key #%d failed during a call: %v", index, err)
	g.rotateFrom(index)
	return true
}

func (g *KeyGate) current() (int, Model) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index, g.clients[g.index]
}

func (g *KeyGate) remember(idx int, m Model) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[idx] = m
}

// rotateFrom advances past idx if idx is still current, dropping its cached
// client, and returns the resulting index.
func (g *KeyGate) rotateFrom(idx int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index == idx {
		delete(g.clients, idx)
		g.index = (g.index + 1) % len(g.keys)
		usage.RecordKeyRotation()
		logging.API("API key rotated, now using key index %d", g.index)
	}
	return g.index
}

// gatedModel reports credential failures of its key back to the gate.
type gatedModel struct {
	Model
	gate  *KeyGate
	index int
}

func (m *gatedModel) Generate(ctx context.Context, req Request) (string, error) {
	text, err := m.Model.Generate(ctx, req)
	if err != nil {
		m.gate.Report(m.index, err)
	}
	return text, err
}

func (m *gatedModel) Stream(ctx context.Context, req Request) (<-chan string, <-chan error) {
	text, errs := m.Model.Stream(ctx, req)
	out := make(chan error, 1)
	go func() {
		defer close(out)
		if err, ok := <-errs; ok && err != nil {
			m.gate.Report(m.index, err)
			out <- err
		}
	}()
	return text, out
}
