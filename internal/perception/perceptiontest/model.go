// Package perceptiontest provides a scripted perception.Model for tests of
// the packages that drive the model.
package perceptiontest

import (
	"context"
	"sync"

	"ghostbot/internal/perception"
)

// Reply is one scripted answer. Generate returns Text or Err; Stream emits
// Chunks and then Err.
type Reply struct {
	Text   string
	Chunks []string
	Err    error
}

// Model replays replies keyed by Request.Operation. Replies for an operation
// are consumed in order and the last one repeats. Unscripted operations
// return an empty string.
type Model struct {
	mu       sync.Mutex
	replies  map[string][]Reply
	requests []perception.Request
}

// New returns an empty scripted model.
func New() *Model {
	return &Model{replies: make(map[string][]Reply)}
}

// On appends replies for operation.
func (m *Model) On(operation string, replies ...Reply) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[operation] = append(m.replies[operation], replies...)
	return m
}

func (m *Model) next(req perception.Request) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	queue := m.replies[req.Operation]
	if len(queue) == 0 {
		return Reply{}
	}
	r := queue[0]
	if len(queue) > 1 {
		m.replies[req.Operation] = queue[1:]
	}
	return r
}

// Generate implements perception.Model.
func (m *Model) Generate(ctx context.Context, req perception.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r := m.next(req)
	if r.Err != nil {
		return "", r.Err
	}
	if r.Text == "" && len(r.Chunks) > 0 {
		var text string
		for _, c := range r.Chunks {
			text += c
		}
		return text, nil
	}
	return r.Text, nil
}

// Stream implements perception.Model.
func (m *Model) Stream(ctx context.Context, req perception.Request) (<-chan string, <-chan error) {
	r := m.next(req)
	chunks := r.Chunks
	if len(chunks) == 0 && r.Text != "" {
		chunks = []string{r.Text}
	}

	text := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(text)
		for _, c := range chunks {
			select {
			case text <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if r.Err != nil {
			errs <- r.Err
		}
	}()
	return text, errs
}

// Requests returns every request received so far.
func (m *Model) Requests() []perception.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]perception.Request(nil), m.requests...)
}

// Calls counts requests for operation.
func (m *Model) Calls(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Operation == operation {
			n++
		}
	}
	return n
}

// Last returns the most recent request for operation.
func (m *Model) Last(operation string) (perception.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].Operation == operation {
			return m.requests[i], true
		}
	}
	return perception.Request{}, false
}
