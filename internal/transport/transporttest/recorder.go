// Package transporttest provides an in-memory transport.Transport that
// records every call.
package transporttest

import (
	"context"
	"sync"

	"ghostbot/internal/transport"
)

// Op names a recorded call.
type Op string

const (
	OpSend     Op = "send"
	OpEdit     Op = "edit"
	OpDelete   Op = "delete"
	OpPhoto    Op = "photo"
	OpCommands Op = "commands"
	OpAnswer   Op = "answer"
)

// Call is one recorded transport call.
type Call struct {
	Op       Op
	Ref      transport.MessageRef
	Message  transport.Message
	Photo    []byte
	Commands []transport.Command
	Callback string
}

// Recorder is a goroutine-safe fake transport. Message ids start at 1.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	nextID int
	texts  map[transport.MessageRef]transport.Message

	// Errors returned by the matching operation when set. The call is still
	// recorded.
	SendErr   error
	EditErr   error
	DeleteErr error
	PhotoErr  error

	// EditHTMLErr fails only edits in HTML parse mode.
	EditHTMLErr error
}

var _ transport.Transport = (*Recorder)(nil)

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{texts: make(map[transport.MessageRef]transport.Message)}
}

func (r *Recorder) record(c Call) {
	r.calls = append(r.calls, c)
}

func (r *Recorder) newRef(chatID int64) transport.MessageRef {
	r.nextID++
	return transport.MessageRef{ChatID: chatID, MessageID: r.nextID}
}

// Send implements transport.Transport.
func (r *Recorder) Send(_ context.Context, chatID int64, msg transport.Message) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := r.newRef(chatID)
	r.record(Call{Op: OpSend, Ref: ref, Message: msg})
	if r.SendErr != nil {
		return transport.MessageRef{}, r.SendErr
	}
	r.texts[ref] = msg
	return ref, nil
}

// Edit implements transport.Transport.
func (r *Recorder) Edit(_ context.Context, ref transport.MessageRef, msg transport.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: OpEdit, Ref: ref, Message: msg})
	if r.EditErr != nil {
		return r.EditErr
	}
	if r.EditHTMLErr != nil && msg.ParseMode == transport.HTML {
		return r.EditHTMLErr
	}
	r.texts[ref] = msg
	return nil
}

// Delete implements transport.Transport.
func (r *Recorder) Delete(_ context.Context, ref transport.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: OpDelete, Ref: ref})
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	delete(r.texts, ref)
	return nil
}

// SendPhoto implements transport.Transport.
func (r *Recorder) SendPhoto(_ context.Context, chatID int64, photo []byte, caption transport.Message) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := r.newRef(chatID)
	r.record(Call{Op: OpPhoto, Ref: ref, Message: caption, Photo: photo})
	if r.PhotoErr != nil {
		return transport.MessageRef{}, r.PhotoErr
	}
	r.texts[ref] = caption
	return ref, nil
}

// SetCommands implements transport.Transport.
func (r *Recorder) SetCommands(_ context.Context, commands []transport.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: OpCommands, Commands: commands})
	return nil
}

// AnswerCallback implements transport.Transport.
func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: OpAnswer, Callback: callbackID, Message: transport.PlainText(text)})
	return nil
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsOf returns the recorded calls of one kind.
func (r *Recorder) CallsOf(op Op) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Current returns the latest content of ref and whether it still exists.
func (r *Recorder) Current(ref transport.MessageRef) (transport.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.texts[ref]
	return msg, ok
}

// Reset forgets recorded calls but keeps message state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
