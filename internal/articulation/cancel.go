package articulation

import "sync"

// CancelRegistry holds the per-chat stop flags. A flag exists only while a
// render for that chat is running; Request on a chat without a render is a
// no-op.
type CancelRegistry struct {
	mu    sync.Mutex
	flags map[int64]*flag
}

type flag struct {
	set bool
}

// NewCancelRegistry returns an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{flags: make(map[int64]*flag)}
}

// Install registers a cleared flag for chatID and returns its release
// function. A newer render for the same chat replaces the older flag; the
// older release then leaves the newer flag alone.
func (r *CancelRegistry) Install(chatID int64) (release func()) {
	f := &flag{}
	r.mu.Lock()
	r.flags[chatID] = f
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.flags[chatID] == f {
			delete(r.flags, chatID)
		}
	}
}

// Request sets the stop flag for chatID and reports whether a render was
// running.
func (r *CancelRegistry) Request(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[chatID]
	if ok {
		f.set = true
	}
	return ok
}

// Requested reports whether the stop flag for chatID is set.
func (r *CancelRegistry) Requested(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[chatID]
	return ok && f.set
}

// Active counts installed flags.
func (r *CancelRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flags)
}
