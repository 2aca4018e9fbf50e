package corert

import "sync"

// Closeable is a leaked resource a module can register so that it is
// guaranteed to be closed during shutdown even if script code never
// closes it explicitly (a forgotten socket, an open file descriptor). It
// mirrors java.io.Closeable from the original, narrowed to the one method
// corert actually calls.
type Closeable interface {
	Close() error
}

// OpenHandles is the identity-keyed set of registered Closeables described
// by spec §3 / §4.11, grounded on the original's
// IdentityHashMap<Closeable,Closeable> openHandles. Registration and
// deregistration may happen from any goroutine (modules commonly register
// a handle from a callback running on the loop goroutine and unregister it
// from the same place once the orderly close completes); draining only
// happens once, during shutdown.
type OpenHandles struct {
	mu   sync.Mutex
	open map[Closeable]struct{}
}

// NewOpenHandles creates an empty handle registry.
func NewOpenHandles() *OpenHandles {
	return &OpenHandles{open: make(map[Closeable]struct{})}
}

// Register adds c to the set of handles considered open. Registering the
// same handle twice is a no-op.
func (h *OpenHandles) Register(c Closeable) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open[c] = struct{}{}
}

// Unregister removes c from the set, typically called once a module has
// closed it through its own, orderly path. Unregistering an unknown or
// already-removed handle is a no-op.
func (h *OpenHandles) Unregister(c Closeable) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.open, c)
}

// Len reports the number of currently registered handles.
func (h *OpenHandles) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.open)
}

// CloseAll closes every remaining registered handle, collecting but not
// stopping on individual errors, and leaves the registry empty. It is
// called exactly once, during the shutdown sequence (spec §4.11), after
// module-owned cleanup (e.g. a filesystem module's own cleanup pass) has
// already run. A handle that errors on Close is still removed — shutdown
// must make forward progress.
func (h *OpenHandles) CloseAll() []error {
	h.mu.Lock()
	leaked := make([]Closeable, 0, len(h.open))
	for c := range h.open {
		leaked = append(leaked, c)
	}
	h.open = make(map[Closeable]struct{})
	h.mu.Unlock()

	var errs []error
	for _, c := range leaked {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
