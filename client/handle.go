package client

import (
	"context"
	"errors"
	"sync"

	"xdao.co/ipfs-simple/storage"
)

// Mode is the backend the client currently dispatches to.
type Mode int

const (
	// ModeUnbound is the initial mode: requests go to DefaultAPI.
	ModeUnbound Mode = iota
	// ModeInitializing means CreateEmbeddedNode is constructing a node;
	// operations wait for it to settle.
	ModeInitializing
	ModeRemote
	ModeEmbedded
)

func (m Mode) String() string {
	switch m {
	case ModeUnbound:
		return "unbound"
	case ModeInitializing:
		return "initializing"
	case ModeRemote:
		return "remote"
	case ModeEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// initRound is one embedded-node construction. done is closed exactly once,
// after err is set.
type initRound struct {
	done chan struct{}
	err  error
}

// handle is the client's only mutable shared state.
type handle struct {
	mu        sync.Mutex
	mode      Mode
	baseURL   string
	node      storage.Node
	closeNode func() error
	round     *initRound
}

// snapshot is the backend an operation was dispatched against.
type snapshot struct {
	mode    Mode
	baseURL string
	node    storage.Node
}

func (h *handle) bindRemote(baseURL string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mode == ModeInitializing {
		return storage.NewError(storage.KindAlreadyBound, "bind remote address", baseURL, "embedded node initialization in flight")
	}
	h.mode = ModeRemote
	h.baseURL = baseURL
	h.node = nil
	return nil
}

func (h *handle) bindEmbedded(node storage.Node) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mode == ModeInitializing {
		return storage.NewError(storage.KindAlreadyBound, "bind embedded node", "", "embedded node initialization in flight")
	}
	h.mode = ModeEmbedded
	h.baseURL = ""
	h.node = node
	return nil
}

// beginInit moves Unbound to Initializing. Any other mode is AlreadyBound;
// a concurrent second initializer is rejected, never queued.
func (h *handle) beginInit() (*initRound, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mode != ModeUnbound {
		return nil, storage.NewError(storage.KindAlreadyBound, "create embedded node", "", "backend is "+h.mode.String())
	}
	r := &initRound{done: make(chan struct{})}
	h.mode = ModeInitializing
	h.round = r
	return r, nil
}

// finishInit settles r. On failure the handle returns to Unbound, since it
// was never bound.
func (h *handle) finishInit(r *initRound, node storage.Node, closeNode func() error, err error) {
	h.mu.Lock()
	if err == nil && node == nil {
		err = errors.New("node factory returned no node")
	}
	if err != nil {
		h.mode = ModeUnbound
		r.err = err
	} else {
		h.mode = ModeEmbedded
		h.node = node
		h.closeNode = closeNode
	}
	h.round = nil
	h.mu.Unlock()
	close(r.done)
}

// resolve returns the current backend, waiting for an in-flight
// initialization to settle first. It never reports the pre-initialization
// default while a construction is pending.
func (h *handle) resolve(ctx context.Context) (snapshot, error) {
	for {
		h.mu.Lock()
		if h.mode != ModeInitializing {
			s := snapshot{mode: h.mode, baseURL: h.baseURL, node: h.node}
			h.mu.Unlock()
			return s, nil
		}
		r := h.round
		h.mu.Unlock()

		select {
		case <-r.done:
			if r.err != nil {
				return snapshot{}, storage.WrapError(storage.KindBackend, "create embedded node", "", r.err)
			}
		case <-ctx.Done():
			return snapshot{}, ctx.Err()
		}
	}
}

func (h *handle) snapshot() snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshot{mode: h.mode, baseURL: h.baseURL, node: h.node}
}

// takeCloser hands the constructed node's close function to the caller once.
func (h *handle) takeCloser() func() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.closeNode
	h.closeNode = nil
	return c
}
