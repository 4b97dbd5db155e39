// Package watcher keeps a long-lived page in step with the session. It
// subscribes to a client session handle and, on any change of who is signed
// in or of their tokens, asks the page to re-run the server render for its
// current URL. It never navigates on its own.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgellow/depo-front/internal/log"
	"github.com/dgellow/depo-front/internal/session"
	"github.com/dgellow/depo-front/internal/shell"
)

// State is the lifecycle state of a Watcher.
type State int

const (
	StateUninitialized State = iota
	StateWatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWatching:
		return "watching"
	case StateStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// ErrAlreadyInitialized is returned by Init after the first call.
var ErrAlreadyInitialized = errors.New("watcher already initialized")

// SessionHandle is the client session handle the watcher subscribes to.
type SessionHandle interface {
	OnAuthStateChange(fn func(session.AuthEvent)) session.Subscription
}

// HandleFactory builds the page's session handle from the public
// configuration rendered into it.
type HandleFactory func(cfg shell.PublicConfig) (SessionHandle, error)

// Resyncer re-runs the server render for the page's current URL.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// Watcher is page scoped: create one per page load and tear it down when
// the page goes away.
type Watcher struct {
	cfg       shell.PublicConfig
	newHandle HandleFactory
	resyncer  Resyncer

	mu     sync.Mutex
	state  State
	handle SessionHandle
	sub    session.Subscription
	queue  []session.AuthEvent
	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an uninitialized watcher.
func New(cfg shell.PublicConfig, newHandle HandleFactory, resyncer Resyncer) *Watcher {
	return &Watcher{
		cfg:       cfg,
		newHandle: newHandle,
		resyncer:  resyncer,
		notify:    make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Handle returns the session handle built by Init, or nil before it.
func (w *Watcher) Handle() SessionHandle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle
}

// Init builds the session handle, subscribes to it and starts delivering
// events. Cancelling ctx stops delivery; Teardown is still required to
// unsubscribe.
func (w *Watcher) Init(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateUninitialized {
		w.mu.Unlock()
		return ErrAlreadyInitialized
	}

	handle, err := w.newHandle(w.cfg)
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to create session handle: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.handle = handle
	w.cancel = cancel
	w.done = make(chan struct{})
	w.state = StateWatching
	w.mu.Unlock()

	go w.run(ctx)

	// Handles may deliver an initial event from inside OnAuthStateChange,
	// so subscribe without holding the lock.
	sub := handle.OnAuthStateChange(w.enqueue)

	w.mu.Lock()
	w.sub = sub
	stopped := w.state == StateStopped
	w.mu.Unlock()
	if stopped {
		sub.Unsubscribe()
		return nil
	}

	log.LogDebugWithFields("watcher", "Watching session", map[string]any{
		"provider_url": w.cfg.ProviderURL,
	})
	return nil
}

// Teardown unsubscribes and stops event delivery. An event being handled
// finishes first. It is safe to call more than once, and before Init.
func (w *Watcher) Teardown() {
	w.mu.Lock()
	switch w.state {
	case StateUninitialized:
		w.state = StateStopped
		w.mu.Unlock()
		return
	case StateStopped:
		w.mu.Unlock()
		return
	}

	w.state = StateStopped
	sub, cancel, done := w.sub, w.cancel, w.done
	w.queue = nil
	w.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	cancel()
	<-done
}

// enqueue never blocks the handle: the queue is unbounded and drained by
// run in arrival order.
func (w *Watcher) enqueue(ev session.AuthEvent) {
	w.mu.Lock()
	if w.state != StateWatching {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, ev)
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *Watcher) next() (session.AuthEvent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateWatching || len(w.queue) == 0 {
		return session.AuthEvent{}, false
	}
	ev := w.queue[0]
	w.queue = w.queue[1:]
	return ev, true
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.notify:
		}

		for {
			ev, ok := w.next()
			if !ok {
				break
			}
			w.dispatch(ctx, ev)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, ev session.AuthEvent) {
	if !session.IsResyncEvent(ev.Type) {
		log.LogTraceWithFields("watcher", "Ignoring auth event", map[string]any{
			"event": string(ev.Type),
		})
		return
	}

	log.LogDebugWithFields("watcher", "Auth event, resynchronizing", map[string]any{
		"event": string(ev.Type),
	})
	if err := w.resyncer.Resync(ctx); err != nil {
		log.LogWarnWithFields("watcher", "Resync failed", map[string]any{
			"event": string(ev.Type),
			"error": err.Error(),
		})
	}
}
