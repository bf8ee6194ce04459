// Package session binds the Record Store to the signed-in user's documents.
//
// A Manager is either Unbound (store empty, nothing watched) or Bound to one
// uid with exactly one projects watch and one entries watch feeding the store.
// Every binding gets a fresh store epoch, so callbacks arriving from a watch
// that has already been released are dropped by the store itself.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"receipts/internal/core"
	"receipts/internal/docstore"
	"receipts/internal/store"
)

// ErrSubscribe is returned when the watches for a user cannot be established.
var ErrSubscribe = errors.New("subscribe to user documents")

type State int

const (
	Unbound State = iota
	Bound
)

func (s State) String() string {
	if s == Bound {
		return "bound"
	}
	return "unbound"
}

// Status is published to observers after every transition.
type Status struct {
	State State
	UID   string
	Err   error
}

// IdentitySource reports the signed-in uid ("" when signed out) and its changes.
type IdentitySource interface {
	CurrentUID() string
	OnChange(fn func(uid string)) (stop func())
}

type Manager struct {
	docs  docstore.Watcher
	store *store.Store

	// mu serialises transitions.
	mu   sync.Mutex
	subs []docstore.Subscription

	stateMu sync.RWMutex
	state   State
	uid     string

	obsMu     sync.Mutex
	observers map[int]func(Status)
	nextObs   int

	detach func()
}

func NewManager(docs docstore.Watcher, s *store.Store) *Manager {
	return &Manager{
		docs:      docs,
		store:     s,
		observers: make(map[int]func(Status)),
	}
}

// Store returns the Record Store the manager feeds.
func (m *Manager) Store() *store.Store { return m.store }

// State returns the current state and bound uid.
func (m *Manager) State() (State, string) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state, m.uid
}

// Watch registers fn for transition events. fn must not call SetIdentity.
func (m *Manager) Watch(fn func(Status)) (stop func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			delete(m.observers, id)
			m.obsMu.Unlock()
		})
	}
}

func (m *Manager) publish(st Status) {
	m.obsMu.Lock()
	fns := make([]func(Status), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (m *Manager) setState(st State, uid string) {
	m.stateMu.Lock()
	m.state, m.uid = st, uid
	m.stateMu.Unlock()
}

// SetIdentity moves the manager to reflect uid; "" means signed out.
//
// Binding the uid that is already bound is a no-op. Any other change first
// releases the current watches and clears the store. If the new watches
// cannot be established the manager ends Unbound with an empty store and the
// error is returned; calling SetIdentity again retries.
func (m *Manager) SetIdentity(ctx context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, bound := m.State()
	if uid != "" && state == Bound && bound == uid {
		return nil
	}
	if uid == "" && state == Unbound {
		return nil
	}

	// no observer may see the old binding over a cleared store
	m.release()
	m.setState(Unbound, "")
	epoch := m.store.Reset()

	if uid == "" {
		slog.InfoContext(ctx, "Session unbound", "previous_uid", bound)
		m.publish(Status{State: Unbound})
		return nil
	}

	if err := m.bind(ctx, uid, epoch); err != nil {
		m.release()
		m.store.Reset()
		m.setState(Unbound, "")
		err = fmt.Errorf("%w for %s: %w", ErrSubscribe, uid, err)
		slog.ErrorContext(ctx, "Session binding failed", "uid", uid, "error", err)
		m.publish(Status{State: Unbound, UID: uid, Err: err})
		return err
	}

	m.setState(Bound, uid)
	slog.InfoContext(ctx, "Session bound", "uid", uid)
	m.publish(Status{State: Bound, UID: uid})
	return nil
}

func (m *Manager) bind(ctx context.Context, uid string, epoch store.Epoch) error {
	projects, err := m.docs.WatchProjects(ctx, uid, func(ps []core.Project) {
		m.store.ApplyProjects(epoch, ps)
	})
	if err != nil {
		return err
	}
	m.subs = append(m.subs, projects)

	entries, err := m.docs.WatchEntries(ctx, uid, func(es []core.Entry) {
		m.store.ApplyEntries(epoch, es)
	})
	if err != nil {
		return err
	}
	m.subs = append(m.subs, entries)
	return nil
}

// release stops every held watch exactly once. Callers hold mu.
func (m *Manager) release() {
	for _, sub := range m.subs {
		sub.Stop()
	}
	m.subs = nil
}

// Attach binds to src's current identity and follows its changes until Close.
func (m *Manager) Attach(ctx context.Context, src IdentitySource) error {
	stop := src.OnChange(func(uid string) {
		// failures are published to observers and retried on the next change
		_ = m.SetIdentity(context.WithoutCancel(ctx), uid)
	})
	m.mu.Lock()
	if m.detach != nil {
		m.detach()
	}
	m.detach = stop
	m.mu.Unlock()
	return m.SetIdentity(ctx, src.CurrentUID())
}

// Close detaches from the identity source and releases all watches.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.detach != nil {
		m.detach()
		m.detach = nil
	}
	m.mu.Unlock()
	return m.SetIdentity(context.Background(), "")
}
