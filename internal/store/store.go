// Package store holds the in-memory Projects and Entries collections that the
// rest of the application reads from.
//
// A Store is the single source of truth for the derived views: readers take a
// Snapshot (both collections copied under one lock) or Subscribe to be handed
// a fresh Snapshot after every change. Local mutation primitives assign
// identifiers and keep the unassign-on-delete invariant; the epoch-guarded
// Apply* methods let a remote subscription replace whole collections without
// ever letting a released subscription write into a newer binding.
package store

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"receipts/internal/core"
)

// ErrNotFound is returned when an update or delete names an unknown id.
var ErrNotFound = errors.New("record not found")

// Epoch identifies one binding of the store to a remote source.
type Epoch uint64

// Snapshot is a consistent copy of both collections.
type Snapshot struct {
	Projects []core.Project
	Entries  []core.Entry
}

// Store is an observable pair of Projects and Entries collections, safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	projects []core.Project
	entries  []core.Entry
	epoch    Epoch

	listenersMu sync.Mutex
	listeners   map[int]func(Snapshot)
	nextID      int
	notifyMu    sync.Mutex
}

// New returns an empty Store at epoch zero.
func New() *Store {
	return &Store{listeners: make(map[int]func(Snapshot))}
}

// Snapshot returns copies of both collections taken under the same lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Projects: append([]core.Project(nil), s.projects...),
		Entries:  make([]core.Entry, len(s.entries)),
	}
	for i, e := range s.entries {
		snap.Entries[i] = e.Clone()
	}
	return snap
}

// Subscription is returned by Subscribe; Stop is safe to call more than once.
type Subscription struct {
	once sync.Once
	stop func()
}

func (sub *Subscription) Stop() {
	if sub == nil {
		return
	}
	sub.once.Do(sub.stop)
}

// Subscribe registers fn and immediately calls it with the current snapshot.
// fn is called again after every change, in change order.
func (s *Store) Subscribe(fn func(Snapshot)) *Subscription {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	s.notifyMu.Lock()
	fn(s.Snapshot())
	s.notifyMu.Unlock()

	return &Subscription{stop: func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}}
}

// notify delivers snap to every listener. notifyMu keeps deliveries in
// mutation order.
func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	snap := s.Snapshot()
	s.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) ProjectByID(id string) (core.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.projectIndex(id); i >= 0 {
		return s.projects[i], true
	}
	return core.Project{}, false
}

func (s *Store) EntryByID(id string) (core.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.entryIndex(id); i >= 0 {
		return s.entries[i].Clone(), true
	}
	return core.Entry{}, false
}

func (s *Store) projectIndex(id string) int {
	for i := range s.projects {
		if s.projects[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) entryIndex(id string) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// freshID returns an identifier not used by any held record.
func (s *Store) freshID(taken func(string) bool) string {
	for {
		id := uuid.NewString()
		if !taken(id) {
			return id
		}
	}
}

// AddProject stores p under a new identifier, ignoring any id it carries.
func (s *Store) AddProject(p core.Project) (string, error) {
	s.mu.Lock()
	p.ID = s.freshID(func(id string) bool { return s.projectIndex(id) >= 0 })
	s.projects = append(s.projects, p)
	s.mu.Unlock()

	s.notify()
	return p.ID, nil
}

// UpdateProject replaces the stored project with the same id.
func (s *Store) UpdateProject(p core.Project) error {
	s.mu.Lock()
	i := s.projectIndex(p.ID)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.projects[i] = p
	s.mu.Unlock()

	s.notify()
	return nil
}

// DeleteProject removes the project and unassigns every entry that
// referenced it, in one critical section.
func (s *Store) DeleteProject(id string) error {
	s.mu.Lock()
	i := s.projectIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.projects = append(s.projects[:i:i], s.projects[i+1:]...)
	for j := range s.entries {
		if s.entries[j].ProjectID == id {
			s.entries[j].ProjectID = ""
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// danglingLocked reports whether e names a project the store does not hold.
func (s *Store) danglingLocked(e core.Entry) bool {
	return e.ProjectID != "" && s.projectIndex(e.ProjectID) < 0
}

// AddEntry stores e under a fresh id. A non-empty ProjectID must name a held
// project, otherwise core.ErrUnknownProject.
func (s *Store) AddEntry(e core.Entry) (string, error) {
	s.mu.Lock()
	if s.danglingLocked(e) {
		s.mu.Unlock()
		return "", core.ErrUnknownProject
	}
	e = e.Clone()
	e.ID = s.freshID(func(id string) bool { return s.entryIndex(id) >= 0 })
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	s.notify()
	return e.ID, nil
}

func (s *Store) UpdateEntry(e core.Entry) error {
	s.mu.Lock()
	i := s.entryIndex(e.ID)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.danglingLocked(e) {
		s.mu.Unlock()
		return core.ErrUnknownProject
	}
	s.entries[i] = e.Clone()
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) DeleteEntry(id string) error {
	s.mu.Lock()
	i := s.entryIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Reset empties both collections and starts a new epoch. Apply calls tagged
// with any earlier epoch are rejected from now on.
func (s *Store) Reset() Epoch {
	s.mu.Lock()
	s.epoch++
	ep := s.epoch
	s.projects = nil
	s.entries = nil
	s.mu.Unlock()

	s.notify()
	return ep
}

// Epoch returns the current epoch.
func (s *Store) Epoch() Epoch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// ApplyProjects replaces the project collection if ep is still current.
func (s *Store) ApplyProjects(ep Epoch, projects []core.Project) bool {
	s.mu.Lock()
	if ep != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.projects = append([]core.Project(nil), projects...)
	s.mu.Unlock()

	s.notify()
	return true
}

// ApplyEntries replaces the entry collection if ep is still current.
func (s *Store) ApplyEntries(ep Epoch, entries []core.Entry) bool {
	s.mu.Lock()
	if ep != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.entries = make([]core.Entry, len(entries))
	for i, e := range entries {
		s.entries[i] = e.Normalize()
	}
	s.mu.Unlock()

	s.notify()
	return true
}
