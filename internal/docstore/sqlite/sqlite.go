// Package sqlite is a document store over the SQLite repository. Watches are
// served in-process: every successful write re-reads the changed collection
// and pushes it to the user's watchers.
package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"receipts/internal/core"
	"receipts/internal/docstore"
	"receipts/internal/storage"
)

type watcher struct {
	projects func([]core.Project)
	entries  func([]core.Entry)
}

type Store struct {
	repo *storage.SQLiteRepository

	mu       sync.Mutex
	watchers map[string]map[int]watcher
	nextID   int

	// pushMu keeps pushes for all users in write order.
	pushMu sync.Mutex
}

var _ docstore.Store = (*Store)(nil)

func New(repo *storage.SQLiteRepository) *Store {
	return &Store{repo: repo, watchers: make(map[string]map[int]watcher)}
}

func mapErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return docstore.ErrNotFound
	}
	return docstore.Remote(op, err)
}

func (s *Store) snapshotWatchers(uid string) []watcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]watcher, 0, len(s.watchers[uid]))
	for _, w := range s.watchers[uid] {
		out = append(out, w)
	}
	return out
}

func (s *Store) pushProjects(ctx context.Context, uid string) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	ws := s.snapshotWatchers(uid)
	if len(ws) == 0 {
		return
	}
	projects, err := s.repo.ListProjects(ctx, uid)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to refresh project watchers", "uid", uid, "error", err)
		return
	}
	for _, w := range ws {
		if w.projects != nil {
			w.projects(projects)
		}
	}
}

func (s *Store) pushEntries(ctx context.Context, uid string) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	ws := s.snapshotWatchers(uid)
	if len(ws) == 0 {
		return
	}
	entries, err := s.repo.ListEntries(ctx, uid)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to refresh entry watchers", "uid", uid, "error", err)
		return
	}
	for _, w := range ws {
		if w.entries != nil {
			w.entries(entries)
		}
	}
}

func (s *Store) AddProject(ctx context.Context, uid string, p core.Project) (string, error) {
	id, err := s.repo.InsertProject(ctx, uid, p)
	if err != nil {
		return "", mapErr("add project", err)
	}
	s.pushProjects(ctx, uid)
	return id, nil
}

func (s *Store) UpdateProject(ctx context.Context, uid string, p core.Project) error {
	if err := s.repo.UpdateProject(ctx, uid, p); err != nil {
		return mapErr("update project", err)
	}
	s.pushProjects(ctx, uid)
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, uid, id string) error {
	if err := s.repo.DeleteProject(ctx, uid, id); err != nil {
		return mapErr("delete project", err)
	}
	s.pushProjects(ctx, uid)
	s.pushEntries(ctx, uid)
	return nil
}

func (s *Store) AddEntry(ctx context.Context, uid string, e core.Entry) (string, error) {
	id, err := s.repo.InsertEntry(ctx, uid, e)
	if err != nil {
		return "", mapErr("add entry", err)
	}
	s.pushEntries(ctx, uid)
	return id, nil
}

func (s *Store) UpdateEntry(ctx context.Context, uid string, e core.Entry) error {
	if err := s.repo.UpdateEntry(ctx, uid, e); err != nil {
		return mapErr("update entry", err)
	}
	s.pushEntries(ctx, uid)
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, uid, id string) error {
	if err := s.repo.DeleteEntry(ctx, uid, id); err != nil {
		return mapErr("delete entry", err)
	}
	s.pushEntries(ctx, uid)
	return nil
}

func (s *Store) HasProject(ctx context.Context, uid, id string) (bool, error) {
	ok, err := s.repo.HasProject(ctx, uid, id)
	if err != nil {
		return false, mapErr("has project", err)
	}
	return ok, nil
}

func (s *Store) Load(ctx context.Context, uid string) ([]core.Project, []core.Entry, error) {
	projects, err := s.repo.ListProjects(ctx, uid)
	if err != nil {
		return nil, nil, mapErr("load projects", err)
	}
	entries, err := s.repo.ListEntries(ctx, uid)
	if err != nil {
		return nil, nil, mapErr("load entries", err)
	}
	return projects, entries, nil
}

func (s *Store) register(uid string, w watcher) docstore.Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.watchers[uid] == nil {
		s.watchers[uid] = make(map[int]watcher)
	}
	s.watchers[uid][id] = w
	s.mu.Unlock()

	var once sync.Once
	return docstore.SubscriptionFunc(func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[uid], id)
			if len(s.watchers[uid]) == 0 {
				delete(s.watchers, uid)
			}
			s.mu.Unlock()
		})
	})
}

func (s *Store) WatchProjects(ctx context.Context, uid string, fn func([]core.Project)) (docstore.Subscription, error) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	projects, err := s.repo.ListProjects(ctx, uid)
	if err != nil {
		return nil, mapErr("watch projects", err)
	}
	sub := s.register(uid, watcher{projects: fn})
	fn(projects)
	return sub, nil
}

func (s *Store) WatchEntries(ctx context.Context, uid string, fn func([]core.Entry)) (docstore.Subscription, error) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	entries, err := s.repo.ListEntries(ctx, uid)
	if err != nil {
		return nil, mapErr("watch entries", err)
	}
	sub := s.register(uid, watcher{entries: fn})
	fn(entries)
	return sub, nil
}

// UIDs lists the users that own data.
func (s *Store) UIDs(ctx context.Context) ([]string, error) {
	uids, err := s.repo.UIDs(ctx)
	if err != nil {
		return nil, docstore.Remote("list users", err)
	}
	return uids, nil
}

// Close releases the repository.
func (s *Store) Close() error {
	return s.repo.Close()
}
