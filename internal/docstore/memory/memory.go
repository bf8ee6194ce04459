// Package memory is an in-process document store: one store.Store per user.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"receipts/internal/core"
	"receipts/internal/docstore"
	"receipts/internal/store"
)

type Store struct {
	mu    sync.Mutex
	users map[string]*store.Store

	// Fail, when set, makes every call for the returned uid fail. Tests use it
	// to simulate an unreachable backend.
	Fail func(op, uid string) error
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{users: make(map[string]*store.Store)}
}

func (s *Store) user(uid string) *store.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		u = store.New()
		s.users[uid] = u
	}
	return u
}

func (s *Store) check(ctx context.Context, op, uid string) error {
	if err := ctx.Err(); err != nil {
		return docstore.Remote(op, err)
	}
	if s.Fail != nil {
		if err := s.Fail(op, uid); err != nil {
			return docstore.Remote(op, err)
		}
	}
	return nil
}

func mapErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return docstore.ErrNotFound
	}
	return docstore.Remote(op, err)
}

func (s *Store) AddProject(ctx context.Context, uid string, p core.Project) (string, error) {
	if err := s.check(ctx, "add project", uid); err != nil {
		return "", err
	}
	id, err := s.user(uid).AddProject(p)
	if err != nil {
		return "", mapErr("add project", err)
	}
	return id, nil
}

func (s *Store) UpdateProject(ctx context.Context, uid string, p core.Project) error {
	if err := s.check(ctx, "update project", uid); err != nil {
		return err
	}
	if err := s.user(uid).UpdateProject(p); err != nil {
		return mapErr("update project", err)
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, uid, id string) error {
	if err := s.check(ctx, "delete project", uid); err != nil {
		return err
	}
	if err := s.user(uid).DeleteProject(id); err != nil {
		return mapErr("delete project", err)
	}
	return nil
}

func (s *Store) AddEntry(ctx context.Context, uid string, e core.Entry) (string, error) {
	if err := s.check(ctx, "add entry", uid); err != nil {
		return "", err
	}
	id, err := s.user(uid).AddEntry(e.Normalize())
	if err != nil {
		return "", mapErr("add entry", err)
	}
	return id, nil
}

func (s *Store) UpdateEntry(ctx context.Context, uid string, e core.Entry) error {
	if err := s.check(ctx, "update entry", uid); err != nil {
		return err
	}
	if err := s.user(uid).UpdateEntry(e.Normalize()); err != nil {
		return mapErr("update entry", err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, uid, id string) error {
	if err := s.check(ctx, "delete entry", uid); err != nil {
		return err
	}
	if err := s.user(uid).DeleteEntry(id); err != nil {
		return mapErr("delete entry", err)
	}
	return nil
}

func (s *Store) HasProject(ctx context.Context, uid, id string) (bool, error) {
	if err := s.check(ctx, "has project", uid); err != nil {
		return false, err
	}
	_, ok := s.user(uid).ProjectByID(id)
	return ok, nil
}

func (s *Store) Load(ctx context.Context, uid string) ([]core.Project, []core.Entry, error) {
	if err := s.check(ctx, "load", uid); err != nil {
		return nil, nil, err
	}
	snap := s.user(uid).Snapshot()
	return snap.Projects, snap.Entries, nil
}

func (s *Store) WatchProjects(ctx context.Context, uid string, fn func([]core.Project)) (docstore.Subscription, error) {
	if err := s.check(ctx, "watch projects", uid); err != nil {
		return nil, err
	}
	sub := s.user(uid).Subscribe(func(snap store.Snapshot) { fn(snap.Projects) })
	return docstore.SubscriptionFunc(sub.Stop), nil
}

func (s *Store) WatchEntries(ctx context.Context, uid string, fn func([]core.Entry)) (docstore.Subscription, error) {
	if err := s.check(ctx, "watch entries", uid); err != nil {
		return nil, err
	}
	sub := s.user(uid).Subscribe(func(snap store.Snapshot) { fn(snap.Entries) })
	return docstore.SubscriptionFunc(sub.Stop), nil
}

// UIDs lists every uid that has written or watched data, sorted.
func (s *Store) UIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for uid := range s.users {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Close() error { return nil }
