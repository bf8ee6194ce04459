package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"receipts/internal/core"
	"receipts/internal/docstore"
	"receipts/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := New(repo)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWatchersSeeWritesAndDeleteUnassign(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var projects [][]core.Project
	var entries [][]core.Entry
	ps, err := s.WatchProjects(ctx, "u", func(p []core.Project) { projects = append(projects, p) })
	if err != nil {
		t.Fatalf("WatchProjects: %v", err)
	}
	es, err := s.WatchEntries(ctx, "u", func(e []core.Entry) { entries = append(entries, e) })
	if err != nil {
		t.Fatalf("WatchEntries: %v", err)
	}

	pid, err := s.AddProject(ctx, "u", core.Project{Name: "P", Client: "C", Address: "A", Mobile: "M"})
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	if _, err := s.AddEntry(ctx, "u", core.Entry{
		Kind: core.KindExpense, Date: core.NewDate(2024, 3, 5),
		Price: core.Money{Cents: 100}, ProjectID: pid, Description: "x",
	}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := s.DeleteProject(ctx, "u", pid); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}

	lastP := projects[len(projects)-1]
	lastE := entries[len(entries)-1]
	if len(lastP) != 0 {
		t.Fatalf("project still pushed: %+v", lastP)
	}
	if len(lastE) != 1 || lastE[0].ProjectID != "" {
		t.Fatalf("unassignment not pushed: %+v", lastE)
	}

	ps.Stop()
	es.Stop()
	es.Stop()
	pushes := len(entries)
	s.AddEntry(ctx, "u", core.Entry{
		Kind: core.KindExpense, Date: core.NewDate(2024, 3, 6),
		Price: core.Money{Cents: 100}, Description: "y",
	})
	if len(entries) != pushes {
		t.Fatalf("stopped watcher still notified")
	}

	uids, err := s.UIDs(ctx)
	if err != nil || len(uids) != 1 || uids[0] != "u" {
		t.Fatalf("UIDs = %v, %v", uids, err)
	}
}

func TestUnknownIDIsNotFound(t *testing.T) {
	s := newStore(t)
	err := s.DeleteEntry(context.Background(), "u", "missing")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDanglingEntryIsRejectedWithoutPush(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	pushes := 0
	sub, err := s.WatchEntries(ctx, "u", func([]core.Entry) { pushes++ })
	if err != nil {
		t.Fatalf("WatchEntries: %v", err)
	}
	defer sub.Stop()

	_, err = s.AddEntry(ctx, "u", core.Entry{
		Kind: core.KindExpense, Date: core.NewDate(2024, 3, 5),
		Price: core.Money{Cents: 100}, ProjectID: "ghost", Description: "x",
	})
	if !errors.Is(err, core.ErrUnknownProject) || errors.Is(err, docstore.ErrRemote) {
		t.Fatalf("want ErrUnknownProject, got %v", err)
	}
	if pushes != 1 {
		t.Fatalf("rejected write pushed to watchers: %d pushes", pushes)
	}
}
