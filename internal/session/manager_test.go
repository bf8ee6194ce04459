package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"receipts/internal/core"
	"receipts/internal/docstore"
	"receipts/internal/docstore/memory"
	"receipts/internal/store"
)

// fakeWatcher records every watch so tests can fire callbacks by hand, even
// after the subscription was stopped.
type fakeWatcher struct {
	mu          sync.Mutex
	projectFns  []func([]core.Project)
	entryFns    []func([]core.Entry)
	stops       map[string]int
	active      int
	failEntries error
}

func newFakeWatcher() *fakeWatcher { return &fakeWatcher{stops: map[string]int{}} }

func (f *fakeWatcher) sub(name string) docstore.Subscription {
	f.active++
	return docstore.SubscriptionFunc(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stops[name]++
		f.active--
	})
}

func (f *fakeWatcher) WatchProjects(_ context.Context, uid string, fn func([]core.Project)) (docstore.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projectFns = append(f.projectFns, fn)
	return f.sub("projects:" + uid), nil
}

func (f *fakeWatcher) WatchEntries(_ context.Context, uid string, fn func([]core.Entry)) (docstore.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEntries != nil {
		return nil, f.failEntries
	}
	f.entryFns = append(f.entryFns, fn)
	return f.sub("entries:" + uid), nil
}

func (f *fakeWatcher) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func TestStaleCallbackIsDropped(t *testing.T) {
	ctx := context.Background()
	w := newFakeWatcher()
	s := store.New()
	m := NewManager(w, s)

	if err := m.SetIdentity(ctx, "A"); err != nil {
		t.Fatalf("bind A: %v", err)
	}
	staleEntries := w.entryFns[0]
	staleProjects := w.projectFns[0]

	if err := m.SetIdentity(ctx, "B"); err != nil {
		t.Fatalf("bind B: %v", err)
	}
	w.entryFns[1]([]core.Entry{{ID: "b1", Kind: core.KindExpense, Description: "b"}})

	// A's watch was released but its callbacks still fire
	staleEntries([]core.Entry{{ID: "a1", Kind: core.KindExpense, Description: "a"}})
	staleProjects([]core.Project{{ID: "pa", Name: "A's"}})

	snap := s.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].ID != "b1" {
		t.Fatalf("store contains stale data: %+v", snap.Entries)
	}
	if len(snap.Projects) != 0 {
		t.Fatalf("stale projects applied: %+v", snap.Projects)
	}
	if w.stops["entries:A"] != 1 || w.stops["projects:A"] != 1 {
		t.Fatalf("A's subscriptions should be released once, got %v", w.stops)
	}
}

func TestSameIdentityIsNoop(t *testing.T) {
	ctx := context.Background()
	w := newFakeWatcher()
	m := NewManager(w, store.New())

	m.SetIdentity(ctx, "A")
	m.SetIdentity(ctx, "A")
	if len(w.entryFns) != 1 || len(w.projectFns) != 1 {
		t.Fatalf("rebinding the same uid re-subscribed: %d/%d", len(w.projectFns), len(w.entryFns))
	}
	if st, uid := m.State(); st != Bound || uid != "A" {
		t.Fatalf("state = %v %q", st, uid)
	}
}

func TestSignOutClearsStoreAndReleases(t *testing.T) {
	ctx := context.Background()
	w := newFakeWatcher()
	s := store.New()
	m := NewManager(w, s)

	m.SetIdentity(ctx, "A")
	w.entryFns[0]([]core.Entry{{ID: "a1"}})
	if err := m.SetIdentity(ctx, ""); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if st, _ := m.State(); st != Unbound {
		t.Fatalf("want Unbound, got %v", st)
	}
	if len(s.Snapshot().Entries) != 0 {
		t.Fatalf("store not cleared")
	}
	if w.activeCount() != 0 {
		t.Fatalf("subscriptions leaked: %d", w.activeCount())
	}
	// absent while unbound
	if err := m.SetIdentity(ctx, ""); err != nil {
		t.Fatalf("second sign out: %v", err)
	}
}

func TestSubscribeFailureLeavesUnbound(t *testing.T) {
	ctx := context.Background()
	w := newFakeWatcher()
	w.failEntries = errors.New("offline")
	s := store.New()
	m := NewManager(w, s)

	var got []Status
	stop := m.Watch(func(st Status) { got = append(got, st) })
	defer stop()

	err := m.SetIdentity(ctx, "A")
	if !errors.Is(err, ErrSubscribe) {
		t.Fatalf("want ErrSubscribe, got %v", err)
	}
	if st, _ := m.State(); st != Unbound {
		t.Fatalf("want Unbound after failure, got %v", st)
	}
	if w.activeCount() != 0 {
		t.Fatalf("partial subscription leaked")
	}
	if len(got) != 1 || got[0].Err == nil {
		t.Fatalf("failure not published: %+v", got)
	}

	w.failEntries = nil
	if err := m.SetIdentity(ctx, "A"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st, uid := m.State(); st != Bound || uid != "A" {
		t.Fatalf("retry did not bind: %v %q", st, uid)
	}
}

func TestRepeatedCyclesDoNotLeak(t *testing.T) {
	ctx := context.Background()
	w := newFakeWatcher()
	m := NewManager(w, store.New())
	for i := 0; i < 50; i++ {
		m.SetIdentity(ctx, "A")
		m.SetIdentity(ctx, "B")
		m.SetIdentity(ctx, "")
	}
	if w.activeCount() != 0 {
		t.Fatalf("leaked %d subscriptions", w.activeCount())
	}
	if w.stops["entries:A"] != 50 || w.stops["projects:B"] != 50 {
		t.Fatalf("unexpected release counts %v", w.stops)
	}
}

type fakeIdentity struct {
	uid string
	fns []func(string)
}

func (f *fakeIdentity) CurrentUID() string { return f.uid }

func (f *fakeIdentity) OnChange(fn func(string)) func() {
	f.fns = append(f.fns, fn)
	idx := len(f.fns) - 1
	return func() { f.fns[idx] = nil }
}

func (f *fakeIdentity) set(uid string) {
	f.uid = uid
	for _, fn := range f.fns {
		if fn != nil {
			fn(uid)
		}
	}
}

func TestAttachFollowsIdentityWithMemoryStore(t *testing.T) {
	ctx := context.Background()
	docs := memory.New()
	docs.AddEntry(ctx, "alice", core.Entry{
		Kind: core.KindExpense, Date: core.NewDate(2024, 3, 5),
		Price: core.Money{Cents: 100}, Description: "alice's",
	})

	s := store.New()
	m := NewManager(docs, s)
	id := &fakeIdentity{}
	if err := m.Attach(ctx, id); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	id.set("alice")
	if len(s.Snapshot().Entries) != 1 {
		t.Fatalf("alice's entries not loaded")
	}
	docs.AddEntry(ctx, "alice", core.Entry{
		Kind: core.KindExpense, Date: core.NewDate(2024, 3, 6),
		Price: core.Money{Cents: 100}, Description: "second",
	})
	if len(s.Snapshot().Entries) != 2 {
		t.Fatalf("remote change not pushed")
	}

	id.set("bob")
	if len(s.Snapshot().Entries) != 0 {
		t.Fatalf("bob sees alice's entries")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	id.set("alice")
	if st, _ := m.State(); st != Unbound {
		t.Fatalf("closed manager still follows identity")
	}
}

func TestRebindNeverReportsStaleBinding(t *testing.T) {
	ctx := context.Background()
	docs := memory.New()
	if _, err := docs.AddProject(ctx, "alice", core.Project{Name: "A"}); err != nil {
		t.Fatalf("AddProject: %v", err)
	}

	s := store.New()
	m := NewManager(docs, s)
	if err := m.SetIdentity(ctx, "alice"); err != nil {
		t.Fatalf("SetIdentity(alice): %v", err)
	}

	type seen struct {
		state    State
		uid      string
		projects int
	}
	var mu sync.Mutex
	var log []seen
	sub := s.Subscribe(func(snap store.Snapshot) {
		st, uid := m.State()
		mu.Lock()
		log = append(log, seen{st, uid, len(snap.Projects)})
		mu.Unlock()
	})
	defer sub.Stop()

	for _, uid := range []string{"bob", ""} {
		if err := m.SetIdentity(ctx, uid); err != nil {
			t.Fatalf("SetIdentity(%q): %v", uid, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(log) < 2 {
		t.Fatalf("expected snapshots during rebinding, got %v", log)
	}
	for _, got := range log[1:] {
		if got.state == Bound && got.uid == "alice" {
			t.Fatalf("observer saw alice bound over a cleared store: %+v", log)
		}
	}
	if first := log[0]; first.state != Bound || first.uid != "alice" || first.projects != 1 {
		t.Fatalf("initial delivery = %+v", first)
	}
}
