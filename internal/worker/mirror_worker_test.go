package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"receipts/internal/amqp"
	"receipts/internal/core"
	"receipts/internal/docstore/memory"
	sheetsmem "receipts/internal/sheets/memory"
)

func seed(t *testing.T, docs *memory.Store, uid string) {
	t.Helper()
	ctx := context.Background()
	pid, err := docs.AddProject(ctx, uid, core.Project{Name: "Kitchen", Client: "Ann"})
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	_, err = docs.AddEntry(ctx, uid, core.Entry{
		Kind:        core.KindExpense,
		Date:        core.NewDate(2024, 3, 5),
		Price:       core.Money{Cents: 1250},
		ProjectID:   pid,
		Description: "tiles",
	})
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
}

func TestHandleChangeMirrorsLedger(t *testing.T) {
	docs := memory.New()
	mirror := sheetsmem.New()
	seed(t, docs, "u1")

	w := NewMirrorWorker(docs, mirror)
	msg := amqp.NewChangeMessage("u1", amqp.CollectionEntries, amqp.OpCreate, "x")
	if err := w.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	rows, ok := mirror.Rows("u1")
	if !ok {
		t.Fatal("expected rows for u1")
	}
	// header, one entry, total, blank, summary header, one project
	if len(rows) != 6 {
		t.Fatalf("got %d rows: %v", len(rows), rows)
	}
	if rows[1][2] != "Kitchen" || rows[1][3] != "tiles" {
		t.Errorf("entry row = %v", rows[1])
	}
	if rows[2][0] != "Total" {
		t.Errorf("total row = %v", rows[2])
	}
	if rows[5][0] != "Kitchen" {
		t.Errorf("summary row = %v", rows[5])
	}
}

func TestHandleChangeLoadFailureIsReturned(t *testing.T) {
	docs := memory.New()
	boom := errors.New("offline")
	docs.Fail = func(op, uid string) error {
		if op == "load" {
			return boom
		}
		return nil
	}
	w := NewMirrorWorker(docs, sheetsmem.New())

	err := w.HandleChange(context.Background(), amqp.NewChangeMessage("u1", amqp.CollectionProjects, amqp.OpDelete, "p"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestResyncAllCoversStoreUsers(t *testing.T) {
	docs := memory.New()
	mirror := sheetsmem.New()
	seed(t, docs, "a")
	seed(t, docs, "b")

	w := NewMirrorWorker(docs, mirror)
	if err := w.ResyncAll(context.Background()); err != nil {
		t.Fatalf("ResyncAll: %v", err)
	}
	for _, uid := range []string{"a", "b"} {
		if _, ok := mirror.Rows(uid); !ok {
			t.Errorf("uid %s not mirrored", uid)
		}
	}
}

type failingMirror struct{ failUID string }

func (f failingMirror) WriteLedger(_ context.Context, uid string, _ [][]any) error {
	if uid == f.failUID {
		return errors.New("quota exceeded")
	}
	return nil
}

func TestResyncAllContinuesPastFailures(t *testing.T) {
	docs := memory.New()
	seed(t, docs, "a")
	seed(t, docs, "b")

	w := NewMirrorWorker(docs, failingMirror{failUID: "a"})
	err := w.ResyncAll(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), "a: ") {
		t.Fatalf("expected failure for a, got %v", err)
	}
}

func TestStartResyncRejectsBadSchedule(t *testing.T) {
	w := NewMirrorWorker(memory.New(), sheetsmem.New())
	if err := w.StartResync("not a schedule", time.Minute); err == nil {
		t.Fatal("expected schedule error")
	}
	w.Stop()
}

func TestStartResyncAndStop(t *testing.T) {
	w := NewMirrorWorker(memory.New(), sheetsmem.New())
	if err := w.StartResync("@every 1h", time.Minute); err != nil {
		t.Fatalf("StartResync: %v", err)
	}
	w.Stop()
}
