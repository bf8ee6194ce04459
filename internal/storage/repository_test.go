package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"receipts/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "receipts.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestEntryRoundTripKeepsImagesAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first, err := repo.InsertEntry(ctx, "u", core.Entry{
		Kind:          core.KindReceipt,
		Date:          core.NewDate(2024, 3, 5),
		Price:         core.Money{Cents: 12345},
		ProjectID:     "null",
		Description:   "tiles",
		ReceiptImages: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	if _, err := repo.InsertEntry(ctx, "u", core.Entry{
		Kind: core.KindExpense, Date: core.NewDate(2024, 3, 1),
		Price: core.Money{Cents: 100}, Description: "fuel",
	}); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	got, err := repo.ListEntries(ctx, "u")
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(got) != 2 || got[0].ID != first {
		t.Fatalf("unexpected entries %+v", got)
	}
	e := got[0]
	if e.ProjectID != "" || !e.Date.Equal(core.NewDate(2024, 3, 5)) || e.Price.Cents != 12345 {
		t.Fatalf("entry fields lost: %+v", e)
	}
	if len(e.ReceiptImages) != 2 || e.ReceiptImages[1] != "b" {
		t.Fatalf("images lost: %v", e.ReceiptImages)
	}
	if got[1].ReceiptImages != nil {
		t.Fatalf("expense should have no images, got %v", got[1].ReceiptImages)
	}

	other, _ := repo.ListEntries(ctx, "someone-else")
	if len(other) != 0 {
		t.Fatalf("entries leaked across users")
	}
}

func TestDeleteProjectUnassignsInTransaction(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	pid, err := repo.InsertProject(ctx, "u", core.Project{Name: "P", Client: "C", Address: "A", Mobile: "M"})
	if err != nil {
		t.Fatalf("InsertProject: %v", err)
	}
	repo.InsertEntry(ctx, "u", core.Entry{
		Kind: core.KindExpense, Date: core.NewDate(2024, 3, 5),
		Price: core.Money{Cents: 1}, ProjectID: pid, Description: "x",
	})

	if err := repo.DeleteProject(ctx, "u", pid); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	projects, _ := repo.ListProjects(ctx, "u")
	entries, _ := repo.ListEntries(ctx, "u")
	if len(projects) != 0 {
		t.Fatalf("project not deleted")
	}
	if entries[0].ProjectID != "" {
		t.Fatalf("entry still references deleted project")
	}
	if err := repo.DeleteProject(ctx, "u", pid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateUnknownIsNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.UpdateProject(ctx, "u", core.Project{ID: "missing", Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateProject: %v", err)
	}
	err := repo.UpdateEntry(ctx, "u", core.Entry{ID: "missing", Kind: core.KindExpense, Date: core.NewDate(2024, 1, 1), Price: core.Money{Cents: 1}, Description: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if err := repo.DeleteEntry(ctx, "u", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteEntry: %v", err)
	}
}

func TestEntryRequiresExistingProject(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	pid, err := repo.InsertProject(ctx, "u", core.Project{Name: "P", Client: "C", Address: "A", Mobile: "M"})
	if err != nil {
		t.Fatalf("InsertProject: %v", err)
	}
	draft := core.Entry{
		Kind: core.KindExpense, Date: core.NewDate(2024, 3, 5),
		Price: core.Money{Cents: 1}, Description: "x",
	}

	tests := []struct {
		name    string
		uid     string
		project string
		wantErr error
	}{
		{"own project", "u", pid, nil},
		{"unassigned", "u", "", nil},
		{"unknown project", "u", "ghost", core.ErrUnknownProject},
		{"another user's project", "v", pid, core.ErrUnknownProject},
	}
	for _, tt := range tests {
		e := draft
		e.ProjectID = tt.project
		id, err := repo.InsertEntry(ctx, tt.uid, e)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: insert err = %v, want %v", tt.name, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		e.ID = id
		e.ProjectID = "ghost"
		if err := repo.UpdateEntry(ctx, tt.uid, e); !errors.Is(err, core.ErrUnknownProject) {
			t.Errorf("%s: update err = %v, want ErrUnknownProject", tt.name, err)
		}
	}

	if entries, _ := repo.ListEntries(ctx, "v"); len(entries) != 0 {
		t.Fatalf("rejected entry stored: %+v", entries)
	}
	entries, _ := repo.ListEntries(ctx, "u")
	for _, e := range entries {
		if e.ProjectID == "ghost" {
			t.Fatalf("dangling reference stored: %+v", e)
		}
	}
	if ok, err := repo.HasProject(ctx, "v", pid); err != nil || ok {
		t.Fatalf("HasProject(v) = %v, %v", ok, err)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := User{ID: "id1", Email: "a@example.com", PasswordHash: "h"}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := repo.CreateUser(ctx, User{ID: "id2", Email: u.Email, PasswordHash: "h"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	got, err := repo.UserByEmail(ctx, u.Email)
	if err != nil || got.ID != "id1" {
		t.Fatalf("UserByEmail: %+v %v", got, err)
	}
	if _, err := repo.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
