package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"receipts/internal/core"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUnique(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func affected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUser stores u. A second account with the same email is ErrDuplicate.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u User) error {
	if err := r.queries.CreateUser(ctx, u); err != nil {
		if isUnique(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (User, error) {
	u, err := r.queries.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UIDs lists every user that owns at least one project or entry.
func (r *SQLiteRepository) UIDs(ctx context.Context) ([]string, error) {
	uids, err := r.queries.ListUIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list uids: %w", err)
	}
	return uids, nil
}

func projectRow(p core.Project) ProjectRow {
	return ProjectRow{ID: p.ID, Name: p.Name, Client: p.Client, Address: p.Address, Mobile: p.Mobile, ImageID: p.ImageID}
}

func (p ProjectRow) toDomain() core.Project {
	return core.Project{ID: p.ID, Name: p.Name, Client: p.Client, Address: p.Address, Mobile: p.Mobile, ImageID: p.ImageID}
}

func entryRow(e core.Entry) (EntryRow, error) {
	e = e.Normalize()
	images := e.ReceiptImages
	if images == nil {
		images = []string{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return EntryRow{}, fmt.Errorf("encode receipt images: %w", err)
	}
	return EntryRow{
		ID:            e.ID,
		Kind:          string(e.Kind),
		Date:          e.Date.String(),
		PriceCents:    e.Price.Cents,
		ProjectID:     e.ProjectID,
		Description:   e.Description,
		ReceiptImages: string(raw),
	}, nil
}

func (e EntryRow) toDomain() (core.Entry, error) {
	d, err := core.ParseDate(e.Date)
	if err != nil {
		return core.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	var images []string
	if e.ReceiptImages != "" {
		if err := json.Unmarshal([]byte(e.ReceiptImages), &images); err != nil {
			return core.Entry{}, fmt.Errorf("entry %s: decode receipt images: %w", e.ID, err)
		}
	}
	out := core.Entry{
		ID:            e.ID,
		Kind:          core.EntryKind(e.Kind),
		Date:          d,
		Price:         core.Money{Cents: e.PriceCents},
		ProjectID:     e.ProjectID,
		Description:   e.Description,
		ReceiptImages: images,
	}
	return out.Normalize(), nil
}

func (r *SQLiteRepository) InsertProject(ctx context.Context, uid string, p core.Project) (string, error) {
	p.ID = uuid.NewString()
	if err := r.queries.InsertProject(ctx, uid, projectRow(p)); err != nil {
		return "", fmt.Errorf("insert project: %w", err)
	}
	slog.InfoContext(ctx, "Project saved to SQLite", "id", p.ID, "uid", uid, "name", p.Name)
	return p.ID, nil
}

func (r *SQLiteRepository) UpdateProject(ctx context.Context, uid string, p core.Project) error {
	if err := affected(r.queries.UpdateProject(ctx, uid, projectRow(p))); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// DeleteProject unassigns the project's entries and deletes it in one
// transaction.
func (r *SQLiteRepository) DeleteProject(ctx context.Context, uid, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := affected(q.DeleteProject(ctx, uid, id)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete project: %w", err)
	}
	if err := q.UnassignEntries(ctx, uid, id); err != nil {
		return fmt.Errorf("unassign entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Project deleted from SQLite", "id", id, "uid", uid)
	return nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context, uid string) ([]core.Project, error) {
	rows, err := r.queries.ListProjects(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]core.Project, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// HasProject reports whether uid holds the project id.
func (r *SQLiteRepository) HasProject(ctx context.Context, uid, id string) (bool, error) {
	ok, err := r.queries.ProjectExists(ctx, uid, id)
	if err != nil {
		return false, fmt.Errorf("check project: %w", err)
	}
	return ok, nil
}

// inEntryTx runs fn in a transaction after checking that the entry's project,
// if any, exists for uid. A missing project is core.ErrUnknownProject.
func (r *SQLiteRepository) inEntryTx(ctx context.Context, uid string, e core.Entry, fn func(*Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if e.ProjectID != "" {
		ok, err := q.ProjectExists(ctx, uid, e.ProjectID)
		if err != nil {
			return fmt.Errorf("check project: %w", err)
		}
		if !ok {
			return core.ErrUnknownProject
		}
	}
	if err := fn(q); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) InsertEntry(ctx context.Context, uid string, e core.Entry) (string, error) {
	e.ID = uuid.NewString()
	row, err := entryRow(e)
	if err != nil {
		return "", err
	}
	err = r.inEntryTx(ctx, uid, e.Normalize(), func(q *Queries) error {
		if err := q.InsertEntry(ctx, uid, row); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Entry saved to SQLite",
		"id", row.ID,
		"uid", uid,
		"kind", row.Kind,
		"price_cents", row.PriceCents)
	return row.ID, nil
}

func (r *SQLiteRepository) UpdateEntry(ctx context.Context, uid string, e core.Entry) error {
	row, err := entryRow(e)
	if err != nil {
		return err
	}
	return r.inEntryTx(ctx, uid, e.Normalize(), func(q *Queries) error {
		if err := affected(q.UpdateEntry(ctx, uid, row)); err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return fmt.Errorf("update entry: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, uid, id string) error {
	if err := affected(r.queries.DeleteEntry(ctx, uid, id)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListEntries(ctx context.Context, uid string) ([]core.Entry, error) {
	rows, err := r.queries.ListEntries(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	out := make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable entry", "id", row.ID, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
