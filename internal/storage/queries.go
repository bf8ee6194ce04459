package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
}

type ProjectRow struct {
	ID      string
	Name    string
	Client  string
	Address string
	Mobile  string
	ImageID string
}

type EntryRow struct {
	ID            string
	Kind          string
	Date          string
	PriceCents    int64
	ProjectID     string
	Description   string
	ReceiptImages string
}

const createUser = `INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)`

func (q *Queries) CreateUser(ctx context.Context, u User) error {
	_, err := q.db.ExecContext(ctx, createUser, u.ID, u.Email, u.PasswordHash)
	return err
}

const getUserByEmail = `SELECT id, email, password_hash FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUserByEmail, email).Scan(&u.ID, &u.Email, &u.PasswordHash)
	return u, err
}

const listUIDs = `
SELECT uid FROM projects
UNION
SELECT uid FROM entries
ORDER BY uid`

func (q *Queries) ListUIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

const insertProject = `
INSERT INTO projects (id, uid, name, client, address, mobile, image_id)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertProject(ctx context.Context, uid string, p ProjectRow) error {
	_, err := q.db.ExecContext(ctx, insertProject, p.ID, uid, p.Name, p.Client, p.Address, p.Mobile, p.ImageID)
	return err
}

const updateProject = `
UPDATE projects SET name = ?, client = ?, address = ?, mobile = ?, image_id = ?
WHERE uid = ? AND id = ?`

func (q *Queries) UpdateProject(ctx context.Context, uid string, p ProjectRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateProject, p.Name, p.Client, p.Address, p.Mobile, p.ImageID, uid, p.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteProject = `DELETE FROM projects WHERE uid = ? AND id = ?`

func (q *Queries) DeleteProject(ctx context.Context, uid, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteProject, uid, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const projectExists = `SELECT EXISTS (SELECT 1 FROM projects WHERE uid = ? AND id = ?)`

func (q *Queries) ProjectExists(ctx context.Context, uid, id string) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, projectExists, uid, id).Scan(&ok)
	return ok, err
}

const unassignEntries = `UPDATE entries SET project_id = '' WHERE uid = ? AND project_id = ?`

func (q *Queries) UnassignEntries(ctx context.Context, uid, projectID string) error {
	_, err := q.db.ExecContext(ctx, unassignEntries, uid, projectID)
	return err
}

const listProjects = `
SELECT id, name, client, address, mobile, image_id
FROM projects WHERE uid = ? ORDER BY seq`

func (q *Queries) ListProjects(ctx context.Context, uid string) ([]ProjectRow, error) {
	rows, err := q.db.QueryContext(ctx, listProjects, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProjectRow
	for rows.Next() {
		var p ProjectRow
		if err := rows.Scan(&p.ID, &p.Name, &p.Client, &p.Address, &p.Mobile, &p.ImageID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const insertEntry = `
INSERT INTO entries (id, uid, kind, date, price_cents, project_id, description, receipt_images)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertEntry(ctx context.Context, uid string, e EntryRow) error {
	_, err := q.db.ExecContext(ctx, insertEntry, e.ID, uid, e.Kind, e.Date, e.PriceCents, e.ProjectID, e.Description, e.ReceiptImages)
	return err
}

const updateEntry = `
UPDATE entries
SET kind = ?, date = ?, price_cents = ?, project_id = ?, description = ?, receipt_images = ?
WHERE uid = ? AND id = ?`

func (q *Queries) UpdateEntry(ctx context.Context, uid string, e EntryRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateEntry, e.Kind, e.Date, e.PriceCents, e.ProjectID, e.Description, e.ReceiptImages, uid, e.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteEntry = `DELETE FROM entries WHERE uid = ? AND id = ?`

func (q *Queries) DeleteEntry(ctx context.Context, uid, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteEntry, uid, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listEntries = `
SELECT id, kind, date, price_cents, project_id, description, receipt_images
FROM entries WHERE uid = ? ORDER BY seq`

func (q *Queries) ListEntries(ctx context.Context, uid string) ([]EntryRow, error) {
	rows, err := q.db.QueryContext(ctx, listEntries, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntryRow
	for rows.Next() {
		var e EntryRow
		if err := rows.Scan(&e.ID, &e.Kind, &e.Date, &e.PriceCents, &e.ProjectID, &e.Description, &e.ReceiptImages); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
