package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"receipts/internal/amqp"
	"receipts/internal/docstore"
	"receipts/internal/sheets"
)

// UIDLister is implemented by document stores that can enumerate their users.
type UIDLister interface {
	UIDs(ctx context.Context) ([]string, error)
}

// MirrorWorker rewrites a user's spreadsheet tab from the document store
// whenever one of their records changes, and periodically for every known user.
type MirrorWorker struct {
	docs   docstore.Loader
	mirror sheets.Mirror

	mu   sync.Mutex
	seen map[string]struct{}

	// serializes writes per process; the sheet is rewritten wholesale
	syncMu sync.Mutex

	cron *cron.Cron
}

func NewMirrorWorker(docs docstore.Loader, mirror sheets.Mirror) *MirrorWorker {
	return &MirrorWorker{
		docs:   docs,
		mirror: mirror,
		seen:   make(map[string]struct{}),
	}
}

// HandleChange processes a single change notification from AMQP.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	slog.InfoContext(ctx, "Processing change message",
		"uid", msg.UID,
		"collection", msg.Collection,
		"op", msg.Op,
		"id", msg.ID)

	if err := w.SyncUser(ctx, msg.UID); err != nil {
		return fmt.Errorf("mirror ledger: %w", err)
	}
	return nil
}

// SyncUser loads uid's projects and entries and rewrites their tab.
func (w *MirrorWorker) SyncUser(ctx context.Context, uid string) error {
	if uid == "" {
		return errors.New("empty uid")
	}
	w.remember(uid)

	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	projects, entries, err := w.docs.Load(ctx, uid)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	rows := sheets.LedgerRows(projects, entries)
	rows = append(rows, []any{})
	rows = append(rows, sheets.ProjectSummaryRows(projects, entries)...)

	if err := w.mirror.WriteLedger(ctx, uid, rows); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}

	slog.InfoContext(ctx, "Successfully mirrored ledger",
		"uid", uid,
		"projects", len(projects),
		"entries", len(entries))
	return nil
}

func (w *MirrorWorker) remember(uid string) {
	w.mu.Lock()
	w.seen[uid] = struct{}{}
	w.mu.Unlock()
}

// knownUIDs merges the users seen by this worker with those the store lists.
func (w *MirrorWorker) knownUIDs(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{})
	w.mu.Lock()
	for uid := range w.seen {
		set[uid] = struct{}{}
	}
	w.mu.Unlock()

	if lister, ok := w.docs.(UIDLister); ok {
		uids, err := lister.UIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		for _, uid := range uids {
			set[uid] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for uid := range set {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out, nil
}

// ResyncAll mirrors every known user. It keeps going past individual
// failures and returns them joined. This is the backup path for lost
// AMQP messages.
func (w *MirrorWorker) ResyncAll(ctx context.Context) error {
	uids, err := w.knownUIDs(ctx)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		slog.InfoContext(ctx, "No users to resync")
		return nil
	}

	var errs []error
	synced := 0
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := w.SyncUser(ctx, uid); err != nil {
			slog.ErrorContext(ctx, "Failed to resync user", "uid", uid, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", uid, err))
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Resync completed",
		"total", len(uids),
		"synced", synced,
		"errors", len(errs))
	return errors.Join(errs...)
}

// StartResync schedules ResyncAll on a standard five-field cron spec.
func (w *MirrorWorker) StartResync(spec string, timeout time.Duration) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := w.ResyncAll(ctx); err != nil {
			slog.ErrorContext(ctx, "Scheduled resync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule resync %q: %w", spec, err)
	}
	w.cron = c
	c.Start()
	slog.Info("Scheduled ledger resync", "schedule", spec)
	return nil
}

// Stop halts the resync schedule and waits for a running job to finish.
func (w *MirrorWorker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}
