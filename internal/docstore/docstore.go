// Package docstore defines the per-user document store the session binds to
// and the ledger writes through.
package docstore

import (
	"context"
	"errors"

	"receipts/internal/core"
)

var (
	// ErrNotFound is returned when an update or delete names an unknown id.
	ErrNotFound = errors.New("document not found")
	// ErrRemote wraps every other store failure.
	ErrRemote = errors.New("document store failure")
)

// Subscription is a live watch on one collection.
type Subscription interface {
	Stop()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Stop() { f() }

type (
	ProjectWriter interface {
		AddProject(ctx context.Context, uid string, p core.Project) (string, error)
		UpdateProject(ctx context.Context, uid string, p core.Project) error
		// DeleteProject removes the project and unassigns its entries as one batch.
		DeleteProject(ctx context.Context, uid, id string) error
	}

	EntryWriter interface {
		AddEntry(ctx context.Context, uid string, e core.Entry) (string, error)
		UpdateEntry(ctx context.Context, uid string, e core.Entry) error
		DeleteEntry(ctx context.Context, uid, id string) error
	}

	// ProjectChecker reports whether uid holds the project id.
	ProjectChecker interface {
		HasProject(ctx context.Context, uid, id string) (bool, error)
	}

	Loader interface {
		Load(ctx context.Context, uid string) ([]core.Project, []core.Entry, error)
	}

	// Watcher pushes the full collection for uid on subscribe and after
	// every change until the subscription is stopped.
	Watcher interface {
		WatchProjects(ctx context.Context, uid string, fn func([]core.Project)) (Subscription, error)
		WatchEntries(ctx context.Context, uid string, fn func([]core.Entry)) (Subscription, error)
	}

	Store interface {
		ProjectWriter
		EntryWriter
		ProjectChecker
		Loader
		Watcher
		Close() error
	}
)

// Remote wraps err as ErrRemote unless it already is ErrNotFound, ErrRemote
// or core.ErrUnknownProject.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrRemote) || errors.Is(err, core.ErrUnknownProject) {
		return err
	}
	return &remoteError{op: op, err: err}
}

type remoteError struct {
	op  string
	err error
}

func (e *remoteError) Error() string { return e.op + ": " + ErrRemote.Error() + ": " + e.err.Error() }

func (e *remoteError) Unwrap() []error { return []error{ErrRemote, e.err} }
