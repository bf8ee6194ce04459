// Package ledger applies the user's edits to their document store: it
// validates drafts, uploads attached photos and writes the records. The
// session's watches bring the results back into the local snapshot.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"receipts/internal/amqp"
	"receipts/internal/core"
	"receipts/internal/docstore"
	"receipts/internal/imagehost"
)

var ErrNotAuthenticated = errors.New("not signed in")

// maxParallelUploads bounds concurrent image uploads per save.
const maxParallelUploads = 3

type (
	// Writer is the subset of the document store the ledger writes through.
	Writer interface {
		docstore.ProjectWriter
		docstore.EntryWriter
		docstore.ProjectChecker
	}

	// Identity reports the signed-in uid, "" when signed out.
	Identity interface {
		CurrentUID() string
	}

	// Notifier announces committed changes; the mirror worker listens.
	Notifier interface {
		PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
	}
)

// ProjectDraft is a project form submission. An empty ID creates a project.
type ProjectDraft struct {
	ID      string
	Name    string
	Client  string
	Address string
	Mobile  string
	// ImageID is the already uploaded image to keep; Image, when set,
	// replaces it.
	ImageID string
	Image   []byte
}

// EntryDraft is an entry form submission. An empty ID creates an entry.
type EntryDraft struct {
	ID          string
	Kind        core.EntryKind
	Date        core.Date
	Price       core.Money
	ProjectID   string
	Description string
	// KeepImages are already uploaded receipt images to retain; NewImages
	// are uploaded and appended after them.
	KeepImages []string
	NewImages  [][]byte
}

type Service struct {
	docs     Writer
	images   imagehost.Host
	identity Identity
	notifier Notifier
}

// NewService wires the ledger. notifier may be nil.
func NewService(docs Writer, images imagehost.Host, identity Identity, notifier Notifier) *Service {
	return &Service{docs: docs, images: images, identity: identity, notifier: notifier}
}

func (s *Service) uid() (string, error) {
	uid := s.identity.CurrentUID()
	if uid == "" {
		return "", ErrNotAuthenticated
	}
	return uid, nil
}

// SaveProject validates d, uploads its new image if any and creates or
// updates the project. It returns the project id.
func (s *Service) SaveProject(ctx context.Context, d ProjectDraft) (string, error) {
	uid, err := s.uid()
	if err != nil {
		return "", err
	}
	p := core.Project{
		ID:      d.ID,
		Name:    d.Name,
		Client:  d.Client,
		Address: d.Address,
		Mobile:  d.Mobile,
		ImageID: d.ImageID,
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	if len(d.Image) > 0 {
		id, err := s.images.Upload(ctx, d.Image)
		if err != nil {
			return "", err
		}
		p.ImageID = id
	}

	if p.ID == "" {
		id, err := s.docs.AddProject(ctx, uid, p)
		if err != nil {
			return "", fmt.Errorf("add project: %w", err)
		}
		s.publish(ctx, amqp.NewChangeMessage(uid, amqp.CollectionProjects, amqp.OpCreate, id))
		return id, nil
	}
	if err := s.docs.UpdateProject(ctx, uid, p); err != nil {
		return "", fmt.Errorf("update project: %w", err)
	}
	s.publish(ctx, amqp.NewChangeMessage(uid, amqp.CollectionProjects, amqp.OpUpdate, p.ID))
	return p.ID, nil
}

// DeleteProject removes the project; its entries become unassigned.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	uid, err := s.uid()
	if err != nil {
		return err
	}
	if err := s.docs.DeleteProject(ctx, uid, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	s.publish(ctx, amqp.NewChangeMessage(uid, amqp.CollectionProjects, amqp.OpDelete, id))
	return nil
}

// SaveEntry validates d, uploads new receipt images concurrently and creates
// or updates the entry. Expenses never keep images. A project reference must
// name one of the user's projects (core.ErrUnknownProject).
func (s *Service) SaveEntry(ctx context.Context, d EntryDraft) (string, error) {
	uid, err := s.uid()
	if err != nil {
		return "", err
	}

	e := core.Entry{
		ID:          d.ID,
		Kind:        d.Kind,
		Date:        d.Date,
		Price:       d.Price,
		ProjectID:   d.ProjectID,
		Description: d.Description,
	}
	newImages := d.NewImages
	if e.Kind == core.KindReceipt {
		e.ReceiptImages = append([]string(nil), d.KeepImages...)
	} else {
		newImages = nil
	}
	e = e.Normalize()

	// validate with placeholders so nothing is uploaded for a bad draft
	check := e.Clone()
	for range newImages {
		check.ReceiptImages = append(check.ReceiptImages, "")
	}
	if err := check.Validate(); err != nil {
		return "", err
	}
	if e.ProjectID != "" {
		ok, err := s.docs.HasProject(ctx, uid, e.ProjectID)
		if err != nil {
			return "", fmt.Errorf("check project: %w", err)
		}
		if !ok {
			return "", core.ErrUnknownProject
		}
	}

	uploaded, err := s.uploadAll(ctx, newImages)
	if err != nil {
		return "", err
	}
	e.ReceiptImages = append(e.ReceiptImages, uploaded...)

	if e.ID == "" {
		id, err := s.docs.AddEntry(ctx, uid, e)
		if err != nil {
			return "", fmt.Errorf("add entry: %w", err)
		}
		s.publish(ctx, amqp.NewChangeMessage(uid, amqp.CollectionEntries, amqp.OpCreate, id))
		return id, nil
	}
	if err := s.docs.UpdateEntry(ctx, uid, e); err != nil {
		return "", fmt.Errorf("update entry: %w", err)
	}
	s.publish(ctx, amqp.NewChangeMessage(uid, amqp.CollectionEntries, amqp.OpUpdate, e.ID))
	return e.ID, nil
}

func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	uid, err := s.uid()
	if err != nil {
		return err
	}
	if err := s.docs.DeleteEntry(ctx, uid, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	s.publish(ctx, amqp.NewChangeMessage(uid, amqp.CollectionEntries, amqp.OpDelete, id))
	return nil
}

// uploadAll uploads every image, keeping input order in the result.
func (s *Service) uploadAll(ctx context.Context, images [][]byte) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}
	ids := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, img := range images {
		g.Go(func() error {
			id, err := s.images.Upload(gctx, img)
			if err != nil {
				return fmt.Errorf("upload image %d: %w", i+1, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Service) publish(ctx context.Context, msg *amqp.ChangeMessage) {
	if s.notifier == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping change message")
		return
	}
	if err := s.notifier.PublishChange(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change message",
			"uid", msg.UID,
			"op", msg.Op,
			"id", msg.ID,
			"error", err)
	}
}
