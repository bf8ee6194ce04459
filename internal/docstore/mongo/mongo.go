// Package mongo is a document store over MongoDB. Watches use change streams
// and therefore need a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"receipts/internal/core"
	"receipts/internal/docstore"
)

const (
	projectsCollection = "projects"
	entriesCollection  = "entries"
)

type projectDoc struct {
	ID        string    `bson:"_id"`
	UID       string    `bson:"uid"`
	Name      string    `bson:"name"`
	Client    string    `bson:"client"`
	Address   string    `bson:"address"`
	Mobile    string    `bson:"mobile"`
	ImageID   string    `bson:"image_id"`
	CreatedAt time.Time `bson:"created_at"`
}

type entryDoc struct {
	ID            string    `bson:"_id"`
	UID           string    `bson:"uid"`
	Kind          string    `bson:"kind"`
	Date          string    `bson:"date"`
	PriceCents    int64     `bson:"price_cents"`
	ProjectID     string    `bson:"project_id"`
	Description   string    `bson:"description"`
	ReceiptImages []string  `bson:"receipt_images"`
	CreatedAt     time.Time `bson:"created_at"`
}

func (d projectDoc) toDomain() core.Project {
	return core.Project{ID: d.ID, Name: d.Name, Client: d.Client, Address: d.Address, Mobile: d.Mobile, ImageID: d.ImageID}
}

func (d entryDoc) toDomain() (core.Entry, error) {
	date, err := core.ParseDate(d.Date)
	if err != nil {
		return core.Entry{}, err
	}
	e := core.Entry{
		ID:            d.ID,
		Kind:          core.EntryKind(d.Kind),
		Date:          date,
		Price:         core.Money{Cents: d.PriceCents},
		ProjectID:     d.ProjectID,
		Description:   d.Description,
		ReceiptImages: d.ReceiptImages,
	}
	return e.Normalize(), nil
}

func projectFields(p core.Project) bson.M {
	return bson.M{"name": p.Name, "client": p.Client, "address": p.Address, "mobile": p.Mobile, "image_id": p.ImageID}
}

func entryFields(e core.Entry) bson.M {
	e = e.Normalize()
	images := e.ReceiptImages
	if images == nil {
		images = []string{}
	}
	return bson.M{
		"kind":           string(e.Kind),
		"date":           e.Date.String(),
		"price_cents":    e.Price.Cents,
		"project_id":     e.ProjectID,
		"description":    e.Description,
		"receipt_images": images,
	}
}

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ docstore.Store = (*Store)(nil)

// Connect dials uri and verifies the connection.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	byUID := mongo.IndexModel{Keys: bson.D{{Key: "uid", Value: 1}, {Key: "created_at", Value: 1}}}
	for _, name := range []string{projectsCollection, entriesCollection} {
		if _, err := s.db.Collection(name).Indexes().CreateOne(ctx, byUID); err != nil {
			return fmt.Errorf("create %s index: %w", name, err)
		}
	}
	return nil
}

// Client exposes the connection for sibling stores sharing it.
func (s *Store) Client() *mongo.Client { return s.client }

func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) AddProject(ctx context.Context, uid string, p core.Project) (string, error) {
	doc := projectDoc{
		ID: uuid.NewString(), UID: uid,
		Name: p.Name, Client: p.Client, Address: p.Address, Mobile: p.Mobile, ImageID: p.ImageID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.Collection(projectsCollection).InsertOne(ctx, doc); err != nil {
		return "", docstore.Remote("add project", err)
	}
	return doc.ID, nil
}

func (s *Store) update(ctx context.Context, coll, op, uid, id string, fields bson.M) error {
	res, err := s.db.Collection(coll).UpdateOne(ctx,
		bson.M{"_id": id, "uid": uid},
		bson.M{"$set": fields})
	if err != nil {
		return docstore.Remote(op, err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateProject(ctx context.Context, uid string, p core.Project) error {
	return s.update(ctx, projectsCollection, "update project", uid, p.ID, projectFields(p))
}

// DeleteProject deletes the project and unassigns its entries in one
// transaction.
func (s *Store) DeleteProject(ctx context.Context, uid, id string) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return docstore.Remote("delete project", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := s.db.Collection(projectsCollection).DeleteOne(sc, bson.M{"_id": id, "uid": uid})
		if err != nil {
			return nil, err
		}
		if res.DeletedCount == 0 {
			return nil, docstore.ErrNotFound
		}
		_, err = s.db.Collection(entriesCollection).UpdateMany(sc,
			bson.M{"uid": uid, "project_id": id},
			bson.M{"$set": bson.M{"project_id": ""}})
		return nil, err
	})
	if err != nil {
		return docstore.Remote("delete project", err)
	}
	return nil
}

// inEntryTx runs write in a transaction once e's project, if any, is known to
// belong to uid.
func (s *Store) inEntryTx(ctx context.Context, op, uid string, e core.Entry, write func(mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return docstore.Remote(op, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if e.ProjectID != "" {
			n, err := s.db.Collection(projectsCollection).CountDocuments(sc, bson.M{"_id": e.ProjectID, "uid": uid})
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, core.ErrUnknownProject
			}
		}
		return nil, write(sc)
	})
	return docstore.Remote(op, err)
}

func (s *Store) AddEntry(ctx context.Context, uid string, e core.Entry) (string, error) {
	e = e.Normalize()
	doc := entryDoc{
		ID: uuid.NewString(), UID: uid,
		Kind: string(e.Kind), Date: e.Date.String(), PriceCents: e.Price.Cents,
		ProjectID: e.ProjectID, Description: e.Description, ReceiptImages: e.ReceiptImages,
		CreatedAt: time.Now().UTC(),
	}
	if doc.ReceiptImages == nil {
		doc.ReceiptImages = []string{}
	}
	err := s.inEntryTx(ctx, "add entry", uid, e, func(sc mongo.SessionContext) error {
		_, err := s.db.Collection(entriesCollection).InsertOne(sc, doc)
		return err
	})
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (s *Store) UpdateEntry(ctx context.Context, uid string, e core.Entry) error {
	e = e.Normalize()
	return s.inEntryTx(ctx, "update entry", uid, e, func(sc mongo.SessionContext) error {
		return s.update(sc, entriesCollection, "update entry", uid, e.ID, entryFields(e))
	})
}

// HasProject reports whether uid holds the project id.
func (s *Store) HasProject(ctx context.Context, uid, id string) (bool, error) {
	n, err := s.db.Collection(projectsCollection).CountDocuments(ctx, bson.M{"_id": id, "uid": uid})
	if err != nil {
		return false, docstore.Remote("has project", err)
	}
	return n > 0, nil
}

func (s *Store) DeleteEntry(ctx context.Context, uid, id string) error {
	res, err := s.db.Collection(entriesCollection).DeleteOne(ctx, bson.M{"_id": id, "uid": uid})
	if err != nil {
		return docstore.Remote("delete entry", err)
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

var byCreation = options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

func (s *Store) listProjects(ctx context.Context, uid string) ([]core.Project, error) {
	cur, err := s.db.Collection(projectsCollection).Find(ctx, bson.M{"uid": uid}, byCreation)
	if err != nil {
		return nil, err
	}
	var docs []projectDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]core.Project, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (s *Store) listEntries(ctx context.Context, uid string) ([]core.Entry, error) {
	cur, err := s.db.Collection(entriesCollection).Find(ctx, bson.M{"uid": uid}, byCreation)
	if err != nil {
		return nil, err
	}
	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]core.Entry, 0, len(docs))
	for _, d := range docs {
		e, err := d.toDomain()
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable entry", "id", d.ID, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Load(ctx context.Context, uid string) ([]core.Project, []core.Entry, error) {
	projects, err := s.listProjects(ctx, uid)
	if err != nil {
		return nil, nil, docstore.Remote("load projects", err)
	}
	entries, err := s.listEntries(ctx, uid)
	if err != nil {
		return nil, nil, docstore.Remote("load entries", err)
	}
	return projects, entries, nil
}

// UIDs lists the users that own data.
func (s *Store) UIDs(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, name := range []string{projectsCollection, entriesCollection} {
		vals, err := s.db.Collection(name).Distinct(ctx, "uid", bson.M{})
		if err != nil {
			return nil, docstore.Remote("list users", err)
		}
		for _, v := range vals {
			uid, ok := v.(string)
			if !ok {
				continue
			}
			if _, dup := seen[uid]; !dup {
				seen[uid] = struct{}{}
				out = append(out, uid)
			}
		}
	}
	return out, nil
}

// changeStream matches inserts and updates for uid plus every delete, since
// delete events carry only the document key.
func (s *Store) changeStream(ctx context.Context, coll, uid string) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"$or": bson.A{
		bson.M{"fullDocument.uid": uid},
		bson.M{"operationType": "delete"},
	}}}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	return s.db.Collection(coll).Watch(ctx, pipeline, opts)
}

type streamSub struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (w *streamSub) Stop() {
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// watch opens a change stream on coll and calls refresh once immediately and
// again after every matching event.
func (s *Store) watch(ctx context.Context, op, coll, uid string, refresh func(context.Context) error) (docstore.Subscription, error) {
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cs, err := s.changeStream(wctx, coll, uid)
	if err != nil {
		cancel()
		return nil, docstore.Remote(op, err)
	}
	if err := refresh(wctx); err != nil {
		cs.Close(context.Background())
		cancel()
		return nil, docstore.Remote(op, err)
	}

	sub := &streamSub{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer cs.Close(context.Background())
		for cs.Next(wctx) {
			if err := refresh(wctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.ErrorContext(wctx, "Watch refresh failed", "collection", coll, "uid", uid, "error", err)
			}
		}
		if err := cs.Err(); err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(wctx, "Change stream closed", "collection", coll, "uid", uid, "error", err)
		}
	}()
	return sub, nil
}

func (s *Store) WatchProjects(ctx context.Context, uid string, fn func([]core.Project)) (docstore.Subscription, error) {
	return s.watch(ctx, "watch projects", projectsCollection, uid, func(ctx context.Context) error {
		projects, err := s.listProjects(ctx, uid)
		if err != nil {
			return err
		}
		fn(projects)
		return nil
	})
}

func (s *Store) WatchEntries(ctx context.Context, uid string, fn func([]core.Entry)) (docstore.Subscription, error) {
	return s.watch(ctx, "watch entries", entriesCollection, uid, func(ctx context.Context) error {
		entries, err := s.listEntries(ctx, uid)
		if err != nil {
			return err
		}
		fn(entries)
		return nil
	})
}
