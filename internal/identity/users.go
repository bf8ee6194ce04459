package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"receipts/internal/storage"
)

// MemoryUsers keeps accounts in process.
type MemoryUsers struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{accounts: make(map[string]Account)}
}

func (m *MemoryUsers) CreateAccount(_ context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Email]; ok {
		return ErrEmailInUse
	}
	m.accounts[a.Email] = a
	return nil
}

func (m *MemoryUsers) AccountByEmail(_ context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return Account{}, ErrUnknownUser
	}
	return a, nil
}

// SQLiteUsers stores accounts in the users table.
type SQLiteUsers struct {
	repo *storage.SQLiteRepository
}

func NewSQLiteUsers(repo *storage.SQLiteRepository) *SQLiteUsers {
	return &SQLiteUsers{repo: repo}
}

func (s *SQLiteUsers) CreateAccount(ctx context.Context, a Account) error {
	err := s.repo.CreateUser(ctx, storage.User{ID: a.ID, Email: a.Email, PasswordHash: string(a.PasswordHash)})
	if errors.Is(err, storage.ErrDuplicate) {
		return ErrEmailInUse
	}
	return err
}

func (s *SQLiteUsers) AccountByEmail(ctx context.Context, email string) (Account, error) {
	u, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return Account{}, ErrUnknownUser
	}
	if err != nil {
		return Account{}, err
	}
	return Account{User: User{ID: u.ID, Email: u.Email}, PasswordHash: []byte(u.PasswordHash)}, nil
}

type accountDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash []byte    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

// MongoUsers stores accounts in the users collection, unique by email.
type MongoUsers struct {
	coll *mongo.Collection
}

func NewMongoUsers(ctx context.Context, db *mongo.Database) (*MongoUsers, error) {
	coll := db.Collection("users")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create users index: %w", err)
	}
	return &MongoUsers{coll: coll}, nil
}

func (m *MongoUsers) CreateAccount(ctx context.Context, a Account) error {
	_, err := m.coll.InsertOne(ctx, accountDoc{
		ID: a.ID, Email: a.Email, PasswordHash: a.PasswordHash, CreatedAt: time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailInUse
	}
	return err
}

func (m *MongoUsers) AccountByEmail(ctx context.Context, email string) (Account, error) {
	var doc accountDoc
	err := m.coll.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Account{}, ErrUnknownUser
	}
	if err != nil {
		return Account{}, err
	}
	return Account{User: User{ID: doc.ID, Email: doc.Email}, PasswordHash: doc.PasswordHash}, nil
}
