// ABOUTME: MongoDB implementation of the Store interface using the official v2 driver
// ABOUTME: Accounts and subscribers live in collections guarded by unique sparse indexes

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	accountsCollection    = "accounts"
	subscribersCollection = "subscribers"
	auditCollection       = "audit_log"
)

// MongoStore implements the Store interface on top of a MongoDB database.
type MongoStore struct {
	client      *mongo.Client
	accounts    *mongo.Collection
	subscribers *mongo.Collection
	audit       *mongo.Collection
	logger      *slog.Logger
}

// Ensure MongoStore implements Store.
var _ Store = (*MongoStore)(nil)

// accountDocument is the BSON shape of an account. Optional unique fields are
// omitted when empty so the sparse indexes ignore them.
type accountDocument struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Email        string        `bson:"email,omitempty"`
	ExternalID   string        `bson:"externalId,omitempty"`
	PasswordHash string        `bson:"password,omitempty"`
	DisplayName  string        `bson:"name"`
	AvatarURL    string        `bson:"picture"`
	IsActive     bool          `bson:"isActive"`
	CreatedAt    time.Time     `bson:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt"`
}

func (d *accountDocument) toAccount() *Account {
	return &Account{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		ExternalID:   d.ExternalID,
		PasswordHash: d.PasswordHash,
		DisplayName:  d.DisplayName,
		AvatarURL:    d.AvatarURL,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type subscriberDocument struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Email        string        `bson:"email"`
	Status       string        `bson:"status"`
	SubscribedAt time.Time     `bson:"subscribedAt"`
}

func (d *subscriberDocument) toSubscriber() *Subscriber {
	return &Subscriber{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		Status:       d.Status,
		SubscribedAt: d.SubscribedAt,
	}
}

type auditDocument struct {
	ID        bson.ObjectID  `bson:"_id,omitempty"`
	AccountID string         `bson:"accountId"`
	Action    string         `bson:"action"`
	IP        string         `bson:"ip,omitempty"`
	Timestamp time.Time      `bson:"ts"`
	Detail    map[string]any `bson:"detail,omitempty"`
}

func (d *auditDocument) toEntry() AuditEntry {
	return AuditEntry{
		ID:        d.ID.Hex(),
		AccountID: d.AccountID,
		Action:    AuditAction(d.Action),
		IP:        d.IP,
		Timestamp: d.Timestamp,
		Detail:    d.Detail,
	}
}

// NewMongoStore connects to uri, selects the database and ensures indexes exist.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	logger := slog.Default().With("component", "store")

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:      client,
		accounts:    db.Collection(accountsCollection),
		subscribers: db.Collection(subscribersCollection),
		audit:       db.Collection(auditCollection),
		logger:      logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	logger.Info("MongoDB store initialized", "database", database)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("uniq_email"),
		},
		{
			Keys:    bson.D{{Key: "externalId", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("uniq_external_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("accounts: %w", err)
	}

	_, err = s.subscribers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
		{
			Keys: bson.D{{Key: "subscribedAt", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("subscribers: %w", err)
	}

	_, err = s.audit.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "accountId", Value: 1}, {Key: "ts", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	s.logger.Info("closing MongoDB store")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// CreateAccount inserts a new account; the ObjectID becomes the account ID.
func (s *MongoStore) CreateAccount(ctx context.Context, account *Account) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := accountDocument{
		ID:           bson.NewObjectID(),
		Email:        account.Email,
		ExternalID:   account.ExternalID,
		PasswordHash: account.PasswordHash,
		DisplayName:  account.DisplayName,
		AvatarURL:    account.AvatarURL,
		IsActive:     account.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.accounts.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	account.ID = doc.ID.Hex()
	account.CreatedAt = now
	account.UpdatedAt = now

	s.logger.Debug("created account", "id", account.ID)
	return nil
}

// GetAccount retrieves an account by its hex ObjectID.
func (s *MongoStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findAccount(ctx, bson.M{"_id": oid})
}

// GetAccountByEmail retrieves an account by exact email match.
func (s *MongoStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	return s.findAccount(ctx, bson.M{"email": email})
}

// GetAccountByExternalID retrieves the account linked to a federated identity.
func (s *MongoStore) GetAccountByExternalID(ctx context.Context, externalID string) (*Account, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	return s.findAccount(ctx, bson.M{"externalId": externalID})
}

func (s *MongoStore) findAccount(ctx context.Context, filter bson.M) (*Account, error) {
	var doc accountDocument
	err := s.accounts.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return doc.toAccount(), nil
}

// UpdateAccount applies the non-nil fields of update and returns the new document.
func (s *MongoStore) UpdateAccount(ctx context.Context, id string, update AccountUpdate) (*Account, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	filter := bson.M{"_id": oid}
	if update.ExpectExternalID != nil {
		if *update.ExpectExternalID == "" {
			filter["externalId"] = bson.M{"$exists": false}
		} else {
			filter["externalId"] = *update.ExpectExternalID
		}
	}

	if update.IsEmpty() {
		return s.findAccountMatching(ctx, oid, filter)
	}

	set := bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	unset := bson.M{}

	// Empty optional unique fields are unset rather than stored as "",
	// otherwise the sparse index would treat "" as a claimed value.
	setOrUnset := func(field string, value *string) {
		if value == nil {
			return
		}
		if *value == "" {
			unset[field] = ""
			return
		}
		set[field] = *value
	}
	setOrUnset("externalId", update.ExternalID)
	setOrUnset("password", update.PasswordHash)
	if update.DisplayName != nil {
		set["name"] = *update.DisplayName
	}
	if update.AvatarURL != nil {
		set["picture"] = *update.AvatarURL
	}
	if update.IsActive != nil {
		set["isActive"] = *update.IsActive
	}

	change := bson.M{"$set": set}
	if len(unset) > 0 {
		change["$unset"] = unset
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc accountDocument
	err = s.accounts.FindOneAndUpdate(ctx, filter, change, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.missedUpdate(ctx, oid)
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("updating account: %w", err)
	}
	return doc.toAccount(), nil
}

// findAccountMatching returns the account when filter matches it.
func (s *MongoStore) findAccountMatching(ctx context.Context, oid bson.ObjectID, filter bson.M) (*Account, error) {
	account, err := s.findAccount(ctx, filter)
	if errors.Is(err, ErrNotFound) {
		return nil, s.missedUpdate(ctx, oid)
	}
	return account, err
}

// missedUpdate explains a filter miss: ErrNotFound for an unknown id,
// ErrDuplicateKey when the account exists but its link changed underneath.
func (s *MongoStore) missedUpdate(ctx context.Context, oid bson.ObjectID) error {
	n, err := s.accounts.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("checking account: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrDuplicateKey
}

// CountAccounts returns the number of stored accounts.
func (s *MongoStore) CountAccounts(ctx context.Context) (int, error) {
	n, err := s.accounts.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return int(n), nil
}

// CreateSubscriber inserts a newsletter subscriber.
func (s *MongoStore) CreateSubscriber(ctx context.Context, sub *Subscriber) error {
	doc := subscriberDocument{
		ID:           bson.NewObjectID(),
		Email:        sub.Email,
		Status:       sub.Status,
		SubscribedAt: sub.SubscribedAt,
	}
	if doc.Status == "" {
		doc.Status = SubscriberStatusActive
	}
	if doc.SubscribedAt.IsZero() {
		doc.SubscribedAt = time.Now()
	}
	doc.SubscribedAt = doc.SubscribedAt.UTC().Truncate(time.Millisecond)

	if _, err := s.subscribers.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting subscriber: %w", err)
	}

	sub.ID = doc.ID.Hex()
	sub.Status = doc.Status
	sub.SubscribedAt = doc.SubscribedAt
	return nil
}

// GetSubscriberByEmail retrieves a subscriber by email.
func (s *MongoStore) GetSubscriberByEmail(ctx context.Context, email string) (*Subscriber, error) {
	var doc subscriberDocument
	err := s.subscribers.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying subscriber: %w", err)
	}
	return doc.toSubscriber(), nil
}

// ListSubscribers returns all subscribers ordered by subscription time.
func (s *MongoStore) ListSubscribers(ctx context.Context) ([]*Subscriber, error) {
	opts := options.Find().SetSort(bson.D{{Key: "subscribedAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.subscribers.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}

	var docs []subscriberDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding subscribers: %w", err)
	}

	subs := make([]*Subscriber, 0, len(docs))
	for i := range docs {
		subs = append(subs, docs[i].toSubscriber())
	}
	return subs, nil
}

// AppendAuditLog inserts an activity entry; the ObjectID becomes the entry ID.
func (s *MongoStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if err := validateAuditEntry(e); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	doc := auditDocument{
		ID:        bson.NewObjectID(),
		AccountID: e.AccountID,
		Action:    string(e.Action),
		IP:        e.IP,
		Timestamp: e.Timestamp.UTC().Truncate(time.Millisecond),
		Detail:    e.Detail,
	}

	if _, err := s.audit.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	e.ID = doc.ID.Hex()
	e.Timestamp = doc.Timestamp
	return nil
}

// ListAuditLog returns matching entries, newest first.
func (s *MongoStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	filter := bson.M{}
	if f.AccountID != nil {
		filter["accountId"] = *f.AccountID
	}
	if f.Action != nil {
		filter["action"] = string(*f.Action)
	}
	if f.Since != nil {
		filter["ts"] = bson.M{"$gte": f.Since.UTC()}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "ts", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(normalizeAuditLimit(f.Limit)))
	cursor, err := s.audit.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding audit log: %w", err)
	}

	entries := make([]AuditEntry, 0, len(docs))
	for i := range docs {
		entries = append(entries, docs[i].toEntry())
	}
	return entries, nil
}
