package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoStore keeps every document in one MongoDB collection, keyed by the
// (collection, doc_id) pair, and implements live queries with change
// streams. Change streams require a replica set; against a standalone server
// subscriptions still deliver their initial snapshot but never refresh.
type MongoStore struct {
	coll *mongo.Collection
	log  *slog.Logger

	subs subscriberSet
	stop context.CancelFunc
	done chan struct{}
}

type mongoDoc struct {
	Collection string         `bson:"collection"`
	DocID      string         `bson:"doc_id"`
	Data       map[string]any `bson:"data"`
	InsertedAt time.Time      `bson:"inserted_at"`
}

// DialMongo connects to MongoDB, verifies the connection, ensures indexes,
// and returns a store over the named database's documents collection. The
// returned close function disconnects the client.
func DialMongo(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, func(context.Context) error, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}

	coll := client.Database(database).Collection("documents")
	if err := ensureMongoIndexes(ctx, coll); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	return NewMongoStore(coll, logger), client.Disconnect, nil
}

// NewMongoStore wraps the collection and starts the change stream watcher.
func NewMongoStore(coll *mongo.Collection, logger *slog.Logger) *MongoStore {
	if logger == nil {
		logger = slog.Default()
	}

	watchCtx, stop := context.WithCancel(context.Background())
	s := &MongoStore{
		coll: coll,
		log:  logger,
		stop: stop,
		done: make(chan struct{}),
	}
	go s.watch(watchCtx)
	return s
}

// Close stops the change stream watcher and waits for it to exit.
func (s *MongoStore) Close() {
	s.stop()
	<-s.done
}

// Get returns the document stored under collection/id.
func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"collection": collection, "doc_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("find document: %w", err)
	}
	return Document{ID: id, Fields: normalizeBSON(doc.Data)}, nil
}

// Put upserts the document under collection/id.
func (s *MongoStore) Put(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	resolved := resolveTimestamps(fields, time.Now().UTC())

	update := bson.M{
		"$setOnInsert": bson.M{
			"collection":  collection,
			"doc_id":      id,
			"inserted_at": time.Now().UTC(),
		},
	}
	if merge {
		set := bson.M{}
		for k, v := range resolved {
			set["data."+k] = v
		}
		if len(set) > 0 {
			update["$set"] = set
		}
	} else {
		update["$set"] = bson.M{"data": resolved}
	}

	_, err := s.coll.UpdateOne(ctx,
		bson.M{"collection": collection, "doc_id": id},
		update,
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Update merges fields into an existing document.
func (s *MongoStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	set := bson.M{}
	for k, v := range resolveTimestamps(fields, time.Now().UTC()) {
		set["data."+k] = v
	}
	if len(set) == 0 {
		return nil
	}

	result, err := s.coll.UpdateOne(ctx,
		bson.M{"collection": collection, "doc_id": id},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Insert stores fields under a store-assigned id and returns it.
func (s *MongoStore) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Put(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes the document stored under collection/id.
func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"collection": collection, "doc_id": id})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Query returns matching documents in arrival order.
func (s *MongoStore) Query(ctx context.Context, collection string, preds []Predicate) ([]Document, error) {
	filter := bson.M{"collection": collection}
	for _, p := range preds {
		field := "data." + p.Field
		switch p.Op {
		case OpEqual:
			filter[field] = p.Value
		case OpGreaterOrEqual:
			filter[field] = bson.M{"$gte": p.Value}
		case OpLessOrEqual:
			filter[field] = bson.M{"$lte": p.Value}
		default:
			return nil, fmt.Errorf("unsupported predicate operator %q", p.Op)
		}
	}

	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.M{"inserted_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer cursor.Close(ctx)

	var raw []mongoDoc
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}

	docs := make([]Document, 0, len(raw))
	for _, d := range raw {
		docs = append(docs, Document{ID: d.DocID, Fields: normalizeBSON(d.Data)})
	}
	return docs, nil
}

// Subscribe registers a live query and delivers the current result set
// immediately. Later deliveries are driven by the change stream watcher.
func (s *MongoStore) Subscribe(ctx context.Context, collection string, preds []Predicate, fn func([]Document)) (CancelFunc, error) {
	sub := newSubscriber(collection, preds, fn)
	id := s.subs.add(sub)

	// Registration precedes the initial snapshot, so a write committed
	// during this call is either in the initial query or delivered by a
	// change-stream refresh serialized after it.
	err := sub.snapshot(func() ([]Document, error) {
		return s.Query(ctx, collection, preds)
	})
	if err != nil {
		s.subs.remove(id)
		return nil, err
	}

	cancel := func() { s.subs.remove(id) }
	watchContext(ctx, cancel)
	return cancel, nil
}

func (s *MongoStore) watch(ctx context.Context) {
	defer close(s.done)

	for {
		err := s.watchOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("document change stream interrupted, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *MongoStore) watchOnce(ctx context.Context) error {
	stream, err := s.coll.Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return fmt.Errorf("open change stream: %w", err)
	}
	defer stream.Close(ctx)

	for stream.Next(ctx) {
		var event struct {
			FullDocument mongoDoc `bson:"fullDocument"`
		}
		if err := stream.Decode(&event); err != nil {
			s.log.Warn("decode change event", "error", err)
			continue
		}
		if event.FullDocument.Collection == "" {
			// Delete events carry no fullDocument and the logical
			// collection lives inside the deleted document, so it cannot
			// be recovered from the event. Refresh every subscribed
			// collection instead.
			s.refreshAll(ctx)
			continue
		}
		s.refresh(ctx, event.FullDocument.Collection)
	}
	return stream.Err()
}

func (s *MongoStore) refreshAll(ctx context.Context) {
	for _, collection := range s.subs.collections() {
		s.refresh(ctx, collection)
	}
}

func (s *MongoStore) refresh(ctx context.Context, collection string) {
	for _, sub := range s.subs.forCollection(collection) {
		err := sub.snapshot(func() ([]Document, error) {
			return s.Query(ctx, collection, sub.preds)
		})
		if err != nil {
			s.log.Warn("refresh live query", "collection", collection, "error", err)
		}
	}
}

// normalizeBSON converts BSON scalar types that differ from their Go
// counterparts, so field decoding behaves the same across backends.
func normalizeBSON(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case bson.DateTime:
			out[k] = t.Time().UTC()
		default:
			out[k] = v
		}
	}
	return out
}

func ensureMongoIndexes(ctx context.Context, coll *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "collection", Value: 1}, {Key: "doc_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "collection", Value: 1}, {Key: "inserted_at", Value: 1}},
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create document indexes: %w", err)
	}
	return nil
}

var _ Store = (*MongoStore)(nil)
