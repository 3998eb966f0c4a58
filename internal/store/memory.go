package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-process maps. It is the default
// driver for local development and the test double for everything built on
// the store contract.
type MemoryStore struct {
	mu    sync.RWMutex
	colls map[string]map[string]*memoryDoc
	seq   int64

	subs subscriberSet
	now  func() time.Time
}

// memoryDoc keeps the arrival sequence alongside the fields so queries can
// return documents in insertion order, the tie-break the timeline view
// relies on.
type memoryDoc struct {
	fields map[string]any
	seq    int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		colls: make(map[string]map[string]*memoryDoc),
		now:   time.Now,
	}
}

// WithNowFunc overrides the store clock. Useful for tests.
func (m *MemoryStore) WithNowFunc(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Get returns the document stored under collection/id.
func (m *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.colls[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: cloneFields(doc.fields)}, nil
}

// Put writes fields under collection/id. With merge set, fields are combined
// into any existing document; otherwise the document is replaced.
func (m *MemoryStore) Put(_ context.Context, collection, id string, fields map[string]any, merge bool) error {
	m.mu.Lock()
	resolved := resolveTimestamps(fields, m.now().UTC())

	coll := m.colls[collection]
	if coll == nil {
		coll = make(map[string]*memoryDoc)
		m.colls[collection] = coll
	}

	if existing, ok := coll[id]; ok {
		if merge {
			for k, v := range resolved {
				existing.fields[k] = v
			}
		} else {
			existing.fields = resolved
		}
	} else {
		m.seq++
		coll[id] = &memoryDoc{fields: resolved, seq: m.seq}
	}
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

// Update merges fields into an existing document and fails with ErrNotFound
// when the document does not exist.
func (m *MemoryStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	doc, ok := m.colls[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	for k, v := range resolveTimestamps(fields, m.now().UTC()) {
		doc.fields[k] = v
	}
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

// Insert stores fields under a store-assigned id and returns it.
func (m *MemoryStore) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := m.Put(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes the document stored under collection/id.
func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	if _, ok := m.colls[collection][id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.colls[collection], id)
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

// Query returns every document in the collection matching all predicates, in
// arrival order.
func (m *MemoryStore) Query(_ context.Context, collection string, preds []Predicate) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryLocked(collection, preds), nil
}

func (m *MemoryStore) queryLocked(collection string, preds []Predicate) []Document {
	type ordered struct {
		doc Document
		seq int64
	}

	var hits []ordered
	for id, doc := range m.colls[collection] {
		if !matches(doc.fields, preds) {
			continue
		}
		hits = append(hits, ordered{
			doc: Document{ID: id, Fields: cloneFields(doc.fields)},
			seq: doc.seq,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.doc)
	}
	return out
}

// Subscribe registers a live query against the collection. The callback
// receives the full current result set immediately and after every write to
// the collection that leaves the result set potentially changed.
func (m *MemoryStore) Subscribe(ctx context.Context, collection string, preds []Predicate, fn func([]Document)) (CancelFunc, error) {
	sub := newSubscriber(collection, preds, fn)
	id := m.subs.add(sub)

	// Registration precedes the initial snapshot, so a write racing this
	// call either shows up in the initial query or triggers a notify
	// snapshot serialized after it.
	_ = sub.snapshot(func() ([]Document, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.queryLocked(collection, preds), nil
	})

	cancel := func() { m.subs.remove(id) }
	watchContext(ctx, cancel)
	return cancel, nil
}

func (m *MemoryStore) notify(collection string) {
	for _, sub := range m.subs.forCollection(collection) {
		_ = sub.snapshot(func() ([]Document, error) {
			m.mu.RLock()
			defer m.mu.RUnlock()
			return m.queryLocked(collection, sub.preds), nil
		})
	}
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
