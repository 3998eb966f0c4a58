package store

import (
	"context"
	"sync"
)

// subscriber owns one live subscription. Snapshots are handed to deliver by
// the backend's notification path and consumed by a single goroutine, so the
// caller's callback never runs concurrently with itself. The channel holds at
// most one snapshot: a newer snapshot displaces an undelivered older one,
// which keeps slow consumers from backing up the store's write path.
type subscriber struct {
	collection string
	preds      []Predicate
	fn         func([]Document)

	// snapMu serializes snapshot computation with delivery. Without it a
	// subscription's initial snapshot, queried before a concurrent write,
	// could be delivered after the notify-driven snapshot that includes
	// the write and permanently shadow it.
	snapMu sync.Mutex

	ch   chan []Document
	done chan struct{}
	once sync.Once
}

func newSubscriber(collection string, preds []Predicate, fn func([]Document)) *subscriber {
	s := &subscriber{
		collection: collection,
		preds:      preds,
		fn:         fn,
		ch:         make(chan []Document, 1),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case docs := <-s.ch:
			s.fn(docs)
		}
	}
}

func (s *subscriber) deliver(docs []Document) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.ch <- docs:
			return
		default:
			// Displace the stale snapshot.
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// snapshot computes the current result set and hands it to the consumer.
// Callers must register the subscriber before its first snapshot: a write
// racing the registration then either lands in the initial query or
// triggers a later snapshot that runs after it.
func (s *subscriber) snapshot(query func() ([]Document, error)) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	docs, err := query()
	if err != nil {
		return err
	}
	s.deliver(docs)
	return nil
}

func (s *subscriber) cancel() {
	s.once.Do(func() { close(s.done) })
}

// subscriberSet is a registry of active subscribers shared by the backends.
type subscriberSet struct {
	mu   sync.Mutex
	subs map[int64]*subscriber
	next int64
}

func (set *subscriberSet) add(sub *subscriber) int64 {
	set.mu.Lock()
	defer set.mu.Unlock()
	if set.subs == nil {
		set.subs = make(map[int64]*subscriber)
	}
	set.next++
	id := set.next
	set.subs[id] = sub
	return id
}

func (set *subscriberSet) remove(id int64) {
	set.mu.Lock()
	defer set.mu.Unlock()
	if sub, ok := set.subs[id]; ok {
		sub.cancel()
		delete(set.subs, id)
	}
}

func (set *subscriberSet) forCollection(collection string) []*subscriber {
	set.mu.Lock()
	defer set.mu.Unlock()
	var out []*subscriber
	for _, sub := range set.subs {
		if sub.collection == collection {
			out = append(out, sub)
		}
	}
	return out
}

// collections returns the distinct collections with at least one active
// subscriber.
func (set *subscriberSet) collections() []string {
	set.mu.Lock()
	defer set.mu.Unlock()
	seen := make(map[string]struct{}, len(set.subs))
	var out []string
	for _, sub := range set.subs {
		if _, ok := seen[sub.collection]; ok {
			continue
		}
		seen[sub.collection] = struct{}{}
		out = append(out, sub.collection)
	}
	return out
}

// watchContext cancels the subscription when the caller's context ends, so a
// handler that returns without calling cancel does not leak its listener.
func watchContext(ctx context.Context, cancel CancelFunc) {
	if ctx == nil || ctx.Done() == nil {
		return
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
}
