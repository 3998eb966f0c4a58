package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitForSnapshot(t *testing.T, ch <-chan []Document, cond func([]Document) bool) []Document {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case docs := <-ch:
			if cond(docs) {
				return docs
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestMemoryStore_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if _, err := st.Get(ctx, "users", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.Put(ctx, "users", "u1", map[string]any{"name": "alice", "online": true}, false); err != nil {
		t.Fatalf("put: %v", err)
	}

	doc, err := st.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Fields["name"] != "alice" || doc.Fields["online"] != true {
		t.Fatalf("unexpected fields: %+v", doc.Fields)
	}

	// Mutating the returned snapshot must not leak into the store.
	doc.Fields["name"] = "mallory"
	doc, _ = st.Get(ctx, "users", "u1")
	if doc.Fields["name"] != "alice" {
		t.Fatalf("snapshot mutation leaked into store: %+v", doc.Fields)
	}

	if err := st.Delete(ctx, "users", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(ctx, "users", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestMemoryStore_PutMergeAndReplace(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.Put(ctx, "users", "u1", map[string]any{"name": "alice", "online": true}, false); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := st.Put(ctx, "users", "u1", map[string]any{"online": false}, true); err != nil {
		t.Fatalf("merge put: %v", err)
	}
	doc, _ := st.Get(ctx, "users", "u1")
	if doc.Fields["name"] != "alice" || doc.Fields["online"] != false {
		t.Fatalf("merge lost fields: %+v", doc.Fields)
	}

	if err := st.Put(ctx, "users", "u1", map[string]any{"online": true}, false); err != nil {
		t.Fatalf("replace put: %v", err)
	}
	doc, _ = st.Get(ctx, "users", "u1")
	if _, ok := doc.Fields["name"]; ok {
		t.Fatalf("replace kept stale fields: %+v", doc.Fields)
	}
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.Update(ctx, "users", "ghost", map[string]any{"online": true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ServerTimestamp(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := NewMemoryStore().WithNowFunc(func() time.Time { return fixed })

	if err := st.Put(ctx, "messages", "m1", map[string]any{"timestamp": ServerTimestamp}, false); err != nil {
		t.Fatalf("put: %v", err)
	}

	doc, _ := st.Get(ctx, "messages", "m1")
	got, ok := doc.Fields["timestamp"].(time.Time)
	if !ok || !got.Equal(fixed) {
		t.Fatalf("expected store clock %v, got %v", fixed, doc.Fields["timestamp"])
	}
}

func TestMemoryStore_QueryPredicatesAndOrder(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	seed := []struct {
		id     string
		fields map[string]any
	}{
		{"r1", map[string]any{"toUid": "bob", "status": "pending"}},
		{"r2", map[string]any{"toUid": "bob", "status": "accepted"}},
		{"r3", map[string]any{"toUid": "carol", "status": "pending"}},
		{"r4", map[string]any{"toUid": "bob", "status": "pending"}},
	}
	for _, s := range seed {
		if err := st.Put(ctx, "friend_requests", s.id, s.fields, false); err != nil {
			t.Fatalf("put %s: %v", s.id, err)
		}
	}

	docs, err := st.Query(ctx, "friend_requests", []Predicate{
		Where("toUid", OpEqual, "bob"),
		Where("status", OpEqual, "pending"),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "r1" || docs[1].ID != "r4" {
		t.Fatalf("unexpected result set: %+v", docs)
	}
}

func TestMemoryStore_QueryRange(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	for id, username := range map[string]string{
		"u1": "adam",
		"u2": "daniel",
		"u3": "dana",
		"u4": "zoe",
	} {
		if err := st.Put(ctx, "users", id, map[string]any{"username": username}, false); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	docs, err := st.Query(ctx, "users", []Predicate{
		Where("username", OpGreaterOrEqual, "da"),
		Where("username", OpLessOrEqual, "da\uf8ff"),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected daniel and dana, got %+v", docs)
	}
	for _, doc := range docs {
		name := doc.Fields["username"].(string)
		if name != "daniel" && name != "dana" {
			t.Fatalf("unexpected match %q", name)
		}
	}
}

func TestMemoryStore_SubscribeDeliversInitialAndUpdates(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.Put(ctx, "messages", "m1", map[string]any{"conversationId": "a_b", "text": "hi"}, false); err != nil {
		t.Fatalf("put: %v", err)
	}

	snapshots := make(chan []Document, 8)
	cancel, err := st.Subscribe(ctx, "messages",
		[]Predicate{Where("conversationId", OpEqual, "a_b")},
		func(docs []Document) { snapshots <- docs })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	waitForSnapshot(t, snapshots, func(docs []Document) bool { return len(docs) == 1 })

	if err := st.Put(ctx, "messages", "m2", map[string]any{"conversationId": "a_b", "text": "yo"}, false); err != nil {
		t.Fatalf("put: %v", err)
	}
	// A write to another conversation still triggers a recompute, but the
	// result set for this subscription must not include it.
	if err := st.Put(ctx, "messages", "m3", map[string]any{"conversationId": "c_d", "text": "nope"}, false); err != nil {
		t.Fatalf("put: %v", err)
	}

	docs := waitForSnapshot(t, snapshots, func(docs []Document) bool { return len(docs) == 2 })
	if docs[0].ID != "m1" || docs[1].ID != "m2" {
		t.Fatalf("unexpected snapshot order: %+v", docs)
	}
}

func TestMemoryStore_SubscribeRacingWriteSettlesOnLatest(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 2000; i++ {
		st := NewMemoryStore()

		var (
			mu     sync.Mutex
			latest []Document
		)

		written := make(chan struct{})
		go func() {
			defer close(written)
			if err := st.Put(ctx, "messages", "m1", map[string]any{"text": "hi"}, false); err != nil {
				t.Errorf("put: %v", err)
			}
		}()

		cancel, err := st.Subscribe(ctx, "messages", nil, func(docs []Document) {
			mu.Lock()
			latest = docs
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		<-written

		deadline := time.Now().Add(2 * time.Second)
		for {
			mu.Lock()
			n := len(latest)
			mu.Unlock()
			if n == 1 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("iteration %d: committed write never reached the subscription", i)
			}
			time.Sleep(100 * time.Microsecond)
		}

		// An initial snapshot queried before the write but delivered after
		// the notify-driven one would land here and empty the view again.
		time.Sleep(time.Millisecond)
		mu.Lock()
		n := len(latest)
		mu.Unlock()
		if n != 1 {
			t.Fatalf("iteration %d: stale snapshot overwrote the committed write", i)
		}
		cancel()
	}
}

func TestMemoryStore_SubscribeCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	snapshots := make(chan []Document, 8)
	cancel, err := st.Subscribe(ctx, "messages", nil, func(docs []Document) { snapshots <- docs })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	waitForSnapshot(t, snapshots, func(docs []Document) bool { return len(docs) == 0 })
	cancel()

	if err := st.Put(ctx, "messages", "m1", map[string]any{"text": "hi"}, false); err != nil {
		t.Fatalf("put: %v", err)
	}

	select {
	case docs := <-snapshots:
		if len(docs) != 0 {
			t.Fatalf("received snapshot after cancel: %+v", docs)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryStore_SubscribeContextCancel(t *testing.T) {
	st := NewMemoryStore()

	subCtx, stop := context.WithCancel(context.Background())
	snapshots := make(chan []Document, 8)
	if _, err := st.Subscribe(subCtx, "messages", nil, func(docs []Document) { snapshots <- docs }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	waitForSnapshot(t, snapshots, func(docs []Document) bool { return true })
	stop()

	// Detachment is asynchronous; poll until the write stops producing
	// deliveries.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(st.subs.forCollection("messages")) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("subscription still attached after context cancel")
}
