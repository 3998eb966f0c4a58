// Package store defines the document store contract the engines write
// through: point reads and writes on collection-scoped documents, filtered
// queries, and live subscriptions that push a fresh result set whenever
// matching documents change.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")
)

// Document is a single stored record: a store-scoped id plus its fields.
type Document struct {
	ID     string
	Fields map[string]any
}

// Op is a predicate comparison operator.
type Op string

const (
	OpEqual          Op = "=="
	OpGreaterOrEqual Op = ">="
	OpLessOrEqual    Op = "<="
)

// Predicate filters a query by comparing a document field against a value.
// Comparisons are on the text form of the field, which covers everything the
// engines query by: uids, statuses, and username range bounds.
type Predicate struct {
	Field string
	Op    Op
	Value string
}

// Where builds a predicate.
func Where(field string, op Op, value string) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

// CancelFunc detaches a live subscription. It must be called on teardown to
// free the backend's listener resources; failing to do so leaks the listener
// slot but does not affect correctness.
type CancelFunc func()

// Store is the document store contract. Insert assigns the document id;
// Put writes under a caller-chosen id, merging into any existing document
// when merge is true. Subscribe delivers the full current result set
// immediately and again after every matching change.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Put(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Insert(ctx context.Context, collection string, fields map[string]any) (string, error)
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, preds []Predicate) ([]Document, error)
	Subscribe(ctx context.Context, collection string, preds []Predicate, fn func([]Document)) (CancelFunc, error)
}

type serverTimestamp struct{}

// ServerTimestamp is a sentinel field value replaced by the backend with its
// own clock at write time, so document timestamps never depend on caller
// clocks.
var ServerTimestamp any = serverTimestamp{}

// resolveTimestamps returns a copy of fields with every ServerTimestamp
// sentinel replaced by now.
func resolveTimestamps(fields map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}

// matches reports whether a document's fields satisfy every predicate.
func matches(fields map[string]any, preds []Predicate) bool {
	for _, p := range preds {
		v, ok := fields[p.Field].(string)
		if !ok {
			return false
		}
		switch p.Op {
		case OpEqual:
			if v != p.Value {
				return false
			}
		case OpGreaterOrEqual:
			if v < p.Value {
				return false
			}
		case OpLessOrEqual:
			if v > p.Value {
				return false
			}
		default:
			return false
		}
	}
	return true
}
