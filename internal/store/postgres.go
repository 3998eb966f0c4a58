package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glassychat/backend/internal/db"
)

// notifyChannel carries the collection name of every committed write so the
// listener can re-run affected live queries.
const notifyChannel = "glassychat_documents"

// PostgresStore keeps documents in a single jsonb table (see
// migrations/001_create_documents.sql) and implements live queries with
// LISTEN/NOTIFY on a dedicated connection.
type PostgresStore struct {
	pool db.Pool
	log  *slog.Logger

	subs subscriberSet
	stop context.CancelFunc
	done chan struct{}
}

// NewPostgresStore wraps the pool and starts the notification listener. The
// caller retains ownership of the pool; Close stops only the listener.
func NewPostgresStore(pool db.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}

	listenCtx, stop := context.WithCancel(context.Background())
	s := &PostgresStore{
		pool: pool,
		log:  logger,
		stop: stop,
		done: make(chan struct{}),
	}
	go s.listen(listenCtx)
	return s
}

// Close stops the notification listener and waits for it to exit.
func (s *PostgresStore) Close() {
	s.stop()
	<-s.done
}

// Get returns the document stored under collection/id.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var raw []byte
	row := conn.QueryRow(ctx, `
        SELECT data FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("select document: %w", err)
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Fields: fields}, nil
}

// Put upserts the document under collection/id. With merge set the new
// fields are combined into the stored jsonb; otherwise the document is
// replaced wholesale.
func (s *PostgresStore) Put(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	assign := "EXCLUDED.data"
	if merge {
		assign = "documents.data || EXCLUDED.data"
	}

	query := fmt.Sprintf(`
        INSERT INTO documents (collection, id, data)
        VALUES ($1, $2, $3)
        ON CONFLICT (collection, id)
        DO UPDATE SET data = %s, updated_at = now()
    `, assign)

	if _, err := conn.Exec(ctx, query, collection, id, raw); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	s.announce(ctx, conn, collection)
	return nil
}

// Update merges fields into an existing document.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE documents
        SET data = data || $3, updated_at = now()
        WHERE collection = $1 AND id = $2
    `, collection, id, raw)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.announce(ctx, conn, collection)
	return nil
}

// Insert stores fields under a store-assigned id and returns it.
func (s *PostgresStore) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Put(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes the document stored under collection/id.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.announce(ctx, conn, collection)
	return nil
}

// Query returns matching documents in arrival order.
func (s *PostgresStore) Query(ctx context.Context, collection string, preds []Predicate) ([]Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)
	args := []any{collection}

	for _, p := range preds {
		op, err := sqlOp(p.Op)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&sb, ` AND data->>$%d %s $%d`, len(args)+1, op, len(args)+2)
		args = append(args, p.Field, p.Value)
	}
	sb.WriteString(` ORDER BY seq`)

	rows, err := conn.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return docs, nil
}

// Subscribe registers a live query and delivers the current result set
// immediately. Later deliveries are driven by NOTIFY events from the
// listener connection.
func (s *PostgresStore) Subscribe(ctx context.Context, collection string, preds []Predicate, fn func([]Document)) (CancelFunc, error) {
	sub := newSubscriber(collection, preds, fn)
	id := s.subs.add(sub)

	// Registration precedes the initial snapshot, so a write committed
	// during this call is either in the initial query or delivered by a
	// listener refresh serialized after it.
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

// announce publishes the collection name after a successful write. A lost
// notification degrades to "no update delivered" for open subscriptions,
// which is the documented failure mode, so errors are logged and dropped.
func (s *PostgresStore) announce(ctx context.Context, conn *pgxpool.Conn, collection string) {
	if _, err := conn.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		s.log.Warn("publish document notification", "collection", collection, "error", err)
	}
}

func (s *PostgresStore) listen(ctx context.Context) {
	defer close(s.done)

	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("document listener interrupted, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *PostgresStore) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		return fmt.Errorf("listen on %s: %w", notifyChannel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		s.refresh(ctx, notification.Payload)
	}
}

func (s *PostgresStore) refresh(ctx context.Context, collection string) {
	for _, sub := range s.subs.forCollection(collection) {
		err := sub.snapshot(func() ([]Document, error) {
			return s.Query(ctx, collection, sub.preds)
		})
		if err != nil {
			s.log.Warn("refresh live query", "collection", collection, "error", err)
		}
	}
}

func sqlOp(op Op) (string, error) {
	switch op {
	case OpEqual:
		return "=", nil
	case OpGreaterOrEqual:
		return ">=", nil
	case OpLessOrEqual:
		return "<=", nil
	default:
		return "", fmt.Errorf("unsupported predicate operator %q", op)
	}
}

func encodeFields(fields map[string]any) ([]byte, error) {
	raw, err := json.Marshal(resolveTimestamps(fields, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("encode document fields: %w", err)
	}
	return raw, nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode document fields: %w", err)
	}
	return fields, nil
}
