// Package postgres implements the document store on PostgreSQL. Every
// object lives in a single documents table as a JSONB payload keyed by
// (class, id); the dynamic per-tenant content tables of the platform
// are classes here, not physical tables, so model lifecycle changes
// never require DDL on this side.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver

	"github.com/sitewright/cloudcode/pkg/acl"
	"github.com/sitewright/cloudcode/pkg/store"
)

// Store is a PostgreSQL-backed document store.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and runs pending migrations.
func New(url string, maxConns int) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle without migrating.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get fetches one object by class and id.
func (s *Store) Get(ctx context.Context, class, id string) (*store.Object, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, class, data, object_acl, created_at, updated_at
		FROM documents
		WHERE class = $1 AND id = $2
	`, class, id)

	obj, err := scanObject(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", class, id, err)
	}
	return obj, nil
}

// First returns the first match or nil when nothing matches.
func (s *Store) First(ctx context.Context, q *store.Query) (*store.Object, error) {
	matches, err := s.Find(ctx, q.WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// Find returns all matches. Equality and containment on scalar string
// fields and pointer fields are pushed down to JSONB conditions; the
// residue is evaluated in process.
func (s *Store) Find(ctx context.Context, q *store.Query) ([]*store.Object, error) {
	query, args, residual := buildSelect(q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Class, err)
	}
	defer rows.Close()

	var matches []*store.Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", q.Class, err)
		}
		if !store.Matches(obj, residual) {
			continue
		}
		matches = append(matches, obj)
		if q.Limit > 0 && len(matches) >= q.Limit {
			break
		}
	}
	return matches, rows.Err()
}

// Count returns the number of matches.
func (s *Store) Count(ctx context.Context, q *store.Query) (int, error) {
	matches, err := s.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// Create persists a new object, assigning its id when empty.
func (s *Store) Create(ctx context.Context, obj *store.Object) error {
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	now := time.Now()
	obj.CreatedAt = now
	obj.UpdatedAt = now

	data, aclJSON, err := encodeObject(obj)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, class, data, object_acl, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, obj.ID, obj.Class, data, aclJSON, obj.CreatedAt, obj.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s/%s: %w", obj.Class, obj.ID, err)
	}
	return nil
}

// Save persists changes to an existing object.
func (s *Store) Save(ctx context.Context, obj *store.Object) error {
	obj.UpdatedAt = time.Now()

	data, aclJSON, err := encodeObject(obj)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET data = $3, object_acl = $4, updated_at = $5
		WHERE class = $1 AND id = $2
	`, obj.Class, obj.ID, data, aclJSON, obj.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", obj.Class, obj.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes an object by class and id.
func (s *Store) Delete(ctx context.Context, class, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE class = $1 AND id = $2`, class, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", class, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// buildSelect renders the class scan with pushable filters and returns
// the filters that must still be evaluated in process.
func buildSelect(q *store.Query) (string, []any, []store.Filter) {
	query := `
		SELECT id, class, data, object_acl, created_at, updated_at
		FROM documents
		WHERE class = $1
	`
	args := []any{q.Class}
	var residual []store.Filter

	for _, f := range q.Filters {
		switch f.Op {
		case store.OpEqual:
			val, ok := f.Value.(string)
			if !ok {
				residual = append(residual, f)
				continue
			}
			n := len(args) + 1
			query += fmt.Sprintf(
				" AND (data->>'%s' = $%d OR data->'%s'->>'id' = $%d)",
				f.Field, n, f.Field, n)
			args = append(args, val)
		default:
			// Negation and containment interact with the pointer
			// shape; cheaper to evaluate on the scanned rows.
			residual = append(residual, f)
		}
	}

	if q.Limit > 0 && len(residual) == 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return query, args, residual
}

func encodeObject(obj *store.Object) ([]byte, []byte, error) {
	data, err := json.Marshal(obj.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode %s/%s: %w", obj.Class, obj.ID, err)
	}
	var aclJSON []byte
	if obj.ObjectACL != nil {
		aclJSON, err = json.Marshal(obj.ObjectACL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode ACL of %s/%s: %w", obj.Class, obj.ID, err)
		}
	}
	return data, aclJSON, nil
}

func scanObject(scanner interface {
	Scan(dest ...any) error
}) (*store.Object, error) {
	var (
		obj     store.Object
		data    []byte
		aclJSON []byte
	)
	err := scanner.Scan(&obj.ID, &obj.Class, &data, &aclJSON, &obj.CreatedAt, &obj.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &obj.Data); err != nil {
		return nil, fmt.Errorf("corrupt document payload: %w", err)
	}
	if len(aclJSON) > 0 {
		var a acl.ACL
		if err := json.Unmarshal(aclJSON, &a); err != nil {
			return nil, fmt.Errorf("corrupt document ACL: %w", err)
		}
		obj.ObjectACL = &a
	}
	return &obj, nil
}
