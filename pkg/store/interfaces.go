package store

import (
	"context"
	"errors"
	"time"

	"github.com/sitewright/cloudcode/pkg/acl"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Pointer is a typed reference to another object.
type Pointer struct {
	Class string `json:"class"`
	ID    string `json:"id"`
}

// Object is a schemaless document with an identity, a class, dynamic
// fields and an optional access descriptor.
type Object struct {
	ID        string
	Class     string
	Data      map[string]any
	ObjectACL *acl.ACL
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewObject creates an empty object of a class.
func NewObject(class string) *Object {
	return &Object{Class: class, Data: make(map[string]any)}
}

// ACL returns the object's access descriptor; nil means open.
func (o *Object) ACL() *acl.ACL { return o.ObjectACL }

// SetACL replaces the object's access descriptor.
func (o *Object) SetACL(a *acl.ACL) { o.ObjectACL = a }

// Get returns a raw field value.
func (o *Object) Get(field string) any {
	if o.Data == nil {
		return nil
	}
	return o.Data[field]
}

// Set stores a field value.
func (o *Object) Set(field string, value any) {
	if o.Data == nil {
		o.Data = make(map[string]any)
	}
	o.Data[field] = value
}

// Unset removes a field.
func (o *Object) Unset(field string) {
	delete(o.Data, field)
}

// String returns a string field, or "" when absent or mistyped.
func (o *Object) String(field string) string {
	s, _ := o.Get(field).(string)
	return s
}

// Pointer returns a pointer field, or nil when absent or mistyped.
// Pointers survive JSON round trips as maps, so both shapes are
// accepted.
func (o *Object) Pointer(field string) *Pointer {
	switch v := o.Get(field).(type) {
	case Pointer:
		return &v
	case *Pointer:
		return v
	case map[string]any:
		class, _ := v["class"].(string)
		id, _ := v["id"].(string)
		if id == "" {
			return nil
		}
		return &Pointer{Class: class, ID: id}
	default:
		return nil
	}
}

// Clone returns a deep-enough copy: the field map and ACL are copied,
// values are shared.
func (o *Object) Clone() *Object {
	c := *o
	c.Data = make(map[string]any, len(o.Data))
	for k, v := range o.Data {
		c.Data[k] = v
	}
	c.ObjectACL = o.ObjectACL.Clone()
	return &c
}

// Op is a query filter operator.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpContainedIn
)

// Filter constrains one field of a query. For pointer fields the value
// is the referenced object id (or a slice of ids for OpContainedIn).
type Filter struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// Query describes a class scan with conjunctive filters.
type Query struct {
	Class   string
	Filters []Filter
	Limit   int
}

// NewQuery creates a query over a class.
func NewQuery(class string) *Query {
	return &Query{Class: class}
}

// EqualTo adds an equality filter.
func (q *Query) EqualTo(field string, value any) *Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: OpEqual, Value: value})
	return q
}

// NotEqualTo adds a negated equality filter.
func (q *Query) NotEqualTo(field string, value any) *Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: OpNotEqual, Value: value})
	return q
}

// ContainedIn adds a membership filter.
func (q *Query) ContainedIn(field string, values []any) *Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: OpContainedIn, Values: values})
	return q
}

// WithLimit caps the number of returned objects.
func (q *Query) WithLimit(limit int) *Query {
	q.Limit = limit
	return q
}

// Store is the document-store surface consumed by the engines.
type Store interface {
	// Get fetches one object by class and id.
	Get(ctx context.Context, class, id string) (*Object, error)

	// First returns the first match or nil when nothing matches.
	First(ctx context.Context, q *Query) (*Object, error)

	// Find returns all matches.
	Find(ctx context.Context, q *Query) ([]*Object, error)

	// Count returns the number of matches.
	Count(ctx context.Context, q *Query) (int, error)

	// Create persists a new object, assigning its id.
	Create(ctx context.Context, obj *Object) error

	// Save persists changes to an existing object.
	Save(ctx context.Context, obj *Object) error

	// Delete removes an object by class and id.
	Delete(ctx context.Context, class, id string) error
}
