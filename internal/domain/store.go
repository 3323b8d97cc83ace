package domain

import (
	"context"
	"fmt"
	"maps"
)

// Fields holds the attributes of a document. Every value the application
// stores is a string, so equality predicates compare the same way on every
// backend.
type Fields map[string]string

func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

type Document struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// Predicate is a field equality test used by FetchWhere.
type Predicate struct {
	Field string
	Value string
}

func Eq(field, value string) Predicate {
	return Predicate{Field: field, Value: value}
}

// Matches reports whether every predicate holds for fields.
func Matches(fields Fields, preds []Predicate) bool {
	for _, p := range preds {
		v, ok := fields[p.Field]
		if !ok || v != p.Value {
			return false
		}
	}
	return true
}

// ValidateField rejects field names that cannot be addressed safely as a
// JSON path by the SQL backends.
func ValidateField(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty field name", ErrValidation)
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("%w: invalid field name %q", ErrValidation, name)
		}
	}
	return nil
}

// SnapshotFunc receives the full current contents of a collection.
type SnapshotFunc func(docs []Document)

// Unsubscribe releases a live subscription. It is safe to call more than
// once; after the first call returns no further snapshots are delivered.
// It must not be called from inside the SnapshotFunc itself; cancel the
// subscription context instead.
type Unsubscribe func()

// DocumentStore is the remote document store contract.
type DocumentStore interface {
	FetchAll(ctx context.Context, collection string) ([]Document, error)
	FetchWhere(ctx context.Context, collection string, preds ...Predicate) ([]Document, error)
	Insert(ctx context.Context, collection string, fields Fields) (string, error)
	DeleteByID(ctx context.Context, collection string, id string) error
	Subscribe(ctx context.Context, collection string, fn SnapshotFunc) (Unsubscribe, error)
	Close() error
}
