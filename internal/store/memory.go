package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"git.sr.ht/~jakintosh/studydesk/internal/domain"
	"github.com/google/uuid"
)

var _ domain.DocumentStore = (*InMemoryStore)(nil)

// now stamps seeded tasks.
var now = time.Now

type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]domain.Document
	hub         *hub

	// failNext makes the next matching call return an error; tests use it
	// to exercise store failure paths.
	failNext map[string]error
}

func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{
		collections: make(map[string][]domain.Document),
		failNext:    make(map[string]error),
	}
	s.hub = newHub(s.FetchAll)
	return s
}

// FailNext arranges for the next call of op ("fetch", "insert", "delete")
// to return err.
func (s *InMemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[op] = err
}

func (s *InMemoryStore) takeFailure(op string) error {
	err, ok := s.failNext[op]
	if ok {
		delete(s.failNext, op)
	}
	return err
}

func (s *InMemoryStore) FetchAll(ctx context.Context, collection string) ([]domain.Document, error) {
	return s.FetchWhere(ctx, collection)
}

func (s *InMemoryStore) FetchWhere(ctx context.Context, collection string, preds ...domain.Predicate) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, p := range preds {
		if err := domain.ValidateField(p.Field); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("fetch"); err != nil {
		return nil, err
	}

	docs := []domain.Document{}
	for _, d := range s.collections[collection] {
		if domain.Matches(d.Fields, preds) {
			docs = append(docs, domain.Document{ID: d.ID, Fields: d.Fields.Clone()})
		}
	}
	return docs, nil
}

func (s *InMemoryStore) Insert(ctx context.Context, collection string, fields domain.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	if err := s.takeFailure("insert"); err != nil {
		s.mu.Unlock()
		return "", err
	}
	id := uuid.NewString()
	s.collections[collection] = append(s.collections[collection], domain.Document{
		ID:     id,
		Fields: fields.Clone(),
	})
	s.mu.Unlock()

	s.hub.notify(collection)
	return id, nil
}

func (s *InMemoryStore) DeleteByID(ctx context.Context, collection string, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.takeFailure("delete"); err != nil {
		s.mu.Unlock()
		return err
	}
	docs := s.collections[collection]
	for i, d := range docs {
		if d.ID == id {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			s.mu.Unlock()
			s.hub.notify(collection)
			return nil
		}
	}
	s.mu.Unlock()
	return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
}

func (s *InMemoryStore) Subscribe(ctx context.Context, collection string, fn domain.SnapshotFunc) (domain.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, collection, fn), nil
}

func (s *InMemoryStore) Close() error {
	s.hub.close()
	return nil
}

// Seed fills the store with a couple of subjects, resources and tasks for
// dev mode.
func (s *InMemoryStore) Seed(ctx context.Context) error {
	math, err := s.Insert(ctx, domain.CollectionSubjects, domain.Subject{Name: "Math"}.Fields())
	if err != nil {
		return err
	}
	if _, err := s.Insert(ctx, domain.CollectionSubjects, domain.Subject{Name: "Physics"}.Fields()); err != nil {
		return err
	}
	if _, err := s.Insert(ctx, domain.CollectionResources, domain.Resource{SubjectID: math, Title: "Khan Academy"}.Fields()); err != nil {
		return err
	}
	if _, err := s.Insert(ctx, domain.CollectionTasks, domain.Task{Text: "Review notes", CreatedAt: now()}.Fields()); err != nil {
		return err
	}
	return nil
}
