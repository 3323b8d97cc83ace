// Package catalog keeps subjects, their resources and the task list
// consistent against a remote document store and holds the in-memory
// projection that views render from.
//
// Uniqueness checks are read-then-write round trips against the store, never
// against the projection, since the projection may be stale. Mutations made
// through one Manager are serialised, but writers in other processes can
// still pass the same check concurrently.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~jakintosh/studydesk/internal/domain"
)

// Operation names carried by OpError.
const (
	OpLoadCatalog    = "load-catalog"
	OpAddSubject     = "add-subject"
	OpAddResource    = "add-resource"
	OpRemoveSubject  = "remove-subject"
	OpRemoveResource = "remove-resource"
	OpAddTask        = "add-task"
	OpRemoveTask     = "remove-task"
	OpListTasks      = "list-tasks"
	OpSubscribeTasks = "subscribe-tasks"
)

type Manager struct {
	store domain.DocumentStore
	now   func() time.Time

	writeMu sync.Mutex

	mu       sync.RWMutex
	state    State
	watchers map[int]func(State)
	nextID   int
}

func NewManager(store domain.DocumentStore) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
		state: State{
			Catalog: Catalog{Subjects: []string{}, Resources: map[string][]string{}},
			Tasks:   []domain.Task{},
		},
		watchers: make(map[int]func(State)),
	}
}

// State returns a copy of the current projection.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Watch registers fn to be called with a fresh copy of the projection after
// every change. fn runs on the goroutine that made the change and must not
// call the Manager's mutating methods. The returned func removes the
// watcher.
func (m *Manager) Watch(fn func(State)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// update applies fn to the projection and notifies watchers outside the
// lock.
func (m *Manager) update(fn func(s *State)) {
	m.mu.Lock()
	fn(&m.state)
	snapshot := m.state.clone()
	watchers := make([]func(State), 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.Unlock()

	for _, w := range watchers {
		w(snapshot.clone())
	}
}

func opError(op, target string, err error) error {
	return &OpError{Op: op, Target: target, Err: err}
}

// storeError marks err as a store failure unless it already carries one of
// the domain kinds.
func storeError(op, target string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return opError(op, target, err)
	}
	return opError(op, target, fmt.Errorf("%w: %w", domain.ErrStore, err))
}

// LoadCatalog reads every subject and resource and rebuilds the projection.
// On failure the previous projection is kept.
func (m *Manager) LoadCatalog(ctx context.Context) (Catalog, error) {
	subjectDocs, err := m.store.FetchAll(ctx, domain.CollectionSubjects)
	if err != nil {
		return Catalog{}, storeError(OpLoadCatalog, domain.CollectionSubjects, err)
	}
	resourceDocs, err := m.store.FetchAll(ctx, domain.CollectionResources)
	if err != nil {
		return Catalog{}, storeError(OpLoadCatalog, domain.CollectionResources, err)
	}

	subjects := make([]domain.Subject, len(subjectDocs))
	for i, d := range subjectDocs {
		subjects[i] = domain.SubjectFromDocument(d)
	}
	resources := make([]domain.Resource, len(resourceDocs))
	for i, d := range resourceDocs {
		resources[i] = domain.ResourceFromDocument(d)
	}

	c := buildCatalog(subjects, resources)
	m.update(func(s *State) {
		s.Catalog = c.clone()
		s.Loaded = true
	})
	return c, nil
}

func (m *Manager) findSubject(ctx context.Context, op, name string) (domain.Subject, error) {
	docs, err := m.store.FetchWhere(ctx, domain.CollectionSubjects, domain.Eq(domain.FieldSubjectName, name))
	if err != nil {
		return domain.Subject{}, storeError(op, name, err)
	}
	if len(docs) == 0 {
		return domain.Subject{}, opError(op, name, fmt.Errorf("%q: %w", name, ErrSubjectNotFound))
	}
	return domain.SubjectFromDocument(docs[0]), nil
}

func (m *Manager) findResources(ctx context.Context, op string, subject domain.Subject, title string) ([]domain.Resource, error) {
	docs, err := m.store.FetchWhere(ctx, domain.CollectionResources,
		domain.Eq(domain.FieldResourceParent, subject.ID),
		domain.Eq(domain.FieldResourceTitle, title),
	)
	if err != nil {
		return nil, storeError(op, subject.Name+"/"+title, err)
	}
	resources := make([]domain.Resource, len(docs))
	for i, d := range docs {
		resources[i] = domain.ResourceFromDocument(d)
	}
	return resources, nil
}

// AddSubject creates a subject with an empty resource list.
func (m *Manager) AddSubject(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return opError(OpAddSubject, "", fmt.Errorf("subject name: %w", domain.ErrValidation))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	existing, err := m.store.FetchWhere(ctx, domain.CollectionSubjects, domain.Eq(domain.FieldSubjectName, name))
	if err != nil {
		return storeError(OpAddSubject, name, err)
	}
	if len(existing) > 0 {
		return opError(OpAddSubject, name, fmt.Errorf("subject %q: %w", name, domain.ErrDuplicate))
	}

	if _, err := m.store.Insert(ctx, domain.CollectionSubjects, domain.Subject{Name: name}.Fields()); err != nil {
		return storeError(OpAddSubject, name, err)
	}

	m.update(func(s *State) {
		if _, ok := s.Resources[name]; ok {
			return
		}
		s.Subjects = append(s.Subjects, name)
		s.Resources[name] = []string{}
	})
	return nil
}

// AddResource attaches a resource titled title to the named subject.
func (m *Manager) AddResource(ctx context.Context, subjectName, title string) error {
	subjectName = strings.TrimSpace(subjectName)
	title = strings.TrimSpace(title)
	if title == "" {
		return opError(OpAddResource, subjectName, fmt.Errorf("resource title: %w", domain.ErrValidation))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	subject, err := m.findSubject(ctx, OpAddResource, subjectName)
	if err != nil {
		return err
	}

	existing, err := m.findResources(ctx, OpAddResource, subject, title)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return opError(OpAddResource, subjectName+"/"+title,
			fmt.Errorf("resource %q under %q: %w", title, subjectName, domain.ErrDuplicate))
	}

	if _, err := m.store.Insert(ctx, domain.CollectionResources,
		domain.Resource{SubjectID: subject.ID, Title: title}.Fields(),
	); err != nil {
		return storeError(OpAddResource, subjectName+"/"+title, err)
	}

	m.update(func(s *State) {
		if _, ok := s.Resources[subjectName]; !ok {
			// subject was created elsewhere after our last load
			s.Subjects = append(s.Subjects, subjectName)
		}
		s.Resources[subjectName] = append(s.Resources[subjectName], title)
	})
	return nil
}

// RemoveSubject deletes every resource of the subject and then the subject
// itself. If any resource delete fails the subject is kept, so no resource
// is left pointing at a missing subject; calling again finishes the job.
// Every subject document carrying the name is removed, including copies left
// by writers racing in other processes.
func (m *Manager) RemoveSubject(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	docs, err := m.store.FetchWhere(ctx, domain.CollectionSubjects, domain.Eq(domain.FieldSubjectName, name))
	if err != nil {
		return storeError(OpRemoveSubject, name, err)
	}
	if len(docs) == 0 {
		return opError(OpRemoveSubject, name, fmt.Errorf("%q: %w", name, ErrSubjectNotFound))
	}

	for _, d := range docs {
		if err := m.cascadeSubject(ctx, name, domain.SubjectFromDocument(d)); err != nil {
			return err
		}
	}

	m.update(func(s *State) {
		s.Subjects = slices.DeleteFunc(s.Subjects, func(n string) bool { return n == name })
		delete(s.Resources, name)
	})
	return nil
}

func (m *Manager) cascadeSubject(ctx context.Context, name string, subject domain.Subject) error {
	docs, err := m.store.FetchWhere(ctx, domain.CollectionResources, domain.Eq(domain.FieldResourceParent, subject.ID))
	if err != nil {
		return storeError(OpRemoveSubject, name, err)
	}

	var errs []error
	for _, d := range docs {
		err := m.store.DeleteByID(ctx, domain.CollectionResources, d.ID)
		// already gone counts as deleted
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("resource %s: %w", d.ID, err))
		}
	}
	if len(errs) > 0 {
		log.Printf("remove subject %q: %d of %d resource deletes failed", name, len(errs), len(docs))
		return opError(OpRemoveSubject, name, fmt.Errorf("%w: %w", domain.ErrStore, errors.Join(errs...)))
	}

	err = m.store.DeleteByID(ctx, domain.CollectionSubjects, subject.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return storeError(OpRemoveSubject, name, err)
	}
	return nil
}

// RemoveResource deletes the resource titled title from the named subject.
func (m *Manager) RemoveResource(ctx context.Context, subjectName, title string) error {
	subjectName = strings.TrimSpace(subjectName)
	title = strings.TrimSpace(title)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	subject, err := m.findSubject(ctx, OpRemoveResource, subjectName)
	if err != nil {
		return err
	}

	matches, err := m.findResources(ctx, OpRemoveResource, subject, title)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return opError(OpRemoveResource, subjectName+"/"+title,
			fmt.Errorf("resource %q under %q: %w", title, subjectName, domain.ErrNotFound))
	}

	if err := m.store.DeleteByID(ctx, domain.CollectionResources, matches[0].ID); err != nil {
		return storeError(OpRemoveResource, subjectName+"/"+title, err)
	}

	m.update(func(s *State) {
		titles, ok := s.Resources[subjectName]
		if !ok {
			return
		}
		s.Resources[subjectName] = slices.DeleteFunc(titles, func(t string) bool { return t == title })
	})
	return nil
}

// AddTask creates a task unless one with the same text exists. The task
// list itself is only refreshed by the live subscription.
func (m *Manager) AddTask(ctx context.Context, text string) (domain.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Task{}, opError(OpAddTask, "", fmt.Errorf("task text: %w", domain.ErrValidation))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	existing, err := m.store.FetchWhere(ctx, domain.CollectionTasks, domain.Eq(domain.FieldTaskText, text))
	if err != nil {
		return domain.Task{}, storeError(OpAddTask, text, err)
	}
	if len(existing) > 0 {
		return domain.Task{}, opError(OpAddTask, text, fmt.Errorf("task %q: %w", text, domain.ErrDuplicate))
	}

	task := domain.Task{Text: text, CreatedAt: m.now().UTC()}
	id, err := m.store.Insert(ctx, domain.CollectionTasks, task.Fields())
	if err != nil {
		return domain.Task{}, storeError(OpAddTask, text, err)
	}
	task.ID = id
	return task, nil
}

// RemoveTask deletes the task with the given store identifier.
func (m *Manager) RemoveTask(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return opError(OpRemoveTask, "", fmt.Errorf("task id: %w", domain.ErrValidation))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.DeleteByID(ctx, domain.CollectionTasks, id); err != nil {
		return storeError(OpRemoveTask, id, err)
	}
	return nil
}

// ListTasks reads the task collection once, in store order. Unlike the
// subscription it leaves the projection alone, so a response rendered right
// after a write can include that write.
func (m *Manager) ListTasks(ctx context.Context) ([]domain.Task, error) {
	docs, err := m.store.FetchAll(ctx, domain.CollectionTasks)
	if err != nil {
		return nil, storeError(OpListTasks, domain.CollectionTasks, err)
	}
	tasks := make([]domain.Task, len(docs))
	for i, d := range docs {
		tasks[i] = domain.TaskFromDocument(d)
	}
	return tasks, nil
}

// SubscribeTasks follows the task collection. Every snapshot replaces the
// task projection wholesale and is then passed to fn, which may be nil.
// Call the returned func exactly once when the consuming view goes away.
func (m *Manager) SubscribeTasks(ctx context.Context, fn func([]domain.Task)) (domain.Unsubscribe, error) {
	unsubscribe, err := m.store.Subscribe(ctx, domain.CollectionTasks, func(docs []domain.Document) {
		tasks := make([]domain.Task, len(docs))
		for i, d := range docs {
			tasks[i] = domain.TaskFromDocument(d)
		}
		m.update(func(s *State) {
			s.Tasks = tasks
		})
		if fn != nil {
			fn(slices.Clone(tasks))
		}
	})
	if err != nil {
		return nil, storeError(OpSubscribeTasks, domain.CollectionTasks, err)
	}
	return unsubscribe, nil
}
