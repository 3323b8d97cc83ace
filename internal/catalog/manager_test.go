package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~jakintosh/studydesk/internal/domain"
	"git.sr.ht/~jakintosh/studydesk/internal/store"
)

func newMemoryManager(t *testing.T) (*Manager, *store.InMemoryStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	t.Cleanup(func() { s.Close() })
	return NewManager(s), s
}

func newSQLiteManager(t *testing.T) (*Manager, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "studydesk.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewManager(s), s
}

// managers runs fn against every local backend.
func managers(t *testing.T, fn func(t *testing.T, m *Manager, s domain.DocumentStore)) {
	t.Run("memory", func(t *testing.T) {
		m, s := newMemoryManager(t)
		fn(t, m, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		m, s := newSQLiteManager(t)
		fn(t, m, s)
	})
}

func count(t *testing.T, s domain.DocumentStore, collection string, preds ...domain.Predicate) int {
	t.Helper()
	docs, err := s.FetchWhere(context.Background(), collection, preds...)
	require.NoError(t, err)
	return len(docs)
}

func TestAddSubject_ThenLoadCatalog(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()

		require.NoError(t, m.AddSubject(ctx, "Math"))

		// optimistic projection
		state := m.State()
		assert.Equal(t, []string{"Math"}, state.Subjects)
		assert.Equal(t, []string{}, state.Resources["Math"])

		// fresh manager over the same store sees it too
		c, err := NewManager(s).LoadCatalog(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Math"}, c.Subjects)
		assert.Empty(t, c.Resources["Math"])
		assert.Contains(t, c.Resources, "Math")
	})
}

func TestAddSubject_Duplicate(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()

		require.NoError(t, m.AddSubject(ctx, "Math"))
		err := m.AddSubject(ctx, "Math")
		assert.ErrorIs(t, err, domain.ErrDuplicate)
		assert.Equal(t, "Subject already exists!", Notice(err))

		assert.Equal(t, 1, count(t, s, domain.CollectionSubjects, domain.Eq(domain.FieldSubjectName, "Math")))
		assert.Equal(t, []string{"Math"}, m.State().Subjects)
	})
}

func TestAddSubject_TrimsAndRejectsEmpty(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()

		err := m.AddSubject(ctx, "   ")
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, 0, count(t, s, domain.CollectionSubjects))

		require.NoError(t, m.AddSubject(ctx, "  Math "))
		err = m.AddSubject(ctx, "Math")
		assert.ErrorIs(t, err, domain.ErrDuplicate)
	})
}

func TestAddResource_UnknownSubject(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		err := m.AddResource(context.Background(), "Chemistry", "Khan Academy")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, "Subject not found", Notice(err))
		assert.Equal(t, 0, count(t, s, domain.CollectionResources))
	})
}

func TestAddResource_TitleUniquePerSubject(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()
		require.NoError(t, m.AddSubject(ctx, "Math"))
		require.NoError(t, m.AddSubject(ctx, "Physics"))

		require.NoError(t, m.AddResource(ctx, "Math", "Khan Academy"))
		require.NoError(t, m.AddResource(ctx, "Physics", "Khan Academy"))

		err := m.AddResource(ctx, "Math", "Khan Academy")
		assert.ErrorIs(t, err, domain.ErrDuplicate)
		assert.Equal(t, "Resource already exists for this subject!", Notice(err))

		assert.Equal(t, 2, count(t, s, domain.CollectionResources))

		state := m.State()
		assert.Equal(t, []string{"Khan Academy"}, state.Resources["Math"])
		assert.Equal(t, []string{"Khan Academy"}, state.Resources["Physics"])
	})
}

func TestAddResource_EmptyTitle(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()
		require.NoError(t, m.AddSubject(ctx, "Math"))

		err := m.AddResource(ctx, "Math", "")
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, 0, count(t, s, domain.CollectionResources))
	})
}

func TestLoadCatalog_GroupsResourcesInStoreOrder(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()
		require.NoError(t, m.AddSubject(ctx, "Math"))
		require.NoError(t, m.AddSubject(ctx, "Physics"))
		require.NoError(t, m.AddResource(ctx, "Math", "Khan Academy"))
		require.NoError(t, m.AddResource(ctx, "Physics", "Feynman Lectures"))
		require.NoError(t, m.AddResource(ctx, "Math", "3Blue1Brown"))

		// a resource whose subject is gone is not shown
		_, err := s.Insert(ctx, domain.CollectionResources, domain.Resource{SubjectID: "missing", Title: "Orphan"}.Fields())
		require.NoError(t, err)

		fresh := NewManager(s)
		c, err := fresh.LoadCatalog(ctx)
		require.NoError(t, err)

		assert.Equal(t, []string{"Math", "Physics"}, c.Subjects)
		assert.Equal(t, []string{"Khan Academy", "3Blue1Brown"}, c.Resources["Math"])
		assert.Equal(t, []string{"Feynman Lectures"}, c.Resources["Physics"])
		assert.Len(t, c.Resources, 2)

		state := fresh.State()
		assert.True(t, state.Loaded)
		assert.Equal(t, c, state.Catalog)
	})
}

func TestLoadCatalog_FailureKeepsProjection(t *testing.T) {
	m, s := newMemoryManager(t)
	ctx := context.Background()
	require.NoError(t, m.AddSubject(ctx, "Math"))
	_, err := m.LoadCatalog(ctx)
	require.NoError(t, err)

	// written behind the manager's back
	_, err = s.Insert(ctx, domain.CollectionSubjects, domain.Subject{Name: "Physics"}.Fields())
	require.NoError(t, err)

	s.FailNext("fetch", errors.New("network down"))
	_, err = m.LoadCatalog(ctx)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Contains(t, Notice(err), "database")

	assert.Equal(t, []string{"Math"}, m.State().Subjects)
}

func TestRemoveSubject_CascadesResources(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()
		require.NoError(t, m.AddSubject(ctx, "Math"))
		require.NoError(t, m.AddSubject(ctx, "Physics"))
		require.NoError(t, m.AddResource(ctx, "Math", "Khan Academy"))
		require.NoError(t, m.AddResource(ctx, "Math", "3Blue1Brown"))
		require.NoError(t, m.AddResource(ctx, "Physics", "Khan Academy"))

		docs, err := s.FetchWhere(ctx, domain.CollectionSubjects, domain.Eq(domain.FieldSubjectName, "Math"))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		mathID := docs[0].ID

		require.NoError(t, m.RemoveSubject(ctx, "Math"))

		assert.Equal(t, 0, count(t, s, domain.CollectionResources, domain.Eq(domain.FieldResourceParent, mathID)))
		assert.Equal(t, 0, count(t, s, domain.CollectionSubjects, domain.Eq(domain.FieldSubjectName, "Math")))
		// other subjects keep their resources
		assert.Equal(t, 1, count(t, s, domain.CollectionResources))

		state := m.State()
		assert.Equal(t, []string{"Physics"}, state.Subjects)
		assert.NotContains(t, state.Resources, "Math")
	})
}

func TestRemoveSubject_NotFound(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		err := m.RemoveSubject(context.Background(), "Math")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRemoveSubject_PartialCascadeKeepsSubject(t *testing.T) {
	m, s := newMemoryManager(t)
	ctx := context.Background()
	require.NoError(t, m.AddSubject(ctx, "Math"))
	require.NoError(t, m.AddResource(ctx, "Math", "Khan Academy"))
	require.NoError(t, m.AddResource(ctx, "Math", "3Blue1Brown"))

	s.FailNext("delete", errors.New("permission denied"))
	err := m.RemoveSubject(ctx, "Math")
	assert.ErrorIs(t, err, domain.ErrStore)

	// subject still there, so the remaining resource is not orphaned
	assert.Equal(t, 1, count(t, s, domain.CollectionSubjects))
	assert.Equal(t, 1, count(t, s, domain.CollectionResources))
	assert.Equal(t, []string{"Math"}, m.State().Subjects)

	// retry completes the cascade
	require.NoError(t, m.RemoveSubject(ctx, "Math"))
	assert.Equal(t, 0, count(t, s, domain.CollectionSubjects))
	assert.Equal(t, 0, count(t, s, domain.CollectionResources))
}

func TestRemoveSubject_RemovesEveryCopyOfTheName(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()

		// two writers both passed the uniqueness check
		first, err := s.Insert(ctx, domain.CollectionSubjects, domain.Subject{Name: "Math"}.Fields())
		require.NoError(t, err)
		second, err := s.Insert(ctx, domain.CollectionSubjects, domain.Subject{Name: "Math"}.Fields())
		require.NoError(t, err)
		_, err = s.Insert(ctx, domain.CollectionResources, domain.Resource{SubjectID: first, Title: "Khan Academy"}.Fields())
		require.NoError(t, err)
		_, err = s.Insert(ctx, domain.CollectionResources, domain.Resource{SubjectID: second, Title: "3Blue1Brown"}.Fields())
		require.NoError(t, err)

		c, err := m.LoadCatalog(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Math"}, c.Subjects)

		require.NoError(t, m.RemoveSubject(ctx, "Math"))
		assert.Equal(t, 0, count(t, s, domain.CollectionSubjects))
		assert.Equal(t, 0, count(t, s, domain.CollectionResources))

		// projection agrees with a fresh load
		c, err = NewManager(s).LoadCatalog(ctx)
		require.NoError(t, err)
		assert.Empty(t, c.Subjects)
		assert.Empty(t, m.State().Subjects)
		assert.NotContains(t, m.State().Resources, "Math")
	})
}

func TestRemoveResource(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()
		require.NoError(t, m.AddSubject(ctx, "Math"))
		require.NoError(t, m.AddSubject(ctx, "Physics"))
		require.NoError(t, m.AddResource(ctx, "Math", "Khan Academy"))
		require.NoError(t, m.AddResource(ctx, "Math", "3Blue1Brown"))
		require.NoError(t, m.AddResource(ctx, "Physics", "Khan Academy"))

		require.NoError(t, m.RemoveResource(ctx, "Math", "Khan Academy"))

		assert.Equal(t, 2, count(t, s, domain.CollectionResources))
		state := m.State()
		assert.Equal(t, []string{"3Blue1Brown"}, state.Resources["Math"])
		assert.Equal(t, []string{"Khan Academy"}, state.Resources["Physics"])
	})
}

func TestRemoveResource_NotFound(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()

		err := m.RemoveResource(ctx, "Math", "Khan Academy")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, "Subject not found", Notice(err))

		require.NoError(t, m.AddSubject(ctx, "Math"))
		err = m.RemoveResource(ctx, "Math", "Khan Academy")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, "Resource not found", Notice(err))
	})
}

func TestAddTask_Duplicate(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()

		task, err := m.AddTask(ctx, "Buy milk")
		require.NoError(t, err)
		assert.NotEmpty(t, task.ID)
		assert.False(t, task.CreatedAt.IsZero())

		_, err = m.AddTask(ctx, "Buy milk")
		assert.ErrorIs(t, err, domain.ErrDuplicate)
		assert.Equal(t, "Task already exists!", Notice(err))

		assert.Equal(t, 1, count(t, s, domain.CollectionTasks, domain.Eq(domain.FieldTaskText, "Buy milk")))
	})
}

func TestAddTask_Empty(t *testing.T) {
	m, s := newMemoryManager(t)
	_, err := m.AddTask(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Task cannot be empty!", Notice(err))
	assert.Equal(t, 0, count(t, s, domain.CollectionTasks))
}

func TestRemoveTask(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()

		task, err := m.AddTask(ctx, "Buy milk")
		require.NoError(t, err)
		require.NoError(t, m.RemoveTask(ctx, task.ID))
		assert.Equal(t, 0, count(t, s, domain.CollectionTasks))

		err = m.RemoveTask(ctx, task.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, "Task not found", Notice(err))

		err = m.RemoveTask(ctx, "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestListTasks_SeesWriteImmediately(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()

		task, err := m.AddTask(ctx, "Buy milk")
		require.NoError(t, err)

		tasks, err := m.ListTasks(ctx)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, task.ID, tasks[0].ID)
		assert.Equal(t, "Buy milk", tasks[0].Text)
		// the projection is left to the subscription
		assert.Empty(t, m.State().Tasks)
	})
}

func TestListTasks_StoreFailure(t *testing.T) {
	m, s := newMemoryManager(t)
	s.FailNext("fetch", errors.New("unavailable"))

	_, err := m.ListTasks(context.Background())
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestAddSubject_StoreFailure(t *testing.T) {
	m, s := newMemoryManager(t)
	s.FailNext("insert", errors.New("quota exceeded"))

	err := m.AddSubject(context.Background(), "Math")
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Empty(t, m.State().Subjects)
}

func TestAddSubject_ConcurrentSameName(t *testing.T) {
	m, s := newMemoryManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.AddSubject(ctx, "Math")
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, domain.ErrDuplicate)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, count(t, s, domain.CollectionSubjects))
}

type taskRecorder struct {
	mu     sync.Mutex
	calls  int
	latest []domain.Task
}

func (r *taskRecorder) fn(tasks []domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.latest = tasks
}

func (r *taskRecorder) get() (int, []domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.latest
}

func TestSubscribeTasks(t *testing.T) {
	managers(t, func(t *testing.T, m *Manager, s domain.DocumentStore) {
		ctx := context.Background()

		var rec taskRecorder
		unsubscribe, err := m.SubscribeTasks(ctx, rec.fn)
		require.NoError(t, err)

		// inserted directly in the store, not through the manager
		id, err := s.Insert(ctx, domain.CollectionTasks, domain.Task{Text: "Buy milk", CreatedAt: time.Now()}.Fields())
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, tasks := rec.get()
			return len(tasks) == 1 && tasks[0].ID == id
		}, 5*time.Second, 10*time.Millisecond)

		_, tasks := rec.get()
		assert.Equal(t, "Buy milk", tasks[0].Text)
		assert.Equal(t, tasks, m.State().Tasks)

		unsubscribe()
		calls, _ := rec.get()

		_, err = m.AddTask(ctx, "Walk dog")
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)

		after, _ := rec.get()
		assert.Equal(t, calls, after)
	})
}

func TestSubscribeTasks_ReplacesWholesale(t *testing.T) {
	m, _ := newMemoryManager(t)
	ctx := context.Background()

	unsubscribe, err := m.SubscribeTasks(ctx, nil)
	require.NoError(t, err)
	defer unsubscribe()

	first, err := m.AddTask(ctx, "Buy milk")
	require.NoError(t, err)
	_, err = m.AddTask(ctx, "Walk dog")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(m.State().Tasks) == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.RemoveTask(ctx, first.ID))
	require.Eventually(t, func() bool {
		tasks := m.State().Tasks
		return len(tasks) == 1 && tasks[0].Text == "Walk dog"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatch(t *testing.T) {
	m, _ := newMemoryManager(t)
	ctx := context.Background()

	var seen []State
	cancel := m.Watch(func(s State) { seen = append(seen, s) })

	require.NoError(t, m.AddSubject(ctx, "Math"))
	require.NoError(t, m.AddResource(ctx, "Math", "Khan Academy"))
	require.Len(t, seen, 2)
	assert.Equal(t, []string{"Math"}, seen[0].Subjects)
	assert.Empty(t, seen[0].Resources["Math"])
	assert.Equal(t, []string{"Khan Academy"}, seen[1].Resources["Math"])

	// watchers get copies
	seen[1].Resources["Math"][0] = "changed"
	assert.Equal(t, []string{"Khan Academy"}, m.State().Resources["Math"])

	cancel()
	require.NoError(t, m.AddSubject(ctx, "Physics"))
	assert.Len(t, seen, 2)
}
