package web

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"git.sr.ht/~jakintosh/studydesk/internal/catalog"
	"git.sr.ht/~jakintosh/studydesk/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	catalog      *catalog.Manager
	router       chi.Router
	presentation *Presentation

	unsubscribeTasks domain.Unsubscribe
}

func NewServer(manager *catalog.Manager) (*Server, error) {
	pres, err := NewPresentation()
	if err != nil {
		return nil, err
	}
	s := &Server{
		catalog:      manager,
		presentation: pres,
	}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Pages
	r.Get("/", s.handleIndex)
	r.Get("/movies", s.handleMovies)
	r.Get("/studies", s.handleStudies)

	// Forms / HTMX
	r.Post("/subjects", s.handleAddSubject)
	r.Post("/subjects/{name}/delete", s.handleRemoveSubject)
	r.Post("/subjects/{name}/resources", s.handleAddResource)
	r.Post("/subjects/{name}/resources/delete", s.handleRemoveResource)
	r.Post("/tasks", s.handleAddTask)
	r.Post("/tasks/{id}/delete", s.handleRemoveTask)

	// Live task snapshots
	r.Get("/tasks/stream", s.handleTaskStream)

	s.router = r
}

// Start loads the catalog and follows the task collection so full page
// renders include current tasks. A failed load is logged and the server
// still starts with an empty projection.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.catalog.LoadCatalog(ctx); err != nil {
		log.Printf("Failed to load catalog: %v", err)
	}
	unsubscribe, err := s.catalog.SubscribeTasks(ctx, nil)
	if err != nil {
		return err
	}
	s.unsubscribeTasks = unsubscribe
	return nil
}

// Stop releases the task subscription taken by Start.
func (s *Server) Stop() {
	if s.unsubscribeTasks != nil {
		s.unsubscribeTasks()
		s.unsubscribeTasks = nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.presentation.RenderIndex(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleMovies(w http.ResponseWriter, r *http.Request) {
	if err := s.presentation.RenderMovies(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStudies(w http.ResponseWriter, r *http.Request) {
	notice := r.URL.Query().Get("notice")

	// a failed load keeps whatever projection we already have
	if _, err := s.catalog.LoadCatalog(r.Context()); err != nil {
		log.Printf("Failed to load catalog: %v", err)
		if notice == "" {
			notice = catalog.Notice(err)
		}
	}

	if err := s.presentation.RenderStudies(w, s.catalog.State(), notice); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// respondCatalog finishes a subject/resource mutation: HTMX requests get the
// refreshed catalog fragment, everything else is redirected back to the
// studies page with the notice in the query string.
func (s *Server) respondCatalog(w http.ResponseWriter, r *http.Request, opErr error) {
	ctx := parseRequestContext(r)
	notice := catalog.Notice(opErr)
	if opErr != nil {
		log.Printf("%v", opErr)
	}

	if !ctx.IsHTMX {
		redirectStudies(w, r, notice)
		return
	}

	view := CatalogView{
		Notice:   notice,
		Subjects: NewSubjectViews(s.catalog.State().Catalog),
	}
	if err := s.presentation.RenderCatalog(w, view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// respondTasks finishes a task mutation. The fragment comes from a fresh
// read; the projection lags until the subscription delivers.
func (s *Server) respondTasks(w http.ResponseWriter, r *http.Request, opErr error) {
	ctx := parseRequestContext(r)
	notice := catalog.Notice(opErr)
	if opErr != nil {
		log.Printf("%v", opErr)
	}

	if !ctx.IsHTMX {
		redirectStudies(w, r, notice)
		return
	}

	tasks, err := s.catalog.ListTasks(r.Context())
	if err != nil {
		log.Printf("%v", err)
		tasks = s.catalog.State().Tasks
		if notice == "" {
			notice = catalog.Notice(err)
		}
	}
	view := NewTaskListView(tasks, notice)
	if err := s.presentation.RenderTaskList(w, view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func redirectStudies(w http.ResponseWriter, r *http.Request, notice string) {
	target := "/studies"
	if notice != "" {
		target += "?notice=" + url.QueryEscape(notice)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleAddSubject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := s.catalog.AddSubject(r.Context(), r.FormValue("subject"))
	s.respondCatalog(w, r, err)
}

func (s *Server) handleRemoveSubject(w http.ResponseWriter, r *http.Request) {
	name, err := subjectParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.respondCatalog(w, r, s.catalog.RemoveSubject(r.Context(), name))
}

func (s *Server) handleAddResource(w http.ResponseWriter, r *http.Request) {
	name, err := subjectParam(r)
	if err == nil {
		err = r.ParseForm()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = s.catalog.AddResource(r.Context(), name, r.FormValue("title"))
	s.respondCatalog(w, r, err)
}

func (s *Server) handleRemoveResource(w http.ResponseWriter, r *http.Request) {
	name, err := subjectParam(r)
	if err == nil {
		err = r.ParseForm()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = s.catalog.RemoveResource(r.Context(), name, r.FormValue("title"))
	s.respondCatalog(w, r, err)
}

// subjectParam decodes the {name} segment. chi matches on the escaped path
// when it differs from the decoded one, so names containing "/" arrive
// escaped.
func subjectParam(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "name"))
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, err := s.catalog.AddTask(r.Context(), r.FormValue("text"))
	s.respondTasks(w, r, err)
}

func (s *Server) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	err := s.catalog.RemoveTask(r.Context(), chi.URLParam(r, "id"))
	s.respondTasks(w, r, err)
}

// handleTaskStream pushes a rendered task list as a server-sent event for
// every task snapshot. The subscription lives exactly as long as the
// request.
func (s *Server) handleTaskStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// holds only the newest snapshot; older ones are superseded
	latest := make(chan []domain.Task, 1)
	unsubscribe, err := s.catalog.SubscribeTasks(r.Context(), func(tasks []domain.Task) {
		select {
		case <-latest:
		default:
		}
		latest <- tasks
	})
	if err != nil {
		http.Error(w, catalog.Notice(err), http.StatusServiceUnavailable)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var buf bytes.Buffer
	for {
		select {
		case <-r.Context().Done():
			return
		case tasks := <-latest:
			buf.Reset()
			if err := s.presentation.RenderTaskList(&buf, NewTaskListView(tasks, "")); err != nil {
				log.Printf("render task stream: %v", err)
				return
			}
			if err := writeEvent(w, "tasks", buf.String()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event, data string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := w.Write([]byte(b.String()))
	return err
}
