package web

import (
	"io"

	"git.sr.ht/~jakintosh/studydesk/internal/domain"
)

// TaskView is the view model for Task
type TaskView struct {
	ID           string
	Text         string
	CreatedAt    string // Formatted timestamp
	DeleteButton DeleteButtonView
}

// TaskListView is the sidebar fragment, also pushed over the task stream
type TaskListView struct {
	Notice string
	Tasks  []TaskView
	Total  int
}

// NewTaskView creates a TaskView from a domain Task
func NewTaskView(t domain.Task) TaskView {
	view := TaskView{
		ID:   t.ID,
		Text: t.Text,
		DeleteButton: DeleteButtonView{
			URL:        "/tasks/" + t.ID + "/delete",
			ButtonText: "Remove",
		},
	}
	if !t.CreatedAt.IsZero() {
		view.CreatedAt = t.CreatedAt.Local().Format("Jan 2, 3:04 PM")
	}
	return view
}

func NewTaskListView(tasks []domain.Task, notice string) TaskListView {
	view := TaskListView{
		Notice: notice,
		Tasks:  make([]TaskView, len(tasks)),
		Total:  len(tasks),
	}
	for i, t := range tasks {
		view.Tasks[i] = NewTaskView(t)
	}
	return view
}

// RenderTaskList renders the task sidebar fragment
func (p *Presentation) RenderTaskList(w io.Writer, view TaskListView) error {
	return p.render(w, "task_list", view)
}
