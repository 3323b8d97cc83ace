package web

import (
	"io"

	"git.sr.ht/~jakintosh/studydesk/internal/catalog"
)

// CategoryLink is one of the landing page entries
type CategoryLink struct {
	URL         string
	Icon        string
	Title       string
	Description string
}

var categoryLinks = []CategoryLink{
	{URL: "/movies", Icon: "🎥", Title: "Movies", Description: "Manage your movie watchlist"},
	{URL: "/studies", Icon: "📚", Title: "Studies", Description: "Organize your study plans"},
}

type PageView struct {
	Title      string
	Categories []CategoryLink
	Catalog    CatalogView
	Tasks      TaskListView
}

func (p *Presentation) RenderIndex(w io.Writer) error {
	return p.render(w, "index.html", PageView{
		Title:      "Daily Workflow",
		Categories: categoryLinks,
	})
}

func (p *Presentation) RenderMovies(w io.Writer) error {
	return p.render(w, "movies.html", PageView{
		Title:      "Movies",
		Categories: categoryLinks,
	})
}

func (p *Presentation) RenderStudies(w io.Writer, state catalog.State, notice string) error {
	return p.render(w, "studies.html", PageView{
		Title: "Study Resource Manager",
		Catalog: CatalogView{
			Notice:   notice,
			Subjects: NewSubjectViews(state.Catalog),
		},
		Tasks: NewTaskListView(state.Tasks, ""),
	})
}
