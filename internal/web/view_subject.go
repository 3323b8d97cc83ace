package web

import (
	"io"
	"net/url"

	"git.sr.ht/~jakintosh/studydesk/internal/catalog"
)

// SubjectView is the view model for a subject and its resources
type SubjectView struct {
	Name         string
	ResourcesURL string // add-resource form target
	Resources    []ResourceView
	DeleteButton DeleteButtonView
}

type ResourceView struct {
	Title        string
	DeleteButton DeleteButtonView
}

// CatalogView is the fragment swapped in after subject/resource changes
type CatalogView struct {
	Notice   string
	Subjects []SubjectView
}

// NewSubjectViews builds views in catalog order
func NewSubjectViews(c catalog.Catalog) []SubjectView {
	views := make([]SubjectView, 0, len(c.Subjects))
	for _, name := range c.Subjects {
		base := subjectPath(name)
		view := SubjectView{
			Name:         name,
			ResourcesURL: base + "/resources",
			DeleteButton: DeleteButtonView{
				URL:            base + "/delete",
				ConfirmMessage: "Delete this subject and all its resources?",
				ButtonText:     "Remove",
			},
		}
		for _, title := range c.Resources[name] {
			view.Resources = append(view.Resources, ResourceView{
				Title: title,
				DeleteButton: DeleteButtonView{
					URL:        base + "/resources/delete",
					Fields:     map[string]string{"title": title},
					ButtonText: "Remove",
				},
			})
		}
		views = append(views, view)
	}
	return views
}

// subjectPath is the URL of a subject; names may hold any character.
func subjectPath(name string) string {
	return "/subjects/" + url.PathEscape(name)
}

// RenderCatalog renders the subjects fragment
func (p *Presentation) RenderCatalog(w io.Writer, view CatalogView) error {
	return p.render(w, "catalog", view)
}
