package catalog

import (
	"slices"

	"git.sr.ht/~jakintosh/studydesk/internal/domain"
)

// Catalog is the subject/resource projection built by LoadCatalog.
type Catalog struct {
	Subjects  []string            // subject names, store order
	Resources map[string][]string // subject name -> resource titles
}

// State is everything a view renders from. It is a copy; mutating it does
// not affect the Manager.
type State struct {
	Catalog
	Tasks  []domain.Task
	Loaded bool // LoadCatalog has succeeded at least once
}

func (c Catalog) clone() Catalog {
	out := Catalog{
		Subjects:  slices.Clone(c.Subjects),
		Resources: make(map[string][]string, len(c.Resources)),
	}
	for name, titles := range c.Resources {
		out.Resources[name] = slices.Clone(titles)
	}
	return out
}

func (s State) clone() State {
	return State{
		Catalog: s.Catalog.clone(),
		Tasks:   slices.Clone(s.Tasks),
		Loaded:  s.Loaded,
	}
}

// buildCatalog maps resources onto their subjects by id. Resources whose
// subject no longer exists are dropped from the projection.
func buildCatalog(subjects []domain.Subject, resources []domain.Resource) Catalog {
	c := Catalog{
		Subjects:  make([]string, 0, len(subjects)),
		Resources: make(map[string][]string, len(subjects)),
	}

	nameByID := make(map[string]string, len(subjects))
	for _, s := range subjects {
		nameByID[s.ID] = s.Name
		if _, seen := c.Resources[s.Name]; seen {
			continue
		}
		c.Subjects = append(c.Subjects, s.Name)
		c.Resources[s.Name] = []string{}
	}

	for _, r := range resources {
		name, ok := nameByID[r.SubjectID]
		if !ok {
			continue
		}
		c.Resources[name] = append(c.Resources[name], r.Title)
	}
	return c
}
