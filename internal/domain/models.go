package domain

import "time"

// Collection names used in the document store.
const (
	CollectionTasks     = "tasks"
	CollectionSubjects  = "studies"
	CollectionResources = "resources"
)

// Document field names.
const (
	FieldTaskText       = "text"
	FieldTaskCreatedAt  = "createdAt"
	FieldSubjectName    = "subject"
	FieldResourceTitle  = "title"
	FieldResourceParent = "subject_id"
)

type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Resource struct {
	ID        string `json:"id"`
	SubjectID string `json:"subject_id"`
	Title     string `json:"title"`
}

// Conversions between entities and documents

func TaskFromDocument(d Document) Task {
	t := Task{ID: d.ID, Text: d.Fields[FieldTaskText]}
	if ts, err := time.Parse(time.RFC3339Nano, d.Fields[FieldTaskCreatedAt]); err == nil {
		t.CreatedAt = ts
	}
	return t
}

func (t Task) Fields() Fields {
	return Fields{
		FieldTaskText:      t.Text,
		FieldTaskCreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func SubjectFromDocument(d Document) Subject {
	return Subject{ID: d.ID, Name: d.Fields[FieldSubjectName]}
}

func (s Subject) Fields() Fields {
	return Fields{FieldSubjectName: s.Name}
}

func ResourceFromDocument(d Document) Resource {
	return Resource{
		ID:        d.ID,
		SubjectID: d.Fields[FieldResourceParent],
		Title:     d.Fields[FieldResourceTitle],
	}
}

func (r Resource) Fields() Fields {
	return Fields{
		FieldResourceParent: r.SubjectID,
		FieldResourceTitle:  r.Title,
	}
}
