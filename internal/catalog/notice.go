package catalog

import (
	"errors"
	"fmt"

	"git.sr.ht/~jakintosh/studydesk/internal/domain"
)

// ErrSubjectNotFound is returned when an operation names a subject that
// does not exist. It matches domain.ErrNotFound as well.
var ErrSubjectNotFound = fmt.Errorf("subject %w", domain.ErrNotFound)

// OpError records which operation failed and on what, so Notice can pick
// the right message.
type OpError struct {
	Op     string // "add-subject", "add-resource", ...
	Target string
	Err    error
}

func (e *OpError) Error() string {
	if e.Target == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Target + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

var notices = map[string]map[error]string{
	OpAddSubject: {
		domain.ErrValidation: "Subject cannot be empty!",
		domain.ErrDuplicate:  "Subject already exists!",
	},
	OpAddResource: {
		domain.ErrValidation: "Resource cannot be empty!",
		domain.ErrDuplicate:  "Resource already exists for this subject!",
	},
	OpRemoveSubject: {
		domain.ErrNotFound: "Subject not found",
	},
	OpRemoveResource: {
		domain.ErrNotFound: "Resource not found",
	},
	OpAddTask: {
		domain.ErrValidation: "Task cannot be empty!",
		domain.ErrDuplicate:  "Task already exists!",
	},
	OpRemoveTask: {
		domain.ErrNotFound: "Task not found",
	},
}

// Notice converts an operation error into the message shown to the user.
// It returns "" for a nil error.
func Notice(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrSubjectNotFound) {
		return "Subject not found"
	}

	var opErr *OpError
	if errors.As(err, &opErr) {
		for kind, msg := range notices[opErr.Op] {
			if errors.Is(err, kind) {
				return msg
			}
		}
	}

	switch {
	case errors.Is(err, domain.ErrStore):
		return "Something went wrong talking to the database. Please reload and try again."
	case errors.Is(err, domain.ErrValidation):
		return "Input cannot be empty!"
	case errors.Is(err, domain.ErrDuplicate):
		return "Already exists!"
	case errors.Is(err, domain.ErrNotFound):
		return "Not found"
	default:
		return err.Error()
	}
}
