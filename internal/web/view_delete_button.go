package web

// DeleteButtonView holds data for the delete button template fragment
type DeleteButtonView struct {
	URL            string            // e.g., "/subjects/Math/delete"
	Fields         map[string]string // hidden form fields identifying the target
	ConfirmMessage string            // e.g., "Delete this subject and all its resources?"
	ButtonText     string            // e.g., "Remove"
}
