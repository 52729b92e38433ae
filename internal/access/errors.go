package access

import "errors"

var (
	// ErrNotFound indicates a referenced role, permission or grant does
	// not exist.
	ErrNotFound = errors.New("access: not found")

	// ErrInvalidArgument indicates a malformed request, such as a
	// project-scoped permission mutation without a project id.
	ErrInvalidArgument = errors.New("access: invalid argument")

	// ErrConflict indicates an assignment that would violate a
	// uniqueness contract, such as a second project role for the same
	// project.
	ErrConflict = errors.New("access: conflict")
)
