package orchestrator

import "errors"

var (
	// ErrTemplateNotFound is returned when the template is missing or
	// not active.
	ErrTemplateNotFound = errors.New("template not found or not active")
	// ErrExecutionNotFound is returned when the execution does not exist
	// or belongs to another user.
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrInstanceNotFound is returned when an execution references a
	// missing instance.
	ErrInstanceNotFound = errors.New("instance not found")
)
