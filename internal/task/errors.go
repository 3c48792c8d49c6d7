package task

import "git.internal.example/releng/pkgrelease/internal/foundation"

// taskError roots every task-store failure in the shared foundation error
// system (ClassifiedError), tagging the "task" component the way eventstore
// tags "eventstore".
func taskError(code foundation.ErrorCode, message string) *foundation.ErrorBuilder {
	return foundation.NewError(code, message).WithComponent("task")
}

// errUnknownMode is returned when CreateTask is given a Mode not present in the catalog.
func errUnknownMode(mode Mode) error {
	return foundation.ValidationError("unknown task mode").
		WithComponent("task").
		WithField("mode", string(mode)).
		Build()
}

// errIllegalTransition is returned by mutation helpers when the task's current
// status does not permit the requested transition.
func errIllegalTransition(op string, from TaskStatus) error {
	return foundation.ValidationError("illegal task state transition").
		WithComponent("task").
		WithOperation(op).
		WithField("from_status", string(from)).
		Build()
}

func errTaskNotFound(id string) error {
	return foundation.NotFoundError("task not found").
		WithComponent("task").
		WithField("task_id", id).
		Build()
}

func errProjectNotFound(id string) error {
	return foundation.NotFoundError("project not found").
		WithComponent("task").
		WithField("project_id", id).
		Build()
}
