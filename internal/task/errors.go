package task

import "github.com/ciris-ai/ciris-core/internal/errs"

// Sentinel errors for the task manager, matching the teacher's
// *TaskError{Code,Message} idiom (pkg/task/task.go) generalized onto
// the shared errs.Error type.
var (
	ErrInvalidChannel = errs.New(errs.KindValidation, "channel_id must not be empty")
	ErrNotFound       = errs.New(errs.KindPersistence, "task not found")
	ErrAlreadyActive  = errs.New(errs.KindValidation, "task is already active")
)
