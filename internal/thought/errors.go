package thought

import "github.com/ciris-ai/ciris-core/internal/errs"

var (
	ErrNotFound     = errs.New(errs.KindPersistence, "thought not found")
	ErrDepthExceeded = errs.New(errs.KindValidation, "thought depth exceeds MaxThoughtDepth")
	ErrNotPending   = errs.New(errs.KindValidation, "thought is not PENDING")
)
