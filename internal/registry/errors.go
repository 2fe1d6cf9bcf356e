package registry

import "github.com/ciris-ai/ciris-core/internal/errs"

var (
	ErrNoCapableService = errs.New(errs.KindDispatchFailure, "no registered service advertises this capability")
	ErrNoHealthyService = errs.New(errs.KindDispatchFailure, "all capable services have open circuit breakers")
)
