package dispatch

import (
	"time"

	"github.com/ciris-ai/ciris-core/internal/errs"
)

// DispatchContext carries the fields spec.md §4.7 step 1 requires to
// dispatch one action. GuardrailResult summarizes the conscience
// outcome that led here, for audit.
type DispatchContext struct {
	ChannelID       string
	AuthorID        string
	AuthorName      string
	OriginService   string
	HandlerName     string
	ActionType      string
	ThoughtID       string
	TaskID          string
	SourceTaskID    string
	EventSummary    string
	EventTimestamp  time.Time
	CorrelationID   string
	RoundNumber     int
	GuardrailResult string
}

// Validate enforces spec.md §4.7's one hard requirement: a missing
// channel_id is fatal, since there is nowhere to route a response.
func (d DispatchContext) Validate() error {
	if d.ChannelID == "" {
		return errs.New(errs.KindDispatchFailure, "dispatch context missing channel_id")
	}
	return nil
}
