// Package conscience implements the post-action guardrail stage (C8):
// a list of registered checks run against the action the DMA pipeline
// selected, with a severity policy that can override the action to
// DEFER, force one bounded recursive re-evaluation, or simply record
// the outcome. Grounded on the teacher's tool-approval gate
// (pkg/agent/tool_approval.go): the same "declare named checks, run
// them ordered against one decision, build a Result the caller applies"
// shape, but closed over the fixed severity/override state machine
// spec.md §4.6 specifies instead of the teacher's single-tool
// approve/deny flow.
package conscience

import (
	"context"

	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	"github.com/ciris-ai/ciris-core/internal/task"
	"github.com/ciris-ai/ciris-core/internal/thought"
)

// Severity is the conscience check's reported severity.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome is one check's verdict against the selected action.
type Outcome struct {
	CheckName   string
	Passed      bool
	Severity    Severity
	Reason      string
	CanOverride bool
	Overridden  bool
}

// Check is one registered conscience guardrail.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, action *dma.ActionSelectionResult, th *thought.Thought, snap *snapshot.SystemSnapshot) Outcome
}

// Guard runs the registered checks against a selected action and
// applies spec.md §4.6's severity policy. ActionSelection is used for
// the bounded recursive re-evaluation the `error` severity triggers;
// it may be nil if the caller has already disabled recursion (e.g. a
// unit test exercising only the override paths).
type Guard struct {
	Checks          []Check
	ActionSelection *dma.ActionSelectionEvaluator
}

// Result is what Guard.Run hands back to the dispatcher: the (possibly
// overridden) action plus every outcome recorded along the way, in
// check-registration order followed by any recursive-reevaluation
// outcomes.
type Result struct {
	Action   *dma.ActionSelectionResult
	Outcomes []Outcome
}

// Run evaluates every check against selection. Policy, per spec.md
// §4.6:
//   - critical + !can_override -> override the action to DEFER
//   - error -> recursive re-evaluation once with the failure reason
//     appended; if the retry's checks still report an error, force
//     PONDER
//   - warning/info -> recorded only, action unchanged
//
// At most one recursive re-evaluation happens per call, matching
// spec.md §4.6's "bounded: at most one recursive re-evaluation per
// thought per round" — Run is invoked once per thought per round by
// the dispatcher, so internal recursion is itself the bound.
func (g *Guard) Run(ctx context.Context, selection *dma.ActionSelectionResult, results *dma.EvaluatorResults, th *thought.Thought, tsk *task.Task, snap *snapshot.SystemSnapshot) Result {
	outcomes := g.evaluateAll(ctx, selection, th, snap)

	if critical, ok := firstNonOverridableCritical(outcomes); ok {
		return Result{
			Action:   overrideToDefer(critical.Reason),
			Outcomes: markOverridden(outcomes, critical.CheckName),
		}
	}

	if hasSeverity(outcomes, SeverityError) {
		if g.ActionSelection == nil {
			return Result{Action: forcePonder("conscience error with no reevaluator configured"), Outcomes: outcomes}
		}

		reason := firstReason(outcomes, SeverityError)
		retried := g.ActionSelection.Evaluate(ctx, results, th, tsk, snap, "conscience raised an error on the prior selection: "+reason)
		retryOutcomes := g.evaluateAll(ctx, retried, th, snap)
		outcomes = append(outcomes, retryOutcomes...)

		if hasSeverity(retryOutcomes, SeverityError) || hasSeverity(retryOutcomes, SeverityCritical) {
			return Result{Action: forcePonder("conscience error persisted after recursive re-evaluation"), Outcomes: outcomes}
		}
		return Result{Action: retried, Outcomes: outcomes}
	}

	return Result{Action: selection, Outcomes: outcomes}
}

func (g *Guard) evaluateAll(ctx context.Context, action *dma.ActionSelectionResult, th *thought.Thought, snap *snapshot.SystemSnapshot) []Outcome {
	out := make([]Outcome, 0, len(g.Checks))
	for _, c := range g.Checks {
		out = append(out, c.Evaluate(ctx, action, th, snap))
	}
	return out
}

func firstNonOverridableCritical(outcomes []Outcome) (Outcome, bool) {
	for _, o := range outcomes {
		if !o.Passed && o.Severity == SeverityCritical && !o.CanOverride {
			return o, true
		}
	}
	return Outcome{}, false
}

func hasSeverity(outcomes []Outcome, sev Severity) bool {
	for _, o := range outcomes {
		if !o.Passed && o.Severity == sev {
			return true
		}
	}
	return false
}

func firstReason(outcomes []Outcome, sev Severity) string {
	for _, o := range outcomes {
		if !o.Passed && o.Severity == sev {
			return o.Reason
		}
	}
	return ""
}

func markOverridden(outcomes []Outcome, checkName string) []Outcome {
	out := make([]Outcome, len(outcomes))
	copy(out, outcomes)
	for i := range out {
		if out[i].CheckName == checkName {
			out[i].Overridden = true
		}
	}
	return out
}

func overrideToDefer(reason string) *dma.ActionSelectionResult {
	return &dma.ActionSelectionResult{
		SelectedAction: dma.ActionDefer,
		Parameters:     dma.ActionParameters{Defer: &dma.DeferParams{Reason: reason}},
		Rationale:      "overridden by conscience: " + reason,
	}
}

func forcePonder(reason string) *dma.ActionSelectionResult {
	return &dma.ActionSelectionResult{
		SelectedAction: dma.ActionPonder,
		Parameters:     dma.ActionParameters{Ponder: &dma.PonderParams{KeyQuestions: []string{reason}}},
		Rationale:      reason,
	}
}
