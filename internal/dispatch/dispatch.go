// Package dispatch implements the action dispatcher (C9): given the
// DMA pipeline's selected action, it builds a DispatchContext, looks up
// a capable service via the registry buses (C5), invokes it, and
// persists the outcome onto the thought/task plus an audit entry.
// Grounded on the teacher's capability-routed tool execution
// (pkg/agent/tool_approval.go's approved-call invocation loop) for the
// "look up, invoke, record outcome" shape, wired here onto
// internal/registry's priority+circuit-breaker Bus instead of the
// teacher's flat tool-config map.
package dispatch

import (
	"context"
	"strings"

	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/errs"
	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/observability"
	"github.com/ciris-ai/ciris-core/internal/registry"
	"github.com/ciris-ai/ciris-core/internal/task"
	"github.com/ciris-ai/ciris-core/internal/thought"
)

// ActionService is what a bus-registered service must implement to
// receive dispatched actions. One concrete type typically backs
// several capabilities (e.g. a comm adapter backs both "speak" and
// "observe").
type ActionService interface {
	Invoke(ctx context.Context, dctx DispatchContext, params dma.ActionParameters) (map[string]graph.AttrValue, error)
}

// AuditSink is the narrow slice of the audit contract (C9 step 5)
// dispatch depends on, implemented by internal/audit.Log. Declared here
// rather than imported to keep this package free of a dependency on
// audit's hash-chain/signing internals.
type AuditSink interface {
	LogAction(ctx context.Context, actionType string, dctx DispatchContext, outcome map[string]graph.AttrValue, err error) error
}

// Dispatcher wires the registry buses, persistence stores, audit sink,
// and metrics together to execute one selected action per call.
type Dispatcher struct {
	Services     *registry.ServiceBus
	Tasks        task.Store
	Thoughts     thought.Store
	Correlations observability.Store
	Audit        AuditSink
	Metrics      *observability.Metrics

	// MaxThoughtDepth bounds PONDER's follow-up-thought chain (§3). Zero
	// falls back to thought.MaxThoughtDepth, mirroring the
	// zero-means-default idiom task.NewManager/thought.NewManager use
	// for their own active-count caps.
	MaxThoughtDepth int
}

// Dispatch executes selection for th/tsk under dctx and persists the
// outcome. It never panics on a dispatch failure — those become a
// FAILED thought per spec.md §4.7/§7 — but a missing channel_id is
// fatal per spec.md §4.7 step 1 and is returned without touching
// persistence, since the caller cannot even construct a deferral
// message without a channel.
func (d *Dispatcher) Dispatch(ctx context.Context, selection *dma.ActionSelectionResult, th *thought.Thought, tsk *task.Task, dctx DispatchContext) error {
	if err := dctx.Validate(); err != nil {
		return err
	}

	selection = d.boundPonder(selection, th)

	outcome, invokeErr := d.invoke(ctx, selection, dctx)

	if d.Audit != nil {
		if auditErr := d.Audit.LogAction(ctx, string(selection.SelectedAction), dctx, outcome, invokeErr); auditErr != nil {
			return errs.Wrap(errs.KindPersistence, "failed to write audit entry for dispatched action", auditErr)
		}
	}

	if err := d.persistOutcome(ctx, selection, th, tsk, outcome, invokeErr); err != nil {
		return err
	}

	if invokeErr == nil && selection.SelectedAction == dma.ActionPonder {
		return d.requeuePonder(ctx, selection, th)
	}
	return nil
}

// maxThoughtDepth resolves the configured depth bound, defaulting to
// thought.MaxThoughtDepth when unset.
func (d *Dispatcher) maxThoughtDepth() int {
	if d.MaxThoughtDepth > 0 {
		return d.MaxThoughtDepth
	}
	return thought.MaxThoughtDepth
}

// boundPonder converts a PONDER selection that would push th's lineage
// past the depth bound into a DEFER, before it ever reaches invoke or
// persistOutcome. Per spec.md's boundary test, a lineage with
// max_thought_depth=1 auto-defers on its second PONDER rather than
// looping forever.
func (d *Dispatcher) boundPonder(selection *dma.ActionSelectionResult, th *thought.Thought) *dma.ActionSelectionResult {
	if selection.SelectedAction != dma.ActionPonder || th.ThoughtDepth+1 <= d.maxThoughtDepth() {
		return selection
	}
	reason := "thought depth limit reached"
	if selection.Parameters.Ponder != nil && len(selection.Parameters.Ponder.KeyQuestions) > 0 {
		reason = "thought depth limit reached: " + selection.Parameters.Ponder.KeyQuestions[0]
	}
	return &dma.ActionSelectionResult{
		SelectedAction: dma.ActionDefer,
		Parameters:     dma.ActionParameters{Defer: &dma.DeferParams{Reason: reason}},
		Rationale:      reason,
	}
}

// requeuePonder implements PONDER's bounded-recursion mechanic (spec.md
// "PONDER produces a follow-up thought with recorded questions, bounded
// by max_rounds"): it inserts a PENDING child thought one depth below
// th, seeded from the recorded key_questions, so the source task's
// lineage keeps advancing past this round instead of going silent once
// th itself reaches a terminal status.
func (d *Dispatcher) requeuePonder(ctx context.Context, selection *dma.ActionSelectionResult, th *thought.Thought) error {
	depth := th.ThoughtDepth + 1
	if depth > d.maxThoughtDepth() {
		return thought.ErrDepthExceeded
	}
	content := th.Content
	if selection.Parameters.Ponder != nil && len(selection.Parameters.Ponder.KeyQuestions) > 0 {
		content = strings.Join(selection.Parameters.Ponder.KeyQuestions, "; ")
	}
	child := thought.New(th.SourceTaskID, th.ID, thought.TypeStandard, content, depth, th.RoundNumber)
	return d.Thoughts.InsertThought(ctx, child)
}

// invoke looks up and calls the capable service for selection, if the
// action needs one. DEFER/REJECT/PONDER/TASK_COMPLETE are pure state
// transitions the dispatcher itself resolves, since spec.md §4.7 never
// names an external "defer service" or "ponder service" to route to.
func (d *Dispatcher) invoke(ctx context.Context, selection *dma.ActionSelectionResult, dctx DispatchContext) (map[string]graph.AttrValue, error) {
	kind, capability, needsService := capabilityFor(selection.SelectedAction, selection.Parameters)
	if !needsService {
		return nil, nil
	}

	bus := d.Services.Bus(kind)
	svcAny, breaker, err := bus.Select(capability)
	if err != nil {
		return nil, errs.Wrap(errs.KindDispatchFailure, "no capable service for action "+string(selection.SelectedAction), err)
	}

	svc, ok := svcAny.(ActionService)
	if !ok {
		return nil, errs.New(errs.KindDispatchFailure, "registered service does not implement dispatch.ActionService")
	}

	call := observability.NewCall(d.Correlations, string(kind), dctx.HandlerName)
	request := map[string]graph.AttrValue{"action": graph.StringAttr(string(selection.SelectedAction))}

	resp, err := call.Do(ctx, capability, request, func(ctx context.Context) (map[string]graph.AttrValue, error) {
		return svc.Invoke(ctx, dctx, selection.Parameters)
	})

	if err != nil {
		breaker.RecordFailure()
		return resp, errs.Wrap(errs.KindDispatchFailure, "action execution failed", err)
	}
	breaker.RecordSuccess()
	return resp, nil
}

// capabilityFor maps a selected action to the bus kind and capability
// string a registered service must advertise. TOOL's capability is the
// requested tool's own name, so distinct tools can register
// independently under the same KindTool bus.
func capabilityFor(action dma.ActionType, params dma.ActionParameters) (kind registry.ServiceKind, capability string, needsService bool) {
	switch action {
	case dma.ActionSpeak:
		return registry.KindComm, "speak", true
	case dma.ActionObserve:
		return registry.KindComm, "observe", true
	case dma.ActionMemorize:
		return registry.KindMemory, "memorize", true
	case dma.ActionRecall:
		return registry.KindMemory, "recall", true
	case dma.ActionForget:
		return registry.KindMemory, "forget", true
	case dma.ActionTool:
		name := ""
		if params.Tool != nil {
			name = params.Tool.ToolName
		}
		return registry.KindTool, name, true
	default: // DEFER, REJECT, PONDER, TASK_COMPLETE
		return "", "", false
	}
}
