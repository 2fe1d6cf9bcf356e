package dispatch

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/graph"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
	corethought "github.com/ciris-ai/ciris-core/internal/thought"
)

// persistOutcome applies spec.md §4.7 step 4: the thought always
// reaches a terminal-for-this-round status, and TASK_COMPLETE/DEFER
// additionally move the source task.
func (d *Dispatcher) persistOutcome(ctx context.Context, selection *dma.ActionSelectionResult, th *corethought.Thought, tsk *coretask.Task, outcome map[string]graph.AttrValue, invokeErr error) error {
	th.FinalAction = &corethought.FinalAction{
		ActionType: string(selection.SelectedAction),
		Params:     toAttrMap(selection.Parameters),
		Rationale:  selection.Rationale,
	}
	th.UpdatedAt = time.Now().UTC()

	switch {
	case invokeErr != nil:
		th.Status = corethought.StatusFailed
	case selection.SelectedAction == dma.ActionDefer:
		th.Status = corethought.StatusDeferred
	default:
		th.Status = corethought.StatusCompleted
	}

	if err := d.Thoughts.UpdateThought(ctx, th); err != nil {
		return err
	}

	if tsk == nil {
		return nil
	}

	switch {
	case selection.SelectedAction == dma.ActionTaskComplete && invokeErr == nil:
		tsk.Status = coretask.StatusCompleted
		tsk.Outcome = &coretask.Outcome{Summary: selection.Rationale, Data: outcome, Timestamp: time.Now().UTC()}
		tsk.UpdatedAt = tsk.Outcome.Timestamp
		return d.Tasks.UpdateTask(ctx, tsk)

	case selection.SelectedAction == dma.ActionDefer:
		// Task stays ACTIVE; it is re-activated by a wise-authority
		// guidance thought, not by this dispatch.
		return nil

	default:
		return nil
	}
}

// toAttrMap flattens whichever ActionParameters variant is set into
// the untyped-at-the-boundary map thought.FinalAction carries for
// audit/history display.
func toAttrMap(p dma.ActionParameters) map[string]graph.AttrValue {
	switch {
	case p.Speak != nil:
		return map[string]graph.AttrValue{"content": graph.StringAttr(p.Speak.Content)}
	case p.Observe != nil:
		return map[string]graph.AttrValue{"channel_id": graph.StringAttr(p.Observe.ChannelID)}
	case p.Memorize != nil:
		return map[string]graph.AttrValue{
			"knowledge_unit_description": graph.StringAttr(p.Memorize.KnowledgeUnitDescription),
			"data":                       graph.MapAttr(p.Memorize.Data),
		}
	case p.Recall != nil:
		return map[string]graph.AttrValue{"query": graph.StringAttr(p.Recall.Query)}
	case p.Forget != nil:
		return map[string]graph.AttrValue{"key": graph.StringAttr(p.Forget.Key), "reason": graph.StringAttr(p.Forget.Reason)}
	case p.Tool != nil:
		return map[string]graph.AttrValue{
			"tool_name": graph.StringAttr(p.Tool.ToolName),
			"arguments": graph.MapAttr(p.Tool.Arguments),
		}
	case p.Defer != nil:
		return map[string]graph.AttrValue{"reason": graph.StringAttr(p.Defer.Reason)}
	case p.Reject != nil:
		return map[string]graph.AttrValue{"reason": graph.StringAttr(p.Reject.Reason)}
	case p.Ponder != nil:
		questions := make([]graph.AttrValue, len(p.Ponder.KeyQuestions))
		for i, q := range p.Ponder.KeyQuestions {
			questions[i] = graph.StringAttr(q)
		}
		return map[string]graph.AttrValue{"key_questions": graph.ListAttr(questions)}
	case p.Complete != nil:
		return map[string]graph.AttrValue{"summary": graph.StringAttr(p.Complete.Summary)}
	default:
		return nil
	}
}
