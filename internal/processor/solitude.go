package processor

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-core/internal/state"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
)

var solitudeSupportedStates = []state.State{state.StateSolitude}

const (
	defaultCriticalPriorityThreshold = 8
	defaultSolitudeMaxDuration       = 30 * time.Minute
	defaultSolitudeBacklogThreshold  = 5
	solitudeMaintenanceEvery         = 10
	solitudeReflectionEvery          = 5
)

// SolitudeProcessor is the minimal-activity mode: it does not run the
// full DMA/dispatch chain, only watches for a reason to leave. Per
// spec.md §4.8, maintenance and reflection are periodic no-op hooks
// here (Notes records which fired) since neither has a concrete
// target defined outside this processor yet.
type SolitudeProcessor struct {
	Tasks *Engine // only Tasks is used; kept as *Engine so callers share one construction path

	CriticalPriorityThreshold int
	MaxDuration               time.Duration
	BacklogThreshold          int

	rounds    int
	enteredAt time.Time
}

func NewSolitudeProcessor(engine *Engine) *SolitudeProcessor {
	return &SolitudeProcessor{
		Tasks:                     engine,
		CriticalPriorityThreshold: defaultCriticalPriorityThreshold,
		MaxDuration:               defaultSolitudeMaxDuration,
		BacklogThreshold:          defaultSolitudeBacklogThreshold,
	}
}

func (p *SolitudeProcessor) Initialize(context.Context) error {
	p.enteredAt = time.Now()
	return nil
}

func (p *SolitudeProcessor) Process(ctx context.Context, round int) (Result, error) {
	p.rounds++

	top, err := p.Tasks.Tasks.Store.GetTopTasks(ctx, 20)
	if err != nil {
		return Result{}, err
	}
	for _, t := range top {
		if t.Priority >= p.CriticalPriorityThreshold {
			return Result{ExitRequested: true, ExitReason: "critical task pending"}, nil
		}
	}

	if time.Since(p.enteredAt) >= p.MaxDuration {
		return Result{ExitRequested: true, ExitReason: "max solitude duration reached"}, nil
	}

	pendingCount, err := p.Tasks.Tasks.Store.CountTasks(ctx, coretask.StatusPending)
	if err != nil {
		return Result{}, err
	}
	if pendingCount > p.BacklogThreshold {
		return Result{ExitRequested: true, ExitReason: "pending task backlog exceeded threshold"}, nil
	}

	notes := ""
	if p.rounds%solitudeMaintenanceEvery == 0 {
		notes = "maintenance"
	} else if p.rounds%solitudeReflectionEvery == 0 {
		notes = "reflection"
	}
	return Result{Notes: notes}, nil
}

func (p *SolitudeProcessor) Cleanup(context.Context) error { return nil }

func (p *SolitudeProcessor) GetSupportedStates() []state.State { return solitudeSupportedStates }

func (p *SolitudeProcessor) CanProcess(s state.State) bool {
	return supports(solitudeSupportedStates, s)
}

func (p *SolitudeProcessor) GetStatus() Status {
	return Status{State: state.StateSolitude, RoundsCompleted: p.rounds, SupportedStates: solitudeSupportedStates}
}
