package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ciris-ai/ciris-core/internal/state"
)

var dreamSupportedStates = []state.State{state.StateDream}

const (
	defaultPulseInterval    = 60 * time.Second
	defaultMaxSnoreHistory  = 5
	insightEveryNPulses     = 3
)

// BenchmarkRunner executes one benchmark pulse, returning the topic it
// dreamt about and the score it achieved. Grounded on original_source's
// dream_processor.py's `_dream_pulse` (HE-300 + simplebench calls via
// CIRISNodeClient), generalized to one pluggable interface so the
// concrete benchmark backend isn't hardcoded into the processor.
type BenchmarkRunner interface {
	RunPulse(ctx context.Context) (topic string, score float64, err error)
}

type dreamMetrics struct {
	totalPulses int
	topics      []string
	scores      []float64
	startedAt   time.Time
}

// DreamProcessor runs benchmark pulses at PulseInterval for a bounded
// Duration, logging a snore summary per pulse and an insight digest
// every insightEveryNPulses. Grounded directly on original_source's
// dream_processor.py per SPEC_FULL.md's supplemented-features note.
type DreamProcessor struct {
	Runner BenchmarkRunner
	Log    *slog.Logger

	PulseInterval   time.Duration
	Duration        time.Duration
	MaxSnoreHistory int

	metrics      dreamMetrics
	snoreHistory []string
	enteredAt    time.Time
	lastPulse    time.Time
}

func NewDreamProcessor(runner BenchmarkRunner, duration time.Duration, log *slog.Logger) *DreamProcessor {
	return &DreamProcessor{
		Runner:          runner,
		Log:             log,
		PulseInterval:   defaultPulseInterval,
		Duration:        duration,
		MaxSnoreHistory: defaultMaxSnoreHistory,
	}
}

func (p *DreamProcessor) Initialize(context.Context) error {
	p.enteredAt = time.Now()
	p.metrics = dreamMetrics{startedAt: p.enteredAt}
	return nil
}

// Process runs at most one pulse per call: a no-op round if
// PulseInterval hasn't elapsed since the last pulse, an ExitRequested
// result if Duration has been reached. The main loop's DREAM
// inter-round delay paces how often Process is even called.
func (p *DreamProcessor) Process(ctx context.Context, round int) (Result, error) {
	if p.Duration > 0 && time.Since(p.enteredAt) >= p.Duration {
		return Result{ExitRequested: true, ExitReason: "dream duration reached", Notes: p.summaryLine()}, nil
	}
	if !p.lastPulse.IsZero() && time.Since(p.lastPulse) < p.PulseInterval {
		return Result{Idle: true}, nil
	}

	p.lastPulse = time.Now()
	p.metrics.totalPulses++
	pulseNum := p.metrics.totalPulses

	topic, score, err := p.Runner.RunPulse(ctx)
	var snore string
	if err != nil {
		snore = fmt.Sprintf("*snore* pulse %d: dream interrupted by %v", pulseNum, err)
	} else {
		p.metrics.topics = append(p.metrics.topics, topic)
		p.metrics.scores = append(p.metrics.scores, score)
		snore = fmt.Sprintf("*snore* pulse %d: dreamt about '%s', bench score: %.2f", pulseNum, topic, score)
	}
	p.snoreHistory = append(p.snoreHistory, snore)
	if len(p.snoreHistory) > p.MaxSnoreHistory {
		p.snoreHistory = p.snoreHistory[1:]
	}
	if p.Log != nil {
		p.Log.Info(snore)
	}

	notes := snore
	if pulseNum%insightEveryNPulses == 0 {
		insight := p.generateInsights()
		if p.Log != nil {
			p.Log.Info("dream insights", "summary", insight)
		}
		notes = insight
	}
	return Result{ThoughtsProcessed: 0, Notes: notes}, nil
}

func (p *DreamProcessor) generateInsights() string {
	if len(p.snoreHistory) == 0 {
		return ""
	}
	avg := average(p.metrics.scores)
	top := topTopics(p.metrics.topics, 3)
	return fmt.Sprintf("average bench score %.2f across %d pulses, top topics: %v", avg, len(p.metrics.scores), top)
}

func (p *DreamProcessor) summaryLine() string {
	return fmt.Sprintf("dream session: %d pulses, average score %.2f", p.metrics.totalPulses, average(p.metrics.scores))
}

func average(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func topTopics(topics []string, n int) []string {
	counts := map[string]int{}
	for _, t := range topics {
		counts[t]++
	}
	unique := make([]string, 0, len(counts))
	for t := range counts {
		unique = append(unique, t)
	}
	sort.Slice(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return unique[i] < unique[j]
	})
	if len(unique) > n {
		unique = unique[:n]
	}
	return unique
}

func (p *DreamProcessor) Cleanup(context.Context) error { return nil }

func (p *DreamProcessor) GetSupportedStates() []state.State { return dreamSupportedStates }

func (p *DreamProcessor) CanProcess(s state.State) bool { return supports(dreamSupportedStates, s) }

func (p *DreamProcessor) GetStatus() Status {
	return Status{State: state.StateDream, RoundsCompleted: p.metrics.totalPulses, SupportedStates: dreamSupportedStates}
}
