package runtime

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/processor"
	"github.com/ciris-ai/ciris-core/internal/state"
)

// AwaitCommunicationService blocks until a capability is registered on
// the comm bus or timeout elapses, per spec.md §4.9's closing
// instruction that processing must not begin without one. Callers
// typically pass ≤30s.
func (r *Runtime) AwaitCommunicationService(ctx context.Context, capability string, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, _, err := r.Services.Comm.Select(capability); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("no communication service advertising %q registered within %s", capability, timeout)
		case <-ticker.C:
		}
	}
}

// RequestShutdown idempotently records a shutdown request; repeated
// calls after the first are no-ops, per spec.md §4.10.
func (r *Runtime) RequestShutdown(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdownRequested {
		return
	}
	r.shutdownRequested = true
	r.shutdownReason = reason
	close(r.stopCh)
}

// maxShutdownRounds bounds step 2's drain, per spec.md §4.10.
const maxShutdownRounds = 5

// Shutdown runs spec.md §4.10's negotiated shutdown: up to five rounds
// of SHUTDOWN-state processing if the agent ever left WAKEUP, a
// SHUTDOWN graph node recording final state, concurrent adapter stop,
// reverse-dependency-order service stop, then a cleared registry.
//
// Unlike Loop.Run (which treats SHUTDOWN as terminal and returns
// immediately with no processing), this method drives the drain
// rounds directly through Engine.RunBatch — there is no dedicated
// SHUTDOWN SubProcessor in this codebase, since SHUTDOWN is meant to
// be the main loop's exit state, not one more state it processes.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.RequestShutdown(r.shutdownReasonOrDefault())

	pastWakeup := r.Machine.Current() != state.StateWakeup && r.Machine.Current() != state.StateShutdown
	if pastWakeup {
		r.Machine.Transition(state.StateShutdown)
		for i := 0; i < maxShutdownRounds; i++ {
			result, err := r.Engine.RunBatch(ctx, i, processor.DefaultBatchSize)
			if err != nil {
				r.log.Warn("shutdown drain round failed, continuing", "round", i, "error", err)
				continue
			}
			if result.Idle {
				break
			}
		}
	}

	if err := r.writeShutdownNode(ctx); err != nil {
		r.log.Warn("failed to write shutdown graph node, continuing shutdown anyway", "error", err)
	}

	r.stopAdapters(ctx)
	r.stopServices(ctx)

	if r.Services != nil {
		r.Services.Clear()
	}
	return nil
}

func (r *Runtime) shutdownReasonOrDefault() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdownReason == "" {
		return "shutdown requested"
	}
	return r.shutdownReason
}

func (r *Runtime) writeShutdownNode(ctx context.Context) error {
	activeTasks, _ := r.DB.CountActiveTasks(ctx)

	attrs := graph.Attributes{
		"shutdown_context":   graph.StringAttr(r.shutdownReasonOrDefault()),
		"identity_hash":      graph.StringAttr(r.Identity.IdentityHash),
		"reactivation_count": graph.NumberAttr(float64(r.reactivationCount)),
		"final_state": graph.MapAttr(map[string]graph.AttrValue{
			"active_tasks":     graph.NumberAttr(float64(activeTasks)),
			"runtime_duration": graph.NumberAttr(time.Since(r.startedAt).Seconds()),
		}),
	}
	node := &graph.Node{
		ID:         fmt.Sprintf("shutdown/%d", time.Now().UnixNano()),
		Type:       graph.NodeShutdown,
		Scope:      graph.ScopeIdentity,
		Attributes: attrs,
		CreatedAt:  time.Now().UTC(),
	}
	return r.DB.PutNode(ctx, node)
}

// stopAdapters stops every started adapter concurrently, per spec.md
// §4.10 step 4, grounded on the teacher's errgroup-based concurrent
// fan-out elsewhere in this codebase (internal/dma.Pipeline.Evaluate).
func (r *Runtime) stopAdapters(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range r.adapters {
		a := a
		g.Go(func() error {
			if err := a.Stop(gctx); err != nil {
				r.log.Warn("adapter stop failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// stopServices closes the runtime's own owned resources in reverse
// dependency order, each bounded to 10s, per spec.md §4.10 step 5.
// The original CIRIS shutdown list names several services (TSDB
// consolidation, scheduler, incident management, resource monitor,
// config, maintenance, transaction, agent-config, adaptive filter,
// telemetry) that have no concrete component in this codebase; only
// the services actually built here are stopped.
func (r *Runtime) stopServices(_ context.Context) {
	steps := []struct {
		name string
		stop func() error
	}{
		{"audit", func() error { return nil }},
		{"llm", func() error { return nil }},
		{"secrets", func() error { r.SecretsVault.Close(); return nil }},
		{"memory", func() error { return r.DB.Close() }},
		{"secrets_db", func() error { return r.SecretsDB.Close() }},
		{"audit_db", func() error { return r.AuditDB.Close() }},
	}
	for _, step := range steps {
		done := make(chan error, 1)
		go func(stop func() error) { done <- stop() }(step.stop)
		select {
		case err := <-done:
			if err != nil {
				r.log.Warn("service stop failed", "service", step.name, "error", err)
			}
		case <-time.After(10 * time.Second):
			r.log.Warn("service stop timed out", "service", step.name)
		}
	}
}
