package runtime

import (
	"context"
	"fmt"

	"github.com/ciris-ai/ciris-core/internal/audit"
	"github.com/ciris-ai/ciris-core/internal/audit/signing"
	"github.com/ciris-ai/ciris-core/internal/clock"
	"github.com/ciris-ai/ciris-core/internal/conscience"
	"github.com/ciris-ai/ciris-core/internal/dispatch"
	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/identity"
	"github.com/ciris-ai/ciris-core/internal/llm"
	"github.com/ciris-ai/ciris-core/internal/llm/httpllm"
	"github.com/ciris-ai/ciris-core/internal/observability"
	"github.com/ciris-ai/ciris-core/internal/persistence/sqlite"
	"github.com/ciris-ai/ciris-core/internal/processor"
	"github.com/ciris-ai/ciris-core/internal/registry"
	"github.com/ciris-ai/ciris-core/internal/secrets"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	"github.com/ciris-ai/ciris-core/internal/state"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
	corethought "github.com/ciris-ai/ciris-core/internal/thought"
)

// Phase 1: infrastructure. There's no separate service object for
// this concern in this codebase; the phase wires the clock and
// confirms a logger is present.
func phaseInfrastructure(_ context.Context, r *Runtime) error {
	r.Clock = clock.NewSystem()
	if r.log == nil {
		return fmt.Errorf("no logger configured")
	}
	return nil
}

func verifyInfrastructure(r *Runtime) error {
	if r.Clock == nil {
		return fmt.Errorf("clock not initialized")
	}
	return nil
}

// Phase 2: database. Opens the three spec.md §6 SQLite databases and
// verifies the core schema landed.
func phaseDatabase(_ context.Context, r *Runtime) error {
	cfg := r.opts.Config
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open engine db: %w", err)
	}
	r.DB = db

	secretsDB, err := sqlite.OpenSecretsDB(cfg.SecretsDBPath)
	if err != nil {
		return fmt.Errorf("open secrets db: %w", err)
	}
	r.SecretsDB = secretsDB

	auditDB, err := sqlite.OpenAuditDB(cfg.AuditDBPath)
	if err != nil {
		return fmt.Errorf("open audit db: %w", err)
	}
	r.AuditDB = auditDB
	return nil
}

func verifyDatabase(r *Runtime) error {
	return r.DB.VerifyTables(context.Background())
}

// Phase 3: memory. The graph store is the same DB connection phase 2
// opened (internal/persistence/sqlite.DB implements graph.Store
// directly); this phase just confirms it answers queries.
func phaseMemory(ctx context.Context, r *Runtime) error {
	_, err := r.DB.NodesByType(ctx, graph.NodeConfig, graph.ScopeLocal)
	return err
}

func verifyMemory(r *Runtime) error {
	if r.DB == nil {
		return fmt.Errorf("graph store not available")
	}
	return nil
}

// Phase 4: identity. Loads the singleton identity node, creating one
// from the configured profile template on first boot.
func phaseIdentity(ctx context.Context, r *Runtime) error {
	node, err := r.DB.GetNode(ctx, graph.IdentityNodeID)
	if err == nil {
		r.Identity = identity.FromNode(*node)
		r.reactivationCount = 1
		if v, ok := node.Attributes["reactivation_count"]; ok {
			if f, ok := v.ToAny().(float64); ok {
				r.reactivationCount = int(f) + 1
			}
		}
		return nil
	}

	permitted := make([]string, len(r.opts.PermittedActions))
	for i, a := range r.opts.PermittedActions {
		permitted[i] = string(a)
	}
	id := identity.New(r.opts.AgentID, r.opts.CoreProfile, r.opts.IdentityCreator, permitted)
	r.Identity = id
	n := id.ToNode()
	if err := r.DB.PutNode(ctx, &n); err != nil {
		return fmt.Errorf("persist new identity: %w", err)
	}
	return nil
}

// verifyIdentity confirms the loaded/created identity carries a
// non-empty hash. identity.computeHash is private to its package, so
// full re-derivation happens there at creation/modification time, not
// here; this step only catches a malformed or truncated graph node.
func verifyIdentity(r *Runtime) error {
	if r.Identity == nil {
		return fmt.Errorf("identity not loaded")
	}
	if r.Identity.IdentityHash == "" {
		return fmt.Errorf("identity hash is empty")
	}
	return nil
}

// Phase 5: security. Secrets filter/vault and the audit signing key
// store. The signing key itself is generated lazily on first Sign
// call (KeyStore.ensureActiveKey), so this phase only wires the
// dependency, it doesn't force key generation during startup.
func phaseSecurity(_ context.Context, r *Runtime) error {
	key, err := generateVaultKey(r.log)
	if err != nil {
		return fmt.Errorf("derive vault key: %w", err)
	}
	vault, err := secrets.NewSQLVault(r.SecretsDB, key)
	if err != nil {
		return fmt.Errorf("build secrets vault: %w", err)
	}
	r.SecretsVault = vault
	r.SecretsFilter = secrets.NewFilter(vault)

	r.Keys = &signing.KeyStore{Store: r.AuditDB}
	r.AuditLog = &audit.Log{Store: r.AuditDB, Signer: r.Keys}
	return nil
}

func verifySecurity(r *Runtime) error {
	if r.SecretsFilter == nil || r.AuditLog == nil {
		return fmt.Errorf("security services not wired")
	}
	return nil
}

// Phase 6: services. LLM, telemetry (metrics + resource monitor), and
// whatever tool/adapter services the caller supplied via Options.
//
// The original CIRIS runtime names several services for this phase
// (scheduler, incident management, self-observation, visibility) that
// have no concrete component anywhere in this codebase — nothing in
// SPEC_FULL.md wires a scheduler or incident-management store, so this
// phase only builds what this repo actually implements.
func phaseServices(ctx context.Context, r *Runtime) error {
	r.Services = registry.NewServiceBus()
	r.Metrics = observability.NewMetrics()
	r.Resources = observability.NewResourceMonitor(r.Metrics, r.opts.ResourceBudgets...)

	llmSvc := r.opts.LLM
	if llmSvc == nil {
		llmSvc = httpllm.New(httpllm.Config{
			BaseURL: r.opts.Config.LLMEndpoint,
			Model:   r.opts.Config.LLMModel,
		})
	}
	if err := r.Services.LLM.Register("primary", llmSvc, 100, []string{"generate"}, registry.BreakerConfig{}); err != nil {
		return fmt.Errorf("register llm service: %w", err)
	}

	if err := r.Services.Audit.Register("primary", r.AuditLog, 100, []string{"log_action"}, registry.BreakerConfig{}); err != nil {
		return fmt.Errorf("register audit service: %w", err)
	}

	for _, reg := range r.opts.Tools {
		descriptors, err := reg.Service.Descriptors(ctx)
		if err != nil {
			r.log.Warn("tool service failed to list descriptors, skipping", "tool", reg.Name, "error", err)
			continue
		}
		caps := make([]string, len(descriptors))
		for i, d := range descriptors {
			caps[i] = d.Name
		}
		if err := r.Services.Tool.Register(reg.Name, reg.Service, reg.Priority, caps, registry.BreakerConfig{}); err != nil {
			return fmt.Errorf("register tool service %s: %w", reg.Name, err)
		}
	}

	for _, a := range r.opts.Adapters {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start adapter: %w", err)
		}
		r.adapters = append(r.adapters, a)
		for _, regn := range a.Services() {
			bus := r.Services.Bus(registry.ServiceKind(regn.Kind))
			if bus == nil {
				r.log.Warn("adapter registered an unknown service kind, skipping", "kind", regn.Kind)
				continue
			}
			if err := bus.Register(regn.Name, regn.Service, regn.Priority, regn.Capabilities, registry.BreakerConfig{}); err != nil {
				return fmt.Errorf("register adapter service %s: %w", regn.Name, err)
			}
		}
	}
	return nil
}

func verifyServices(r *Runtime) error {
	if r.Services == nil {
		return fmt.Errorf("service registry not built")
	}
	return nil
}

// Phase 7: components. Builds the task/thought managers, the DMA
// pipeline, the conscience guard, the dispatcher, the round engine,
// the state machine, and the main loop.
func phaseComponents(ctx context.Context, r *Runtime) error {
	cfg := r.opts.Config
	r.Tasks = coretask.NewManager(r.DB, cfg.MaxActiveTasks)
	r.Thoughts = corethought.NewManager(r.DB, r.DB, 0)

	if r.opts.AdapterFactory != nil {
		for _, a := range r.opts.AdapterFactory(r.Tasks) {
			if err := a.Start(ctx); err != nil {
				return fmt.Errorf("start task-dependent adapter: %w", err)
			}
			r.adapters = append(r.adapters, a)
			for _, regn := range a.Services() {
				bus := r.Services.Bus(registry.ServiceKind(regn.Kind))
				if bus == nil {
					r.log.Warn("adapter registered an unknown service kind, skipping", "kind", regn.Kind)
					continue
				}
				if err := bus.Register(regn.Name, regn.Service, regn.Priority, regn.Capabilities, registry.BreakerConfig{}); err != nil {
					return fmt.Errorf("register adapter service %s: %w", regn.Name, err)
				}
			}
		}
	}

	r.Snapshots = &snapshot.Builder{
		Tasks:         r.DB,
		Thoughts:      r.DB,
		Graph:         r.DB,
		Correlations:  r.DB,
		SecretsFilter: r.SecretsFilter,
		Services:      r.Services,
		Resources:     r.Resources,
		Identity:      r.Identity,
		HomeChannels:  map[string]string{"default": r.opts.ChannelID},
		Profile:       snapshot.NoProfileProvider,
		Log:           r.log,
	}

	llmAny, _, err := r.Services.LLM.Select("generate")
	if err != nil {
		return fmt.Errorf("select llm service for dma pipeline: %w", err)
	}
	llmSvc, ok := llmAny.(llm.Service)
	if !ok {
		return fmt.Errorf("registered llm service does not implement llm.Service")
	}

	r.DMA = dma.New(llmSvc, r.Metrics, dma.DefaultConfig(), r.opts.DomainProfile)
	r.Guard = &conscience.Guard{Checks: r.opts.ConscienceChecks, ActionSelection: r.DMA.ActionSelection}

	r.Dispatcher = &dispatch.Dispatcher{
		Services:        r.Services,
		Tasks:           r.DB,
		Thoughts:        r.DB,
		Correlations:    r.DB,
		Audit:           r.AuditLog,
		Metrics:         r.Metrics,
		MaxThoughtDepth: r.opts.Config.MaxThoughtDepth,
	}

	r.Engine = &processor.Engine{
		Tasks:         r.Tasks,
		Thoughts:      r.Thoughts,
		Snapshots:     r.Snapshots,
		DMA:           r.DMA,
		Guard:         r.Guard,
		Dispatch:      r.Dispatcher,
		Metrics:       r.Metrics,
		HandlerName:   "processor",
		OriginService: "ciris-agent",
	}

	r.Machine = state.New()
	processors := map[state.State]processor.SubProcessor{
		state.StateWakeup:   processor.NewWakeupProcessor(r.Engine, r.Machine, r.opts.ChannelID),
		state.StateWork:     processor.NewWorkProcessor(r.Engine),
		state.StatePlay:     processor.NewPlayProcessor(r.Engine),
		state.StateSolitude: processor.NewSolitudeProcessor(r.Engine),
	}
	if r.opts.DreamRunner != nil {
		processors[state.StateDream] = processor.NewDreamProcessor(r.opts.DreamRunner, r.opts.DreamDuration, r.log)
	}
	r.Loop = &processor.Loop{
		Machine:    r.Machine,
		Processors: processors,
		Log:        r.log,
		StopCh:     r.stopCh,
	}

	r.capabilityCount = countCapabilities(r.Services)
	r.serviceCount = r.capabilityCount
	return nil
}

func verifyComponents(r *Runtime) error {
	if r.Dispatcher == nil || r.Loop == nil {
		return fmt.Errorf("core components not built")
	}
	return nil
}

func countCapabilities(bus *registry.ServiceBus) int {
	total := 0
	for _, kind := range []registry.ServiceKind{registry.KindLLM, registry.KindMemory, registry.KindAudit, registry.KindTool, registry.KindComm} {
		total += len(bus.Bus(kind).Health())
	}
	return total
}
