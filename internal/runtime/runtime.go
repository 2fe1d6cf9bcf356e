// Package runtime wires every other package into one running agent
// (C13): a seven-phase initialization sequence, the bounded wait for a
// communication adapter, and negotiated shutdown. Grounded on the
// teacher's Option-configured Runtime (pkg/runtime/runtime.go), whose
// New() runs a fixed sequence of buildLLMs/buildEmbedders/.../buildAgents
// steps each returning a wrapped error, and whose Close() tears
// resources down in reverse order collecting every error rather than
// stopping at the first — generalized here into an explicit Phase list
// (Name, Run, Verify, Critical) instead of the teacher's ad hoc
// construction order, since spec.md §4.9 names the phases and their
// verification steps explicitly.
package runtime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-core/internal/adapter"
	"github.com/ciris-ai/ciris-core/internal/audit"
	"github.com/ciris-ai/ciris-core/internal/audit/signing"
	"github.com/ciris-ai/ciris-core/internal/clock"
	"github.com/ciris-ai/ciris-core/internal/config"
	"github.com/ciris-ai/ciris-core/internal/conscience"
	"github.com/ciris-ai/ciris-core/internal/dispatch"
	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/errs"
	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/identity"
	"github.com/ciris-ai/ciris-core/internal/llm"
	"github.com/ciris-ai/ciris-core/internal/observability"
	"github.com/ciris-ai/ciris-core/internal/persistence/sqlite"
	"github.com/ciris-ai/ciris-core/internal/processor"
	"github.com/ciris-ai/ciris-core/internal/registry"
	"github.com/ciris-ai/ciris-core/internal/secrets"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	"github.com/ciris-ai/ciris-core/internal/state"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
	corethought "github.com/ciris-ai/ciris-core/internal/thought"
	"github.com/ciris-ai/ciris-core/internal/tool"
)

// Options configures the agent this Runtime builds. Only Config is
// required; everything else has a workable default so tests can build
// a minimal Runtime without standing up every optional service.
type Options struct {
	Config *config.Config
	Log    *slog.Logger

	AgentID          string
	CoreProfile      string
	IdentityCreator  string
	PermittedActions []dma.ActionType
	DomainProfile    dma.Profile

	// ChannelID is the home channel the wakeup sequence and any
	// channel-less dispatch falls back to.
	ChannelID string

	// LLM overrides the httpllm.Client phase 6 otherwise builds from
	// Config.LLMEndpoint/LLMModel. Tests pass an llmtest.Fake here.
	LLM llm.Service

	// Adapters are started in phase 6 and their Services()
	// registrations added to the comm bus, per spec.md §4.9 phase 6.
	// Use this for adapters with no dependency on the task manager
	// (phase 7 builds Tasks, after phase 6 runs).
	Adapters []adapter.Adapter

	// AdapterFactory builds adapters that need the task manager (e.g.
	// cliadapter.Adapter, which creates a task per observed line) once
	// phase 7 has built it. These start and register onto the comm bus
	// alongside Options.Adapters, just one phase later.
	AdapterFactory func(tasks *coretask.Manager) []adapter.Adapter

	// Tools are additional TOOL-capability services registered
	// alongside whatever phase 6 builds by default (none, currently —
	// concrete tool backends are adapter/deployment specific).
	Tools []tool.Registration

	// ConscienceChecks are the guardrails phase 7's Guard runs; nil
	// means no guardrail checks beyond action selection itself.
	ConscienceChecks []conscience.Check

	// ResourceBudgets seeds phase 6's resource monitor.
	ResourceBudgets []observability.Budget

	// DreamRunner, if set, wires a DreamProcessor into the main loop's
	// DREAM state. Left nil, DREAM has no registered sub-processor and
	// the loop simply idles through it until the state machine leaves.
	DreamRunner   processor.BenchmarkRunner
	DreamDuration time.Duration
}

// Phase is one step of the seven spec.md §4.9 names: a handler plus a
// verifier, with Critical controlling whether its failure aborts
// startup (spec.md: "a failed critical step aborts startup").
type Phase struct {
	Name     string
	Run      func(ctx context.Context, r *Runtime) error
	Verify   func(r *Runtime) error
	Critical bool
}

// Runtime holds every live component built across the seven phases.
type Runtime struct {
	opts Options
	log  *slog.Logger

	Clock     clock.Clock
	DB        *sqlite.DB
	SecretsDB *sqlite.SecretsDB
	AuditDB   *sqlite.AuditDB

	Identity      *identity.Identity
	SecretsFilter *secrets.Filter
	SecretsVault  *secrets.SQLVault
	Keys          *signing.KeyStore
	AuditLog      *audit.Log

	Services  *registry.ServiceBus
	Tasks     *coretask.Manager
	Thoughts  *corethought.Manager
	Metrics   *observability.Metrics
	Resources *observability.ResourceMonitor
	Snapshots *snapshot.Builder

	DMA        *dma.Pipeline
	Guard      *conscience.Guard
	Dispatcher *dispatch.Dispatcher
	Engine     *processor.Engine
	Machine    *state.Machine
	Loop       *processor.Loop

	adapters []adapter.Adapter

	mu                 sync.Mutex
	startedAt          time.Time
	shutdownRequested  bool
	shutdownReason     string
	reactivationCount  int
	stopCh             chan struct{}
	loopDone           chan error
	capabilityCount    int
	serviceCount       int
}

// New constructs a Runtime that has not yet been initialized. Call
// Initialize to run the seven phases.
func New(opts Options) *Runtime {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.ChannelID == "" {
		opts.ChannelID = "default"
	}
	if opts.AgentID == "" {
		opts.AgentID = "ciris-agent"
	}
	if opts.CoreProfile == "" {
		opts.CoreProfile = "general-purpose autonomous agent"
	}
	if opts.IdentityCreator == "" {
		opts.IdentityCreator = "system"
	}
	return &Runtime{
		opts:   opts,
		log:    opts.Log,
		stopCh: make(chan struct{}),
	}
}

// phases returns the seven-phase table in order, per spec.md §4.9.
func (r *Runtime) phases() []Phase {
	return []Phase{
		{Name: "infrastructure", Run: phaseInfrastructure, Verify: verifyInfrastructure, Critical: true},
		{Name: "database", Run: phaseDatabase, Verify: verifyDatabase, Critical: true},
		{Name: "memory", Run: phaseMemory, Verify: verifyMemory, Critical: true},
		{Name: "identity", Run: phaseIdentity, Verify: verifyIdentity, Critical: true},
		{Name: "security", Run: phaseSecurity, Verify: verifySecurity, Critical: true},
		{Name: "services", Run: phaseServices, Verify: verifyServices, Critical: false},
		{Name: "components", Run: phaseComponents, Verify: verifyComponents, Critical: true},
	}
}

// Initialize runs every phase in order. A critical phase's failure
// (from Run or Verify) aborts startup immediately; a non-critical
// phase's failure is logged and initialization continues, per
// spec.md §4.9.
func (r *Runtime) Initialize(ctx context.Context) error {
	r.startedAt = time.Now()
	for _, phase := range r.phases() {
		r.log.Info("runtime phase starting", "phase", phase.Name)
		if err := phase.Run(ctx, r); err != nil {
			if phase.Critical {
				return errs.Wrap(errs.KindIntegrityFailure, "critical phase "+phase.Name+" failed", err)
			}
			r.log.Warn("non-critical phase failed, continuing", "phase", phase.Name, "error", err)
			continue
		}
		if phase.Verify != nil {
			if err := phase.Verify(r); err != nil {
				if phase.Critical {
					return errs.Wrap(errs.KindIntegrityFailure, "verification of phase "+phase.Name+" failed", err)
				}
				r.log.Warn("non-critical phase verification failed, continuing", "phase", phase.Name, "error", err)
				continue
			}
		}
		r.log.Info("runtime phase complete", "phase", phase.Name)
	}

	r.log.Info("runtime initialization complete",
		"identity", r.Identity.AgentID,
		"identity_hash", r.Identity.IdentityHash,
		"capability_count", r.capabilityCount,
		"service_count", r.serviceCount,
	)
	return nil
}

func generateVaultKey(log *slog.Logger) ([32]byte, error) {
	var key [32]byte
	if hexKey := os.Getenv("CIRIS_VAULT_KEY"); hexKey != "" {
		decoded, err := hex.DecodeString(hexKey)
		if err != nil || len(decoded) != 32 {
			return key, fmt.Errorf("CIRIS_VAULT_KEY must be 32 bytes hex-encoded")
		}
		copy(key[:], decoded)
		return key, nil
	}
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("generate ephemeral vault key: %w", err)
	}
	log.Warn("CIRIS_VAULT_KEY not set; generated an ephemeral secrets-vault key that will not survive a restart")
	return key, nil
}
