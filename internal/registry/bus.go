package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/ciris-ai/ciris-core/internal/errs"
)

// ServiceKind names one of the five capability buses spec.md §2 C5
// names explicitly: LLM, memory, audit, tool, comm (communication).
type ServiceKind string

const (
	KindLLM    ServiceKind = "llm"
	KindMemory ServiceKind = "memory"
	KindAudit  ServiceKind = "audit"
	KindTool   ServiceKind = "tool"
	KindComm   ServiceKind = "comm"
)

// registration is one entry in a Bus[T]: a named service instance,
// its priority (higher wins ties within the same capability), the
// capabilities it advertises, and its circuit breaker.
type registration[T any] struct {
	name         string
	service      T
	priority     int
	capabilities map[string]bool
	breaker      *CircuitBreaker
}

// Bus is a capability-indexed, priority-ordered, circuit-breaker-aware
// router over services of type T. One Bus[T] exists per ServiceKind
// (see ServiceBus). Grounded on the teacher's BaseRegistry[T] generic
// shape, extended with the priority/capability/breaker routing spec.md
// §2 C5 requires and the teacher's registry does not.
type Bus[T any] struct {
	mu   sync.RWMutex
	regs map[string]*registration[T]
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{regs: make(map[string]*registration[T])}
}

// Register adds a service under name with the given priority and
// capability set, wired to its own circuit breaker.
func (b *Bus[T]) Register(name string, service T, priority int, capabilities []string, breakerCfg BreakerConfig) error {
	if name == "" {
		return errs.New(errs.KindValidation, "service name cannot be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.regs[name]; exists {
		return errs.New(errs.KindValidation, "service "+name+" already registered")
	}
	capSet := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		capSet[c] = true
	}
	b.regs[name] = &registration[T]{
		name:         name,
		service:      service,
		priority:     priority,
		capabilities: capSet,
		breaker:      NewCircuitBreaker(breakerCfg),
	}
	return nil
}

// Deregister removes a named service.
func (b *Bus[T]) Deregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.regs, name)
}

// Clear removes every registration, per spec.md §4.10's negotiated
// shutdown step "clear service registry".
func (b *Bus[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs = make(map[string]*registration[T])
}

// Select returns the highest-priority service supporting capability
// whose circuit breaker currently allows traffic. Ties break by name
// for determinism. ErrNoHealthyService is returned if every candidate
// is open, and ErrNoCapableService if none advertise the capability at
// all — callers (internal/dispatch) distinguish the two to decide
// between PONDER-retry and a hard failure.
func (b *Bus[T]) Select(capability string) (T, *CircuitBreaker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var zero T
	candidates := make([]*registration[T], 0, len(b.regs))
	for _, r := range b.regs {
		if r.capabilities[capability] {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return zero, nil, ErrNoCapableService
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].name < candidates[j].name
	})
	for _, r := range candidates {
		if r.breaker.Allow() {
			return r.service, r.breaker, nil
		}
	}
	return zero, nil, ErrNoHealthyService
}

// Health reports the circuit breaker state of every registered
// service, used to build SystemSnapshot's circuit-breaker status.
func (b *Bus[T]) Health() map[string]BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]BreakerState, len(b.regs))
	for name, r := range b.regs {
		out[name] = r.breaker.State()
	}
	return out
}

// MarkResult records the outcome of a call against a previously
// selected service's breaker.
func (b *Bus[T]) MarkResult(name string, err error) {
	b.mu.RLock()
	r, ok := b.regs[name]
	b.mu.RUnlock()
	if !ok {
		return
	}
	if err != nil {
		r.breaker.RecordFailure()
	} else {
		r.breaker.RecordSuccess()
	}
}

// ServiceBus aggregates the five capability buses the runtime wires
// during initialization (C5). Concrete service interfaces (LLM
// clients, graph stores, audit sinks, tools, adapters) live in their
// own packages and are registered here as `any`, keeping this package
// free of import-cycle-inducing dependencies on them.
type ServiceBus struct {
	LLM    *Bus[any]
	Memory *Bus[any]
	Audit  *Bus[any]
	Tool   *Bus[any]
	Comm   *Bus[any]
}

// NewServiceBus builds the five empty buses.
func NewServiceBus() *ServiceBus {
	return &ServiceBus{
		LLM:    NewBus[any](),
		Memory: NewBus[any](),
		Audit:  NewBus[any](),
		Tool:   NewBus[any](),
		Comm:   NewBus[any](),
	}
}

// Bus returns the bus for a given kind.
func (s *ServiceBus) Bus(kind ServiceKind) *Bus[any] {
	switch kind {
	case KindLLM:
		return s.LLM
	case KindMemory:
		return s.Memory
	case KindAudit:
		return s.Audit
	case KindTool:
		return s.Tool
	case KindComm:
		return s.Comm
	default:
		return nil
	}
}

// Clear empties every one of the five buses.
func (s *ServiceBus) Clear() {
	s.LLM.Clear()
	s.Memory.Clear()
	s.Audit.Clear()
	s.Tool.Clear()
	s.Comm.Clear()
}

// HealthSnapshot reports the breaker state of every service across
// all five buses, keyed by "<kind>/<name>".
func (s *ServiceBus) HealthSnapshot(_ context.Context) map[string]BreakerState {
	out := map[string]BreakerState{}
	for _, kind := range []ServiceKind{KindLLM, KindMemory, KindAudit, KindTool, KindComm} {
		for name, state := range s.Bus(kind).Health() {
			out[string(kind)+"/"+name] = state
		}
	}
	return out
}
