// Package adapter defines the adapter contract (spec.md §6): a
// pluggable I/O boundary that starts/stops alongside the runtime and
// registers the action services it provides into the capability
// registry (C5). Grounded on the teacher's adapter-registration flow
// (plugins.Plugin lifecycle dispensed through plugins/grpc, simplified
// here to an in-process interface since the pack's hashicorp/go-plugin
// RPC machinery has no SPEC_FULL.md component that needs out-of-process
// adapters — only its logging half, hashicorp/go-hclog, is wired, as
// the bridge from an adapter's own log calls into the runtime's slog).
package adapter

import (
	"context"

	"github.com/ciris-ai/ciris-core/internal/dispatch"
)

// Registration is one capability an adapter contributes to a
// registry bus on Start.
type Registration struct {
	Kind         string // registry.ServiceKind value, e.g. "comm"
	Name         string
	Priority     int
	Capabilities []string
	Service      dispatch.ActionService
}

// Adapter is the lifecycle contract every concrete I/O boundary
// implements (spec.md §4.9 phase 6: "start adapters; then register
// adapter-provided services into C5").
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Services() []Registration
}
