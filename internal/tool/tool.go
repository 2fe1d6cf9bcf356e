// Package tool defines the TOOL-action contract (C9's "tool" capability
// bus) and the shared Invoke shape every concrete tool backend
// implements, grounded on the teacher's pkg/tool.CallableTool
// (name/description/schema/call). internal/tool/mcptool supplies the
// one concrete backend: an MCP-server-backed tool set.
package tool

import (
	"context"

	"github.com/ciris-ai/ciris-core/internal/dispatch"
	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/graph"
)

// Descriptor is the metadata a tool service advertises for the
// snapshot's available-tools listing (spec.md §5's context builder
// consults this indirectly via the service registry's capability
// list).
type Descriptor struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Service is what a tool backend registers under registry.KindTool,
// one registration per advertised tool name (per dispatch's
// capabilityFor: TOOL's capability string is the tool's own name).
// Service itself satisfies dispatch.ActionService so it can be
// registered directly onto the bus.
type Service interface {
	dispatch.ActionService
	Descriptors(ctx context.Context) ([]Descriptor, error)
}

var _ dispatch.ActionService = (Service)(nil)

// Registration is what the runtime hands to the tool capability bus
// for one backend: its advertised tool names become the bus
// capabilities a TOOL action's tool_name resolves against (dispatch's
// capabilityFor uses the tool name itself as the capability string).
type Registration struct {
	Name     string
	Priority int
	Service  Service
}

// toArgs flattens a TOOL action's typed arguments into the untyped
// map an external tool protocol expects at its boundary.
func toArgs(params dma.ActionParameters) map[string]any {
	if params.Tool == nil {
		return nil
	}
	out := make(map[string]any, len(params.Tool.Arguments))
	for k, v := range params.Tool.Arguments {
		out[k] = v.ToAny()
	}
	return out
}

// fromResult coerces a tool protocol's untyped result map back into
// AttrValues for the dispatch outcome/audit payload.
func fromResult(result map[string]any) map[string]graph.AttrValue {
	out := make(map[string]graph.AttrValue, len(result))
	for k, v := range result {
		out[k] = graph.FromAny(v)
	}
	return out
}
