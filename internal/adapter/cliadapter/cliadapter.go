// Package cliadapter is a line-oriented stdin/stdout chat adapter: a
// concrete implementation of the adapter contract good enough to
// drive the SPEAK/OBSERVE round-trip end to end, per SPEC_FULL.md's
// §6 note. Grounded on the teacher's adapter-registration flow
// (services provided by an adapter are registered into the capability
// registry on Start) and hashicorp/go-hclog for its own lifecycle
// logging, bridged into the runtime's slog.Logger the way the
// teacher's GRPCLoader bridges plugin output through hclog.
package cliadapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/ciris-ai/ciris-core/internal/adapter"
	"github.com/ciris-ai/ciris-core/internal/dispatch"
	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/task"
)

const defaultObserveBacklog = 10

// Config configures the adapter.
type Config struct {
	ChannelID    string
	In           io.Reader
	Out          io.Writer
	TaskPriority int
	Log          hclog.Logger

	// AuthorID/AuthorName identify who is on the other end of In, for
	// task.Context.UserID/UserName and, downstream, dispatch.DispatchContext's
	// audit-trail authorship fields (spec.md §4.7 step 1).
	AuthorID   string
	AuthorName string
}

// Adapter reads lines from In as incoming messages (each becomes a new
// task via Tasks.CreateTask) and writes SPEAK action content to Out.
// It implements both adapter.Adapter (lifecycle) and
// dispatch.ActionService (the "speak"/"observe" capabilities it
// registers for itself).
type Adapter struct {
	cfg   Config
	tasks *task.Manager

	mu      sync.Mutex
	backlog []string

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, tasks *task.Manager) *Adapter {
	if cfg.TaskPriority == 0 {
		cfg.TaskPriority = 1
	}
	if cfg.Log == nil {
		cfg.Log = hclog.NewNullLogger()
	}
	return &Adapter{cfg: cfg, tasks: tasks}
}

var (
	_ adapter.Adapter        = (*Adapter)(nil)
	_ dispatch.ActionService = (*Adapter)(nil)
)

// Start launches the read loop in the background; it returns once the
// loop goroutine has been spawned, not once input ends.
func (a *Adapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.readLoop(runCtx)
	return nil
}

func (a *Adapter) readLoop(ctx context.Context) {
	defer close(a.done)
	scanner := bufio.NewScanner(a.cfg.In)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		a.recordObserved(line)
		if a.tasks != nil {
			t, err := a.tasks.CreateTask(ctx, line, a.cfg.ChannelID, a.cfg.TaskPriority, "")
			if err != nil {
				a.cfg.Log.Error("failed to create task from cli input", "error", err)
				continue
			}
			if a.cfg.AuthorID != "" || a.cfg.AuthorName != "" {
				t.Context.UserID = a.cfg.AuthorID
				t.Context.UserName = a.cfg.AuthorName
				if err := a.tasks.Store.UpdateTask(ctx, t); err != nil {
					a.cfg.Log.Error("failed to record task author", "error", err)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		a.cfg.Log.Warn("cli input scan ended with error", "error", err)
	}
}

func (a *Adapter) recordObserved(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.backlog = append(a.backlog, line)
	if len(a.backlog) > defaultObserveBacklog {
		a.backlog = a.backlog[len(a.backlog)-defaultObserveBacklog:]
	}
}

// Stop cancels the read loop and waits for it to exit.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel == nil {
		return nil
	}
	a.cancel()
	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Services advertises the comm capabilities this adapter provides.
func (a *Adapter) Services() []adapter.Registration {
	return []adapter.Registration{{
		Kind:         "comm",
		Name:         "cli-adapter",
		Priority:     1,
		Capabilities: []string{"speak", "observe"},
		Service:      a,
	}}
}

// Invoke implements dispatch.ActionService for SPEAK (write to Out)
// and OBSERVE (return the recent unconsumed input backlog).
func (a *Adapter) Invoke(_ context.Context, _ dispatch.DispatchContext, params dma.ActionParameters) (map[string]graph.AttrValue, error) {
	switch {
	case params.Speak != nil:
		if _, err := fmt.Fprintln(a.cfg.Out, params.Speak.Content); err != nil {
			return nil, fmt.Errorf("write speak output: %w", err)
		}
		return map[string]graph.AttrValue{"sent": graph.BoolAttr(true)}, nil
	case params.Observe != nil:
		a.mu.Lock()
		lines := append([]string(nil), a.backlog...)
		a.mu.Unlock()
		attrs := make([]graph.AttrValue, len(lines))
		for i, l := range lines {
			attrs[i] = graph.StringAttr(l)
		}
		return map[string]graph.AttrValue{"messages": graph.ListAttr(attrs)}, nil
	default:
		return nil, fmt.Errorf("cliadapter: unsupported action parameters")
	}
}
