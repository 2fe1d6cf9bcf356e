// Command ciris-agent runs the CIRIS agent runtime end to end: load
// config, initialize the seven startup phases, wait for a
// communication adapter, then drive the main processing loop until a
// shutdown signal arrives.
//
// Usage:
//
//	ciris-agent serve --config config.yaml
//	ciris-agent validate --config config.yaml
//	ciris-agent identity --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/ciris-ai/ciris-core/internal/adapter"
	"github.com/ciris-ai/ciris-core/internal/adapter/cliadapter"
	"github.com/ciris-ai/ciris-core/internal/config"
	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/state"
	coretask "github.com/ciris-ai/ciris-core/internal/task"

	"github.com/ciris-ai/ciris-core/internal/runtime"
)

// CLI is the top-level kong command set.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Initialize the runtime and run the processing loop."`
	Validate ValidateCmd `cmd:"" help:"Load and validate a config file without starting the runtime."`
	Identity IdentityCmd `cmd:"" help:"Print the agent's persisted identity record."`

	Config   string `short:"c" help:"Path to config YAML file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ciris-agent"),
		kong.Description("CIRIS autonomous agent runtime"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func loadConfig(ctx context.Context, path string, log *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(ctx, config.Options{
		FilePath: path,
		EnvFiles: []string{".env"},
		Log:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// ValidateCmd loads the config file (applying the full defaults >
// file > env > CLI-override layering) and reports success or the
// first validation failure, without building a Runtime.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	log := newLogger(cli.LogLevel)
	cfg, err := loadConfig(context.Background(), cli.Config, log)
	if err != nil {
		return err
	}
	fmt.Printf("config OK: db=%s audit_db=%s llm=%s/%s max_active_tasks=%d\n",
		cfg.DBPath, cfg.AuditDBPath, cfg.LLMEndpoint, cfg.LLMModel, cfg.MaxActiveTasks)
	return nil
}

// IdentityCmd opens the engine database and prints whatever identity
// record is persisted there, without starting the processing loop.
type IdentityCmd struct{}

func (c *IdentityCmd) Run(cli *CLI) error {
	log := newLogger(cli.LogLevel)
	cfg, err := loadConfig(context.Background(), cli.Config, log)
	if err != nil {
		return err
	}

	rt := runtime.New(runtime.Options{Config: cfg, Log: log})
	ctx := context.Background()
	if err := rt.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer rt.Shutdown(ctx)

	id := rt.Identity
	fmt.Printf("agent_id=%s hash=%s profile=%q modification_count=%d permitted_actions=%v\n",
		id.AgentID, id.IdentityHash, id.CoreProfile, id.Metadata.ModificationCount, id.PermittedActions)
	return nil
}

// ServeCmd starts the runtime and drives the main loop until SIGINT,
// SIGTERM, or a negotiated internal shutdown request fires.
type ServeCmd struct {
	AgentID          string        `name:"agent-id" help:"Agent identifier used when creating a new identity." default:"ciris-agent"`
	ChannelID        string        `name:"channel-id" help:"Home channel for the wakeup sequence and CLI adapter." default:"default"`
	PermittedActions string        `name:"permitted-actions" help:"Comma-separated permitted action types, or 'all'." default:"all"`
	AwaitCommTimeout time.Duration `name:"await-comm-timeout" help:"How long to wait for a communication adapter before starting the loop." default:"30s"`
	NoCLIAdapter     bool          `name:"no-cli-adapter" help:"Don't start the built-in stdin/stdout CLI adapter."`
}

func parsePermittedActions(raw string) []dma.ActionType {
	if strings.EqualFold(strings.TrimSpace(raw), "all") || raw == "" {
		return dma.AllActions
	}
	var out []dma.ActionType
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToUpper(strings.TrimSpace(name))
		for _, a := range dma.AllActions {
			if string(a) == name {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

func (c *ServeCmd) Run(cli *CLI) error {
	log := newLogger(cli.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := loadConfig(ctx, cli.Config, log)
	if err != nil {
		return err
	}

	permitted := parsePermittedActions(c.PermittedActions)
	opts := runtime.Options{
		Config:           cfg,
		Log:              log,
		AgentID:          c.AgentID,
		ChannelID:        c.ChannelID,
		PermittedActions: permitted,
		DomainProfile:    dma.Profile{DomainID: dma.BaseDomain, PermittedActions: permitted},
		ResourceBudgets:  nil,
	}
	if !c.NoCLIAdapter {
		opts.AdapterFactory = func(tasks *coretask.Manager) []adapter.Adapter {
			return []adapter.Adapter{cliadapter.New(cliadapter.Config{
				ChannelID: c.ChannelID,
				In:        os.Stdin,
				Out:       os.Stdout,
			}, tasks)}
		}
	}

	rt := runtime.New(opts)
	if err := rt.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}

	if !c.NoCLIAdapter {
		if err := rt.AwaitCommunicationService(ctx, "speak", c.AwaitCommTimeout); err != nil {
			log.Warn("starting without a confirmed communication service", "error", err)
		}
	}

	go func() {
		select {
		case <-sigCh:
			log.Info("shutdown signal received")
			rt.RequestShutdown("signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	rt.Machine.Transition(state.StateWakeup)

	runErr := rt.Loop.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("processing loop: %w", runErr)
	}
	return nil
}
