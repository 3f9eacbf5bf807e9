package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/core/internal/config"
	"github.com/opencode-ai/core/internal/db"
	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/filetracker"
	"github.com/opencode-ai/core/internal/hook"
	"github.com/opencode-ai/core/internal/lock"
	"github.com/opencode-ai/core/internal/logging"
	"github.com/opencode-ai/core/internal/permission"
	"github.com/opencode-ai/core/internal/project"
	"github.com/opencode-ai/core/internal/provider"
	"github.com/opencode-ai/core/internal/repo"
	"github.com/opencode-ai/core/internal/server"
	"github.com/opencode-ai/core/internal/session"
	"github.com/opencode-ai/core/internal/tool"
	"github.com/opencode-ai/core/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	directory, _ := cmd.Flags().GetString("directory")
	if directory == "" {
		directory, _ = os.Getwd()
	}

	cfg, err := config.Load(directory)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logging.Init(logging.Config{Level: logging.ParseLevel(cfg.LogLevel)})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A failed migration leaves the database untouched and is fatal.
	database, err := db.Connect(ctx, cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	bus := event.NewBus()
	defer bus.Close()
	repository := repo.New(database, bus)

	if _, err := db.ImportLegacy(ctx, database, cfg.DataDir); err != nil {
		logging.Warn().Err(err).Msg("legacy storage import failed")
	}

	projects := project.NewService(repository)
	current, err := projects.Resolve(ctx, directory)
	if err != nil {
		return err
	}
	if len(cfg.Permissions) > 0 {
		if err := repository.SetProjectPermissions(ctx, current.ID, cfg.Permissions); err != nil {
			return err
		}
	}

	gate := permission.NewGate(bus)
	gate.Persist = func(ctx context.Context, sessionID string, rules []types.PermissionRule) error {
		_, err := repository.UpdateSession(ctx, sessionID, func(s *types.Session) {
			s.Permissions = append(rules, s.Permissions...)
		})
		return err
	}

	tools := tool.DefaultRegistry()
	tools.SetTodoStore(repository)

	providers := provider.NewRegistry(cfg.Model)
	registerProviders(ctx, providers, cfg)

	tracker := filetracker.New(repository, bus)
	if err := tracker.Watch(ctx, directory); err != nil {
		logging.Warn().Err(err).Msg("file watcher unavailable")
	}

	locks := lock.NewManager()
	sessions := session.NewService(session.Config{
		Repo:      repository,
		Locks:     locks,
		Gate:      gate,
		Hooks:     hook.NewDispatcher(),
		Tools:     tools,
		Providers: providers,
		Truncator: tool.NewTruncator(cfg.DataDir + "/tool-output"),
		Agents:    mergeAgents(cfg.Agents),
		Tracker:   tracker,
	})
	sessions.DisableCompaction = cfg.DisableCompaction

	srvCfg := server.DefaultConfig()
	srvCfg.Hostname = cfg.Server.Hostname
	srvCfg.Port = cfg.Server.Port
	srvCfg.Directory = directory
	srvCfg.DataDir = cfg.DataDir
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		srvCfg.Port = port
	}
	if host, _ := cmd.Flags().GetString("hostname"); host != "" {
		srvCfg.Hostname = host
	}

	srv := server.New(srvCfg, sessions, projects, current)
	srv.Dispose = func(ctx context.Context) error {
		locks.CancelAll()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("hostname", srvCfg.Hostname).Int("port", srvCfg.Port).Msg("listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	// Drain: cancel in-flight turns, stop the listener, flush SQLite.
	locks.CancelAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server shutdown incomplete")
	}
	return nil
}

// registerProviders wires every configured or env-discoverable
// provider; missing credentials just skip a provider.
func registerProviders(ctx context.Context, registry *provider.Registry, cfg *config.Config) {
	enabled := func(name string) (config.ProviderConfig, bool) {
		pc := cfg.Providers[name]
		return pc, pc.Enabled == nil || *pc.Enabled
	}

	if pc, ok := enabled("anthropic"); ok {
		p, err := provider.NewAnthropicProvider(ctx, &provider.AnthropicConfig{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model,
		})
		if err == nil {
			registry.Register(p)
		} else {
			logging.Debug().Err(err).Msg("anthropic provider unavailable")
		}
	}

	if pc, ok := enabled("openai"); ok {
		p, err := provider.NewOpenAIProvider(ctx, &provider.OpenAIConfig{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model,
		})
		if err == nil {
			registry.Register(p)
		} else {
			logging.Debug().Err(err).Msg("openai provider unavailable")
		}
	}

	if pc, ok := enabled("ark"); ok {
		p, err := provider.NewArkProvider(ctx, &provider.ArkConfig{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model,
		})
		if err == nil {
			registry.Register(p)
		} else {
			logging.Debug().Err(err).Msg("ark provider unavailable")
		}
	}
}

func mergeAgents(overrides map[string]types.Agent) map[string]types.Agent {
	agents := session.DefaultAgents()
	for name, agent := range overrides {
		if agent.Name == "" {
			agent.Name = name
		}
		agents[name] = agent
	}
	return agents
}
