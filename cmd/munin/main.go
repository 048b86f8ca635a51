// Package main is the entry point for Munin, a conversational smart-home
// agent for Home Assistant.
//
// Munin bridges Telegram and a web chat surface to an LLM provider
// (Anthropic, OpenAI-compatible, or Gemini) with tools for reading and
// changing Home Assistant state, guarded by an operating mode and rate
// limits, with a full audit trail in SQLite.
//
// Start the agent:
//
//	munin serve
//
// Configuration comes from /data/options.json (Home Assistant add-on
// options) overridden by MUNIN_* environment variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/munin-ai/munin/internal/agent"
	"github.com/munin-ai/munin/internal/config"
	"github.com/munin-ai/munin/internal/cron"
	"github.com/munin-ai/munin/internal/gitops"
	"github.com/munin-ai/munin/internal/homeassistant"
	"github.com/munin-ai/munin/internal/llm"
	"github.com/munin-ai/munin/internal/mode"
	"github.com/munin-ai/munin/internal/ratelimit"
	"github.com/munin-ai/munin/internal/store"
	"github.com/munin-ai/munin/internal/telegram"
	"github.com/munin-ai/munin/internal/tools"
	"github.com/munin-ai/munin/internal/tools/hatools"
	"github.com/munin-ai/munin/internal/tools/memorytools"
	"github.com/munin-ai/munin/internal/tools/searchtools"
	"github.com/munin-ai/munin/internal/web"
	"github.com/munin-ai/munin/pkg/models"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "munin",
		Short:         "Conversational smart-home agent for Home Assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd(), buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("munin %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var optionsPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), optionsPath)
		},
	}
	cmd.Flags().StringVarP(&optionsPath, "options", "o", config.DefaultOptionsPath,
		"Path to the add-on options file")
	return cmd
}

func runServe(ctx context.Context, optionsPath string) error {
	cfg, err := config.Load(optionsPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	log := slog.With("component", "main")
	log.Info("starting munin", "version", version, "provider", cfg.LLMProvider, "model", cfg.LLMModel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}

	provider, err := llm.New(llm.Config{
		Provider:    cfg.LLMProvider,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		BaseURL:     cfg.LLMBaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		st.Close()
		return err
	}

	modes := mode.NewManager(mode.Config{
		InitialMode:  mode.Mode(cfg.OperatingMode),
		YoloDuration: time.Duration(cfg.YoloModeDurationMinutes) * time.Minute,
	})
	limits := ratelimit.NewLimiter(ratelimit.Config{
		DeletionsPerHour:     cfg.DeletionsPerHour,
		ModificationsPerHour: cfg.ModificationsPerHour,
		Window:               time.Hour,
		Enabled:              !cfg.RateLimitDisabled,
	})

	git := gitops.NewManager(gitops.Config{
		Enabled:     cfg.GitEnabled,
		RepoPath:    cfg.GitRepoPath,
		AuthorName:  cfg.GitAuthorName,
		AuthorEmail: cfg.GitAuthorEmail,
	})
	git.Initialize(ctx)

	metrics := web.NewMetrics()
	provider = llm.Instrument(provider, func(name, model string, usage models.Usage, err error) {
		metrics.ObserveLLMRequest(name, model, usage, err == nil)
	})

	registry := tools.NewRegistry(tools.Config{
		Modes:  modes,
		Limits: limits,
		OnExecution: func(name string, args map[string]any, result string, durationMs int64, success bool, execErr error) {
			metrics.ObserveToolExecution(name, float64(durationMs)/1000, success)
			errMsg := ""
			if execErr != nil {
				errMsg = execErr.Error()
			}
			if _, err := st.Audit.LogToolExecution(context.Background(), name,
				fmt.Sprintf("%v", args), result, durationMs, success, nil, errMsg); err != nil {
				log.Warn("tool execution audit failed", "tool", name, "error", err)
			}
			if success && git.Enabled() && changesConfig(name) {
				go func() {
					_, err := git.Snapshot(context.Background(), "munin: "+name)
					if err != nil && err != gitops.ErrNoChanges {
						log.Warn("config snapshot failed", "tool", name, "error", err)
					}
				}()
			}
		},
	})

	client := homeassistant.NewClient(homeassistant.ClientConfig{
		URL:             cfg.HomeAssistantURL,
		Token:           cfg.HomeAssistantToken,
		SupervisorToken: cfg.SupervisorToken,
	})
	bridge := homeassistant.NewBridge(homeassistant.BridgeConfig{
		URL:             cfg.HomeAssistantURL,
		Token:           cfg.HomeAssistantToken,
		SupervisorToken: cfg.SupervisorToken,
	})
	registryClient := homeassistant.NewRegistryClient(homeassistant.BridgeConfig{
		URL:             cfg.HomeAssistantURL,
		Token:           cfg.HomeAssistantToken,
		SupervisorToken: cfg.SupervisorToken,
	})

	for _, tool := range hatools.All(client, registryClient) {
		registry.Register(tool)
	}
	for _, tool := range memorytools.All(st.Memories) {
		registry.Register(tool)
	}
	for _, tool := range searchtools.All(searchtools.NewClient(searchtools.Config{})) {
		registry.Register(tool)
	}

	agentMgr := agent.NewManager(agent.Config{
		Provider:          provider,
		Registry:          registry,
		Modes:             modes,
		Store:             st,
		MaxHistory:        cfg.MaxHistory,
		MaxToolIterations: cfg.MaxToolIterations,
	})

	ownerID := strconv.FormatInt(cfg.TelegramOwnerID, 10)
	if err := agentMgr.LoadHistoryFromAudit(ctx, ownerID, cfg.MaxHistory); err != nil {
		log.Warn("history restore failed", "error", err)
	}

	telegram.NewHandler(telegram.Config{
		Client:  client,
		OwnerID: cfg.TelegramOwnerID,
		Handle: func(ctx context.Context, text string, user models.UserContext) string {
			metrics.ObserveMessage(string(models.SourceTelegram), "inbound")
			reply := agentMgr.ProcessMessage(ctx, text, user)
			if reply != "" {
				metrics.ObserveMessage(string(models.SourceTelegram), "outbound")
			}
			return reply
		},
	}, bridge)

	scheduler := cron.NewScheduler()
	if err := scheduler.AddJob("audit-retention", cron.DefaultRetentionSchedule,
		cron.RetentionJob(st, cfg.AuditRetentionDays)); err != nil {
		return err
	}
	scheduler.Start()

	server := web.NewServer(web.Config{
		Port:     cfg.WebPort,
		Chat:     agentMgr.ProcessMessage,
		Modes:    modes,
		Limits:   limits,
		Store:    st,
		Metrics:  metrics,
		Provider: provider.Name(),
		Model:    provider.Model(),
	})

	go bridge.Run(ctx)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	if !client.Ping(ctx) {
		log.Warn("Home Assistant API not reachable yet, continuing")
	}
	log.Info("munin is up", "web_port", cfg.WebPort, "mode", string(modes.Current()))

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			log.Error("web server failed", "error", err)
		}
	}

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("web shutdown", "error", err)
	}
	bridge.Stop()
	if err := provider.Close(); err != nil {
		log.Warn("provider close", "error", err)
	}
	if err := st.Close(); err != nil {
		log.Warn("store close", "error", err)
	}
	return nil
}

// changesConfig reports whether a successful tool run may have modified
// files under the Home Assistant config directory.
func changesConfig(toolName string) bool {
	for _, prefix := range []string{"create_", "update_", "delete_"} {
		if strings.HasPrefix(toolName, prefix) {
			return true
		}
	}
	return false
}
