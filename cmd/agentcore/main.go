// Package main provides the CLI entry point for the agent core runtime.
//
// agentcore drives a single provider-agnostic agent turn against a
// configured provider/model, persisting the session and its message log to
// an embedded SQLite store.
//
// # Basic Usage
//
// Run one turn in a new session:
//
//	agentcore run --provider anthropic --model claude-sonnet-4-20250514 --message "hello"
//
// Continue an existing session:
//
//	agentcore run --session <id> --message "and then?"
//
// # Environment Variables
//
//   - AGENTCORE_CONFIG_DIR: directory holding credentials.json, tokens.json,
//     and sessions.db (default: ~/.agentcore)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY: provider API keys,
//     used to seed the credential store on first run
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus-core/internal/agent/agenterr"
	"github.com/haasonsaas/nexus-core/internal/agent/loop"
	"github.com/haasonsaas/nexus-core/internal/agent/registry"
	"github.com/haasonsaas/nexus-core/internal/agent/tools"
	"github.com/haasonsaas/nexus-core/internal/agent/transport"
	"github.com/haasonsaas/nexus-core/internal/auth"
	"github.com/haasonsaas/nexus-core/internal/store"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentcore",
		Short:        "Provider-agnostic AI agent turn runner",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd())
	root.AddCommand(buildSessionsCmd())
	return root
}

func configDir() string {
	if v := os.Getenv("AGENTCORE_CONFIG_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentcore"
	}
	return filepath.Join(home, ".agentcore")
}

type runFlags struct {
	provider  string
	model     string
	message   string
	sessionID string
	sandbox   string
	tools     bool
	timeout   time.Duration
}

func buildRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single agent turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.provider, "provider", "anthropic", "provider id (anthropic, openai, google)")
	cmd.Flags().StringVar(&f.model, "model", "", "model id (default: provider's default model)")
	cmd.Flags().StringVar(&f.message, "message", "", "user message to send")
	cmd.Flags().StringVar(&f.sessionID, "session", "", "existing session id to continue (default: start a new session)")
	cmd.Flags().StringVar(&f.sandbox, "sandbox", "", "sandbox root for tool execution (default: current directory)")
	cmd.Flags().BoolVar(&f.tools, "tools", true, "offer the builtin tool set to the model")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Minute, "overall turn timeout")
	cmd.MarkFlagRequired("message")
	return cmd
}

func runTurn(ctx context.Context, f runFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	dir := configDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	reg := registry.Default()
	provider := agentcore.ProviderID(f.provider)
	descriptor, ok := reg.Get(provider)
	if !ok {
		return fmt.Errorf("unknown provider %q", f.provider)
	}
	model := f.model
	if model == "" {
		model = descriptor.DefaultModel
	}

	creds := auth.NewCredentialStore(filepath.Join(dir, "credentials.json"))
	seedCredentialFromEnv(creds, agentcore.ProviderAnthropic, "ANTHROPIC_API_KEY")
	seedCredentialFromEnv(creds, agentcore.ProviderOpenAI, "OPENAI_API_KEY")
	seedCredentialFromEnv(creds, agentcore.ProviderGoogle, "GOOGLE_API_KEY")
	tokens := auth.NewTokenStore(filepath.Join(dir, "tokens.json"))

	toolRegistry := tools.NewRegistry()
	tools.RegisterBuiltins(toolRegistry)
	engine := tools.NewEngine(toolRegistry, tools.DefaultExecConfig())

	db, err := store.Open(filepath.Join(dir, "sessions.db"))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()

	sandboxRoot := f.sandbox
	if sandboxRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		sandboxRoot = wd
	}

	sess, history, err := loadOrCreateSession(ctx, db, f.sessionID, sandboxRoot)
	if err != nil {
		return err
	}

	l := loop.New(reg, transport.NewClient(), toolRegistry, engine, creds, tokens)

	userMsg := agentcore.Message{
		Role:    agentcore.RoleUser,
		Content: []agentcore.Block{agentcore.Text{TextValue: f.message}},
	}

	req := loop.TurnRequest{
		SessionID:    sess.ID,
		Session:      &sess,
		Provider:     provider,
		Model:        model,
		History:      history,
		UserMessage:  &userMsg,
		IncludeTools: f.tools,
		SandboxRoot:  sandboxRoot,
		WorkingDir:   sandboxRoot,
	}

	result, err := l.RunTurn(ctx, req, func(e loop.Event) {
		emitEvent(e)
	})
	if err != nil {
		persistSession(ctx, db, sess)
		return describeErr(err)
	}

	if _, err := db.AppendMessage(ctx, sess.ID, userMsg); err != nil {
		slog.Error("persist user message failed", "error", err)
	}
	for _, m := range result.NewMessages {
		if _, err := db.AppendMessage(ctx, sess.ID, m); err != nil {
			slog.Error("persist message failed", "error", err)
		}
	}
	if sess.Title == "" {
		title, _ := l.GenerateTitle(ctx, provider, f.message)
		sess.Title = title
	}
	persistSession(ctx, db, sess)

	for _, m := range result.NewMessages {
		if m.Role == agentcore.RoleAssistant {
			fmt.Println(m.Text())
		}
	}
	return nil
}

func loadOrCreateSession(ctx context.Context, db *store.Store, sessionID, workingDir string) (agentcore.Session, []agentcore.Message, error) {
	if sessionID != "" {
		sess, err := db.GetSession(ctx, sessionID)
		if err != nil {
			return agentcore.Session{}, nil, fmt.Errorf("load session %q: %w", sessionID, err)
		}
		history, err := db.ListMessages(ctx, sessionID, 0, 0)
		if err != nil {
			return agentcore.Session{}, nil, fmt.Errorf("load history for %q: %w", sessionID, err)
		}
		return sess, history, nil
	}

	now := time.Now()
	sess := agentcore.Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		UpdatedAt:  now,
		WorkingDir: workingDir,
		AgentState: agentcore.AgentStateIdle,
	}
	if err := db.CreateSession(ctx, sess); err != nil {
		return agentcore.Session{}, nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil, nil
}

func persistSession(ctx context.Context, db *store.Store, sess agentcore.Session) {
	sess.UpdatedAt = time.Now()
	if err := db.UpdateSession(ctx, sess); err != nil {
		slog.Error("persist session failed", "session", sess.ID, "error", err)
	}
}

func seedCredentialFromEnv(creds *auth.CredentialStore, provider agentcore.ProviderID, envVar string) {
	key := os.Getenv(envVar)
	if key == "" {
		return
	}
	if _, ok, _ := creds.Get(provider); ok {
		return
	}
	if err := creds.Set(provider, key); err != nil {
		slog.Warn("seed credential failed", "provider", provider, "error", err)
	}
}

func emitEvent(e loop.Event) {
	switch e.Type {
	case loop.EventTextDelta:
		fmt.Print(e.TextDelta)
	case loop.EventToolStart:
		slog.Info("tool call started", "tool", e.ToolCallName, "id", e.ToolCallID)
	case loop.EventToolEnd:
		slog.Info("tool call finished", "id", e.ToolCallID)
	}
}

func describeErr(err error) error {
	var agentErr *agenterr.AgentError
	if errors.As(err, &agentErr) {
		return fmt.Errorf("turn failed [%s]: %s", agentErr.Kind, agentErr.Error())
	}
	return err
}

func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted sessions",
	}
	cmd.AddCommand(buildSessionsShowCmd())
	return cmd
}

func buildSessionsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's message log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(filepath.Join(configDir(), "sessions.db"))
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer db.Close()

			sess, err := db.GetSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			fmt.Printf("session %s (%s) state=%s\n", sess.ID, sess.Title, sess.AgentState)

			msgs, err := db.ListMessages(cmd.Context(), args[0], 0, 0)
			if err != nil {
				return fmt.Errorf("load messages: %w", err)
			}
			for _, m := range msgs {
				fmt.Printf("--- %s ---\n%s\n", m.Role, m.Text())
			}
			return nil
		},
	}
	return cmd
}
