package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/sessions.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateSession(t *testing.T, s *Store, id string) {
	t.Helper()
	now := time.Now()
	if err := s.CreateSession(context.Background(), agentcore.Session{
		ID: id, Title: "test", CreatedAt: now, UpdatedAt: now,
		WorkingDir: "/tmp", AgentState: agentcore.AgentStateIdle,
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}
}

func TestSessionCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateSession(t, s, "sess-1")

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Title != "test" || got.AgentState != agentcore.AgentStateIdle {
		t.Fatalf("unexpected session: %+v", got)
	}

	got.Title = "renamed"
	got.AgentState = agentcore.AgentStateStreaming
	got.UpdatedAt = time.Now()
	if err := s.UpdateSession(ctx, got); err != nil {
		t.Fatalf("update session: %v", err)
	}
	reloaded, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if reloaded.Title != "renamed" || reloaded.AgentState != agentcore.AgentStateStreaming {
		t.Fatalf("update did not persist: %+v", reloaded)
	}

	if err := s.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.GetSession(ctx, "sess-1"); err == nil {
		t.Fatal("expected error reading deleted session")
	}
}

func TestAppendMessageRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateSession(t, s, "sess-1")

	input, _ := json.Marshal(map[string]string{"file_path": "README.md"})
	msg := agentcore.Message{
		Role: agentcore.RoleAssistant,
		Content: []agentcore.Block{
			agentcore.Text{TextValue: "reading file"},
			agentcore.ToolUse{ID: "call-1", Name: "read", Input: input},
		},
	}
	seq, err := s.AppendMessage(ctx, "sess-1", msg)
	if err != nil {
		t.Fatalf("append message: %v", err)
	}
	if seq == 0 {
		t.Fatal("expected nonzero seq")
	}

	msgs, err := s.ListMessages(ctx, "sess-1", 0, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	got := msgs[0]
	if got.Role != agentcore.RoleAssistant || len(got.Content) != 2 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	tu, ok := got.Content[1].(agentcore.ToolUse)
	if !ok || tu.ID != "call-1" || tu.Name != "read" {
		t.Fatalf("tool use did not round-trip: %+v", got.Content[1])
	}
}

func TestListMessagesPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateSession(t, s, "sess-1")

	for i := 0; i < 5; i++ {
		_, err := s.AppendMessage(ctx, "sess-1", agentcore.Message{
			Role:    agentcore.RoleUser,
			Content: []agentcore.Block{agentcore.Text{TextValue: "msg"}},
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := s.ListMessages(ctx, "sess-1", 2, 1)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page))
	}

	beyond, err := s.ListMessages(ctx, "sess-1", 10, 100)
	if err != nil {
		t.Fatalf("list beyond end: %v", err)
	}
	if len(beyond) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(beyond))
	}
}

func TestImportanceScoreMonotonicity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateSession(t, s, "sess-1")
	now := time.Now()

	if err := s.RecordFileActivity(ctx, "sess-1", "a.go", "read", now); err != nil {
		t.Fatalf("record read: %v", err)
	}
	before, err := s.TopFiles(ctx, "sess-1", 10, now)
	if err != nil {
		t.Fatalf("top files: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("expected 1 ranked file, got %d", len(before))
	}
	baseScore := before[0].Score

	if err := s.RecordFileActivity(ctx, "sess-1", "a.go", "write", now); err != nil {
		t.Fatalf("record write: %v", err)
	}
	afterWrite, err := s.TopFiles(ctx, "sess-1", 10, now)
	if err != nil {
		t.Fatalf("top files after write: %v", err)
	}
	if afterWrite[0].Score <= baseScore {
		t.Fatalf("score did not increase after write: before=%f after=%f", baseScore, afterWrite[0].Score)
	}

	if err := s.MarkUserReferenced(ctx, "sess-1", "a.go", now); err != nil {
		t.Fatalf("mark user referenced: %v", err)
	}
	afterRef, err := s.TopFiles(ctx, "sess-1", 10, now)
	if err != nil {
		t.Fatalf("top files after ref: %v", err)
	}
	if afterRef[0].Score <= afterWrite[0].Score {
		t.Fatalf("score did not increase after user_referenced: before=%f after=%f", afterWrite[0].Score, afterRef[0].Score)
	}
}

func TestTopFilesRanking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateSession(t, s, "sess-1")
	now := time.Now()

	if err := s.RecordFileActivity(ctx, "sess-1", "cold.go", "read", now); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordFileActivity(ctx, "sess-1", "hot.go", "write", now); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordFileActivity(ctx, "sess-1", "hot.go", "write", now); err != nil {
		t.Fatal(err)
	}

	top, err := s.TopFiles(ctx, "sess-1", 1, now)
	if err != nil {
		t.Fatalf("top files: %v", err)
	}
	if len(top) != 1 || top[0].FilePath != "hot.go" {
		t.Fatalf("expected hot.go ranked first, got %+v", top)
	}
}

func TestPreferences(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetPreference(ctx, "theme"); err != nil || ok {
		t.Fatalf("expected no preference set, got ok=%v err=%v", ok, err)
	}
	if err := s.SetPreference(ctx, "theme", "dark", "user-1", time.Now()); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	value, ok, err := s.GetPreference(ctx, "theme")
	if err != nil || !ok || value != "dark" {
		t.Fatalf("unexpected preference: value=%q ok=%v err=%v", value, ok, err)
	}
}

func TestBlockUIState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateSession(t, s, "sess-1")

	if err := s.SetBlockUIState(ctx, "sess-1", "block-1", "tool_call", true, 42); err != nil {
		t.Fatalf("set block ui state: %v", err)
	}
	// Upsert path: overwrite the same key.
	if err := s.SetBlockUIState(ctx, "sess-1", "block-1", "tool_call", false, 7); err != nil {
		t.Fatalf("update block ui state: %v", err)
	}
}
