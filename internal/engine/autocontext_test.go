package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hiveworks/hive/internal/config"
	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/port/worktree"
)

func writeWorktreeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestBuildAutoContextCollectsReadableFiles(t *testing.T) {
	env := newTestEngine(t)
	root := t.TempDir()
	writeWorktreeFile(t, root, "go.mod", "module example.com/demo\n")
	writeWorktreeFile(t, root, "README.md", "# Demo\n")
	writeWorktreeFile(t, root, "pkg/server.go", "package pkg\n")
	env.worktrees.changes = worktree.Changes{Staged: []string{"pkg/server.go"}, Unstaged: []string{"missing.go"}}

	a := &agent.Agent{ID: "a1", WorktreePath: root}
	msg := env.eng.buildAutoContext(context.Background(), a, "add a handler")
	if msg == nil {
		t.Fatal("expected a context message")
	}
	if msg.Role != agent.RoleSystem {
		t.Fatalf("expected system role, got %s", msg.Role)
	}
	if !strings.Contains(msg.Content, "add a handler") {
		t.Fatal("expected the intent in the preamble")
	}
	if !strings.Contains(msg.Content, "### go.mod") || !strings.Contains(msg.Content, "### pkg/server.go") {
		t.Fatalf("expected file sections, got:\n%s", msg.Content)
	}

	// Unreadable candidates are skipped, fixed files stay ahead of recents.
	if got := msg.Metadata["auto_context_files"]; got != "go.mod,README.md,pkg/server.go" {
		t.Fatalf("unexpected file list %q", got)
	}
}

func TestBuildAutoContextDisabledByAgentMetadata(t *testing.T) {
	env := newTestEngine(t)
	root := t.TempDir()
	writeWorktreeFile(t, root, "go.mod", "module example.com/demo\n")

	a := &agent.Agent{
		ID:           "a1",
		WorktreePath: root,
		Metadata:     map[string]string{"auto_context": "off"},
	}
	if msg := env.eng.buildAutoContext(context.Background(), a, "anything"); msg != nil {
		t.Fatalf("expected nil when disabled, got %+v", msg)
	}
}

func TestBuildAutoContextNoReadableFiles(t *testing.T) {
	env := newTestEngine(t)

	a := &agent.Agent{ID: "a1", WorktreePath: t.TempDir()}
	if msg := env.eng.buildAutoContext(context.Background(), a, "anything"); msg != nil {
		t.Fatalf("expected nil for empty worktree, got %+v", msg)
	}

	a.WorktreePath = ""
	if msg := env.eng.buildAutoContext(context.Background(), a, "anything"); msg != nil {
		t.Fatalf("expected nil without a worktree, got %+v", msg)
	}
}

func TestBuildAutoContextTruncatesLargeFiles(t *testing.T) {
	env := newTestEngine(t, func(cfg *config.Config) {
		cfg.Engine.AutoContextFileChars = 16
	})
	root := t.TempDir()
	writeWorktreeFile(t, root, "go.mod", strings.Repeat("x", 100))

	a := &agent.Agent{ID: "a1", WorktreePath: root}
	msg := env.eng.buildAutoContext(context.Background(), a, "check")
	if msg == nil {
		t.Fatal("expected a context message")
	}
	if !strings.Contains(msg.Content, truncationMarker) {
		t.Fatal("expected truncation marker")
	}
	if strings.Contains(msg.Content, strings.Repeat("x", 17)) {
		t.Fatal("expected file content capped")
	}
}

func TestBuildAutoContextStopsAtTotalBudget(t *testing.T) {
	env := newTestEngine(t, func(cfg *config.Config) {
		cfg.Engine.AutoContextTotalChars = 40
	})
	root := t.TempDir()
	writeWorktreeFile(t, root, "go.mod", strings.Repeat("a", 30))
	writeWorktreeFile(t, root, "README.md", strings.Repeat("b", 30))

	a := &agent.Agent{ID: "a1", WorktreePath: root}
	msg := env.eng.buildAutoContext(context.Background(), a, "check")
	if msg == nil {
		t.Fatal("expected a context message")
	}
	if got := msg.Metadata["auto_context_files"]; got != "go.mod" {
		t.Fatalf("expected only the first file within budget, got %q", got)
	}
}

func TestBuildAutoContextCapsRecentFiles(t *testing.T) {
	env := newTestEngine(t, func(cfg *config.Config) {
		cfg.Engine.AutoContextRecentFiles = 1
	})
	root := t.TempDir()
	writeWorktreeFile(t, root, "a.go", "package a\n")
	writeWorktreeFile(t, root, "b.go", "package b\n")
	env.worktrees.changes = worktree.Changes{Staged: []string{"a.go", "b.go"}}

	a := &agent.Agent{ID: "a1", WorktreePath: root}
	msg := env.eng.buildAutoContext(context.Background(), a, "check")
	if msg == nil {
		t.Fatal("expected a context message")
	}
	if got := msg.Metadata["auto_context_files"]; got != "a.go" {
		t.Fatalf("expected only one recent file, got %q", got)
	}
}

func TestBuildAutoContextReadsThroughCache(t *testing.T) {
	env := newTestEngine(t)
	fc := newFakeCache()
	env.eng.SetCache(fc, time.Minute)

	root := t.TempDir()
	writeWorktreeFile(t, root, "go.mod", "module example.com/demo\n")

	a := &agent.Agent{ID: "a1", WorktreePath: root}
	if msg := env.eng.buildAutoContext(context.Background(), a, "first"); msg == nil {
		t.Fatal("expected a context message")
	}

	// Remove the file from disk; the second build must come from the cache.
	if err := os.Remove(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	msg := env.eng.buildAutoContext(context.Background(), a, "second")
	if msg == nil {
		t.Fatal("expected a cached context message")
	}
	if !strings.Contains(msg.Content, "module example.com/demo") {
		t.Fatal("expected cached file content")
	}
}

func TestAutoContextIsEphemeral(t *testing.T) {
	env := newTestEngine(t)
	a := env.createAgent(t, "chat")
	writeWorktreeFile(t, a.WorktreePath, "go.mod", "module example.com/demo\n")

	if _, err := env.eng.SendMessage(context.Background(), a.ID, "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The backend saw the context message; the persisted history did not.
	sent := env.prov.sentMessages()
	found := false
	for _, m := range sent {
		if strings.Contains(m.Content, "Project context for:") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected context message sent to the backend")
	}

	got, err := env.eng.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, m := range got.Messages {
		if strings.Contains(m.Content, "Project context for:") {
			t.Fatal("context message must not be persisted")
		}
	}
}

func TestSendMessageCanDisableAutoContext(t *testing.T) {
	env := newTestEngine(t)
	a := env.createAgent(t, "chat")
	writeWorktreeFile(t, a.WorktreePath, "go.mod", "module example.com/demo\n")

	opts := &SendOptions{DisableAutoContext: true}
	if _, err := env.eng.SendMessage(context.Background(), a.ID, "hi", opts); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, m := range env.prov.sentMessages() {
		if strings.Contains(m.Content, "Project context for:") {
			t.Fatal("expected no context message when disabled per call")
		}
	}
}
