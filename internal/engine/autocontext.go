package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hiveworks/hive/internal/domain/agent"
)

// fixedContextFiles are high-value project files always considered for
// auto-context, ahead of recently changed paths.
var fixedContextFiles = []string{
	"go.mod",
	"package.json",
	"README.md",
	"Makefile",
	".hive.yaml",
}

const truncationMarker = "\n... [truncated]"

// buildAutoContext assembles a size-capped ephemeral system message from
// project files grounding the given intent. Returns nil when auto-context is
// disabled for the agent, the worktree path is unresolvable, or no candidate
// file was readable. The returned message is never persisted.
func (e *Engine) buildAutoContext(ctx context.Context, a *agent.Agent, intent string) *agent.Message {
	if a.Metadata["auto_context"] == "off" {
		return nil
	}
	root := a.WorktreePath
	if root == "" {
		return nil
	}

	candidates := e.contextCandidates(ctx, root)

	var (
		sections []string
		used     []string
		total    int
	)
	for _, rel := range candidates {
		content, err := e.readProjectFile(ctx, filepath.Join(root, rel))
		if err != nil {
			continue
		}
		if len(content) > e.cfg.AutoContextFileChars {
			content = content[:e.cfg.AutoContextFileChars] + truncationMarker
		}
		if total+len(content) > e.cfg.AutoContextTotalChars {
			break
		}
		sections = append(sections, fmt.Sprintf("### %s\n%s", rel, content))
		used = append(used, rel)
		total += len(content)
	}
	if len(used) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Project context for: ")
	b.WriteString(intent)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(sections, "\n\n"))

	slog.Debug("auto-context built", "agent_id", a.ID, "files", len(used), "chars", total)
	return &agent.Message{
		ID:      newID(),
		Role:    agent.RoleSystem,
		Content: b.String(),
		Metadata: map[string]string{
			"auto_context_files": strings.Join(used, ","),
			"auto_context_chars": strconv.Itoa(total),
		},
		CreatedAt: e.now().UTC(),
	}
}

// contextCandidates returns the deduplicated, capped candidate list: fixed
// filenames first, then up to the configured number of recently changed
// paths with staged entries ahead of unstaged.
func (e *Engine) contextCandidates(ctx context.Context, root string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p == "" || seen[p] || len(out) >= e.cfg.AutoContextMaxFiles {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, f := range fixedContextFiles {
		add(f)
	}

	changes, err := e.worktrees.GetChanges(ctx, root)
	if err != nil {
		slog.Debug("auto-context changes", "worktree", root, "error", err)
		return out
	}
	recent := 0
	for _, p := range append(append([]string{}, changes.Staged...), changes.Unstaged...) {
		if recent >= e.cfg.AutoContextRecentFiles {
			break
		}
		before := len(out)
		add(p)
		if len(out) > before {
			recent++
		}
	}
	return out
}

// readProjectFile reads one file through the cache when attached.
func (e *Engine) readProjectFile(ctx context.Context, path string) (string, error) {
	if e.cache != nil {
		if data, ok := e.cache.Get(ctx, path); ok {
			return string(data), nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if e.cache != nil {
		e.cache.Set(ctx, path, data, e.cacheTTL)
	}
	return string(data), nil
}
