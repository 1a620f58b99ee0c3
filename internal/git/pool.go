// Package git provides shared utilities for git CLI operations.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent git CLI operations using a weighted semaphore.
// All git exec calls across adapters should go through a shared Pool so that
// many agents provisioning worktrees at once do not exhaust the host.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent git operations.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot. Blocks if all slots
// are busy. Returns ctx.Err() if the context is cancelled while waiting.
// A nil pool executes fn directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Exec runs a git command in dir through the pool and returns its trimmed
// combined output.
func (p *Pool) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	var out string
	err := p.Run(ctx, func() error {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		var buf bytes.Buffer
		cmd.Stdout = &buf
		cmd.Stderr = &buf
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(buf.String()), err)
		}
		out = strings.TrimSpace(buf.String())
		return nil
	})
	return out, err
}
