// Package diff extracts unified-diff blocks from free-form model output and
// reconstructs post-patch file content from their hunks.
//
// The applier uses a fixed 2-line context window around each hunk. Adjacent
// or overlapping hunks are not stitched together precisely; this is a known
// approximation kept for compatibility with downstream consumers, not a
// general-purpose patch implementation.
package diff

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	headerRe = regexp.MustCompile(`(?m)^diff --git a/(\S+) b/(\S+)\s*$`)
	hunkRe   = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
)

// contextWindow is the number of original lines emitted before and after
// each hunk.
const contextWindow = 2

// Hunk is one @@-delimited span of a diff block.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []string // raw hunk lines including the +/-/space prefix
}

// Block is one `diff --git` section of model output.
type Block struct {
	Path    string // worktree-relative target path (the "b/" side)
	Text    string // raw diff text for the block
	NewFile bool   // block carries a "new file" marker
	Hunks   []Hunk
}

// Extract scans text for unified-diff blocks. Blocks whose hunks are all
// malformed and which carry no new-file marker are dropped; remaining blocks
// are returned in encounter order.
func Extract(text string) []Block {
	headers := headerRe.FindAllStringSubmatchIndex(text, -1)
	if len(headers) == 0 {
		return nil
	}

	blocks := make([]Block, 0, len(headers))
	for i, h := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		raw := text[h[0]:end]
		path := text[h[4]:h[5]] // "b/" side

		b := Block{
			Path:    path,
			Text:    raw,
			NewFile: strings.Contains(raw, "new file"),
			Hunks:   parseHunks(raw),
		}
		if len(b.Hunks) == 0 && !b.NewFile {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// parseHunks walks the block body collecting well-formed hunks. A hunk header
// that fails to parse ends the previous hunk and is skipped. Only lines
// prefixed +, - or space belong to a hunk body; anything else (code fences,
// trailing prose, git metadata) terminates it.
func parseHunks(raw string) []Hunk {
	var hunks []Hunk
	var cur *Hunk

	lines := strings.Split(raw, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "@@") {
			m := hunkRe.FindStringSubmatch(line)
			if m == nil {
				cur = nil
				continue
			}
			hunks = append(hunks, Hunk{
				OldStart: atoiDefault(m[1], 1),
				OldCount: atoiDefault(m[2], 1),
				NewStart: atoiDefault(m[3], 1),
				NewCount: atoiDefault(m[4], 1),
			})
			cur = &hunks[len(hunks)-1]
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "\\"):
			// "\ No newline at end of file"
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			cur = nil
		case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"), strings.HasPrefix(line, " "):
			cur.Lines = append(cur.Lines, line)
		default:
			cur = nil
		}
	}
	return hunks
}

// Apply reconstructs the post-patch content of the block's target file given
// its original content (empty string for a new file). When hunk
// reconstruction yields nothing and the block is marked as a new file, the
// full content is recovered by stripping the +/context prefixes from the
// diff body.
func Apply(original string, b Block) string {
	orig, hadNewline := splitLines(original)

	var out []string
	for _, h := range b.Hunks {
		start := h.OldStart - 1
		if start < 0 {
			start = 0
		}

		// Leading context from the original file.
		pre := start - contextWindow
		if pre < 0 {
			pre = 0
		}
		for i := pre; i < start && i < len(orig); i++ {
			out = append(out, orig[i])
		}

		oldIdx := start
		for _, line := range h.Lines {
			switch {
			case strings.HasPrefix(line, "-"):
				oldIdx++
			case strings.HasPrefix(line, "+"):
				out = append(out, line[1:])
			default:
				out = append(out, strings.TrimPrefix(line, " "))
				oldIdx++
			}
		}

		// Trailing context following the consumed span.
		for i := oldIdx; i < oldIdx+contextWindow && i < len(orig); i++ {
			out = append(out, orig[i])
		}
	}

	if len(out) == 0 {
		if b.NewFile {
			return newFileContent(b)
		}
		return ""
	}

	content := strings.Join(out, "\n")
	if hadNewline || original == "" {
		content += "\n"
	}
	return content
}

// newFileContent recovers a whole new file by stripping +/context prefixes
// from every body line of the diff.
func newFileContent(b Block) string {
	var out []string
	for _, line := range strings.Split(b.Text, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"),
			strings.HasPrefix(line, "diff "), strings.HasPrefix(line, "index "),
			strings.HasPrefix(line, "@@"), strings.HasPrefix(line, "\\"),
			strings.HasPrefix(line, "new file"), strings.HasPrefix(line, "old mode"),
			strings.HasPrefix(line, "new mode"):
			continue
		case strings.HasPrefix(line, "+"):
			out = append(out, line[1:])
		case strings.HasPrefix(line, " "):
			out = append(out, line[1:])
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

func splitLines(s string) (lines []string, trailingNewline bool) {
	if s == "" {
		return nil, false
	}
	trailingNewline = strings.HasSuffix(s, "\n")
	lines = strings.Split(s, "\n")
	if trailingNewline {
		lines = lines[:len(lines)-1]
	}
	return lines, trailingNewline
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
