package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// maxWriteSize bounds the write tool's content argument, matching
// original_source/tools/implementations/write.rs's MAX_WRITE_SIZE (10MB).
const maxWriteSize = 10 << 20

// maxGlobResults caps how many paths the glob tool returns, matching
// original_source/tools/implementations/glob.rs's "up to 100 paths" bound.
const maxGlobResults = 100

// RegisterBuiltins adds the read/write/edit/glob/bash tools to reg. These
// are the concrete handlers exercised through C7/C8; everything above this
// layer (the loop, the engine) is tool-agnostic.
func RegisterBuiltins(reg *Registry) {
	reg.Register(readTool())
	reg.Register(writeTool())
	reg.Register(editTool())
	reg.Register(globTool())
	reg.Register(bashTool())
}

type readParams struct {
	FilePath string `json:"file_path"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
}

// readTool mirrors original_source's read implementation: a sandboxed file
// read with optional line-range slicing for large files.
func readTool() Tool {
	return Tool{
		ToolDescriptor: descriptor("read",
			"Read a file's contents. Supports an optional line offset/limit for large files.",
			json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_path": {"type": "string", "description": "The absolute path to the file to read"},
					"offset": {"type": "integer", "description": "Line number to start reading from (1-indexed, default 1)"},
					"limit": {"type": "integer", "description": "Maximum number of lines to read"}
				},
				"required": ["file_path"],
				"additionalProperties": false
			}`)),
		Handler: func(ctx *ToolContext, input json.RawMessage) (Result, error) {
			var p readParams
			if err := json.Unmarshal(input, &p); err != nil {
				return Result{Output: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
			}
			path, err := ctx.Resolve(p.FilePath)
			if err != nil {
				return Result{Output: "Access denied: " + err.Error(), IsError: true}, nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return Result{Output: err.Error(), IsError: true}, nil
			}
			if p.Offset <= 0 && p.Limit <= 0 {
				return Result{Output: string(data)}, nil
			}
			lines := strings.Split(string(data), "\n")
			start := p.Offset - 1
			if start < 0 {
				start = 0
			}
			if start > len(lines) {
				start = len(lines)
			}
			end := len(lines)
			if p.Limit > 0 && start+p.Limit < end {
				end = start + p.Limit
			}
			return Result{Output: strings.Join(lines[start:end], "\n")}, nil
		},
	}
}

type writeParams struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// writeTool mirrors write.rs: creates parent directories as needed and
// overwrites without backup, bounded by maxWriteSize.
func writeTool() Tool {
	return Tool{
		ToolDescriptor: descriptor("write",
			"Create new files or completely overwrite existing files. Prefer 'edit' for modifying existing files. Creates parent directories if needed. Max 10MB content.",
			json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_path": {"type": "string", "description": "The absolute path to the file to write"},
					"content": {"type": "string", "description": "The content to write to the file"}
				},
				"required": ["file_path", "content"],
				"additionalProperties": false
			}`)),
		Handler: func(ctx *ToolContext, input json.RawMessage) (Result, error) {
			var p writeParams
			if err := json.Unmarshal(input, &p); err != nil {
				return Result{Output: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
			}
			if len(p.Content) > maxWriteSize {
				return Result{Output: fmt.Sprintf("content too large: %d bytes (max %d MB)", len(p.Content), maxWriteSize/(1<<20)), IsError: true}, nil
			}
			path, err := ctx.ResolveNew(p.FilePath)
			if err != nil {
				return Result{Output: "Access denied: " + err.Error(), IsError: true}, nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return Result{Output: err.Error(), IsError: true}, nil
			}
			if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
				return Result{Output: err.Error(), IsError: true}, nil
			}
			return Result{Output: fmt.Sprintf("wrote %d bytes to %s", len(p.Content), path)}, nil
		},
	}
}

type editParams struct {
	FilePath   string `json:"file_path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all"`
}

// editTool mirrors edit.rs: exact string replacement, requiring a unique
// match unless replace_all is set.
func editTool() Tool {
	return Tool{
		ToolDescriptor: descriptor("edit",
			"Exact string replacement in files. Requires a unique old_string match unless replace_all is set.",
			json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_path": {"type": "string", "description": "The absolute path to the file to modify"},
					"old_string": {"type": "string", "description": "The text to replace"},
					"new_string": {"type": "string", "description": "The text to replace it with"},
					"replace_all": {"type": "boolean", "description": "Replace all occurrences (default: false)", "default": false}
				},
				"required": ["file_path", "old_string", "new_string"],
				"additionalProperties": false
			}`)),
		Handler: func(ctx *ToolContext, input json.RawMessage) (Result, error) {
			var p editParams
			if err := json.Unmarshal(input, &p); err != nil {
				return Result{Output: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
			}
			path, err := ctx.Resolve(p.FilePath)
			if err != nil {
				return Result{Output: "Access denied: " + err.Error(), IsError: true}, nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return Result{Output: err.Error(), IsError: true}, nil
			}
			content := string(data)
			count := strings.Count(content, p.OldString)
			if count == 0 {
				return Result{Output: "old_string not found in file", IsError: true}, nil
			}
			if !p.ReplaceAll && count > 1 {
				return Result{Output: fmt.Sprintf("old_string is not unique: %d matches found (use replace_all)", count), IsError: true}, nil
			}
			var updated string
			if p.ReplaceAll {
				updated = strings.ReplaceAll(content, p.OldString, p.NewString)
			} else {
				updated = strings.Replace(content, p.OldString, p.NewString, 1)
			}
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return Result{Output: err.Error(), IsError: true}, nil
			}
			return Result{Output: fmt.Sprintf("replaced %d occurrence(s) in %s", count, path)}, nil
		},
	}
}

type globParams struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
}

// globTool mirrors glob.rs: find files by pattern under a base directory,
// sorted by modification time (newest first), capped at maxGlobResults.
//
// path/filepath.Glob has no "**" recursive-wildcard support and none of the
// example repos import a third-party glob library (bmatcuk/doublestar and
// similar never appear in go.mod across the pack), so this walks the tree
// itself and matches each candidate against the pattern's final segment —
// the one concern in this file without a corpus-grounded library.
func globTool() Tool {
	return Tool{
		ToolDescriptor: descriptor("glob",
			"Find files by glob pattern (e.g. '**/*.go', 'src/**/*.ts'). Returns up to 100 paths sorted by modification time, newest first.",
			json.RawMessage(`{
				"type": "object",
				"properties": {
					"pattern": {"type": "string", "description": "Glob pattern (e.g. '**/*.go', 'src/**/*.ts')"},
					"path": {"type": "string", "description": "Base directory to search in (default: current directory)"}
				},
				"required": ["pattern"],
				"additionalProperties": false
			}`)),
		Handler: func(ctx *ToolContext, input json.RawMessage) (Result, error) {
			var p globParams
			if err := json.Unmarshal(input, &p); err != nil {
				return Result{Output: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
			}
			base := ctx.WorkingDir
			if p.Path != "" {
				resolved, err := ctx.Resolve(p.Path)
				if err != nil {
					return Result{Output: "Access denied: " + err.Error(), IsError: true}, nil
				}
				base = resolved
			}

			type match struct {
				path    string
				modTime time.Time
			}
			var matches []match
			err := filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() {
					return nil
				}
				rel, relErr := filepath.Rel(base, path)
				if relErr != nil {
					return nil
				}
				rel = filepath.ToSlash(rel)
				ok, matchErr := globMatch(p.Pattern, rel)
				if matchErr != nil || !ok {
					return nil
				}
				info, statErr := d.Info()
				if statErr != nil {
					return nil
				}
				matches = append(matches, match{path: path, modTime: info.ModTime()})
				return nil
			})
			if err != nil {
				return Result{Output: err.Error(), IsError: true}, nil
			}

			sort.Slice(matches, func(i, j int) bool { return matches[i].modTime.After(matches[j].modTime) })
			if len(matches) > maxGlobResults {
				matches = matches[:maxGlobResults]
			}
			out := make([]string, len(matches))
			for i, m := range matches {
				out[i] = m.path
			}
			return Result{Output: strings.Join(out, "\n")}, nil
		},
	}
}

// globMatch reports whether rel matches pattern, treating "**" as matching
// any number of path segments (including none) and deferring to
// path.Match semantics for everything else.
func globMatch(pattern, rel string) (bool, error) {
	if !strings.Contains(pattern, "**") {
		return filepath.Match(pattern, rel)
	}
	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")
	if prefix != "" && !strings.HasPrefix(rel, prefix) {
		return false, nil
	}
	remainder := strings.TrimPrefix(rel, prefix)
	remainder = strings.TrimPrefix(remainder, "/")
	if suffix == "" {
		return true, nil
	}
	// suffix may itself contain a single "*" segment glob; match against
	// every suffix-length tail of the remaining path components.
	segments := strings.Split(remainder, "/")
	for i := range segments {
		candidate := strings.Join(segments[i:], "/")
		if ok, _ := filepath.Match(suffix, candidate); ok {
			return true, nil
		}
	}
	return false, nil
}

type bashParams struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout_seconds"`
}

// bashTool runs a shell command with its working directory pinned inside
// the sandbox. Process execution has no ecosystem-library equivalent in
// the pack (the teacher's own channel integrations shell out via plain
// os/exec where they shell out at all), so this stays on os/exec.
func bashTool() Tool {
	return Tool{
		ToolDescriptor: descriptor("bash",
			"Run a shell command in the working directory. Output is captured and truncated to the tool output limit.",
			json.RawMessage(`{
				"type": "object",
				"properties": {
					"command": {"type": "string", "description": "The shell command to run"},
					"timeout_seconds": {"type": "integer", "description": "Timeout in seconds (default 30)"}
				},
				"required": ["command"],
				"additionalProperties": false
			}`)),
		Handler: func(ctx *ToolContext, input json.RawMessage) (Result, error) {
			var p bashParams
			if err := json.Unmarshal(input, &p); err != nil {
				return Result{Output: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
			}
			timeout := 30 * time.Second
			if p.Timeout > 0 {
				timeout = time.Duration(p.Timeout) * time.Second
			}
			runCtx, cancel := context.WithTimeout(ctx.Context, timeout)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", p.Command)
			cmd.Dir = ctx.WorkingDir
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out
			err := cmd.Run()
			if runCtx.Err() == context.DeadlineExceeded {
				return Result{Output: out.String() + "\n[command timed out]", IsError: true}, nil
			}
			if err != nil {
				return Result{Output: out.String() + "\n" + err.Error(), IsError: true}, nil
			}
			return Result{Output: out.String()}, nil
		},
	}
}

func descriptor(name, description string, schema json.RawMessage) agentcore.ToolDescriptor {
	return agentcore.ToolDescriptor{Name: name, Description: description, InputSchema: schema}
}
