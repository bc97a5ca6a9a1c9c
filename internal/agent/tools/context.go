package tools

import (
	"context"
	"fmt"
	"path/filepath"
)

// ToolContext is the sandboxed execution context handed to every tool
// handler: cancellation plus path resolution confined to SandboxRoot.
//
// Grounded on original_source/tools/path_utils.rs's validate_path/
// validate_new_path: Resolve canonicalizes and requires the result to be
// contained in SandboxRoot (for tools reading/operating on an existing
// path); ResolveNew additionally tolerates a not-yet-existing leaf, walking
// up to the nearest existing ancestor to containment-check against,
// exactly as the Rust original does for write targets whose parent
// directory may not exist yet either.
type ToolContext struct {
	context.Context
	SandboxRoot string
	WorkingDir  string
}

// NewToolContext builds a ToolContext rooted at sandboxRoot. workingDir is
// where relative paths are resolved from; it must itself be inside
// sandboxRoot.
func NewToolContext(ctx context.Context, sandboxRoot, workingDir string) *ToolContext {
	return &ToolContext{Context: ctx, SandboxRoot: sandboxRoot, WorkingDir: workingDir}
}

// Resolve validates an existing-path argument: it must resolve (following
// symlinks) to a path contained in SandboxRoot. Matches path_utils.rs's
// validate_path — no silent fallback on failure, per spec's containment
// invariant: a tool must receive an explicit error, never a coerced path,
// when resolution fails.
func (c *ToolContext) Resolve(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(path) {
		abs = filepath.Join(c.WorkingDir, path)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %q: %w", path, err)
	}

	if !withinSandbox(canonical, c.SandboxRoot) {
		return "", fmt.Errorf("access denied: path %q is outside workspace", path)
	}
	return canonical, nil
}

// ResolveNew validates a not-yet-existing write target: the nearest
// existing ancestor directory is canonicalized and containment-checked: if
// no ancestor exists yet (the whole chain is new), the raw joined path
// itself is checked lexically against SandboxRoot instead, matching
// validate_new_path's fallback when the parent directory doesn't exist.
func (c *ToolContext) ResolveNew(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(path) {
		abs = filepath.Join(c.WorkingDir, path)
	}

	parent := filepath.Dir(abs)
	canonicalParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		// No existing ancestor to canonicalize; fall back to a lexical
		// containment check on the raw joined path, same as the Rust
		// original's final else-branch.
		if !withinSandboxLexical(abs, c.SandboxRoot) {
			return "", fmt.Errorf("access denied: path %q is outside workspace", path)
		}
		return abs, nil
	}

	if !withinSandbox(canonicalParent, c.SandboxRoot) {
		return "", fmt.Errorf("access denied: path %q is outside workspace", path)
	}
	return filepath.Join(canonicalParent, filepath.Base(abs)), nil
}

func withinSandbox(candidate, root string) bool {
	canonicalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		canonicalRoot = root
	}
	return withinSandboxLexical(candidate, canonicalRoot)
}

func withinSandboxLexical(candidate, root string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !hasParentPrefix(rel))
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".." && (len(rel) == 2 || rel[2] == filepath.Separator)
}
