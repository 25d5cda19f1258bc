// Package git clones the repositories a workflow run needs into its workspace.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/tejas96/sdlc-agents-sub000/internal/log"
)

// Clone errors. Every clone failure wraps ErrCloneFailed; authentication and
// missing-repository failures additionally wrap ErrAuthFailed or ErrNotFound.
var (
	ErrCloneFailed = errors.New("clone failed")
	ErrAuthFailed  = errors.New("authentication failed")
	ErrNotFound    = errors.New("repository not found")
	ErrInvalidName = errors.New("invalid repository directory name")
)

// Repository names a remote to clone.
type Repository struct {
	URL    string `json:"url"`
	Name   string `json:"name,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// DirName is the directory the repository is cloned into: Name when set,
// otherwise the last path element of the URL without ".git".
func (r Repository) DirName() string {
	if r.Name != "" {
		return r.Name
	}
	u := strings.TrimSuffix(strings.TrimRight(r.URL, "/"), ".git")
	if i := strings.LastIndexAny(u, "/:"); i >= 0 {
		u = u[i+1:]
	}
	return path.Base(u)
}

// Validate checks that the repository has a URL and a directory name that
// is a single path element.
func (r Repository) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return errors.New("repository url is required")
	}
	dir := r.DirName()
	if dir == "" || dir == "." || dir == ".." || strings.ContainsAny(dir, `/\`) ||
		strings.Contains(dir, "..") || path.Clean(dir) != dir {
		return fmt.Errorf("%w: %q", ErrInvalidName, dir)
	}
	return nil
}

// Cloner clones repositories.
type Cloner interface {
	Clone(ctx context.Context, repo Repository, dest string) error
}

// Compile-time check that RealCloner implements Cloner.
var _ Cloner = (*RealCloner)(nil)

// RealCloner shells out to git.
type RealCloner struct {
	creds   Credentials
	gitPath string
	depth   int
}

// ClonerOption configures a RealCloner.
type ClonerOption func(*RealCloner)

// WithGitPath overrides the git executable.
func WithGitPath(p string) ClonerOption {
	return func(c *RealCloner) { c.gitPath = p }
}

// WithDepth sets the clone depth. Zero clones the full history.
func WithDepth(depth int) ClonerOption {
	return func(c *RealCloner) { c.depth = depth }
}

// NewCloner creates a RealCloner that authenticates with creds.
func NewCloner(creds Credentials, opts ...ClonerOption) *RealCloner {
	c := &RealCloner{creds: creds, gitPath: "git", depth: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone clones repo into dest. A dest that already holds a repository is left
// as is, so follow-up turns reuse earlier clones.
func (c *RealCloner) Clone(ctx context.Context, repo Repository, dest string) error {
	if repo.URL == "" {
		return fmt.Errorf("%w: empty repository url", ErrCloneFailed)
	}
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		log.Debug(log.CatGit, "repository already cloned", "dest", dest)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrCloneFailed, err)
	}

	url, err := AuthenticatedURL(repo.URL, c.creds)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCloneFailed, err)
	}

	args := []string{"clone"}
	if c.depth > 0 {
		args = append(args, "--depth", fmt.Sprint(c.depth))
	}
	if repo.Branch != "" {
		args = append(args, "--branch", repo.Branch)
	}
	args = append(args, "--", url, dest)

	//nolint:gosec // G204: args are built from validated config
	cmd := exec.CommandContext(ctx, c.gitPath, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Info(log.CatGit, "cloning", "url", RedactURL(repo.URL), "dest", dest, "branch", repo.Branch)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCloneFailed, ctx.Err())
		}
		return parseCloneError(RedactURL(strings.TrimSpace(stderr.String())), err)
	}
	return nil
}

// parseCloneError converts git stderr into one of the clone errors.
func parseCloneError(stderr string, originalErr error) error {
	lower := strings.ToLower(stderr)

	switch {
	case strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "could not read username"),
		strings.Contains(lower, "could not read password"),
		strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "403"):
		return fmt.Errorf("%w: %w: %s", ErrCloneFailed, ErrAuthFailed, stderr)
	case strings.Contains(lower, "not found"),
		strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "does not appear to be a git repository"),
		strings.Contains(lower, "404"):
		return fmt.Errorf("%w: %w: %s", ErrCloneFailed, ErrNotFound, stderr)
	}
	if stderr == "" {
		return fmt.Errorf("%w: %w", ErrCloneFailed, originalErr)
	}
	return fmt.Errorf("%w: %s: %w", ErrCloneFailed, stderr, originalErr)
}
