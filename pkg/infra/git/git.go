package git

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/types"
)

// RunFunc runs git with args in dir and returns its stdout
type RunFunc func(ctx context.Context, dir string, args ...string) ([]byte, error)

// Resolver derives the build version from the current git commit.
// It satisfies interfaces.VersionResolver.
type Resolver struct {
	dir string
	run RunFunc
}

type Option func(*Resolver)

// WithRunner replaces the git invocation, mainly for tests
func WithRunner(run RunFunc) Option {
	return func(r *Resolver) {
		r.run = run
	}
}

// NewResolver creates a Resolver for the repository containing dir.
// An empty dir means the current working directory.
func NewResolver(dir string, opts ...Option) *Resolver {
	r := &Resolver{
		dir: dir,
		run: runGit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the abbreviated hash of HEAD
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	out, err := r.run(ctx, r.dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", goerr.Wrap(err, "failed to get git commit hash",
			goerr.T(types.ErrTagVersionResolution),
			goerr.V("dir", r.dir),
		)
	}

	version := Sanitize(string(out))
	if version == "" {
		return "", goerr.New("git returned empty commit hash",
			goerr.T(types.ErrTagVersionResolution),
			goerr.V("dir", r.dir),
		)
	}
	return version, nil
}

// Sanitize strips surrounding whitespace and line terminators from git output
func Sanitize(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\r\n"))
}

func runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, goerr.Wrap(err, "git command failed",
			goerr.V("args", args),
			goerr.V("stderr", strings.TrimSpace(stderr.String())),
		)
	}
	return stdout.Bytes(), nil
}
