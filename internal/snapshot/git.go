package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// gitRunner runs one git command in dir and returns its trimmed stdout.
type gitRunner func(ctx context.Context, dir string, args ...string) (string, error)

func execGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// repo drives the snapshot working tree.
type repo struct {
	dir   string
	cfg   Config
	run   gitRunner
	files []string
}

// ensure initialises dir as a repository on the configured branch when it
// is not one yet.
func (r *repo) ensure(ctx context.Context) error {
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	if _, err := os.Stat(filepath.Join(r.dir, ".git")); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	_, err := r.run(ctx, r.dir, "init", "--initial-branch="+r.cfg.Branch)
	return err
}

// commit stages the snapshot files and commits them. An empty hash and nil
// error mean the tree was unchanged.
func (r *repo) commit(ctx context.Context, message string) (string, error) {
	if _, err := r.run(ctx, r.dir, append([]string{"add", "--"}, r.files...)...); err != nil {
		return "", err
	}
	status, err := r.run(ctx, r.dir, append([]string{"status", "--porcelain", "--"}, r.files...)...)
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", nil
	}
	if _, err := r.run(ctx, r.dir,
		"-c", "user.name="+r.cfg.AuthorName,
		"-c", "user.email="+r.cfg.AuthorEmail,
		"commit", "-m", message,
	); err != nil {
		return "", err
	}
	return r.run(ctx, r.dir, "rev-parse", "HEAD")
}

func (r *repo) push(ctx context.Context) error {
	_, err := r.run(ctx, r.dir, "push", r.cfg.Remote, "HEAD:"+r.cfg.Branch)
	return err
}
