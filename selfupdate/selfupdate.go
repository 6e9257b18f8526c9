// Package selfupdate checks whether the git checkout the binary runs from is
// behind its remote, and optionally fast-forwards it.
package selfupdate

import (
	"bytes"
	"context"
	"ddnsguard/config"
	"ddnsguard/log"
	"ddnsguard/updater"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval = time.Hour
	DefaultRemote   = "origin"

	gitTimeout = 30 * time.Second
)

// Runner runs git with args in dir and returns its standard output.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

func ExecRunner(ctx context.Context, dir string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}

	return stdout.String(), nil
}

type Checker struct {
	Dir      string
	Remote   string
	Pull     bool
	Interval time.Duration
	Run      Runner
	Now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func New(c config.AutoUpdate) *Checker {
	remote := c.Remote
	if remote == "" {
		remote = DefaultRemote
	}

	return &Checker{
		Dir:      c.Dir,
		Remote:   remote,
		Pull:     c.Pull,
		Interval: c.Interval.Or(DefaultInterval),
		Run:      ExecRunner,
		Now:      time.Now,
	}
}

func (c *Checker) git(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	return c.Run(ctx, c.Dir, args...)
}

func (c *Checker) due() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	if !c.last.IsZero() && now.Sub(c.last) < c.Interval {
		return false
	}
	c.last = now
	return true
}

// Available reports whether the remote HEAD differs from the local one.
func (c *Checker) Available(ctx context.Context) (bool, error) {
	local, err := c.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return false, fmt.Errorf("failed read local revision: %w", err)
	}

	out, err := c.git(ctx, "ls-remote", c.Remote, "HEAD")
	if err != nil {
		return false, fmt.Errorf("failed read remote revision: %w", err)
	}

	fields := strings.Fields(out)
	if len(fields) == 0 {
		return false, errors.New("remote reported no HEAD")
	}

	localSHA, remoteSHA := strings.TrimSpace(local), fields[0]
	ctx = log.SWith(ctx, "local", localSHA, "remote", remoteSHA)
	if localSHA == remoteSHA {
		log.S(ctx).Infow("no new version available")
		return false, nil
	}

	log.S(ctx).Infow("new version detected")
	return true, nil
}

// Check runs at most once per Interval. When a new version is found and Pull
// is set, the checkout is fast-forwarded and updater.ErrRestartRequested is
// returned. Git failures are logged and never returned.
func (c *Checker) Check(ctx context.Context) error {
	if !c.due() {
		return nil
	}

	ctx = log.SWith(ctx, log.Stage("auto-update"), "dir", c.Dir, "git_remote", c.Remote)

	available, err := c.Available(ctx)
	if err != nil {
		log.S(ctx).Warnw("git check failed", zap.Error(err))
		return nil
	}

	if !available {
		return nil
	}

	if !c.Pull {
		log.S(ctx).Warnw("new version available, pull disabled")
		return nil
	}

	if _, err := c.git(ctx, "pull", "--ff-only"); err != nil {
		log.S(ctx).Errorw("git pull failed", zap.Error(err))
		return nil
	}

	log.S(ctx).Infow("update applied, requesting restart")
	return updater.ErrRestartRequested
}
