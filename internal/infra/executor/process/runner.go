package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
)

// Config for the analyzer process.
type Config struct {
	Command string
	Args    []string // placed before the artifact path
	TempDir string
	Timeout time.Duration

	// Env is the explicit set of values forwarded to the analyzer.
	// InheritEnv names variables copied from this process; nothing else is passed.
	Env        map[string]string
	InheritEnv []string

	// BenignDiagnostics are regular expressions for stderr content that is not an error.
	BenignDiagnostics []string

	// MaxConcurrent bounds concurrently running analyzers, 0 means unbounded.
	MaxConcurrent int64
}

// Runner implements domain.Invoker by running the analyzer as a child process.
// Safe for concurrent use.
type Runner struct {
	cfg    Config
	benign []*regexp.Regexp
	sem    *semaphore.Weighted
	log    zerolog.Logger
}

func NewRunner(cfg Config, log zerolog.Logger) (*Runner, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("analyzer command is required")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = "temp"
	}
	r := &Runner{cfg: cfg, log: log.With().Str("component", "analyzer").Logger()}
	for _, p := range cfg.BenignDiagnostics {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("benign diagnostic pattern %q: %w", p, err)
		}
		r.benign = append(r.benign, re)
	}
	if cfg.MaxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	return r, nil
}

// Invoke writes text to a fresh artifact, runs the analyzer with the artifact
// path as its last argument and removes the artifact before returning.
func (r *Runner) Invoke(ctx context.Context, text string) (domain.Output, error) {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return domain.Output{}, &domain.InvocationError{Err: err}
		}
		defer r.sem.Release(1)
	}

	art, err := acquireArtifact(r.cfg.TempDir, text)
	if err != nil {
		return domain.Output{}, &domain.InvocationError{Err: err}
	}
	defer func() {
		if err := art.release(); err != nil {
			r.log.Error().Err(err).Str("artifact", art.Path).Msg("failed to remove artifact")
		}
	}()

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	args := make([]string, 0, len(r.cfg.Args)+1)
	args = append(args, r.cfg.Args...)
	args = append(args, art.Path)

	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	cmd.Env = r.environ()
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	diag := strings.TrimSpace(stderr.String())
	r.log.Debug().
		Str("artifact", art.Path).
		Dur("duration", time.Since(start)).
		Int("stdout_bytes", stdout.Len()).
		Int("stderr_bytes", stderr.Len()).
		Msg("analyzer finished")

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Output{}, &domain.InvocationError{Err: fmt.Errorf("timeout after %s", r.cfg.Timeout), Stderr: diag}
	}
	if err != nil {
		return domain.Output{}, &domain.InvocationError{Err: err, Stderr: diag}
	}
	if diag != "" && !r.isBenign(diag) {
		return domain.Output{}, &domain.DiagnosticError{Stderr: diag}
	}

	return domain.Output{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Check reports whether the analyzer command can be resolved.
func (r *Runner) Check(ctx context.Context) error {
	_, err := exec.LookPath(r.cfg.Command)
	return err
}

func (r *Runner) isBenign(diag string) bool {
	for _, re := range r.benign {
		if re.MatchString(diag) {
			return true
		}
	}
	return false
}

// environ builds the child environment from the allow-list only.
// Never nil: a nil Env would make exec inherit everything.
func (r *Runner) environ() []string {
	env := make([]string, 0, len(r.cfg.Env)+len(r.cfg.InheritEnv))
	for _, name := range r.cfg.InheritEnv {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	for k, v := range r.cfg.Env {
		if v != "" {
			env = append(env, k+"="+v)
		}
	}
	return env
}
