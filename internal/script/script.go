// Package script replays scene commands from files. Plain command files hold
// one protocol line per line; files ending in .zy are zygomys programs that
// drive the scene through builtins.
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/core/protocol"
)

// CommentPrefix starts a comment line in command files.
const CommentPrefix = "#"

var ErrCommandFailed = errors.New("script command failed")

// Failure records one command that did not succeed.
type Failure struct {
	Line    int
	Command string
	Code    protocol.ErrorCode
}

// Report summarizes a replay.
type Report struct {
	Executed int
	Failures []Failure
}

func (r Report) OK() bool { return len(r.Failures) == 0 }

type Runner struct {
	executor *protocol.Executor
	logger   log.Log

	// StopOnError aborts a command file at its first failing line.
	StopOnError bool
}

func NewRunner(executor *protocol.Executor, logger log.Log) *Runner {
	if logger == nil {
		logger = log.Nop()
	}
	return &Runner{executor: executor, logger: logger.With(log.String("component", "script"))}
}

// RunFile runs path as a zygomys program when it ends in .zy and as a
// command file otherwise. A leading ~ is expanded.
func (r *Runner) RunFile(ctx context.Context, path string) (Report, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Report{}, fmt.Errorf("expand %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(expanded), ".zy") {
		src, err := os.ReadFile(expanded)
		if err != nil {
			return Report{}, fmt.Errorf("read script: %w", err)
		}
		return r.RunLisp(ctx, string(src))
	}

	f, err := os.Open(expanded)
	if err != nil {
		return Report{}, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	report, err := r.RunLines(ctx, f)
	r.logger.Info("Script finished",
		log.String("path", expanded),
		log.Int("executed", report.Executed),
		log.Int("failed", len(report.Failures)))
	return report, err
}

// RunLines executes every non-blank, non-comment line read from src.
func (r *Runner) RunLines(ctx context.Context, src io.Reader) (Report, error) {
	var report Report
	scanner := bufio.NewScanner(src)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, CommentPrefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		code := r.executor.Execute(ctx, line)
		report.Executed++
		if code == protocol.ErrorCodeSuccess {
			continue
		}
		report.Failures = append(report.Failures, Failure{Line: lineNo, Command: line, Code: code})
		if r.StopOnError {
			return report, fmt.Errorf("%w: line %d %q: %s", ErrCommandFailed, lineNo, line, code)
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("read commands: %w", err)
	}
	return report, nil
}
