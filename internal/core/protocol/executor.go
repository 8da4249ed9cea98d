package protocol

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/core/scene"
	"github.com/nslaift/nslaift/internal/core/transform"
)

// ReplyMode controls how much of a command's outcome reaches the client.
type ReplyMode uint8

const (
	// ReplyStatus answers each line with its ErrorCode.
	ReplyStatus ReplyMode = iota
	// ReplyAck answers every line with ErrorCodeSuccess.
	ReplyAck
)

func (m ReplyMode) String() string {
	if m == ReplyAck {
		return "ack"
	}
	return "status"
}

func ParseReplyMode(s string) (ReplyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "status":
		return ReplyStatus, nil
	case "ack":
		return ReplyAck, nil
	default:
		return ReplyStatus, fmt.Errorf("unknown reply mode %q", s)
	}
}

// Executor runs command lines against a single scene. Commands from any
// number of goroutines are applied one at a time.
type Executor struct {
	mu     sync.Mutex
	scene  *scene.Scene
	mode   ReplyMode
	logger log.Log
	closed bool
}

func NewExecutor(s *scene.Scene, mode ReplyMode, logger log.Log) *Executor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Executor{
		scene:  s,
		mode:   mode,
		logger: logger.With(log.String("component", "executor")),
	}
}

func (e *Executor) Mode() ReplyMode { return e.mode }

// Execute parses and runs line and returns the reply byte for it.
func (e *Executor) Execute(ctx context.Context, line string) ErrorCode {
	start := time.Now()
	cmd, err := Parse(line)
	if err == nil {
		err = e.Run(ctx, cmd)
	}
	code := GetErrorCode(err)

	if err != nil {
		e.logger.Warn("Command failed",
			log.String("line", strings.TrimSpace(line)),
			log.String("code", code.String()),
			log.Error(err),
		)
	} else {
		e.logger.Debug("Command executed",
			log.String("verb", cmd.Verb.String()),
			log.String("target", cmd.Target),
			log.Duration("elapsed", time.Since(start)),
		)
	}

	if e.mode == ReplyAck {
		return ErrorCodeSuccess
	}
	return code
}

// Run executes an already parsed command.
func (e *Executor) Run(ctx context.Context, cmd Command) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrExecutorClosed
	}
	defer func() {
		if r := recover(); r != nil {
			err = NewProtocolError(ErrorCodeInternalError, fmt.Sprintf("panic in %s", cmd.Verb), fmt.Errorf("%v", r))
		}
	}()

	switch cmd.Verb {
	case VerbCreateObject:
		_, err = e.scene.CreateEntity(cmd.Target, cmd.Action, cmd.Params)
	case VerbManipulateObject:
		err = e.scene.Manipulate(cmd.Target, cmd.Action, cmd.Params)
	case VerbRender:
		err = e.scene.Render(ctx, cmd.Iterations)
	case VerbDeleteObject:
		err = e.scene.DeleteEntity(cmd.Target)
	case VerbSetMaterial:
		err = e.scene.SetMaterial(cmd.Target, cmd.Params)
	case VerbSetBackgroundColor:
		c, perr := transform.ParseVec3(cmd.Params, transform.DefaultDelimiter)
		if perr != nil {
			return fmt.Errorf("%w: background color: %w", scene.ErrBadParameters, perr)
		}
		e.scene.SetBackgroundColor(c)
	case VerbClear:
		err = e.scene.Clear()
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownVerb, cmd.Verb)
	}
	return err
}

// Stats returns a snapshot of the scene under the executor lock.
func (e *Executor) Stats() scene.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scene.Stats()
}

// Close refuses further commands and releases the scene.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.scene.Close()
}
