// Package build drives a project through its stories one agent turn at a time.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/stories"
	"github.com/ItachiCrypto/appforge-sub001/internal/tools"
)

var storiesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "appforge_stories_finished_total",
	Help: "Stories finished by the build runner, by final status",
}, []string{"status"})

// ToolFunc executes one tool call requested during a turn.
type ToolFunc func(ctx context.Context, call tools.ToolCall) tools.ToolResult

// Agent runs one model turn for a directive. Every tool call the model makes
// goes through run; the turn returns when the model stops calling tools.
type Agent interface {
	Turn(ctx context.Context, directive string, run ToolFunc) error
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx context.Context, directive string, run ToolFunc) error

func (f AgentFunc) Turn(ctx context.Context, directive string, run ToolFunc) error {
	return f(ctx, directive, run)
}

// StepResult describes one dispatched story.
type StepResult struct {
	Story     *models.Story      `json:"story"`
	Index     int                `json:"index"`
	Directive string             `json:"directive"`
	ToolCalls int                `json:"tool_calls"`
	Failures  []tools.ToolResult `json:"failures,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// Runner dispatches stories against one target.
type Runner struct {
	exec   *tools.Executor
	agent  Agent
	target files.Target
	log    *slog.Logger
}

func NewRunner(exec *tools.Executor, agent Agent, target files.Target, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{exec: exec, agent: agent, target: target, log: logger}
}

// Step builds the next pending story. It returns a nil result when nothing is
// pending. The story ends in error when the agent fails or any tool call fails
// in a way the model cannot recover from; the returned error says why.
func (r *Runner) Step(ctx context.Context, list []*models.Story) (*StepResult, error) {
	story, idx := stories.NextPendingStory(list)
	if story == nil {
		return nil, nil
	}
	if err := stories.Start(story); err != nil {
		return nil, err
	}

	res := &StepResult{
		Story:     story,
		Index:     idx,
		Directive: stories.BuildStoryPrompt(*story, idx == 0),
	}
	start := time.Now()
	r.log.Info("story started", "story", story.ID, "target", r.target)

	turnErr := r.agent.Turn(ctx, res.Directive, func(ctx context.Context, call tools.ToolCall) tools.ToolResult {
		res.ToolCalls++
		out := r.exec.Execute(ctx, call, r.target)
		if !out.Recoverable() {
			res.Failures = append(res.Failures, out)
		}
		return out
	})
	if turnErr == nil && len(res.Failures) > 0 {
		turnErr = failureError(res.Failures)
	}
	res.Duration = time.Since(start)

	if err := stories.Finish(story, turnErr); err != nil {
		return res, err
	}
	storiesFinished.WithLabelValues(string(story.Status)).Inc()
	if turnErr != nil {
		r.log.Warn("story failed", "story", story.ID, "target", r.target, "tool_calls", res.ToolCalls, "err", turnErr)
		return res, fmt.Errorf("story %s: %w", story.ID, turnErr)
	}
	r.log.Info("story done", "story", story.ID, "target", r.target, "tool_calls", res.ToolCalls, "duration", res.Duration)
	return res, nil
}

// Run steps until no story is pending or ctx is done. A failed story does not
// stop the run; the next pending story is dispatched.
func (r *Runner) Run(ctx context.Context, list []*models.Story) (stories.Progress, error) {
	for {
		if err := ctx.Err(); err != nil {
			return stories.Summarize(list), err
		}
		res, err := r.Step(ctx, list)
		if res == nil {
			return stories.Summarize(list), err
		}
		if err != nil && ctx.Err() != nil {
			return stories.Summarize(list), err
		}
	}
}

func failureError(failures []tools.ToolResult) error {
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		msg := f.Name
		if f.Error != nil {
			msg = fmt.Sprintf("%s: %s", f.Name, f.Error.Message)
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}
