// Package planexec wraps a stage in a bounded plan → execute → replan loop.
package planexec

import (
	"context"
	"fmt"

	"github.com/wonny/finadvisor/internal/agent"
	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/metrics"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/logger"
)

// State is a controller state. Finalized and BoundExhausted are terminal.
type State int

const (
	Planning State = iota
	Executing
	Replanning
	Finalized
	BoundExhausted
)

func (s State) String() string {
	switch s {
	case Planning:
		return "planning"
	case Executing:
		return "executing"
	case Replanning:
		return "replanning"
	case Finalized:
		return "finalized"
	case BoundExhausted:
		return "bound_exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Planner produces the initial step list for an objective
type Planner interface {
	Plan(ctx context.Context, objective string) ([]string, error)
}

// ReplanDecision is either a final response or a replacement plan
type ReplanDecision struct {
	Response *string
	Steps    []string
}

// Final reports whether the decision finalizes the stage
func (d ReplanDecision) Final() bool {
	return d.Response != nil
}

// Replanner decides, from progress so far, whether to finalize or continue
type Replanner interface {
	Replan(ctx context.Context, objective string, plan []string, past []contracts.PastStep) (ReplanDecision, error)
}

// StepRunner is a stage that can run single plan steps and commit a final text
type StepRunner interface {
	agent.Stage
	RunStep(ctx context.Context, st *contracts.PipelineState, step string, remaining []string) (*contracts.PipelineState, error)
	Commit(st *contracts.PipelineState, text string) error
}

// Result describes how a controller run ended
type Result struct {
	State      *contracts.PipelineState
	Terminal   State
	PastSteps  []contracts.PastStep
	Iterations int
}

// Controller runs a stage under plan-and-execute
type Controller struct {
	stage     StepRunner
	planner   Planner
	replanner Replanner
	maxIter   int
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// New creates a controller. maxIter <= 0 uses the default bound.
func New(stage StepRunner, planner Planner, replanner Replanner, maxIter int, log *logger.Logger, m *metrics.Metrics) *Controller {
	if maxIter <= 0 {
		maxIter = config.DefaultMaxPlanIterations
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		stage:     stage,
		planner:   planner,
		replanner: replanner,
		maxIter:   maxIter,
		logger:    log.WithFields(map[string]interface{}{"stage": stage.Stage().String(), "mode": "plan"}),
		metrics:   m,
	}
}

// Stage returns the wrapped stage identity
func (c *Controller) Stage() contracts.Stage {
	return c.stage.Stage()
}

// Run satisfies agent.Stage
func (c *Controller) Run(ctx context.Context, st *contracts.PipelineState) (*contracts.PipelineState, error) {
	res, err := c.RunDetailed(ctx, st)
	if err != nil {
		return nil, err
	}
	return res.State, nil
}

// RunDetailed runs the loop and reports the terminal state.
// Reaching the iteration bound is not an error: the last produced state is
// returned, with the last step output committed when there is one.
func (c *Controller) RunDetailed(ctx context.Context, st *contracts.PipelineState) (Result, error) {
	objective := Objective(st.Chat, c.Stage())
	working := st.Clone()

	var (
		plan  []string
		past  []contracts.PastStep
		final string
		iter  int
	)

	state := Planning
	for {
		switch state {
		case Planning:
			steps, err := c.planner.Plan(ctx, objective)
			if err != nil {
				return Result{}, fmt.Errorf("plan: %w", err)
			}
			plan = steps
			c.logger.WithField("steps", len(plan)).Info("Initial plan")
			state = Executing

		case Executing:
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if iter >= c.maxIter {
				state = BoundExhausted
				continue
			}
			iter++

			if len(plan) == 0 {
				dec, err := c.replanner.Replan(ctx, objective, plan, past)
				if err != nil {
					return Result{}, fmt.Errorf("replan: %w", err)
				}
				if dec.Final() {
					final = *dec.Response
					state = Finalized
					continue
				}
				if len(dec.Steps) == 0 {
					c.logger.Warn("Replanner returned neither a response nor steps")
					state = BoundExhausted
					continue
				}
				plan = dec.Steps
			}

			step, remaining := plan[0], plan[1:]
			next, err := c.stage.RunStep(ctx, working, step, remaining)
			if err != nil {
				return Result{}, fmt.Errorf("step %d: %w", len(past)+1, err)
			}
			working = next
			past = append(past, contracts.PastStep{Step: step, Result: working.Response})
			plan = remaining
			state = Replanning

		case Replanning:
			dec, err := c.replanner.Replan(ctx, objective, plan, past)
			if err != nil {
				return Result{}, fmt.Errorf("replan: %w", err)
			}
			if dec.Final() {
				final = *dec.Response
				state = Finalized
				continue
			}
			// 빈 계획이 오면 기존 계획 유지
			if len(dec.Steps) > 0 {
				plan = dec.Steps
			}
			state = Executing

		case Finalized:
			working.CurrentStage = c.Stage()
			if err := c.stage.Commit(working, final); err != nil {
				return Result{}, err
			}
			return c.finish(working, state, past, iter), nil

		case BoundExhausted:
			if n := len(past); n > 0 && past[n-1].Result != "" {
				if err := c.stage.Commit(working, past[n-1].Result); err != nil {
					return Result{}, err
				}
			}
			c.logger.WithFields(map[string]interface{}{
				"iterations": iter,
				"executed":   len(past),
			}).Warn("Plan loop ended without a final response")
			return c.finish(working, state, past, iter), nil
		}
	}
}

func (c *Controller) finish(st *contracts.PipelineState, terminal State, past []contracts.PastStep, iter int) Result {
	c.metrics.PlanIterations(c.Stage().String(), terminal.String(), iter)
	c.logger.WithFields(map[string]interface{}{
		"terminal":   terminal.String(),
		"iterations": iter,
		"executed":   len(past),
	}).Info("Plan loop finished")
	return Result{State: st, Terminal: terminal, PastSteps: past, Iterations: iter}
}

// Objective is the planner and replanner goal for a stage
func Objective(profile contracts.ChatProfile, stage contracts.Stage) string {
	return fmt.Sprintf("User topic: '%s', capital: %s, risk level: %d. As the %s, follow your rules to produce your output.",
		profile.Topic, profile.CapitalText(), profile.RiskLevel, stage.AgentName())
}
