package brain

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/finadvisor/internal/agent"
	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/metrics"
	"github.com/wonny/finadvisor/internal/planexec"
	"github.com/wonny/finadvisor/internal/promptconfig"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/logger"
)

// StageFactory builds the four stages bound to one run
type StageFactory interface {
	Stages(runID string, augment bool) []agent.Stage
}

// StageFactoryFunc adapts a function to StageFactory
type StageFactoryFunc func(runID string, augment bool) []agent.Stage

// Stages calls f
func (f StageFactoryFunc) Stages(runID string, augment bool) []agent.Stage {
	return f(runID, augment)
}

// DefaultStages builds the standard pipeline: one sub-pipeline per stage
// definition, with stages listed in Pipeline.PlanStages wrapped in a
// plan-and-execute controller. Prompts, when set, overrides system prompts.
type DefaultStages struct {
	Model    contracts.StructuredChatModel
	Market   agent.EvidenceFunc
	Topic    agent.EvidenceFunc
	Pipeline config.PipelineConfig
	Prompts  *promptconfig.Config
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// Stages implements StageFactory
func (d DefaultStages) Stages(runID string, augment bool) []agent.Stage {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}

	defs := d.Prompts.Apply(agent.Definitions(d.Market, d.Topic))
	stages := make([]agent.Stage, 0, len(defs))
	for _, def := range defs {
		sub := agent.New(def, d.Model, agent.Options{
			Augment: augment,
			RunID:   runID,
			Logger:  log,
			Metrics: d.Metrics,
		})
		if !d.Pipeline.PlanEnabled(def.Stage.String()) {
			stages = append(stages, sub)
			continue
		}
		stages = append(stages, planexec.New(
			sub,
			planexec.LLMPlanner{Model: d.Model},
			planexec.LLMReplanner{Model: d.Model},
			d.Pipeline.MaxPlanIterations,
			log.WithField("run_id", runID),
			d.Metrics,
		))
	}
	return stages
}

// Orchestrator runs the four stages in order over one shared state
// ⭐ SSOT: 스테이지 순서는 StageFactory가 돌려준 순서 그대로
type Orchestrator struct {
	factory StageFactory
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// RunConfig holds configuration for a pipeline run
type RunConfig struct {
	Profile contracts.ChatProfile
	Augment bool
	RunID   string // empty generates a new id
}

// Update is emitted after each completed stage.
// State is a snapshot; the consumer may keep it.
type Update struct {
	RunID string
	Stage contracts.Stage
	State *contracts.PipelineState
}

// RunResult contains the outcome of a completed pipeline run
type RunResult struct {
	RunID           string
	Final           *contracts.PipelineState
	CompletedStages []string
	Duration        time.Duration
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(factory StageFactory, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		factory: factory,
		logger:  log,
		metrics: m,
	}
}

// NewRunID returns a fresh correlation id
func NewRunID() string {
	return uuid.NewString()
}

// Run streams one update per completed stage. On a stage failure the
// stream yields the failing stage with the error once and stops.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) iter.Seq2[Update, error] {
	return func(yield func(Update, error) bool) {
		runID := cfg.RunID
		if runID == "" {
			runID = NewRunID()
		}

		if err := cfg.Profile.Validate(); err != nil {
			o.metrics.RunFinished("failed")
			yield(Update{RunID: runID}, err)
			return
		}

		log := o.logger.WithField("run_id", runID)
		log.WithFields(map[string]interface{}{
			"topic":   cfg.Profile.Topic,
			"augment": cfg.Augment,
		}).Info("Starting pipeline run")

		startTime := time.Now()
		state := contracts.NewPipelineState(cfg.Profile)

		for _, stage := range o.factory.Stages(runID, cfg.Augment) {
			id := stage.Stage()

			if err := ctx.Err(); err != nil {
				o.fail(log, id, err)
				yield(Update{RunID: runID, Stage: id}, fmt.Errorf("%s failed: %w", id, err))
				return
			}

			log.Infof("Running %s", id)
			stageStart := time.Now()

			next, err := stage.Run(ctx, state)
			if err != nil {
				o.fail(log, id, err)
				yield(Update{RunID: runID, Stage: id}, fmt.Errorf("%s failed: %w", id, err))
				return
			}
			state = next
			o.metrics.ObserveStage(id.String(), time.Since(stageStart))

			log.WithFields(map[string]interface{}{
				"stage":    id.String(),
				"duration": time.Since(stageStart).Seconds(),
				"chars":    len([]rune(state.Result(id))),
			}).Info("Stage completed")

			if !yield(Update{RunID: runID, Stage: id, State: state.Clone()}, nil) {
				log.Info("Pipeline run abandoned by consumer")
				return
			}
		}

		o.metrics.RunFinished("completed")
		log.WithField("duration", time.Since(startTime).Seconds()).Info("Pipeline run completed successfully")
	}
}

func (o *Orchestrator) fail(log *logger.Logger, stage contracts.Stage, err error) {
	o.metrics.StageFailed(stage.String())
	o.metrics.RunFinished("failed")
	log.WithError(err).WithField("stage", stage.String()).Error("Pipeline run failed")
}

// RunToCompletion drains Run and returns the final state
func (o *Orchestrator) RunToCompletion(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	if cfg.RunID == "" {
		cfg.RunID = NewRunID()
	}

	result := &RunResult{RunID: cfg.RunID}
	startTime := time.Now()

	for update, err := range o.Run(ctx, cfg) {
		if err != nil {
			result.Duration = time.Since(startTime)
			return result, err
		}
		result.Final = update.State
		result.CompletedStages = append(result.CompletedStages, update.Stage.String())
	}

	result.Duration = time.Since(startTime)
	return result, nil
}
