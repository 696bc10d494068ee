// Package agent runs one stage: retrieve-context → prepare-messages → generate-response.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/metrics"
	"github.com/wonny/finadvisor/pkg/logger"
)

// ErrGeneration wraps a model failure inside a stage
var ErrGeneration = errors.New("generation failed")

// Stage is one runnable pipeline stage
type Stage interface {
	Stage() contracts.Stage
	Run(ctx context.Context, st *contracts.PipelineState) (*contracts.PipelineState, error)
}

// EvidenceFunc fetches evidence documents for a profile
type EvidenceFunc func(ctx context.Context, profile contracts.ChatProfile) ([]contracts.Document, error)

// Definition is what makes one stage different from another
type Definition struct {
	Stage        contracts.Stage
	SystemPrompt string
	// BuildContext returns the context text and, for evidence stages, the collected documents
	BuildContext func(ctx context.Context, st *contracts.PipelineState) (string, []contracts.Document, error)
	// UserPrompt renders the user instruction from the state (profile and context)
	UserPrompt func(st *contracts.PipelineState) string
}

// Options binds a sub-pipeline to one run
type Options struct {
	Augment bool
	RunID   string
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// SubPipeline executes one stage against a state
type SubPipeline struct {
	def     Definition
	model   contracts.ChatModel
	augment bool
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// New creates a sub-pipeline for a stage definition
func New(def Definition, model contracts.ChatModel, opts Options) *SubPipeline {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &SubPipeline{
		def:     def,
		model:   model,
		augment: opts.Augment,
		logger:  log.WithStage(def.Stage.String(), opts.RunID),
		metrics: opts.Metrics,
	}
}

// Stage returns the stage identity
func (p *SubPipeline) Stage() contracts.Stage {
	return p.def.Stage
}

// Run executes all three steps on a copy of st and commits the result slot
func (p *SubPipeline) Run(ctx context.Context, st *contracts.PipelineState) (*contracts.PipelineState, error) {
	work := st.Clone()

	if err := p.RetrieveContext(ctx, work); err != nil {
		return nil, err
	}
	p.PrepareMessages(work)
	text, err := p.GenerateResponse(ctx, work)
	if err != nil {
		return nil, err
	}
	if err := p.Commit(work, text); err != nil {
		return nil, err
	}
	return work, nil
}

// RunStep executes one plan step on a copy of st. The reply lands in Response
// only; the caller commits the final text. Evidence is retrieved once per stage.
func (p *SubPipeline) RunStep(ctx context.Context, st *contracts.PipelineState, step string, remaining []string) (*contracts.PipelineState, error) {
	work := st.Clone()
	work.CurrentStep = step
	work.Plan = append([]string{step}, remaining...)

	if work.CurrentStage != p.def.Stage {
		if err := p.RetrieveContext(ctx, work); err != nil {
			return nil, err
		}
	}
	p.PrepareMessages(work)
	if _, err := p.GenerateResponse(ctx, work); err != nil {
		return nil, err
	}

	work.CurrentStep = ""
	work.Plan = nil
	return work, nil
}

// RetrieveContext marks the stage active and fills Context.
// With augmentation off, Context is empty and no evidence is fetched.
func (p *SubPipeline) RetrieveContext(ctx context.Context, st *contracts.PipelineState) error {
	st.CurrentStage = p.def.Stage

	if !p.augment || p.def.BuildContext == nil {
		st.Context = ""
		return nil
	}

	start := time.Now()
	text, docs, err := p.def.BuildContext(ctx, st)
	if err != nil {
		return fmt.Errorf("retrieve context: %w", err)
	}

	st.Context = text
	if docs != nil {
		st.SetEvidence(p.def.Stage, docs)
		p.metrics.EvidenceCollected(p.def.Stage.String(), len(docs))
	}

	p.logger.WithFields(map[string]interface{}{
		"documents":   len(docs),
		"context_len": len(text),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Context retrieved")
	return nil
}

// PrepareMessages builds the system and user messages, adding the step
// directive while a plan step is active
func (p *SubPipeline) PrepareMessages(st *contracts.PipelineState) {
	prompt := p.def.UserPrompt(st)
	if st.CurrentStep != "" && len(st.Plan) > 0 {
		prompt += StepDirective(st.CurrentStep, st.Plan)
	}

	st.Messages = []contracts.Message{
		contracts.SystemMessage(p.def.SystemPrompt),
		contracts.HumanMessage(prompt),
	}
}

// GenerateResponse invokes the model and stores the reply in Response
func (p *SubPipeline) GenerateResponse(ctx context.Context, st *contracts.PipelineState) (string, error) {
	start := time.Now()
	text, err := p.model.Invoke(ctx, st.Messages)
	if err != nil {
		p.logger.WithError(err).Error("Generation failed")
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	st.Response = text
	p.logger.WithFields(map[string]interface{}{
		"response_len": len(text),
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Debug("Response generated")
	return text, nil
}

// Commit writes text into this stage's result slot
func (p *SubPipeline) Commit(st *contracts.PipelineState, text string) error {
	return st.SetResult(p.def.Stage, text)
}

// StepDirective renders the plan context appended to the user prompt.
// plan lists the current step first, then the remaining steps.
func StepDirective(current string, plan []string) string {
	var b strings.Builder
	b.WriteString("\n\n[Plan Context]\n")
	for i, step := range plan {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, step)
	}
	fmt.Fprintf(&b, "\n\nYou are now executing the current step: %s.\n", current)
	b.WriteString("Focus strictly on this step using only the provided context.")
	return b.String()
}
