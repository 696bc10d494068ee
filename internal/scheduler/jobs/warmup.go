package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/pkg/logger"
)

// DefaultWarmupSchedule runs every 10 minutes, on the minute
const DefaultWarmupSchedule = "0 */10 * * * *"

// MacroSource fetches the fixed macro indicator documents
type MacroSource interface {
	MacroDocuments(ctx context.Context) ([]contracts.Document, error)
}

// MacroWarmupJob fetches macro indicators so the quote cache stays warm
// for the next conversation.
type MacroWarmupJob struct {
	source   MacroSource
	schedule string
	logger   *logger.Logger
}

// NewMacroWarmupJob creates a new macro warm-up job. An empty schedule uses the default.
func NewMacroWarmupJob(source MacroSource, schedule string, log *logger.Logger) *MacroWarmupJob {
	if schedule == "" {
		schedule = DefaultWarmupSchedule
	}
	return &MacroWarmupJob{
		source:   source,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *MacroWarmupJob) Name() string {
	return "macro_warmup"
}

// Schedule returns the cron schedule
func (j *MacroWarmupJob) Schedule() string {
	return j.schedule
}

// Run fetches every macro indicator once
func (j *MacroWarmupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled macro warm-up")

	docs, err := j.source.MacroDocuments(ctx)
	if err != nil {
		return fmt.Errorf("macro warm-up: %w", err)
	}

	// 데이터 없음 문서는 price 메타데이터가 nil
	missing := 0
	for _, d := range docs {
		if d.Metadata["price"] == nil {
			missing++
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"indicators": len(docs),
		"missing":    missing,
	}).Info("Macro warm-up completed")

	return nil
}
