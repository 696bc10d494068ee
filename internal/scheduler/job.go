package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string

	// Run executes one attempt; ctx carries the per-attempt timeout
	Run(ctx context.Context) error

	// Schedule returns a six-field cron expression (seconds first),
	// e.g. "0 */10 * * * *", or a descriptor such as "@every 5m"
	Schedule() string
}

// DefaultHistorySize bounds the results kept per job
const DefaultHistorySize = 100

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory stores the most recent results of one job, oldest first
type JobHistory struct {
	Results []JobResult
	limit   int
}

func newJobHistory(limit int) *JobHistory {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &JobHistory{limit: limit}
}

// AddResult appends a result and drops the oldest beyond the limit
func (h *JobHistory) AddResult(result JobResult) {
	if h.limit == 0 {
		h.limit = DefaultHistorySize
	}
	h.Results = append(h.Results, result)
	if over := len(h.Results) - h.limit; over > 0 {
		h.Results = h.Results[over:]
	}
}

// GetLatestResults returns up to n most recent results
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	n = min(n, len(h.Results))
	if n <= 0 {
		return []JobResult{}
	}
	return h.Results[len(h.Results)-n:]
}

// GetFailedResults returns all failed results
func (h *JobHistory) GetFailedResults() []JobResult {
	failed := make([]JobResult, 0)
	for _, result := range h.Results {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// Last returns the newest result whose Success matches success
func (h *JobHistory) Last(success bool) (JobResult, bool) {
	for i := len(h.Results) - 1; i >= 0; i-- {
		if h.Results[i].Success == success {
			return h.Results[i], true
		}
	}
	return JobResult{}, false
}

// GetSuccessRate returns the success rate (0.0 - 1.0)
func (h *JobHistory) GetSuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0.0
	}
	return float64(len(h.Results)-len(h.GetFailedResults())) / float64(len(h.Results))
}
