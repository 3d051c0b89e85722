package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soa-checker/backend/internal/compliance"
	"go.uber.org/zap"
)

// Status represents the batch job status.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Job represents an async batch run.
type Job struct {
	ID            string              `json:"id"`
	Device        string              `json:"device"`
	Source        string              `json:"source,omitempty"`
	ScenarioCount int                 `json:"scenarioCount"`
	Status        Status              `json:"status"`
	Progress      float64             `json:"progress"`
	Summary       *compliance.Summary `json:"summary,omitempty"`
	ReportID      string              `json:"reportId,omitempty"`
	Persisted     bool                `json:"persisted"`
	Error         string              `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
}

// Runner executes a batch. *compliance.Batch implements it.
type Runner interface {
	Run(deviceKey string, scenarios []compliance.Scenario) (*compliance.Report, error)
}

// ReportStore persists finished reports. *history.Store implements it.
type ReportStore interface {
	Save(ctx context.Context, report *compliance.Report) error
}

// Manager runs batch jobs in the background, at most maxConcurrent at a time.
type Manager struct {
	jobs    map[string]*Job
	reports map[string]*compliance.Report
	mu      sync.RWMutex
	runner  Runner
	store   ReportStore
	sem     chan struct{}
	wg      sync.WaitGroup
	log     *zap.Logger
}

// NewManager creates a job manager. store may be nil, in which case reports are only kept
// in memory until the job is cleaned up.
func NewManager(runner Runner, store ReportStore, maxConcurrent int, log *zap.Logger) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		jobs:    make(map[string]*Job),
		reports: make(map[string]*compliance.Report),
		runner:  runner,
		store:   store,
		sem:     make(chan struct{}, maxConcurrent),
		log:     log,
	}
}

// StartJob queues a batch and returns a snapshot of the new job.
func (m *Manager) StartJob(device, source string, scenarios []compliance.Scenario) Job {
	job := &Job{
		ID:            uuid.New().String(),
		Device:        device,
		Source:        source,
		ScenarioCount: len(scenarios),
		Status:        StatusQueued,
		CreatedAt:     time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.processJob(job, scenarios)

	return snapshot
}

// GetJob returns a snapshot of the job with the given id.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Report returns the report of a completed job.
func (m *Manager) Report(jobID string) (*compliance.Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[jobID]
	return r, ok
}

// ListJobs returns snapshots of all jobs, newest first.
func (m *Manager) ListJobs() []Job {
	m.mu.RLock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) processJob(job *Job, scenarios []compliance.Scenario) {
	defer m.wg.Done()

	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	log := m.log.With(zap.String("job", job.ID), zap.String("device", job.Device))
	log.Info("batch job started", zap.Int("scenarios", len(scenarios)))
	m.updateJobStatus(job, StatusProcessing, 0)

	report, err := m.runner.Run(job.Device, scenarios)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("batch failed: %v", err))
		return
	}
	m.updateJobStatus(job, StatusProcessing, 90)

	persisted := false
	if m.store != nil {
		if err := m.store.Save(context.Background(), report); err != nil {
			log.Warn("failed to persist report", zap.String("report", report.ID), zap.Error(err))
		} else {
			persisted = true
		}
	}

	m.markJobComplete(job, report, persisted)
	log.Info("batch job complete",
		zap.String("report", report.ID),
		zap.Int("passed", report.Summary.Passed),
		zap.Int("failed", report.Summary.Failed))
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = status
	job.Progress = progress
}

func (m *Manager) markJobComplete(job *Job, report *compliance.Report, persisted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := report.Summary
	job.Status = StatusComplete
	job.Progress = 100
	job.Summary = &summary
	job.ReportID = report.ID
	job.Persisted = persisted
	now := time.Now()
	job.CompletedAt = &now
	m.reports[job.ID] = report
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	m.log.Warn("batch job failed", zap.String("job", job.ID), zap.String("error", errMsg))
}

// CleanupOldJobs removes finished jobs older than maxAge and returns how many were removed.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
				delete(m.reports, id)
				removed++
			}
		}
	}
	return removed
}
