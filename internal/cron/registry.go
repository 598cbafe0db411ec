package cron

import (
	"context"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry tracks registered cron jobs and how often each should run. Jobs
// registered without a cadence run on every cycle.
type Registry struct {
	entries []*entry
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job that runs on every cycle.
func (r *Registry) Register(job Job) {
	r.RegisterEvery(job, 0)
}

// RegisterEvery adds a job that runs at most once per the given interval.
func (r *Registry) RegisterEvery(job Job, every time.Duration) {
	if job == nil {
		return
	}
	r.entries = append(r.entries, &entry{job: job, every: every})
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// Due returns the jobs whose interval has elapsed as of now and records the
// run, preserving registration order.
func (r *Registry) Due(now time.Time) []Job {
	var due []Job
	for _, e := range r.entries {
		if !e.lastRun.IsZero() && e.every > 0 && now.Sub(e.lastRun) < e.every {
			continue
		}
		e.lastRun = now
		due = append(due, e.job)
	}
	return due
}
