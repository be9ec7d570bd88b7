package publish

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/apacbi/budgetportal/internal/services/portal/domain"
)

// JobStatus is the lifecycle state of a scheduled publish job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

const (
	jobQueued int32 = iota
	jobRunning
	jobSucceeded
	jobFailed
)

// Job is the handle to one background publish of a submission batch.
//
// The HTTP caller that triggered submission already returned accepted; the
// handle is the only place a terminal publish failure surfaces.
type Job struct {
	id    string
	batch domain.SubmissionBatch

	state atomic.Int32
	done  chan struct{}
	err   error // written once before done closes
}

func newJob(batch domain.SubmissionBatch) *Job {
	return &Job{
		id:    uuid.NewString(),
		batch: batch,
		done:  make(chan struct{}),
	}
}

// ID returns the job's unique identifier.
func (j *Job) ID() string {
	return j.id
}

// Batch returns the submission batch this job delivers.
func (j *Job) Batch() domain.SubmissionBatch {
	return j.batch
}

// Status reports the job's current lifecycle state.
func (j *Job) Status() JobStatus {
	switch j.state.Load() {
	case jobRunning:
		return StatusRunning
	case jobSucceeded:
		return StatusSucceeded
	case jobFailed:
		return StatusFailed
	default:
		return StatusQueued
	}
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the terminal error after Done closes, nil on success.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

func (j *Job) markRunning() {
	j.state.Store(jobRunning)
}

func (j *Job) finish(err error) {
	j.err = err
	if err != nil {
		j.state.Store(jobFailed)
	} else {
		j.state.Store(jobSucceeded)
	}
	close(j.done)
}
