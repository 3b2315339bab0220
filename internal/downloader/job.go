package downloader

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/italolelis/media_downloader/internal/registry"
)

// State is a step in the life of one download request.
type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StateExtracting State = "extracting"
	StateReady      State = "ready"
	StateDelivered  State = "delivered"
	StateFailed     State = "failed"
)

var ErrIllegalTransition = errors.New("illegal state transition")

var transitions = map[State][]State{
	StateReceived:   {StateValidated, StateFailed},
	StateValidated:  {StateExtracting, StateFailed},
	StateExtracting: {StateReady, StateFailed},
	StateReady:      {StateDelivered, StateFailed},
}

// Job follows one request from submission to delivery or failure.
type Job struct {
	ID        string
	URL       string
	CreatedAt time.Time

	mu    sync.Mutex
	state State
	err   error
	file  *registry.ManagedFile
}

func NewJob(rawURL string) *Job {
	return &Job{
		ID:        uuid.NewString(),
		URL:       rawURL,
		CreatedAt: time.Now(),
		state:     StateReceived,
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.state
}

// Err is the failure cause once the job is in StateFailed.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.err
}

func (j *Job) File() *registry.ManagedFile {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.file
}

// Transition moves the job to next, rejecting moves the state machine does not allow.
func (j *Job) Transition(next State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.transition(next)
}

// Fail moves the job to StateFailed and records cause.
func (j *Job) Fail(cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transition(StateFailed); err != nil {
		return err
	}

	j.err = cause

	return nil
}

func (j *Job) ready(f *registry.ManagedFile) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transition(StateReady); err != nil {
		return err
	}

	j.file = f

	return nil
}

func (j *Job) transition(next State) error {
	for _, allowed := range transitions[j.state] {
		if allowed == next {
			j.state = next

			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.state, next)
}
