package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/collector"
	"github.com/kozaktomas/face-attendance/internal/identity"
	log "github.com/sirupsen/logrus"
)

// Collection is a background enrollment job.
type Collection struct {
	Broadcaster

	id       string
	env      Env
	identity identity.Identity
	target   int

	mu        sync.Mutex
	state     State
	err       error
	written   int
	startedAt time.Time
	stoppedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewCollection creates an idle collection job for id.
func NewCollection(jobID string, env Env, id identity.Identity, target int) *Collection {
	return &Collection{id: jobID, env: env, identity: id, target: target, state: StateIdle}
}

func (c *Collection) ID() string {
	return c.id
}

// Identity returns the identity being enrolled.
func (c *Collection) Identity() identity.Identity {
	return c.identity
}

// Status returns a snapshot of the job.
func (c *Collection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		ID:        c.id,
		Kind:      "collection",
		State:     c.state,
		StartedAt: c.startedAt,
		Written:   c.written,
		Target:    c.target,
	}
	if c.err != nil {
		st.Error = c.err.Error()
	}
	if !c.stoppedAt.IsZero() {
		t := c.stoppedAt
		st.StoppedAt = &t
	}
	return st
}

// Start opens the camera and collects in the background.
func (c *Collection) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return ErrRunning
	}
	c.err = nil
	c.written = 0
	c.startedAt = time.Now()
	c.stoppedAt = time.Time{}
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	cam, err := c.env.OpenCamera()
	if err != nil {
		c.finish(fmt.Errorf("opening camera: %w", err))
		close(done)
		return c.Err()
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.state = StateRunning
	c.cancel = cancel
	c.mu.Unlock()
	c.SendEvent(Event{Type: EventState, JobID: c.id, Message: string(StateRunning)})

	col := collector.New(camera.NewReader(cam, c.env.Retries, c.env.RetryDelay), c.env.Detector, c.env.Samples)
	col.Progress = func(written, target int) {
		c.mu.Lock()
		c.written = written
		c.target = target
		c.mu.Unlock()
		c.SendEvent(Event{Type: EventProgress, JobID: c.id, Data: ProgressEvent{Written: written, Target: target}})
	}

	go func() {
		defer close(done)
		defer cancel()
		_, err := col.Collect(runCtx, c.identity, c.target)
		if runCtx.Err() != nil && ctx.Err() == nil {
			// Stopped by the operator.
			err = nil
		}
		if cerr := cam.Close(); cerr != nil {
			log.WithError(cerr).Warn("closing camera")
		}
		c.finish(err)
	}()
	return nil
}

// Stop cancels the job after the current frame.
func (c *Collection) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the job ends and returns its error.
func (c *Collection) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	return c.Err()
}

// Err returns the error that ended the job, if any.
func (c *Collection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Collection) finish(err error) {
	c.mu.Lock()
	c.state = StateStopped
	c.err = err
	c.stoppedAt = time.Now()
	c.cancel = nil
	c.mu.Unlock()

	event := Event{Type: EventStopped, JobID: c.id, Data: c.Status()}
	if err != nil {
		event.Message = err.Error()
	}
	log.WithFields(log.Fields{"job": c.id, "label": c.identity.Label}).WithError(err).Info("collection stopped")
	c.SendEvent(event)
}
