// Package session runs recognition sessions and enrollment jobs against
// a camera, publishing their progress as events.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/samples"
	log "github.com/sirupsen/logrus"
)

// State is the lifecycle state of a job.
type State string

// Job states. Stopped is terminal for a run; a stopped session may be
// started again.
const (
	StateIdle         State = "idle"
	StateLoadingModel State = "loading_model"
	StateRunning      State = "running"
	StateStopped      State = "stopped"
)

// ErrRunning is returned when starting a job that is already running.
var ErrRunning = errors.New("job already running")

// Env holds the collaborators shared by sessions and collection jobs.
type Env struct {
	OpenCamera func() (camera.Camera, error)
	Detector   detector.Detector
	Samples    *samples.Store
	Ledger     ledger.Store
	NewBackend func() (recognition.Backend, error)
	ModelPath  string
	Threshold  float64
	Retries    int
	RetryDelay time.Duration
	// MaxFrames bounds a session run; zero means unbounded.
	MaxFrames int
	// Now is the clock used for attendance timestamps.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Status is a snapshot of a job.
type Status struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	State     State      `json:"state"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Frames    int        `json:"frames"`
	Faces     int        `json:"faces"`
	Marked    int        `json:"marked"`
	Written   int        `json:"written,omitempty"`
	Target    int        `json:"target,omitempty"`
}

// Session is a recognition loop: read a frame, detect faces, identify
// each face and mark accepted identities in the ledger.
type Session struct {
	Broadcaster

	id  string
	env Env

	mu        sync.Mutex
	state     State
	err       error
	startedAt time.Time
	stoppedAt time.Time
	frames    int
	faces     int
	marked    int
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an idle session.
func New(id string, env Env) *Session {
	return &Session{id: id, env: env, state: StateIdle}
}

func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that stopped the last run, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ID:        s.id,
		Kind:      "recognition",
		State:     s.state,
		StartedAt: s.startedAt,
		Frames:    s.frames,
		Faces:     s.faces,
		Marked:    s.marked,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	if !s.stoppedAt.IsZero() {
		t := s.stoppedAt
		st.StoppedAt = &t
	}
	return st
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.SendEvent(Event{Type: EventState, JobID: s.id, Message: string(state)})
}

// Start loads the model, builds the roster from the sample store, opens
// the camera and runs the frame loop in the background. Model and camera
// failures are returned directly and leave the session Stopped.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRunning || s.state == StateLoadingModel {
		s.mu.Unlock()
		return ErrRunning
	}
	s.err = nil
	s.frames, s.faces, s.marked = 0, 0, 0
	s.startedAt = time.Now()
	s.stoppedAt = time.Time{}
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.setState(StateLoadingModel)

	engine, err := s.loadEngine()
	if err != nil {
		s.finish(nil, err)
		close(done)
		return err
	}

	cam, err := s.env.OpenCamera()
	if err != nil {
		err = fmt.Errorf("opening camera: %w", err)
		s.finish(nil, err)
		close(done)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	s.setState(StateRunning)

	go func() {
		defer close(done)
		defer cancel()
		s.finish(cam, s.loop(runCtx, engine, camera.NewReader(cam, s.env.Retries, s.env.RetryDelay)))
	}()
	return nil
}

// Run starts the session and blocks until it stops.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Wait()
}

// Stop asks the loop to stop after the current frame.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run ends and returns its error.
func (s *Session) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	return s.Err()
}

func (s *Session) loadEngine() (*recognition.Engine, error) {
	backend, err := s.env.NewBackend()
	if err != nil {
		return nil, err
	}
	if err := recognition.LoadFile(backend, s.env.ModelPath); err != nil {
		return nil, err
	}

	roster, skipped, err := s.env.Samples.Roster()
	if err != nil {
		return nil, fmt.Errorf("building roster: %w", err)
	}
	for _, sk := range skipped {
		log.WithFields(log.Fields{"path": sk.Path, "reason": sk.Reason}).Warn("skipping sample directory")
	}
	if roster.Len() == 0 {
		log.WithField("session", s.id).Warn("roster is empty, every face will be unknown")
	}
	return recognition.NewEngine(backend, roster, s.env.Threshold, s.env.Samples.Size()), nil
}

// loop returns nil on cancellation, exhausted sources and the frame bound.
func (s *Session) loop(ctx context.Context, engine *recognition.Engine, frames *camera.Reader) error {
	logger := log.WithField("session", s.id)
	for n := 1; ; n++ {
		if s.env.MaxFrames > 0 && n > s.env.MaxFrames {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		frame, err := frames.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, camera.ErrEndOfStream):
				logger.Info("frame source exhausted")
				return nil
			default:
				return err
			}
		}

		s.mu.Lock()
		s.frames++
		s.mu.Unlock()
		s.processFrame(ctx, logger, engine, n, frame)
	}
}

func (s *Session) processFrame(ctx context.Context, logger *log.Entry, engine *recognition.Engine, n int, frame image.Image) {
	regions, err := s.env.Detector.Detect(frame)
	if err != nil {
		logger.WithError(err).WithField("frame", n).Warn("skipping frame")
		return
	}

	for _, region := range regions {
		res, err := engine.IdentifyRegion(frame, region)
		if err != nil {
			logger.WithError(err).WithField("region", region.String()).Debug("skipping region")
			continue
		}
		s.mu.Lock()
		s.faces++
		s.mu.Unlock()
		s.SendEvent(Event{Type: EventFrame, JobID: s.id, Data: FrameEvent{Frame: n, Result: res, Similarity: res.Similarity()}})

		if !res.Known {
			continue
		}
		mark, err := s.env.Ledger.MarkIfAbsent(ctx, res.Label, res.Name, s.env.now())
		if err != nil {
			logger.WithError(err).WithField("label", res.Label).Error("marking attendance failed")
			continue
		}
		if !mark.Marked {
			continue
		}

		s.mu.Lock()
		s.marked++
		s.mu.Unlock()
		logger.WithFields(log.Fields{"label": res.Label, "name": res.Name, "score": res.Score}).Info("attendance marked")
		s.SendEvent(Event{Type: EventAttendance, JobID: s.id, Data: AttendanceEvent{
			Label:     res.Label,
			Name:      res.Name,
			Timestamp: mark.FirstTimestamp,
		}})
	}
}

func (s *Session) finish(cam camera.Camera, err error) {
	if cam != nil {
		if cerr := cam.Close(); cerr != nil {
			log.WithError(cerr).Warn("closing camera")
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.err = err
	s.stoppedAt = time.Now()
	s.cancel = nil
	s.mu.Unlock()

	event := Event{Type: EventStopped, JobID: s.id, Data: s.Status()}
	if err != nil {
		event.Message = err.Error()
		log.WithError(err).WithField("session", s.id).Error("session stopped")
	} else {
		log.WithField("session", s.id).Info("session stopped")
	}
	s.SendEvent(event)
}
