package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// ErrBusy is returned when a job is started while another one holds the camera.
var ErrBusy = errors.New("another job is running")

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Job is the common surface of sessions and collections.
type Job interface {
	ID() string
	Status() Status
	Stop()
	Wait() error
	AddListener() chan Event
	RemoveListener(ch chan Event)
}

// Manager tracks jobs by id. At most one job runs at a time, since they
// share the camera and write to the same stores.
type Manager struct {
	Broadcaster

	env  Env
	mu   sync.Mutex
	jobs map[string]Job
}

// NewManager creates a manager whose jobs use env. Events of every job are
// also published on the manager itself.
func NewManager(env Env) *Manager {
	return &Manager{env: env, jobs: make(map[string]Job)}
}

// Env returns the collaborators jobs are created with.
func (m *Manager) Env() Env {
	return m.env
}

func (m *Manager) busyLocked() bool {
	for _, j := range m.jobs {
		if st := j.Status().State; st != StateStopped {
			return true
		}
	}
	return false
}

// StartSession creates and starts a recognition session. The job outlives
// the caller's request, so it runs on its own context.
func (m *Manager) StartSession() (*Session, error) {
	return m.StartSessionWith(nil)
}

// StartSessionWith is StartSession with per-session changes to the
// environment applied by adjust.
func (m *Manager) StartSessionWith(adjust func(env *Env)) (*Session, error) {
	m.mu.Lock()
	if m.busyLocked() {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	env := m.env
	if adjust != nil {
		adjust(&env)
	}
	s := New(uuid.New().String(), env)
	s.forward = m.SendEvent
	m.jobs[s.ID()] = s
	m.mu.Unlock()

	if err := s.Start(context.Background()); err != nil {
		return s, err
	}
	return s, nil
}

// StartCollection creates and starts an enrollment job for id.
func (m *Manager) StartCollection(id identity.Identity, target int) (*Collection, error) {
	m.mu.Lock()
	if m.busyLocked() {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	c := NewCollection(uuid.New().String(), m.env, id, target)
	c.forward = m.SendEvent
	m.jobs[c.ID()] = c
	m.mu.Unlock()

	if err := c.Start(context.Background()); err != nil {
		return c, err
	}
	return c, nil
}

// Get returns the job with id or nil.
func (m *Manager) Get(id string) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

// Stop stops the job with id and waits for it to end.
func (m *Manager) Stop(id string) (Status, error) {
	j := m.Get(id)
	if j == nil {
		return Status{}, ErrJobNotFound
	}
	j.Stop()
	err := j.Wait()
	return j.Status(), err
}

// Delete stops and forgets the job with id.
func (m *Manager) Delete(id string) error {
	if _, err := m.Stop(id); errors.Is(err, ErrJobNotFound) {
		return err
	}
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
	return nil
}

// List returns the status of every job, newest first.
func (m *Manager) List() []Status {
	m.mu.Lock()
	out := make([]Status, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.Status())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, k int) bool {
		return out[i].StartedAt.After(out[k].StartedAt)
	})
	return out
}

// StopAll stops every running job. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()
	for _, j := range jobs {
		j.Stop()
		_ = j.Wait()
	}
}
