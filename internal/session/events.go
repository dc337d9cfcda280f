package session

import (
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Event types.
const (
	EventState      = "state"
	EventFrame      = "frame"
	EventAttendance = "attendance"
	EventProgress   = "progress"
	EventStopped    = "stopped"
)

// Event is a message published by a running job.
type Event struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// FrameEvent reports the decision for one face region of a frame.
type FrameEvent struct {
	Frame int `json:"frame"`
	recognition.Result
	Similarity float64 `json:"similarity"`
}

// AttendanceEvent reports a newly written attendance record.
type AttendanceEvent struct {
	Label     int       `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressEvent reports collection progress.
type ProgressEvent struct {
	Written int `json:"written"`
	Target  int `json:"target"`
}

// Broadcaster fans events out to listeners. Each listener has a buffered
// channel; events for a full listener are dropped.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []chan Event
	forward   func(Event)
}

// AddListener registers a new listener.
func (b *Broadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener unregisters and closes ch.
func (b *Broadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent delivers event to every listener without blocking.
func (b *Broadcaster) SendEvent(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
		}
	}
	if b.forward != nil {
		b.forward(event)
	}
}
