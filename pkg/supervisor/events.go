package supervisor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types recorded in the journal.
const (
	EventStarting  = "starting"
	EventRunning   = "running"
	EventExited    = "exited"
	EventBackoff   = "backoff"
	EventFatal     = "fatal"
	EventStopping  = "stopping"
	EventStopped   = "stopped"
	EventUnhealthy = "unhealthy"
	EventRecovered = "recovered"
	EventReloaded  = "reloaded"
)

// Event is one lifecycle occurrence of a supervised program.
type Event struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Program string    `json:"program"`
	Type    string    `json:"type"`
	Message string    `json:"message,omitempty"`
}

const defaultJournalCapacity = 512

// Journal is a bounded in-memory ring of recent events, newest last.
type Journal struct {
	mutex    sync.Mutex
	events   []Event
	capacity int
}

func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = defaultJournalCapacity
	}
	return &Journal{
		capacity: capacity,
	}
}

// Record appends an event, evicting the oldest when full.
func (j *Journal) Record(program, eventType, message string) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	j.events = append(j.events, Event{
		ID:      uuid.NewString(),
		Time:    time.Now(),
		Program: program,
		Type:    eventType,
		Message: message,
	})
	if len(j.events) > j.capacity {
		j.events = j.events[len(j.events)-j.capacity:]
	}
}

// List returns up to limit most recent events, oldest first. An empty
// program matches all programs.
func (j *Journal) List(limit int, program string) []Event {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	var matched []Event
	for _, event := range j.events {
		if program == "" || event.Program == program {
			matched = append(matched, event)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	result := make([]Event, len(matched))
	copy(result, matched)
	return result
}
