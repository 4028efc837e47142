package domain

import "time"

// TaskStatus is the lifecycle state of a slot search task.
//
// Transitions:
//   - active -> completed  (normal end of a search cycle, slots found or not)
//   - active -> error      (cycle failed)
//   - active <-> paused    (explicit user control)
//   - paused|error|completed -> active (explicit restart)
//
// completed and error are terminal until an explicit restart. A task is
// rescheduled only while active; one activation buys exactly one search
// cycle.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskActive, TaskPaused, TaskCompleted, TaskError:
		return true
	}
	return false
}

// Task is a user-defined slot search: what to look for and how often.
type Task struct {
	ID        string
	UserID    string
	AccountID string // supplier account used for search/booking; empty if unassigned

	Name           string
	Warehouse      string
	DateFrom       time.Time
	DateTo         time.Time
	MinCoefficient float64
	Packaging      string
	ShipmentNumber string
	AutoBook       bool

	Status        TaskStatus
	LastCheckedAt time.Time // zero if never checked
	FoundSlots    int
	PollInterval  time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Criteria returns the provider-facing search filter for this task.
func (t Task) Criteria() SearchCriteria {
	return SearchCriteria{
		AccountID:      t.AccountID,
		Warehouse:      t.Warehouse,
		DateFrom:       t.DateFrom,
		DateTo:         t.DateTo,
		MinCoefficient: t.MinCoefficient,
		Packaging:      t.Packaging,
	}
}

// SearchCriteria is what a SlotProvider filters on. The provider owns the
// filtering; consumers receive only matching slots.
type SearchCriteria struct {
	AccountID      string
	Warehouse      string
	DateFrom       time.Time
	DateTo         time.Time
	MinCoefficient float64
	Packaging      string
}

// EventKind classifies an event log entry.
type EventKind string

const (
	EventInfo    EventKind = "info"
	EventSuccess EventKind = "success"
	EventWarning EventKind = "warning"
	EventError   EventKind = "error"
)

// Event is an append-only log entry attached to a task. Events are written
// by the search orchestrator and by task management actions; they are never
// mutated.
type Event struct {
	ID        int64
	TaskID    string
	UserID    string
	Kind      EventKind
	Message   string
	Details   string // optional JSON payload (e.g. serialized slot list)
	CreatedAt time.Time
}

// Slot is a candidate delivery opportunity returned by a provider search.
// Slots are transient: they live for one search cycle and are persisted only
// as serialized event details.
type Slot struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Warehouse   string    `json:"warehouse"`
	Coefficient float64   `json:"coefficient"`
	Packaging   string    `json:"packaging"`
	Capacity    int       `json:"capacity"`
}

// User owns tasks and supplier accounts.
type User struct {
	ID           string
	Phone        string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// SupplierAccount holds the session material for one supplier portal login.
type SupplierAccount struct {
	ID        string
	UserID    string
	Name      string
	Cookies   string // serialized session cookies
	IsActive  bool
	LastLogin time.Time // zero if never verified
	CreatedAt time.Time
}
