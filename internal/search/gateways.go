// Package search runs a task's full search cycle: discover candidate slots,
// decide the outcome, optionally book, persist results, notify.
//
// The orchestrator owns no concurrency: one RunOnce call is one strictly
// sequential cycle. The scheduler package decides when and how concurrently
// cycles run.
package search

import (
	"context"

	"wbautoslot/internal/domain"
)

// TaskRepository is the durable task read/write surface the orchestrator
// needs.
type TaskRepository interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
	SaveTask(ctx context.Context, t domain.Task) error
}

// EventRepository appends to the task event log.
type EventRepository interface {
	AppendEvent(ctx context.Context, e domain.Event) error
}

// AccountRepository resolves the supplier account a task searches with.
type AccountRepository interface {
	GetAccount(ctx context.Context, id string) (domain.SupplierAccount, error)
}

// UserRepository resolves the task owner for notifications.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// SlotProvider discovers candidate slots. The provider owns criteria
// filtering: every returned slot already satisfies the task's warehouse,
// date window, coefficient and packaging constraints.
type SlotProvider interface {
	Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Slot, error)
}

// BookingGateway attempts to reserve one slot. Failure is a result, not a
// fatal error: each attempt is independent.
type BookingGateway interface {
	Book(ctx context.Context, task domain.Task, slot domain.Slot) (bool, error)
}

// NotificationGateway delivers user-facing notifications. Fire-and-forget:
// implementations log failures and never propagate them.
type NotificationGateway interface {
	NotifySlotsFound(ctx context.Context, user domain.User, task domain.Task, slots []domain.Slot)
	NotifyCompleted(ctx context.Context, user domain.User, task domain.Task)
	NotifyError(ctx context.Context, user domain.User, task domain.Task, message string)
}
