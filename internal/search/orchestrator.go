package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"wbautoslot/internal/domain"
	"wbautoslot/internal/storage"
	logx "wbautoslot/pkg/logx"
)

// autoBookLimit caps how many candidates an auto-booking task will attempt
// per cycle.
const autoBookLimit = 3

// Outcome tells the caller (normally the scheduler) what a cycle did.
type Outcome struct {
	Status     domain.TaskStatus // resulting task status; empty if the run never got that far
	SlotsFound int
	Booked     int
	// Unregister is set when the task must not be rescheduled: the cycle
	// reached a terminal status, or the task vanished / stopped being
	// active underneath us.
	Unregister bool
}

type Orchestrator struct {
	tasks    TaskRepository
	events   EventRepository
	accounts AccountRepository
	users    UserRepository
	provider SlotProvider
	booker   BookingGateway
	notifier NotificationGateway
	log      logx.Logger
}

func NewOrchestrator(
	tasks TaskRepository,
	events EventRepository,
	accounts AccountRepository,
	users UserRepository,
	provider SlotProvider,
	booker BookingGateway,
	notifier NotificationGateway,
	log logx.Logger,
) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{
		tasks:    tasks,
		events:   events,
		accounts: accounts,
		users:    users,
		provider: provider,
		booker:   booker,
		notifier: notifier,
		log:      log,
	}
}

// RunOnce executes exactly one search cycle for taskID.
//
// Preconditions are re-checked here, not at dispatch time, so a task that
// was deleted or paused while waiting in the scheduler is handled as a soft
// abort. Errors never escape this method; failures end in the task's error
// status and event trail.
func (o *Orchestrator) RunOnce(ctx context.Context, taskID string) Outcome {
	log := o.log.With(logx.String("task", taskID))

	task, err := o.tasks.GetTask(ctx, taskID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("task no longer exists; dropping from schedule")
		return Outcome{Unregister: true}
	}
	if err != nil {
		log.Error("task lookup failed", logx.Err(err))
		return Outcome{}
	}

	if task.Status != domain.TaskActive {
		log.Info("task is not active; dropping from schedule", logx.String("status", string(task.Status)))
		o.appendEvent(ctx, task, domain.EventInfo,
			fmt.Sprintf("search skipped: task %q is %s", task.Name, task.Status), "")
		return Outcome{Status: task.Status, Unregister: true}
	}

	if strings.TrimSpace(task.AccountID) == "" {
		log.Info("task has no supplier account; dropping from schedule")
		o.appendEvent(ctx, task, domain.EventInfo,
			fmt.Sprintf("search skipped: task %q has no supplier account assigned", task.Name), "")
		return Outcome{Status: task.Status, Unregister: true}
	}
	if _, err := o.accounts.GetAccount(ctx, task.AccountID); err != nil {
		log.Info("supplier account unavailable; dropping from schedule", logx.Err(err))
		o.appendEvent(ctx, task, domain.EventInfo,
			fmt.Sprintf("search skipped: supplier account for task %q is unavailable", task.Name), "")
		return Outcome{Status: task.Status, Unregister: true}
	}

	// Mark the cycle as started before any external I/O.
	task.LastCheckedAt = time.Now()
	if err := o.tasks.SaveTask(ctx, task); err != nil {
		log.Error("failed to mark task as checked; will retry next cycle", logx.Err(err))
		return Outcome{Status: task.Status}
	}

	log.Debug("search cycle started",
		logx.String("warehouse", task.Warehouse),
		logx.Float64("min_coefficient", task.MinCoefficient),
	)

	slots, err := o.provider.Search(ctx, task.Criteria())
	if err != nil {
		return o.failRun(ctx, task, err)
	}

	if len(slots) == 0 {
		return o.finishEmpty(ctx, task)
	}
	return o.finishFound(ctx, task, slots)
}

// finishFound handles a cycle that discovered at least one matching slot.
func (o *Orchestrator) finishFound(ctx context.Context, task domain.Task, slots []domain.Slot) Outcome {
	log := o.log.With(logx.String("task", task.ID))

	booked := 0
	if task.AutoBook {
		limit := autoBookLimit
		if len(slots) < limit {
			limit = len(slots)
		}
		for _, slot := range slots[:limit] {
			ok, err := o.booker.Book(ctx, task, slot)
			if err != nil {
				log.Warn("booking attempt failed", logx.String("slot", slot.ID), logx.Err(err))
				continue
			}
			if ok {
				booked++
			}
		}
	}

	task.Status = domain.TaskCompleted
	task.FoundSlots = len(slots)

	msg := fmt.Sprintf("found %d slots for task %q", len(slots), task.Name)
	if booked > 0 {
		msg += fmt.Sprintf("; auto-booked %d", booked)
	}
	details := ""
	if b, err := json.Marshal(slots); err == nil {
		details = string(b)
	}

	if !o.persistResult(ctx, task, domain.EventSuccess, msg, details) {
		// Persistence failed: the run failed, the next cycle retries.
		return Outcome{Status: domain.TaskActive, SlotsFound: len(slots), Booked: booked}
	}

	log.Info("search cycle finished", logx.Int("slots", len(slots)), logx.Int("booked", booked))

	if user, err := o.users.GetUser(ctx, task.UserID); err == nil {
		o.notifier.NotifySlotsFound(ctx, user, task, slots)
	} else {
		log.Warn("owner lookup failed; notification skipped", logx.Err(err))
	}
	return Outcome{Status: domain.TaskCompleted, SlotsFound: len(slots), Booked: booked, Unregister: true}
}

// finishEmpty handles a cycle that found nothing. The task still completes:
// one activation buys one cycle, restarting is an explicit user action.
func (o *Orchestrator) finishEmpty(ctx context.Context, task domain.Task) Outcome {
	task.Status = domain.TaskCompleted
	task.FoundSlots = 0

	msg := fmt.Sprintf("no slots found for task %q; search cycle finished", task.Name)
	if !o.persistResult(ctx, task, domain.EventInfo, msg, "") {
		return Outcome{Status: domain.TaskActive}
	}

	o.log.Info("search cycle finished without matches", logx.String("task", task.ID))

	if user, err := o.users.GetUser(ctx, task.UserID); err == nil {
		o.notifier.NotifyCompleted(ctx, user, task)
	} else {
		o.log.Warn("owner lookup failed; notification skipped", logx.String("task", task.ID), logx.Err(err))
	}
	return Outcome{Status: domain.TaskCompleted, Unregister: true}
}

// failRun is the single error exit for a started cycle. The cause may be
// the run context itself expiring, so the error status, event and
// notification are written detached from that context; otherwise a timed-out
// run would leave no trail at all.
func (o *Orchestrator) failRun(ctx context.Context, task domain.Task, cause error) Outcome {
	ctx = context.WithoutCancel(ctx)
	o.log.Error("search cycle failed", logx.String("task", task.ID), logx.Err(cause))

	task.Status = domain.TaskError
	msg := fmt.Sprintf("slot search failed for task %q: %v", task.Name, cause)
	if !o.persistResult(ctx, task, domain.EventError, msg, "") {
		return Outcome{Status: domain.TaskActive}
	}

	if user, err := o.users.GetUser(ctx, task.UserID); err == nil {
		o.notifier.NotifyError(ctx, user, task, cause.Error())
	} else {
		o.log.Warn("owner lookup failed; notification skipped", logx.String("task", task.ID), logx.Err(err))
	}
	return Outcome{Status: domain.TaskError, Unregister: true}
}

// persistResult writes the task update and its event together. Reports
// whether both writes landed; on failure the cycle counts as failed and the
// next scheduled run retries.
func (o *Orchestrator) persistResult(ctx context.Context, task domain.Task, kind domain.EventKind, msg, details string) bool {
	if err := o.tasks.SaveTask(ctx, task); err != nil {
		o.log.Error("failed to persist task result", logx.String("task", task.ID), logx.Err(err))
		return false
	}
	if err := o.events.AppendEvent(ctx, domain.Event{
		TaskID:  task.ID,
		UserID:  task.UserID,
		Kind:    kind,
		Message: msg,
		Details: details,
	}); err != nil {
		o.log.Error("failed to persist task event", logx.String("task", task.ID), logx.Err(err))
		return false
	}
	return true
}

func (o *Orchestrator) appendEvent(ctx context.Context, task domain.Task, kind domain.EventKind, msg, details string) {
	if err := o.events.AppendEvent(ctx, domain.Event{
		TaskID:  task.ID,
		UserID:  task.UserID,
		Kind:    kind,
		Message: msg,
		Details: details,
	}); err != nil {
		o.log.Warn("failed to append event", logx.String("task", task.ID), logx.Err(err))
	}
}
