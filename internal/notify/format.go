package notify

import (
	"fmt"
	"strings"
	"time"

	"wbautoslot/internal/domain"
)

const maxListedSlots = 5

const dateLayout = "02.01.2006"

func slotsFoundMessage(task domain.Task, slots []domain.Slot) (subject, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Slots found for task %q\n\n", task.Name)
	fmt.Fprintf(&b, "Period: %s - %s\n", task.DateFrom.Format(dateLayout), task.DateTo.Format(dateLayout))
	fmt.Fprintf(&b, "Warehouse: %s\n", task.Warehouse)
	if task.Packaging != "" {
		fmt.Fprintf(&b, "Packaging: %s\n", task.Packaging)
	}
	fmt.Fprintf(&b, "Slots found: %d\n\n", len(slots))

	for i, s := range slots {
		if i == maxListedSlots {
			fmt.Fprintf(&b, "... and %d more\n", len(slots)-maxListedSlots)
			break
		}
		fmt.Fprintf(&b, "%d. %s - coefficient %.1f\n", i+1, s.Date.Format(dateLayout), s.Coefficient)
	}
	return "Slots found", b.String()
}

func completedMessage(task domain.Task, now time.Time) (subject, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %q finished\n\n", task.Name)
	fmt.Fprintf(&b, "Period: %s - %s\n", task.DateFrom.Format(dateLayout), task.DateTo.Format(dateLayout))
	fmt.Fprintf(&b, "Warehouse: %s\n", task.Warehouse)
	fmt.Fprintf(&b, "Slots found: %d\n", task.FoundSlots)
	fmt.Fprintf(&b, "Finished at: %s\n", now.Format("02.01.2006 15:04"))
	return "Task finished", b.String()
}

func errorMessage(task domain.Task, errMsg string, now time.Time) (subject, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %q failed\n\n", task.Name)
	fmt.Fprintf(&b, "Period: %s - %s\n", task.DateFrom.Format(dateLayout), task.DateTo.Format(dateLayout))
	fmt.Fprintf(&b, "Warehouse: %s\n", task.Warehouse)
	fmt.Fprintf(&b, "Error: %s\n", errMsg)
	fmt.Fprintf(&b, "Failed at: %s\n", now.Format("02.01.2006 15:04"))
	return "Task failed", b.String()
}
