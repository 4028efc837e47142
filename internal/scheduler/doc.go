// Package scheduler keeps an in-memory registry of active search tasks and
// dispatches a run for each one whenever its poll interval has elapsed.
//
// The scheduler is deliberately thin:
//   - it tracks interval, last dispatch time, and an in-flight flag per task
//   - it never reads task state itself; runs are delegated to a Runner
//   - a run's outcome decides whether the task stays registered
//
// Durable task state lives in storage; on startup the application re-registers
// every active task so a restart never loses scheduled work.
package scheduler
