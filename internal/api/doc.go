// Package api exposes the HTTP surface: JWT auth, task and account CRUD,
// task lifecycle actions wired into the scheduler, the event feed, dashboard
// stats, worker status, and backup management.
package api
