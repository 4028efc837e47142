// Package storage is the durable persistence layer: users, supplier
// accounts, tasks and their append-only event log, all in a single SQLite
// database file.
//
// The store is the single source of truth for task state. Concurrent task
// executions update disjoint rows, so the single-writer SQLite discipline
// (MaxOpenConns=1 + WAL) is sufficient; no cross-task transactional coupling
// exists.
package storage
