package scheduler

import (
	"sort"
	"sync/atomic"
	"time"
)

// TaskInfo is one registered task as seen by operators.
type TaskInfo struct {
	ID       string        `json:"id"`
	Interval time.Duration `json:"interval"`
	LastRun  time.Time     `json:"last_run"`
	NextDue  time.Time     `json:"next_due"`
	InFlight bool          `json:"in_flight"`
}

type Snapshot struct {
	Running    bool       `json:"running"`
	Registered int        `json:"registered"`
	InFlight   int        `json:"in_flight"`
	Completed  uint64     `json:"completed"`
	Failed     uint64     `json:"failed"`
	Tasks      []TaskInfo `json:"tasks"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.stopCh != nil
	items := make([]TaskInfo, 0, len(s.entries))
	inFlight := 0
	for id, e := range s.entries {
		if e.inFlight {
			inFlight++
		}
		items = append(items, TaskInfo{
			ID:       id,
			Interval: e.interval,
			LastRun:  e.lastRun,
			NextDue:  e.lastRun.Add(e.interval),
			InFlight: e.inFlight,
		})
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	return Snapshot{
		Running:    running,
		Registered: len(items),
		InFlight:   inFlight,
		Completed:  atomic.LoadUint64(&s.completed),
		Failed:     atomic.LoadUint64(&s.failed),
		Tasks:      items,
	}
}
