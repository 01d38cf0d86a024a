package tasks

import (
	"sort"
	"sync"

	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
)

// Store holds the canonical client-side task collection. It is the only
// writer of task records: every mutation flows through Merge or Delete, and
// each publishes a fresh ordered snapshot so observers never pair new data
// with a stale order.
type Store struct {
	mu    sync.Mutex
	order []*models.Task
	index map[string]*models.Task

	bus    *events.Bus
	logger *events.Logger
}

// NewStore creates an empty task store.
func NewStore(bus *events.Bus, logger *events.Logger) *Store {
	return &Store{
		index:  make(map[string]*models.Task),
		bus:    bus,
		logger: logger.WithField("component", "task_store"),
	}
}

// Merge reconciles a batch of incoming records. Records without an id are
// dropped. Present fields overwrite, omitted fields survive (conflictInfo
// excepted: its absence clears the pending conflict), so partial updates
// from either channel are safe; merging the same batch twice leaves the
// collection unchanged. The input batch is never mutated.
func (s *Store) Merge(patches []models.TaskPatch) {
	s.mu.Lock()

	for i := range patches {
		patch := patches[i]
		if patch.ID == "" {
			s.logger.Warn("Dropping task update without id")
			continue
		}

		existing, ok := s.index[patch.ID]
		if !ok {
			task := patch.NewTask()
			s.index[task.ID] = task
			s.order = append(s.order, task)
			continue
		}

		// Terminal statuses are final: a stale update must not revive a
		// finished task.
		if existing.Status.Terminal() && patch.Status != nil && !patch.Status.Terminal() {
			s.logger.WithFields(map[string]interface{}{
				"task_id": patch.ID,
				"status":  *patch.Status,
			}).Debug("Ignoring status downgrade for terminal task")
			patch.Status = nil
		}

		patch.Apply(existing)
		existing.DeriveProgress()
	}

	s.resort()
	snapshot := s.snapshot()
	s.mu.Unlock()

	s.bus.Publish(events.TasksChangedEvent{Tasks: snapshot})
}

// Delete removes a record by id. Unknown ids are a no-op: deletion races
// with server-originated removal are expected.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	if _, ok := s.index[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.index, id)
	for i, t := range s.order {
		if t.ID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	snapshot := s.snapshot()
	s.mu.Unlock()

	s.bus.Publish(events.TaskRemovedEvent{ID: id})
	s.bus.Publish(events.TasksChangedEvent{Tasks: snapshot})
}

// Tasks returns the collection in presentation order.
func (s *Store) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Get returns a single task by id.
func (s *Store) Get(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[id]
	if !ok {
		return models.Task{}, false
	}
	return *t, true
}

// Len returns the number of tracked tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// statusBucket ranks statuses for presentation: in-flight work first, queued
// work second, history last.
func statusBucket(status models.TaskStatus) int {
	switch status {
	case models.StatusRunning, models.StatusSuspended, models.StatusPending:
		return 0
	case models.StatusStarting:
		return 1
	default: // completed, cancelled, failed
		return 2
	}
}

// resort orders the collection by (bucket, recency). The sort is stable so
// no-op merges cannot make the visible list jitter.
func (s *Store) resort() {
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.order[i], s.order[j]
		ab, bb := statusBucket(a.Status), statusBucket(b.Status)
		if ab != bb {
			return ab < bb
		}
		if ab == 0 {
			return a.CreatedAt > b.CreatedAt
		}
		return a.UpdatedAt > b.UpdatedAt
	})
}

func (s *Store) snapshot() []models.Task {
	out := make([]models.Task, len(s.order))
	for i, t := range s.order {
		out[i] = *t
		if t.ConflictInfo != nil {
			info := *t.ConflictInfo
			out[i].ConflictInfo = &info
		}
	}
	return out
}
