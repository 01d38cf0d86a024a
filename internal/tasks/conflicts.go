package tasks

import (
	"context"
	"sync"

	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
	"github.com/fmwatch/fmwatch/internal/transport"
)

// Coordinator watches task records for pending conflicts, keeps one prompt
// per blocked task, and relays decisions back to the server. Dismissal is
// optimistic: the authoritative conflict state only ever comes back through
// the next merge.
type Coordinator struct {
	transport transport.Transport
	bus       *events.Bus
	logger    *events.Logger

	mu      sync.Mutex
	prompts map[string]models.ConflictInfo
}

// NewCoordinator creates a conflict coordinator.
func NewCoordinator(tr transport.Transport, bus *events.Bus, logger *events.Logger) *Coordinator {
	return &Coordinator{
		transport: tr,
		bus:       bus,
		logger:    logger.WithField("component", "conflicts"),
		prompts:   make(map[string]models.ConflictInfo),
	}
}

// Run consumes task snapshots from the bus until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	ch, cancel := c.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if changed, ok := ev.(events.TasksChangedEvent); ok {
				c.Inspect(changed.Tasks)
			}
		}
	}
}

// Inspect reconciles prompt state against a task snapshot. A task enters
// the prompt set when it carries needConfirm and is still alive; its file
// snapshots refresh on every merge while it stays blocked; it leaves the
// set, silently, when the conflict disappears or the task goes terminal.
func (c *Coordinator) Inspect(tasks []models.Task) {
	type promptUpdate struct {
		taskID string
		info   models.ConflictInfo
	}
	var opened []promptUpdate
	var retracted []string

	c.mu.Lock()
	seen := make(map[string]bool, len(c.prompts))
	for i := range tasks {
		task := &tasks[i]
		if task.ConflictInfo == nil || !task.ConflictInfo.NeedConfirm || task.Status.Terminal() {
			continue
		}
		seen[task.ID] = true

		prev, awaiting := c.prompts[task.ID]
		info := *task.ConflictInfo
		c.prompts[task.ID] = info
		if !awaiting || prev != info {
			opened = append(opened, promptUpdate{taskID: task.ID, info: info})
		}
	}
	for id := range c.prompts {
		if !seen[id] {
			delete(c.prompts, id)
			retracted = append(retracted, id)
		}
	}
	c.mu.Unlock()

	for _, p := range opened {
		c.logger.WithField("task_id", p.taskID).Info("Conflict awaiting decision")
		c.bus.Publish(events.ConflictPromptEvent{TaskID: p.taskID, Info: p.info})
	}
	for _, id := range retracted {
		c.bus.Publish(events.ConflictRetractedEvent{TaskID: id})
	}
}

// Prompts returns the task ids currently awaiting a decision, with their
// latest file snapshots.
func (c *Coordinator) Prompts() map[string]models.ConflictInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.ConflictInfo, len(c.prompts))
	for id, info := range c.prompts {
		out[id] = info
	}
	return out
}

// Resolve submits a decision for a blocked task and dismisses the prompt
// immediately. A failed submission is surfaced to the caller but does not
// reopen the prompt; a fresh needConfirm on the next merge will.
func (c *Coordinator) Resolve(ctx context.Context, taskID string, policy models.ConflictPolicy, remember bool) error {
	if !policy.Valid() {
		return models.ErrInvalidPolicy
	}

	c.mu.Lock()
	_, awaiting := c.prompts[taskID]
	delete(c.prompts, taskID)
	c.mu.Unlock()

	if awaiting {
		c.bus.Publish(events.ConflictRetractedEvent{TaskID: taskID})
	}

	err := c.transport.ResolveConflict(ctx, models.ResolveConflictRequest{
		TaskID:   taskID,
		Policy:   policy,
		Remember: remember,
	})
	if err != nil {
		c.logger.WithError(err).WithField("task_id", taskID).Error("Conflict decision submission failed")
		return err
	}

	c.logger.WithFields(map[string]interface{}{
		"task_id":  taskID,
		"policy":   policy,
		"remember": remember,
	}).Info("Conflict decision submitted")
	return nil
}
