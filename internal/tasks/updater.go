package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fmwatch/fmwatch/internal/config"
	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
	"github.com/fmwatch/fmwatch/internal/transport"
)

// Updater normalizes both update sources into store mutations: periodic
// pulls merge the full query result, push envelopes merge or delete one
// record at a time. Pull and push need no sequencing between each other;
// both report the server's current state and last-applied wins.
type Updater struct {
	transport transport.Transport
	store     *Store
	logger    *events.Logger

	pollInterval time.Duration
	reconnectMin time.Duration
	reconnectMax time.Duration
}

// NewUpdater creates an updater.
func NewUpdater(tr transport.Transport, store *Store, cfg *config.TasksConfig, logger *events.Logger) *Updater {
	return &Updater{
		transport:    tr,
		store:        store,
		logger:       logger.WithField("component", "updater"),
		pollInterval: cfg.PollInterval,
		reconnectMin: cfg.ReconnectMin,
		reconnectMax: cfg.ReconnectMax,
	}
}

// Refresh pulls the current task list once and merges it.
func (u *Updater) Refresh(ctx context.Context) error {
	patches, err := u.transport.QueryTasks(ctx)
	if err != nil {
		return err
	}
	u.store.Merge(patches)
	return nil
}

// Run drives both channels until ctx is done.
func (u *Updater) Run(ctx context.Context) {
	go u.pollLoop(ctx)
	u.pushLoop(ctx)
}

func (u *Updater) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(u.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.Refresh(ctx); err != nil && ctx.Err() == nil {
				u.logger.WithError(err).Warn("Task poll failed")
			}
		}
	}
}

// pushLoop keeps one push stream open, reconnecting with capped backoff.
// Every (re)connect is followed by an immediate pull so nothing that
// happened while disconnected is missed.
func (u *Updater) pushLoop(ctx context.Context) {
	backoff := u.reconnectMin

	for ctx.Err() == nil {
		ch, err := u.transport.StreamPush(ctx)
		if err != nil {
			u.logger.WithError(err).WithField("retry_in", backoff).Warn("Push channel unavailable")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > u.reconnectMax {
				backoff = u.reconnectMax
			}
			continue
		}
		backoff = u.reconnectMin

		if err := u.Refresh(ctx); err != nil && ctx.Err() == nil {
			u.logger.WithError(err).Warn("Post-connect refresh failed")
		}

		u.consume(ctx, ch)
	}
}

func (u *Updater) consume(ctx context.Context, ch <-chan models.PushEnvelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				u.logger.Info("Push channel closed")
				return
			}
			u.Apply(env)
		}
	}
}

// Apply routes one push envelope into the store. Malformed envelopes are
// dropped; they must never take the stream down.
func (u *Updater) Apply(env models.PushEnvelope) {
	switch env.Type {
	case models.PushTaskInfo:
		var patch models.TaskPatch
		if err := json.Unmarshal(env.Data, &patch); err != nil {
			u.logger.WithError(err).Warn("Dropping malformed task envelope")
			return
		}
		u.store.Merge([]models.TaskPatch{patch})

	case models.PushTaskDeleted:
		var id string
		if err := json.Unmarshal(env.Data, &id); err != nil {
			u.logger.WithError(err).Warn("Dropping malformed delete envelope")
			return
		}
		u.store.Delete(id)

	case models.PushPong:
		// Keepalive, handled at the transport.

	default:
		u.logger.WithField("type", env.Type).Debug("Ignoring envelope type")
	}
}
