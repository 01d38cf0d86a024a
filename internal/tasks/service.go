package tasks

import (
	"context"

	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
	"github.com/fmwatch/fmwatch/internal/transport"
)

// Service issues task commands. Commands only request a state change: the
// client never fabricates a status locally, it waits for the next merge to
// reflect the server's answer.
type Service struct {
	transport transport.Transport
	logger    *events.Logger
}

// NewService creates a task command service.
func NewService(tr transport.Transport, logger *events.Logger) *Service {
	return &Service{
		transport: tr,
		logger:    logger.WithField("service", "tasks"),
	}
}

// Copy asks the server to start a bulk copy job. The new task arrives
// through the update channels.
func (s *Service) Copy(ctx context.Context, source, target string, files []string) error {
	return s.transport.RequestCopyMove(ctx, models.CopyMoveRequest{
		IsCopy: true,
		Source: source,
		Target: target,
		Files:  files,
	})
}

// Move asks the server to start a bulk move job.
func (s *Service) Move(ctx context.Context, source, target string, files []string) error {
	return s.transport.RequestCopyMove(ctx, models.CopyMoveRequest{
		IsCopy: false,
		Source: source,
		Target: target,
		Files:  files,
	})
}

// Suspend pauses a running task.
func (s *Service) Suspend(ctx context.Context, id string) error {
	return s.transport.SuspendTask(ctx, id)
}

// Resume continues a suspended task.
func (s *Service) Resume(ctx context.Context, id string) error {
	return s.transport.ResumeTask(ctx, id)
}

// Cancel stops a task. The server also drops it from its list; the local
// record goes away with the resulting delete notice.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.transport.CancelTask(ctx, id)
}

// Delete removes a terminal task from the server's list.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.transport.DeleteTask(ctx, id)
}
