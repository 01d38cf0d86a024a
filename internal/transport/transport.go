package transport

import (
	"context"
	"io"
	"sync"

	"github.com/fmwatch/fmwatch/internal/config"
	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
)

// UploadRequest carries one multipart upload. Fields are sent as plain text
// parts ahead of the file part; Progress, when set, is called from the
// request goroutine as the body is consumed.
type UploadRequest struct {
	Name     string
	Size     int64
	Body     io.Reader
	Fields   map[string]string
	Progress func(loaded, total int64)
}

// Transport is the client's view of the server boundary.
type Transport interface {
	// Session
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error

	// Pull channel and task commands
	QueryTasks(ctx context.Context) ([]models.TaskPatch, error)
	SuspendTask(ctx context.Context, id string) error
	ResumeTask(ctx context.Context, id string) error
	CancelTask(ctx context.Context, id string) error
	DeleteTask(ctx context.Context, id string) error
	RequestCopyMove(ctx context.Context, req models.CopyMoveRequest) error
	ResolveConflict(ctx context.Context, req models.ResolveConflictRequest) error

	// Uploads and configuration
	FetchConfig(ctx context.Context) (*models.PublicConfig, error)
	Upload(ctx context.Context, req UploadRequest) error

	// Push channel. The returned channel closes when the stream ends.
	StreamPush(ctx context.Context) (<-chan models.PushEnvelope, error)

	// Lifecycle
	Close() error
}

// DefaultTransport implements Transport over HTTP plus WebSocket.
type DefaultTransport struct {
	httpClient *HTTPClient
	logger     *events.Logger

	// mu guards wsClient: StreamPush runs on the updater's reconnect loop
	// while Close arrives from the owning client.
	mu       sync.Mutex
	wsClient *WSClient
}

// NewTransport creates a transport instance.
func NewTransport(cfg *config.APIConfig, logger *events.Logger) *DefaultTransport {
	return &DefaultTransport{
		httpClient: NewHTTPClient(cfg, logger),
		logger:     logger,
	}
}

func (t *DefaultTransport) Login(ctx context.Context, username, password string) error {
	return t.httpClient.Login(ctx, username, password)
}

func (t *DefaultTransport) Logout(ctx context.Context) error {
	return t.httpClient.Logout(ctx)
}

func (t *DefaultTransport) QueryTasks(ctx context.Context) ([]models.TaskPatch, error) {
	return t.httpClient.QueryTasks(ctx)
}

func (t *DefaultTransport) SuspendTask(ctx context.Context, id string) error {
	return t.httpClient.TaskCommand(ctx, "POST", "/api/task/suspend", id)
}

func (t *DefaultTransport) ResumeTask(ctx context.Context, id string) error {
	return t.httpClient.TaskCommand(ctx, "POST", "/api/task/resume", id)
}

func (t *DefaultTransport) CancelTask(ctx context.Context, id string) error {
	return t.httpClient.TaskCommand(ctx, "POST", "/api/task/cancel", id)
}

func (t *DefaultTransport) DeleteTask(ctx context.Context, id string) error {
	return t.httpClient.TaskCommand(ctx, "DELETE", "/api/task/delete", id)
}

func (t *DefaultTransport) RequestCopyMove(ctx context.Context, req models.CopyMoveRequest) error {
	return t.httpClient.PostCommand(ctx, "/api/file/copy", req)
}

func (t *DefaultTransport) ResolveConflict(ctx context.Context, req models.ResolveConflictRequest) error {
	if !req.Policy.Valid() {
		return models.ErrInvalidPolicy
	}
	return t.httpClient.PostCommand(ctx, "/api/file/resolve-conflict", req)
}

func (t *DefaultTransport) FetchConfig(ctx context.Context) (*models.PublicConfig, error) {
	return t.httpClient.FetchConfig(ctx)
}

func (t *DefaultTransport) Upload(ctx context.Context, req UploadRequest) error {
	return t.httpClient.Upload(ctx, req)
}

// StreamPush opens a fresh WebSocket stream. The previous stream, if any, is
// closed first; the updater owns reconnect policy.
func (t *DefaultTransport) StreamPush(ctx context.Context) (<-chan models.PushEnvelope, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.wsClient != nil {
		_ = t.wsClient.Close()
		t.wsClient = nil
	}

	ws := NewWSClient(t.httpClient.baseURL, t.httpClient.Jar(), t.logger)
	if err := ws.Connect(ctx); err != nil {
		return nil, err
	}
	t.wsClient = ws
	return ws.Messages(), nil
}

// Close closes the push stream.
func (t *DefaultTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.wsClient == nil {
		return nil
	}
	err := t.wsClient.Close()
	t.wsClient = nil
	return err
}
