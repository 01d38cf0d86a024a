package transport

import (
	"context"
	"io"
	"sync"

	"github.com/fmwatch/fmwatch/internal/models"
)

// MockTransport provides a canned Transport for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration
	Tasks        []models.TaskPatch
	Config       models.PublicConfig
	PushEnvs     []models.PushEnvelope
	HoldPushOpen bool

	// Error injection
	QueryErr   error
	CommandErr error
	ResolveErr error
	ConfigErr  error
	UploadErr  error
	StreamErr  error

	// Upload behavior: progress steps (loaded values) replayed through the
	// request's Progress callback before the upload resolves. When
	// UploadBlocks is set the call parks until the context is cancelled.
	UploadSteps  []int64
	UploadBlocks bool

	// Request tracking
	Commands     []string // e.g. "suspend:<id>", "copy", "resolve:<taskId>:<policy>"
	UploadCalls  []UploadRequest
	ConfigCalls  int
	StreamCalls  int
	LoginCalls   []string
	uploadCancel chan struct{}

	pushChan chan models.PushEnvelope
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		uploadCancel: make(chan struct{}),
	}
}

func (m *MockTransport) Login(ctx context.Context, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoginCalls = append(m.LoginCalls, username)
	return nil
}

func (m *MockTransport) Logout(ctx context.Context) error { return nil }

func (m *MockTransport) QueryTasks(ctx context.Context) ([]models.TaskPatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	out := make([]models.TaskPatch, len(m.Tasks))
	copy(out, m.Tasks)
	return out, nil
}

func (m *MockTransport) SuspendTask(ctx context.Context, id string) error {
	return m.command("suspend:" + id)
}

func (m *MockTransport) ResumeTask(ctx context.Context, id string) error {
	return m.command("resume:" + id)
}

func (m *MockTransport) CancelTask(ctx context.Context, id string) error {
	return m.command("cancel:" + id)
}

func (m *MockTransport) DeleteTask(ctx context.Context, id string) error {
	return m.command("delete:" + id)
}

func (m *MockTransport) RequestCopyMove(ctx context.Context, req models.CopyMoveRequest) error {
	if req.IsCopy {
		return m.command("copy:" + req.Source + "->" + req.Target)
	}
	return m.command("move:" + req.Source + "->" + req.Target)
}

func (m *MockTransport) ResolveConflict(ctx context.Context, req models.ResolveConflictRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = append(m.Commands, "resolve:"+req.TaskID+":"+string(req.Policy))
	return m.ResolveErr
}

func (m *MockTransport) FetchConfig(ctx context.Context) (*models.PublicConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfigCalls++
	if m.ConfigErr != nil {
		return nil, m.ConfigErr
	}
	cfg := m.Config
	return &cfg, nil
}

func (m *MockTransport) Upload(ctx context.Context, req UploadRequest) error {
	m.mu.Lock()
	m.UploadCalls = append(m.UploadCalls, req)
	steps := m.UploadSteps
	blocks := m.UploadBlocks
	uploadErr := m.UploadErr
	m.mu.Unlock()

	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
	}
	if req.Progress != nil {
		for _, loaded := range steps {
			req.Progress(loaded, req.Size)
		}
	}

	if blocks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.uploadCancel:
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return uploadErr
}

// ReleaseUploads unblocks all parked Upload calls.
func (m *MockTransport) ReleaseUploads() {
	close(m.uploadCancel)
}

func (m *MockTransport) StreamPush(ctx context.Context) (<-chan models.PushEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StreamCalls++
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}

	m.pushChan = make(chan models.PushEnvelope, len(m.PushEnvs)+1)
	for _, env := range m.PushEnvs {
		m.pushChan <- env
	}
	if !m.HoldPushOpen {
		close(m.pushChan)
	}
	return m.pushChan, nil
}

// PushNow delivers an envelope on the open stream.
func (m *MockTransport) PushNow(env models.PushEnvelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushChan != nil {
		m.pushChan <- env
	}
}

// ClosePush ends the open stream.
func (m *MockTransport) ClosePush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushChan != nil {
		close(m.pushChan)
		m.pushChan = nil
	}
}

func (m *MockTransport) Close() error { return nil }

func (m *MockTransport) command(desc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = append(m.Commands, desc)
	return m.CommandErr
}

// StreamAttempts returns how many times StreamPush was called.
func (m *MockTransport) StreamAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StreamCalls
}

// CommandLog returns a copy of the recorded commands.
func (m *MockTransport) CommandLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Commands))
	copy(out, m.Commands)
	return out
}

// UploadCount returns how many uploads were dispatched.
func (m *MockTransport) UploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.UploadCalls)
}
