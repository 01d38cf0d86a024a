package testutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fmwatch/fmwatch/internal/config"
	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
)

// LogEntry is one captured structured log line.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// LogCapture collects log output for assertions.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Entries parses the captured JSON log lines.
func (c *LogCapture) Entries(t *testing.T) []LogEntry {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var entries []LogEntry
	for _, line := range strings.Split(c.buf.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			t.Fatalf("unparseable log line %q: %v", line, err)
		}
		entry := LogEntry{Fields: raw}
		if lvl, ok := raw["level"].(string); ok {
			entry.Level = lvl
		}
		if msg, ok := raw["msg"].(string); ok {
			entry.Message = msg
		}
		entries = append(entries, entry)
	}
	return entries
}

// NewTestLogger creates a debug logger that discards output.
func NewTestLogger() *events.Logger {
	return events.NewLogger(events.DebugLevel, "json", &LogCapture{})
}

// NewCapturedLogger creates a debug logger writing JSON into a capture.
func NewCapturedLogger() (*events.Logger, *LogCapture) {
	capture := &LogCapture{}
	return events.NewLogger(events.DebugLevel, "json", capture), capture
}

// TestConfig returns a config with fast intervals for tests.
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = "http://127.0.0.1:1"
	cfg.API.MaxRetries = 0
	cfg.Tasks.PollInterval = 10 * time.Millisecond
	cfg.Tasks.ReconnectMin = time.Millisecond
	cfg.Tasks.ReconnectMax = 5 * time.Millisecond
	return cfg
}

// TaskPatchFixture builds a full task record the way the query endpoint
// reports one. Callers override fields as needed.
func TaskPatchFixture(id string, status models.TaskStatus) models.TaskPatch {
	now := time.Now().Unix()
	isCopy := true
	source, target := "/src", "/dst"
	var totalFiles, copiedFiles, totalSize, copiedSize int64 = 4, 0, 4096, 0
	return models.TaskPatch{
		ID:          id,
		CreatedAt:   &now,
		UpdatedAt:   &now,
		Status:      &status,
		IsCopy:      &isCopy,
		Source:      &source,
		Target:      &target,
		TotalFiles:  &totalFiles,
		CopiedFiles: &copiedFiles,
		TotalSize:   &totalSize,
		CopiedSize:  &copiedSize,
	}
}

// ConflictFixture builds the conflictInfo a blocked task carries.
func ConflictFixture(name string) *models.ConflictInfo {
	return &models.ConflictInfo{
		NeedConfirm:    true,
		ConflictPolicy: models.PolicyAsk,
		SrcFile: models.ConflictFileInfo{
			Name: name, Size: 1024, ModifyTime: 1700000000,
		},
		DstFile: models.ConflictFileInfo{
			Name: name, Size: 2048, ModifyTime: 1690000000,
		},
	}
}

// Eventually polls cond until it holds or the deadline passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// DrainEvents consumes ch until it is quiet for the given window, returning
// everything received.
func DrainEvents(ch <-chan events.Event, quiet time.Duration) []events.Event {
	var out []events.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(quiet):
			return out
		}
	}
}
