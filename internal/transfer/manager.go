package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
	"github.com/fmwatch/fmwatch/internal/transport"
)

// speedSampleWindow is the minimum spacing between speed samples. Progress
// callbacks arrive in bursts; sampling a differential over at least this
// window keeps the estimate readable.
const speedSampleWindow = 500 * time.Millisecond

// FileSource describes one file selected for upload. Open is called at
// dispatch time so queued selections do not pin file handles.
type FileSource struct {
	Name       string
	Size       int64
	ParentPath string
	Open       func() (io.ReadCloser, error)
}

// FromFile builds a FileSource for a local file.
func FromFile(path, parentPath string) (FileSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileSource{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return FileSource{}, fmt.Errorf("%s is a directory", path)
	}
	return FileSource{
		Name:       filepath.Base(path),
		Size:       fi.Size(),
		ParentPath: parentPath,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FromDir walks a local directory and builds a FileSource per regular file,
// preserving the directory's relative layout under parentPath.
func FromDir(dir, parentPath string) ([]FileSource, error) {
	var sources []FileSource
	root := filepath.Clean(dir)

	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relDir := filepath.ToSlash(filepath.Dir(rel))
		dest := parentPath + "/" + filepath.Base(root)
		if relDir != "." {
			dest += "/" + relDir
		}

		filePath := path
		sources = append(sources, FileSource{
			Name:       fi.Name(),
			Size:       fi.Size(),
			ParentPath: dest,
			Open: func() (io.ReadCloser, error) {
				return os.Open(filePath)
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return sources, nil
}

// item pairs the visible TransferItem with its private dispatch state. The
// cancel func is owned by the item for its whole lifetime and released with
// it; a removed item's callbacks find nothing to mutate.
type item struct {
	models.TransferItem
	cancel context.CancelFunc

	lastLoaded int64
	lastSample time.Time
}

// Manager runs client-initiated uploads: queuing, size pre-checks, progress
// and throughput sampling, cancellation, and terminal classification. It is
// independent of the task store; the two only share the UI surface.
type Manager struct {
	transport transport.Transport
	bus       *events.Bus
	logger    *events.Logger

	mu       sync.Mutex
	order    []*item
	index    map[string]*item
	maxSize  int64
	maxKnown bool

	// now is swapped in tests to drive the speed estimator.
	now func() time.Time
}

// NewManager creates a transfer manager. maxSizeOverride, when > 0, takes
// the place of the server-advertised limit.
func NewManager(tr transport.Transport, bus *events.Bus, maxSizeOverride int64, logger *events.Logger) *Manager {
	m := &Manager{
		transport: tr,
		bus:       bus,
		logger:    logger.WithField("component", "transfer"),
		index:     make(map[string]*item),
		now:       time.Now,
	}
	if maxSizeOverride > 0 {
		m.maxSize = maxSizeOverride
		m.maxKnown = true
	}
	return m
}

// Enqueue admits files for upload. Files over the size limit become
// rejected items immediately and are never dispatched; everything else
// starts uploading right away. Concurrency is bounded by the transport's
// connection limits, not an admission queue.
func (m *Manager) Enqueue(ctx context.Context, sources ...FileSource) {
	limit := m.sizeLimit(ctx)

	for _, src := range sources {
		it := &item{
			TransferItem: models.TransferItem{
				ID:         uuid.NewString(),
				Name:       src.Name,
				Size:       src.Size,
				ParentPath: src.ParentPath,
				Status:     models.TransferWaiting,
			},
		}

		if limit > 0 && src.Size > limit {
			it.Status = models.TransferRejected
			it.ErrorMessage = fmt.Sprintf("%s exceeds the maximum upload size of %s",
				src.Name, formatSize(limit))
			m.add(it)
			m.logger.WithFields(map[string]interface{}{
				"name": src.Name,
				"size": src.Size,
			}).Warn("Upload rejected by size pre-check")
			continue
		}

		// The cancel handle exists before the request starts, so Cancel
		// can never race with dispatch.
		upCtx, cancel := context.WithCancel(context.Background())
		it.cancel = cancel
		m.add(it)

		go m.dispatch(upCtx, it.ID, src)
	}
}

// Cancel aborts any in-flight request for id and removes the item. Not an
// error path: the item vanishes without an error message.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	it, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.index, id)
	for i, o := range m.order {
		if o.ID == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	cancel := it.cancel
	it.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.logger.WithField("id", id).Info("Upload cancelled")
	m.bus.Publish(events.TransferRemovedEvent{ID: id})
}

// Items returns the current items in enqueue order.
func (m *Manager) Items() []models.TransferItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TransferItem, len(m.order))
	for i, it := range m.order {
		out[i] = it.TransferItem
	}
	return out
}

// Get returns one item by id.
func (m *Manager) Get(id string) (models.TransferItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.index[id]
	if !ok {
		return models.TransferItem{}, false
	}
	return it.TransferItem, true
}

// sizeLimit returns the effective max upload size, fetching the server
// config once per session. An unreachable config endpoint disables the
// pre-check rather than blocking uploads; the server still enforces its own
// limit.
func (m *Manager) sizeLimit(ctx context.Context) int64 {
	m.mu.Lock()
	if m.maxKnown {
		limit := m.maxSize
		m.mu.Unlock()
		return limit
	}
	m.mu.Unlock()

	cfg, err := m.transport.FetchConfig(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.logger.WithError(err).Warn("Could not fetch upload size limit")
		return m.maxSize
	}
	m.maxSize = cfg.MaxUploadSize
	m.maxKnown = true
	return m.maxSize
}

// dispatch runs one upload to completion and classifies the outcome.
func (m *Manager) dispatch(ctx context.Context, id string, src FileSource) {
	if !m.update(id, func(it *item) {
		it.Status = models.TransferUploading
		it.lastSample = m.now()
	}) {
		return // cancelled before the request started
	}

	body, err := src.Open()
	if err != nil {
		m.finish(id, fmt.Errorf("open %s: %w", src.Name, err))
		return
	}
	defer body.Close()

	err = m.transport.Upload(ctx, transport.UploadRequest{
		Name: src.Name,
		Size: src.Size,
		Body: body,
		Fields: map[string]string{
			"parentPath": src.ParentPath,
			"totalSize":  strconv.FormatInt(src.Size, 10),
		},
		Progress: func(loaded, total int64) {
			m.onProgress(id, loaded, total)
		},
	})
	m.finish(id, err)
}

// finish applies the terminal classification for an upload outcome. A
// cancelled item was already removed; its late result is a no-op.
func (m *Manager) finish(id string, err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		return
	}

	var done models.TransferItem
	ok := m.update(id, func(it *item) {
		if err == nil {
			it.Status = models.TransferSuccess
			it.Progress = 100
			it.Speed = 0
		} else {
			it.Status = models.TransferError
			it.ErrorMessage = classifyUploadError(err)
		}
		done = it.TransferItem
	})
	if !ok {
		return
	}

	if err == nil {
		m.logger.WithField("name", done.Name).Info("Upload complete")
		m.bus.Publish(events.UploadDoneEvent{Item: done})
	} else if models.IsAuthError(err) {
		// Session expiry is cross-cutting; the item keeps a generic
		// message while the session handler deals with the redirect.
		m.logger.Warn("Upload failed: session expired")
	} else {
		m.logger.WithError(err).WithField("name", done.Name).Error("Upload failed")
	}
}

// onProgress records chunk progress and, at most twice per second, re-samples
// instantaneous throughput from the bytes moved since the previous sample.
// A lifetime average would hide stalls; this deliberately does not smooth
// over them.
func (m *Manager) onProgress(id string, loaded, total int64) {
	m.update(id, func(it *item) {
		if it.Status != models.TransferUploading {
			return
		}

		if total > 0 {
			pct := int(math.Round(float64(loaded) / float64(total) * 100))
			if pct > 100 {
				pct = 100
			}
			if pct > it.Progress {
				it.Progress = pct
			}
		}

		now := m.now()
		elapsed := now.Sub(it.lastSample)
		if elapsed >= speedSampleWindow {
			it.Speed = int64(float64(loaded-it.lastLoaded) / elapsed.Seconds())
			it.lastLoaded = loaded
			it.lastSample = now
		}
	})
}

// update mutates an item under the lock and publishes the new state.
// Returns false when the item no longer exists (removed by Cancel), which
// callers treat as "do nothing".
func (m *Manager) update(id string, fn func(*item)) bool {
	m.mu.Lock()
	it, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	fn(it)
	snapshot := it.TransferItem
	m.mu.Unlock()

	m.bus.Publish(events.TransferUpdatedEvent{Item: snapshot})
	return true
}

func (m *Manager) add(it *item) {
	m.mu.Lock()
	m.index[it.ID] = it
	m.order = append(m.order, it)
	snapshot := it.TransferItem
	m.mu.Unlock()

	m.bus.Publish(events.TransferAddedEvent{Item: snapshot})
}

// classifyUploadError maps an upload failure to the user-facing message.
// Session expiry deliberately gets the generic message: auth state is
// cross-cutting and never recorded on an item.
func classifyUploadError(err error) string {
	switch {
	case models.IsPayloadTooLarge(err):
		return "file exceeds the server's upload size limit"
	case models.IsBusinessError(err):
		var apiErr *models.APIError
		errors.As(err, &apiErr)
		return apiErr.Message
	default:
		return "upload failed, check your connection and try again"
	}
}

// formatSize renders a byte count for humans.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
