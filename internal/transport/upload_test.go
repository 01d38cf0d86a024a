package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmwatch/fmwatch/internal/models"
)

func TestUploadSendsMultipartFieldsAndFile(t *testing.T) {
	type received struct {
		fields   map[string]string
		fileName string
		fileData string
	}
	var got received

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		require.NoError(t, err)

		got.fields = map[string]string{}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, err := io.ReadAll(part)
			require.NoError(t, err)

			if part.FormName() == "file" {
				got.fileName = part.FileName()
				got.fileData = string(data)
			} else {
				got.fields[part.FormName()] = string(data)
			}
		}
		writeJSON(w, http.StatusOK, models.UploadResponse{Result: true})
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	err := client.Upload(context.Background(), UploadRequest{
		Name: "report.pdf",
		Size: 11,
		Body: strings.NewReader("hello world"),
		Fields: map[string]string{
			"parentPath": "/docs",
			"totalSize":  "11",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.fileName)
	assert.Equal(t, "hello world", got.fileData)
	assert.Equal(t, "/docs", got.fields["parentPath"])
	assert.Equal(t, "11", got.fields["totalSize"])
}

func TestUploadReportsProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusOK, models.UploadResponse{Result: true})
	}))
	defer server.Close()

	var mu sync.Mutex
	var lastLoaded, lastTotal int64

	payload := strings.Repeat("x", 64*1024)
	client := newTestHTTPClient(server.URL)
	err := client.Upload(context.Background(), UploadRequest{
		Name: "big.bin",
		Size: int64(len(payload)),
		Body: strings.NewReader(payload),
		Progress: func(loaded, total int64) {
			mu.Lock()
			lastLoaded, lastTotal = loaded, total
			mu.Unlock()
		},
	})

	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(len(payload)), lastLoaded)
	assert.Equal(t, int64(len(payload)), lastTotal)
}

func TestUploadTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusRequestEntityTooLarge,
			models.UploadResponse{Result: false, Message: "file too large"})
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	err := client.Upload(context.Background(), UploadRequest{
		Name: "huge.bin",
		Size: 4,
		Body: strings.NewReader("data"),
	})

	require.Error(t, err)
	assert.True(t, models.IsPayloadTooLarge(err))
}

func TestUploadBusinessRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusOK,
			models.UploadResponse{Result: false, Message: "parent directory missing"})
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	err := client.Upload(context.Background(), UploadRequest{
		Name: "f.txt",
		Size: 4,
		Body: strings.NewReader("data"),
	})

	require.Error(t, err)
	assert.True(t, models.IsBusinessError(err))
	assert.Contains(t, err.Error(), "parent directory missing")
}

func TestUploadUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	err := client.Upload(context.Background(), UploadRequest{
		Name: "f.txt",
		Size: 4,
		Body: strings.NewReader("data"),
	})

	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestUploadCancelledContext(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	pr, pw := io.Pipe()
	defer pw.Close()

	client := newTestHTTPClient(server.URL)
	err := client.Upload(ctx, UploadRequest{
		Name: "slow.bin",
		Size: 1 << 20,
		Body: pr,
	})

	assert.ErrorIs(t, err, context.Canceled)
}
