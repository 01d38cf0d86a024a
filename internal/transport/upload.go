package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/fmwatch/fmwatch/internal/models"
)

// Upload streams one multipart upload request. The body is piped, never
// buffered whole, so arbitrarily large files cost constant memory. Uploads
// are not retried: the caller owns retry policy for non-idempotent requests.
func (c *HTTPClient) Upload(ctx context.Context, req UploadRequest) error {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		err := writeUploadBody(writer, pw, req)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/file/upload", pr)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("User-Agent", c.userAgent)

	c.logger.WithFields(map[string]interface{}{
		"name": req.Name,
		"size": req.Size,
	}).Debug("Starting upload")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("execute upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read upload response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return &models.APIError{StatusCode: resp.StatusCode, Message: uploadMessage(body)}
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP %d", models.ErrNotAuthenticated, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return &models.APIError{StatusCode: resp.StatusCode, Message: uploadMessage(body)}
	}

	var uploadResp models.UploadResponse
	if err := json.Unmarshal(body, &uploadResp); err != nil {
		return fmt.Errorf("parse upload response: %w", err)
	}
	if !uploadResp.Result {
		return &models.APIError{StatusCode: resp.StatusCode, Message: uploadResp.Message, Business: true}
	}

	return nil
}

// writeUploadBody emits the text fields followed by the file part, invoking
// the progress callback as file bytes drain into the request.
func writeUploadBody(writer *multipart.Writer, pw *io.PipeWriter, req UploadRequest) error {
	// Deterministic field order simplifies server-side logs and tests.
	keys := make([]string, 0, len(req.Fields))
	for k := range req.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writer.WriteField(k, req.Fields[k]); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}

	part, err := writer.CreateFormFile("file", req.Name)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}

	src := io.Reader(req.Body)
	if req.Progress != nil {
		src = &progressReader{
			reader:   req.Body,
			total:    req.Size,
			progress: req.Progress,
		}
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("stream file: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}
	return nil
}

// progressReader counts bytes as the HTTP client consumes the body.
type progressReader struct {
	reader   io.Reader
	total    int64
	loaded   int64
	progress func(loaded, total int64)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.loaded += int64(n)
		r.progress(r.loaded, r.total)
	}
	return n, err
}

// uploadMessage pulls the server message out of an upload error body, falling
// back to the raw body text.
func uploadMessage(body []byte) string {
	var resp models.UploadResponse
	if json.Unmarshal(body, &resp) == nil && resp.Message != "" {
		return resp.Message
	}
	return string(body)
}
