package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/frameset/internal/cli/version"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "framesctl/"+version.Short())

	return c.httpClient.Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, respBody any) error {
	resp, err := c.doRequest(ctx, method, path, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if respBody != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		code := errResp.Code
		if code == "" {
			code = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Code: code, Message: errResp.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func uploadQuery(opts UploadOptions) url.Values {
	q := url.Values{}
	if opts.Sync {
		q.Set("process_sync", "true")
	}
	if opts.ModelName != "" {
		q.Set("model_name", opts.ModelName)
	}
	if opts.SamplingFactor > 0 {
		q.Set("sampling_factor", strconv.FormatFloat(opts.SamplingFactor, 'f', -1, 64))
	}
	if opts.MaxFrames > 0 {
		q.Set("max_frames_per_video", strconv.Itoa(opts.MaxFrames))
	}
	if opts.FrameInterval > 0 {
		q.Set("frame_interval", strconv.Itoa(opts.FrameInterval))
	}
	if len(opts.Extensions) > 0 {
		q.Set("extensions", strings.Join(opts.Extensions, ","))
	}
	return q
}

// Upload streams the archive at filePath to /upload_zip. Bytes read from the
// file are also written to progress when it is non-nil.
func (c *Client) Upload(ctx context.Context, filePath string, opts UploadOptions, progress io.Writer) (*UploadResponse, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var src io.Reader = file
	if progress != nil {
		src = io.TeeReader(file, progress)
	}

	// io.Pipe streams the multipart body without buffering the archive
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(filePath))
		if err == nil {
			_, err = io.Copy(part, src)
		}
		if err == nil {
			err = writer.Close()
		}
		_ = pw.CloseWithError(err)
		errCh <- err
	}()

	path := "/upload_zip"
	if q := uploadQuery(opts); len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, pr, writer.FormDataContentType())
	if err != nil {
		_ = pr.CloseWithError(err)
		<-errCh
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The server may answer before reading the whole body, e.g. on a
	// rejected parameter; unblock the writer either way.
	_ = pr.Close()
	writeErr := <-errCh

	if resp.StatusCode == http.StatusUnprocessableEntity {
		// A synchronous upload whose job failed still reports the job.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		var result UploadResponse
		if err := json.Unmarshal(body, &result); err == nil && result.JobID != "" {
			return &result, nil
		}
		resp.Body = io.NopCloser(strings.NewReader(string(body)))
		return nil, c.parseError(resp)
	}
	if resp.StatusCode >= 400 {
		return nil, c.parseError(resp)
	}
	if writeErr != nil && !errors.Is(writeErr, io.ErrClosedPipe) {
		return nil, fmt.Errorf("failed to write multipart form: %w", writeErr)
	}

	var result UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var result Job
	if err := c.doJSON(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListJobs(ctx context.Context, limit, offset int, status string) (*JobList, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	if status != "" {
		params.Set("status", status)
	}

	path := "/jobs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result JobList
	if err := c.doJSON(ctx, http.MethodGet, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) JobStats(ctx context.Context, jobID string) (*JobStats, error) {
	var result JobStats
	if err := c.doJSON(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/stats", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Catalog(ctx context.Context, jobID, kind string) (*CatalogResponse, error) {
	params := url.Values{}
	if jobID != "" {
		params.Set("job_id", jobID)
	}
	if kind != "" {
		params.Set("kind", kind)
	}

	path := "/catalog"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result CatalogResponse
	if err := c.doJSON(ctx, http.MethodGet, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListImages(ctx context.Context) (*ImagesResponse, error) {
	var result ImagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/list_images", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListFolders(ctx context.Context) (*FoldersResponse, error) {
	var result FoldersResponse
	if err := c.doJSON(ctx, http.MethodGet, "/list_upload_folders", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListUploads(ctx context.Context) (*UploadsResponse, error) {
	var result UploadsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/list_uploads", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Thumbnail copies a size x size JPEG preview of the catalog image at path
// into w. A zero size uses the server default.
func (c *Client) Thumbnail(ctx context.Context, path string, size int, w io.Writer) (int64, error) {
	params := url.Values{"filename": {path}}
	if size > 0 {
		params.Set("size", strconv.Itoa(size))
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/thumbnail?"+params.Encode(), nil, "")
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return 0, c.parseError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) DeleteImage(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, "/delete_image?"+url.Values{"filename": {path}}.Encode(), nil)
}

func (c *Client) DeleteFolder(ctx context.Context, folderID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/delete_upload_folder?"+url.Values{"folder_id": {folderID}}.Encode(), nil)
}

func (c *Client) DeleteUpload(ctx context.Context, filename string) error {
	return c.doJSON(ctx, http.MethodDelete, "/delete_upload?"+url.Values{"filename": {filename}}.Encode(), nil)
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var result HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WaitForJob polls until the job is completed or failed. On timeout it
// returns the last status seen along with the context error.
func (c *Client) WaitForJob(ctx context.Context, jobID string, pollInterval time.Duration, timeout time.Duration) (*Job, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last *Job
	for {
		j, err := c.GetJob(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, err
		}
		if j.Terminal() {
			return j, nil
		}
		last = j

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
