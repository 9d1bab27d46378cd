package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return New(server.URL, 10*time.Second)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:8080/", time.Second)
	if c.BaseURL() != "http://localhost:8080" {
		t.Errorf("BaseURL() = %s, want http://localhost:8080", c.BaseURL())
	}
}

func TestClient_Upload(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "photos.zip")
	content := bytes.Repeat([]byte("PK"), 4096)
	if err := os.WriteFile(archive, content, 0o644); err != nil {
		t.Fatal(err)
	}

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload_zip" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("process_sync") != "true" || q.Get("max_frames_per_video") != "25" || q.Get("extensions") != ".jpg,.mp4" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Has("sampling_factor") || q.Has("frame_interval") {
			t.Errorf("zero options should not be sent: %s", r.URL.RawQuery)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("failed to get file: %v", err)
		}
		defer file.Close()
		got, _ := io.ReadAll(file)
		if header.Filename != "photos.zip" || !bytes.Equal(got, content) {
			t.Errorf("received %s with %d bytes", header.Filename, len(got))
		}

		_ = json.NewEncoder(w).Encode(UploadResponse{
			Status:     "success",
			JobID:      "job-1",
			Filename:   "photos.zip",
			Processing: "sync",
			Job:        &Job{ID: "job-1", Status: "completed", Files: []string{"job-1/a.jpg"}},
		})
	})

	var progress bytes.Buffer
	resp, err := c.Upload(context.Background(), archive, UploadOptions{
		Sync:       true,
		MaxFrames:  25,
		Extensions: []string{".jpg", ".mp4"},
	}, &progress)
	if err != nil {
		t.Fatalf("Upload error = %v", err)
	}
	if resp.JobID != "job-1" || resp.Job == nil || len(resp.Job.Files) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if progress.Len() != len(content) {
		t.Errorf("progress saw %d bytes, want %d", progress.Len(), len(content))
	}
}

func TestClient_Upload_FailedSyncJob(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "broken.zip")
	if err := os.WriteFile(archive, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(UploadResponse{
			Status: "error",
			JobID:  "job-2",
			Job:    &Job{ID: "job-2", Status: "failed", ErrorCode: "corrupt_archive"},
		})
	})

	resp, err := c.Upload(context.Background(), archive, UploadOptions{Sync: true}, nil)
	if err != nil {
		t.Fatalf("Upload error = %v", err)
	}
	if resp.Job.Status != "failed" {
		t.Errorf("Job.Status = %s, want failed", resp.Job.Status)
	}
}

func TestClient_Upload_Rejected(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(archive, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_file_type","code":"invalid_file_type","message":"File must be a zip archive"}`))
	})

	_, err := c.Upload(context.Background(), archive, UploadOptions{}, nil)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "invalid_file_type" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestClient_Upload_MissingFile(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	if _, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), UploadOptions{}, nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestClient_ListJobs(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("status") != "failed" || r.URL.Query().Get("limit") != "5" || r.URL.Query().Has("offset") {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(JobList{
			Jobs:  []Job{{ID: "job-1", Status: "failed"}},
			Total: 1,
		})
	})

	resp, err := c.ListJobs(context.Background(), 5, 0, "failed")
	if err != nil {
		t.Fatalf("ListJobs error = %v", err)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].ID != "job-1" {
		t.Errorf("unexpected jobs: %+v", resp.Jobs)
	}
}

func TestClient_GetJob_NotFound(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"job_not_found","code":"job_not_found","message":"Job not found"}`))
	})

	_, err := c.GetJob(context.Background(), "nope")
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
}

func TestClient_Deletes(t *testing.T) {
	tests := []struct {
		name      string
		call      func(c *Client) error
		wantPath  string
		wantQuery string
	}{
		{"image", func(c *Client) error { return c.DeleteImage(context.Background(), "job-1/a b.jpg") }, "/delete_image", "filename=job-1%2Fa+b.jpg"},
		{"folder", func(c *Client) error { return c.DeleteFolder(context.Background(), "job-1") }, "/delete_upload_folder", "folder_id=job-1"},
		{"upload", func(c *Client) error { return c.DeleteUpload(context.Background(), "photos.zip") }, "/delete_upload", "filename=photos.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete || r.URL.Path != tt.wantPath || r.URL.RawQuery != tt.wantQuery {
					t.Errorf("unexpected request: %s %s?%s", r.Method, r.URL.Path, r.URL.RawQuery)
				}
				_, _ = w.Write([]byte(`{"status":"deleted"}`))
			})
			if err := tt.call(c); err != nil {
				t.Fatalf("delete error = %v", err)
			}
		})
	}
}

func TestClient_Thumbnail(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/thumbnail" || r.URL.Query().Get("filename") != "job-1/a.png" || r.URL.Query().Get("size") != "64" {
			t.Errorf("unexpected request: %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpegbytes"))
	})

	var buf bytes.Buffer
	n, err := c.Thumbnail(context.Background(), "job-1/a.png", 64, &buf)
	if err != nil {
		t.Fatalf("Thumbnail error = %v", err)
	}
	if n != 9 || buf.String() != "jpegbytes" {
		t.Errorf("got %d bytes: %q", n, buf.String())
	}
}

func TestClient_Thumbnail_NotFound(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("size") {
			t.Errorf("zero size should not be sent: %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","code":"not_found","message":"Not found"}`))
	})

	var buf bytes.Buffer
	if _, err := c.Thumbnail(context.Background(), "job-1/gone.png", 0, &buf); !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes on error", buf.Len())
	}
}

func TestClient_WaitForJob(t *testing.T) {
	var polls atomic.Int32
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		status := "extracting"
		if polls.Add(1) >= 3 {
			status = "completed"
		}
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: status})
	})

	j, err := c.WaitForJob(context.Background(), "job-1", 10*time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForJob error = %v", err)
	}
	if j.Status != "completed" || polls.Load() != 3 {
		t.Errorf("status = %s after %d polls", j.Status, polls.Load())
	}
}

func TestClient_WaitForJob_Timeout(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: "extracting"})
	})

	j, err := c.WaitForJob(context.Background(), "job-1", 10*time.Millisecond, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if j == nil || j.Status != "extracting" {
		t.Errorf("last seen job = %+v", j)
	}
}
