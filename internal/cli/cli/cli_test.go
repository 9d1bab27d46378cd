package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/frameset/internal/cli/client"
	"github.com/abdul-hamid-achik/frameset/internal/cli/config"
)

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs framesctl against m and returns stdout and stderr.
func execute(t *testing.T, m *client.MockClient, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("FRAMESET_CONFIG_DIR", t.TempDir())
	t.Setenv(config.EnvBaseURL, "")

	orig := newClient
	newClient = func(*config.Config) client.ClientInterface { return m }
	t.Cleanup(func() { newClient = orig })

	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeArchive(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04"), 0o644))
	return path
}

func TestRootCommand_Help(t *testing.T) {
	out, _, err := execute(t, &client.MockClient{}, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "framesctl")
	assert.Contains(t, out, "upload")
	assert.Contains(t, out, "images")
}

func TestUpload_JSON(t *testing.T) {
	archive := writeArchive(t, t.TempDir(), "dataset.zip")

	m := &client.MockClient{}
	m.On("Upload", mock.Anything, archive, client.UploadOptions{MaxFrames: 10, Extensions: []string{".jpg", ".mp4"}}, mock.Anything).
		Return(&client.UploadResponse{JobID: "job-1", Job: &client.Job{ID: "job-1", Status: "pending"}}, nil)

	out, _, err := execute(t, m, "", "upload", archive, "--max-frames", "10", "--ext", ".jpg, .mp4", "--json")
	require.NoError(t, err)
	m.AssertExpectations(t)

	var summary client.UploadSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Successful)
	require.Len(t, summary.Uploaded, 1)
	assert.Equal(t, "job-1", summary.Uploaded[0].JobID)
	assert.Equal(t, "pending", summary.Uploaded[0].Status)
}

func TestUpload_WaitReportsFailedJob(t *testing.T) {
	archive := writeArchive(t, t.TempDir(), "broken.zip")

	m := &client.MockClient{}
	m.On("Upload", mock.Anything, archive, client.UploadOptions{}, mock.Anything).
		Return(&client.UploadResponse{JobID: "job-2", Job: &client.Job{ID: "job-2", Status: "pending"}}, nil)
	m.On("WaitForJob", mock.Anything, "job-2", 2*time.Second, config.DefaultUploadTimeout).
		Return(&client.Job{ID: "job-2", Status: "failed", ErrorCode: "corrupt_archive"}, nil)

	out, _, err := execute(t, m, "", "upload", archive, "--wait", "--json")
	require.Error(t, err)
	m.AssertExpectations(t)

	var summary client.UploadSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 0, summary.Successful)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "failed", summary.Failed[0].Status)
	assert.Contains(t, summary.Failed[0].ErrMsg, "job-2")
}

func TestUpload_Parallel(t *testing.T) {
	dir := t.TempDir()
	a := writeArchive(t, dir, "a.zip")
	b := writeArchive(t, dir, "b.zip")

	m := &client.MockClient{}
	m.On("Upload", mock.Anything, a, mock.Anything, mock.Anything).
		Return(&client.UploadResponse{JobID: "job-a", Job: &client.Job{Status: "pending"}}, nil)
	m.On("Upload", mock.Anything, b, mock.Anything, mock.Anything).
		Return(nil, &client.APIError{StatusCode: http.StatusBadRequest, Code: "invalid_parameter", Message: "bad"})

	out, stderr, err := execute(t, m, "", "upload", dir, "-p", "2")
	require.Error(t, err)
	m.AssertExpectations(t)
	assert.Contains(t, out, "job-a")
	assert.Contains(t, stderr, "invalid_parameter")
}

func TestUpload_NoArchives(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	_, _, err := execute(t, &client.MockClient{}, "", "upload", dir)
	assert.ErrorContains(t, err, "no zip archives")
}

func TestStatus(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)

	m := &client.MockClient{}
	m.On("GetJob", mock.Anything, "job-1").Return(&client.Job{
		ID:          "job-1",
		ArchiveName: "dataset.zip",
		Status:      "completed",
		StartedAt:   &started,
		FinishedAt:  &finished,
		Counters:    client.Counters{TotalEntries: 4, ImagesExtracted: 2, FramesExtracted: 9},
		Files:       []string{"job-1/a.jpg"},
	}, nil)

	out, _, err := execute(t, m, "", "status", "job-1", "--files")
	require.NoError(t, err)
	assert.Contains(t, out, "dataset.zip")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "job-1/a.jpg")
}

func TestStatus_NotFound(t *testing.T) {
	m := &client.MockClient{}
	m.On("GetJob", mock.Anything, "nope").Return(nil, &client.APIError{StatusCode: http.StatusNotFound})

	_, _, err := execute(t, m, "", "status", "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestJobs_JSON(t *testing.T) {
	m := &client.MockClient{}
	m.On("ListJobs", mock.Anything, 5, 0, "failed").
		Return(&client.JobList{Jobs: []client.Job{{ID: "job-1", Status: "failed"}}, Total: 1}, nil)

	out, _, err := execute(t, m, "", "jobs", "--limit", "5", "--status", "failed", "--json")
	require.NoError(t, err)

	var list client.JobList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Equal(t, 1, list.Total)
}

func TestImages_InvalidKind(t *testing.T) {
	_, _, err := execute(t, &client.MockClient{}, "", "images", "--kind", "thumbnail")
	assert.ErrorContains(t, err, "invalid kind")
}

func TestImages_Table(t *testing.T) {
	m := &client.MockClient{}
	m.On("Catalog", mock.Anything, "job-1", "extracted_frame").Return(&client.CatalogResponse{
		Entries: []client.Entry{{Path: "job-1/clip_frame_0001.jpg", Kind: "extracted_frame", Size: 2048}},
		Total:   1,
	}, nil)

	out, _, err := execute(t, m, "", "images", "--job", "job-1", "--kind", "extracted_frame")
	require.NoError(t, err)
	assert.Contains(t, out, "clip_frame_0001.jpg")
	assert.Contains(t, out, "2.0 KiB")
}

func writeThumb(data string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		_, _ = io.WriteString(args.Get(3).(io.Writer), data)
	}
}

func TestThumbnail_File(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "cat.jpg")

	m := &client.MockClient{}
	m.On("Thumbnail", mock.Anything, "job-1/cat.png", 128, mock.Anything).
		Run(writeThumb("jpeg!")).Return(int64(5), nil)

	out, _, err := execute(t, m, "", "thumbnail", "job-1/cat.png", "--size", "128", "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved "+dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "jpeg!", string(data))
}

func TestThumbnail_Stdout(t *testing.T) {
	m := &client.MockClient{}
	m.On("Thumbnail", mock.Anything, "job-1/cat.png", 0, mock.Anything).
		Run(writeThumb("jpeg!")).Return(int64(5), nil)

	out, _, err := execute(t, m, "", "thumbnail", "job-1/cat.png", "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, "jpeg!", out)
}

func TestThumbnail_FailureRemovesFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "gone.jpg")

	m := &client.MockClient{}
	m.On("Thumbnail", mock.Anything, "job-1/gone.png", 0, mock.Anything).
		Return(int64(0), &client.APIError{StatusCode: http.StatusNotFound, Code: "not_found", Message: "Not found"})

	_, _, err := execute(t, m, "", "thumbnail", "job-1/gone.png", "-o", dest)
	assert.ErrorContains(t, err, "not_found")
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestThumbnail_InvalidSize(t *testing.T) {
	m := &client.MockClient{}
	_, _, err := execute(t, m, "", "thumbnail", "job-1/cat.png", "--size", "2000")
	assert.ErrorContains(t, err, "size must be between")
	m.AssertNotCalled(t, "Thumbnail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestThumbnailName(t *testing.T) {
	assert.Equal(t, "cat_thumb.jpg", thumbnailName("job-1/cat.png"))
	assert.Equal(t, "run_mp4_frame_0001_thumb.jpg", thumbnailName("/static/images/job-1/clips/run_mp4_frame_0001.jpg"))
}

func TestDelete_Force(t *testing.T) {
	m := &client.MockClient{}
	m.On("DeleteFolder", mock.Anything, "job-1").Return(nil)
	m.On("DeleteFolder", mock.Anything, "job-2").Return(errors.New("boom"))

	_, stderr, err := execute(t, m, "", "delete", "folder", "job-1", "job-2", "--force")
	assert.ErrorContains(t, err, "1 deletions failed")
	assert.Contains(t, stderr, "boom")
	m.AssertExpectations(t)
}

func TestDelete_Declined(t *testing.T) {
	m := &client.MockClient{}

	out, _, err := execute(t, m, "n\n", "delete", "image", "job-1/a.jpg")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled")
	m.AssertNotCalled(t, "DeleteImage", mock.Anything, mock.Anything)
}

func TestDelete_Confirmed(t *testing.T) {
	m := &client.MockClient{}
	m.On("DeleteUpload", mock.Anything, "dataset.zip").Return(nil)

	_, _, err := execute(t, m, "yes\n", "delete", "upload", "dataset.zip")
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestDelete_UnknownKind(t *testing.T) {
	_, _, err := execute(t, &client.MockClient{}, "", "delete", "video", "x", "--force")
	assert.ErrorContains(t, err, "unknown kind")
}

func TestConfigSet(t *testing.T) {
	_, _, err := execute(t, &client.MockClient{}, "", "config", "set", "max_frames", "25")
	require.NoError(t, err)

	saved, err := config.LoadFile()
	require.NoError(t, err)
	assert.Equal(t, 25, saved.Defaults.MaxFrames)
}

func TestPing(t *testing.T) {
	m := &client.MockClient{}
	m.On("Health", mock.Anything).Return(&client.HealthResponse{Status: "healthy"}, nil)
	m.On("BaseURL").Return("http://frames.test")

	out, _, err := execute(t, m, "", "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "http://frames.test is healthy")
}

func TestCollectArchives(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "a.zip")
	writeArchive(t, dir, "b.ZIP")
	writeArchive(t, dir, "sub/c.zip")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	tests := []struct {
		name      string
		args      []string
		recursive bool
		want      []string
		wantErr   bool
	}{
		{"directory", []string{dir}, false, []string{"a.zip", "b.ZIP"}, false},
		{"recursive", []string{dir}, true, []string{"a.zip", "b.ZIP", "sub/c.zip"}, false},
		{"glob", []string{filepath.Join(dir, "*.zip")}, false, []string{"a.zip"}, false},
		{"non-archive file", []string{filepath.Join(dir, "notes.txt")}, false, nil, false},
		{"missing", []string{filepath.Join(dir, "missing.zip")}, false, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collectArchives(tt.args, tt.recursive)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			var rel []string
			for _, p := range got {
				r, err := filepath.Rel(dir, p)
				require.NoError(t, err)
				rel = append(rel, filepath.ToSlash(r))
			}
			sort.Strings(rel)
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestIsArchive(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"dataset.zip", true},
		{"DATASET.ZIP", true},
		{"dataset.tar.gz", false},
		{"zip", false},
		{"photo.jpg", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isArchive(tt.path))
		})
	}
}

func TestUploadOptions_MergesDefaults(t *testing.T) {
	cfg = &config.Config{Defaults: config.UploadDefaults{ModelName: "yolo", MaxFrames: 50, Extensions: []string{".jpg"}}}
	t.Cleanup(func() { cfg = nil })
	resetFlags(uploadCmd)
	uploadMaxFrames = 10
	t.Cleanup(func() { uploadMaxFrames = 0 })

	opts := uploadOptions()
	assert.Equal(t, "yolo", opts.ModelName)
	assert.Equal(t, 10, opts.MaxFrames)
	assert.Equal(t, []string{".jpg"}, opts.Extensions)
}
