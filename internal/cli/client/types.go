package client

import "time"

type Counters struct {
	TotalEntries    int64 `json:"total_entries"`
	ImagesExtracted int64 `json:"images_extracted"`
	VideosProcessed int64 `json:"videos_processed"`
	FramesExtracted int64 `json:"frames_extracted"`
	Errors          int64 `json:"errors"`
}

type Params struct {
	ModelName       string   `json:"model_name,omitempty"`
	SamplingFactor  float64  `json:"sampling_factor"`
	FrameInterval   int      `json:"frame_interval"`
	MaxFrames       int      `json:"max_frames_per_video"`
	ImageExtensions []string `json:"image_extensions,omitempty"`
	VideoExtensions []string `json:"video_extensions,omitempty"`
}

type Job struct {
	ID              string     `json:"id"`
	ArchiveName     string     `json:"archive_name"`
	ArchiveKey      string     `json:"archive_key"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Counters        Counters   `json:"counters"`
	OutputDirectory string     `json:"output_directory"`
	ErrorCode       string     `json:"error_code,omitempty"`
	Error           string     `json:"error,omitempty"`
	Params          Params     `json:"params"`
	Files           []string   `json:"files,omitempty"`
}

// Terminal reports whether the job will not change any more.
func (j *Job) Terminal() bool {
	return j.Status == "completed" || j.Status == "failed"
}

type JobList struct {
	Jobs    []Job `json:"jobs"`
	Total   int   `json:"total"`
	HasMore bool  `json:"has_more"`
}

type JobStats struct {
	JobID       string         `json:"job_id"`
	TotalFiles  int            `json:"total_files"`
	TotalBytes  int64          `json:"total_bytes"`
	Images      int            `json:"images"`
	Frames      int            `json:"frames"`
	ByExtension map[string]int `json:"by_extension"`
}

// UploadOptions map onto the upload_zip query parameters. Zero values are
// not sent.
type UploadOptions struct {
	Sync           bool
	ModelName      string
	SamplingFactor float64
	MaxFrames      int
	FrameInterval  int
	Extensions     []string
}

type UploadResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	JobID      string `json:"job_id"`
	Filename   string `json:"filename"`
	Processing string `json:"processing"`
	Job        *Job   `json:"job"`
}

type Entry struct {
	Path      string    `json:"path"`
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type CatalogResponse struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
}

type ImagesResponse struct {
	Images  []string `json:"images"`
	Entries []Entry  `json:"entries"`
}

type Folder struct {
	ID        string  `json:"folder_id"`
	Files     []Entry `json:"files"`
	FileCount int     `json:"file_count"`
	TotalSize int64   `json:"total_size"`
}

type FoldersResponse struct {
	Folders []Folder `json:"upload_folders"`
}

type Object struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

type UploadsResponse struct {
	Uploads []string `json:"uploads"`
	Objects []Object `json:"objects"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadResult is one archive's outcome in a multi-file upload.
type UploadResult struct {
	File   string `json:"file"`
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status,omitempty"`
	Error  error  `json:"-"`
	ErrMsg string `json:"error,omitempty"`
}

type UploadSummary struct {
	Uploaded   []UploadResult `json:"uploaded"`
	Failed     []UploadResult `json:"failed,omitempty"`
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
}
