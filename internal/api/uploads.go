package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/frameset/internal/apperror"
	"github.com/abdul-hamid-achik/frameset/internal/audit"
	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/storage"
)

type UploadResponse struct {
	Status     string        `json:"status"`
	Message    string        `json:"message"`
	JobID      string        `json:"job_id"`
	Filename   string        `json:"filename"`
	Processing string        `json:"processing"`
	Job        *job.Snapshot `json:"job"`
}

type UploadsResponse struct {
	Uploads []string         `json:"uploads"`
	Objects []storage.Object `json:"objects"`
}

// uploadZipHandler streams the "file" part of a multipart body into the
// archive store without buffering it.
func uploadZipHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		params, sync, err := parseIntake(r.URL.Query(), cfg)
		if err != nil {
			writeError(w, r, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)

		part, err := filePart(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer part.Close()

		filename := part.FileName()
		if !strings.HasSuffix(strings.ToLower(filename), ".zip") {
			apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrInvalidFileType, "File must be a zip archive"))
			return
		}

		snap, err := cfg.Service.Accept(r.Context(), job.Upload{
			Name:   filename,
			Body:   part,
			Size:   -1,
			Params: params,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		log = log.With("job_id", snap.ID)
		recordAudit(cfg, r, audit.Entry{
			Action:   audit.ActionArchiveUpload,
			Resource: snap.ArchiveKey,
			Metadata: map[string]any{"job_id": snap.ID, "original_name": filename, "sync": sync},
		})

		if !sync {
			writeJSON(w, http.StatusAccepted, UploadResponse{
				Status:     "success",
				Message:    "Archive uploaded. Extraction is processing in the background.",
				JobID:      snap.ID,
				Filename:   snap.ArchiveKey,
				Processing: "background",
				Job:        &snap,
			})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.SyncTimeout)
		defer cancel()

		final, err := cfg.Service.Wait(ctx, snap.ID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn("synchronous upload timed out, job continues", "timeout", cfg.SyncTimeout)
				writeJSON(w, http.StatusAccepted, UploadResponse{
					Status:     "success",
					Message:    "Extraction is still running; poll the job for its result.",
					JobID:      snap.ID,
					Filename:   snap.ArchiveKey,
					Processing: "background",
					Job:        &final,
				})
				return
			}
			writeError(w, r, err)
			return
		}

		status := http.StatusOK
		result := "success"
		message := "Archive uploaded and processed."
		if final.Status == job.StatusFailed {
			status = http.StatusUnprocessableEntity
			result = "error"
			message = final.Error
		}
		writeJSON(w, status, UploadResponse{
			Status:     result,
			Message:    message,
			JobID:      final.ID,
			Filename:   final.ArchiveKey,
			Processing: "sync",
			Job:        &final,
		})
	}
}

func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.WithMessage(apperror.ErrBadRequest, "Expected a multipart/form-data body"))
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, apperror.WithMessage(apperror.ErrBadRequest, "No file provided")
		}
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, apperror.Wrap(err, apperror.ErrFileTooLarge)
			}
			return nil, apperror.Wrap(err, apperror.WithMessage(apperror.ErrBadRequest, "Malformed multipart body"))
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

// parseIntake reads the optional intake parameters on top of cfg.Defaults.
func parseIntake(q url.Values, cfg *Config) (job.Params, bool, error) {
	p := cfg.Defaults
	if p.FrameInterval == 0 && p.MaxFrames == 0 {
		p = job.DefaultParams()
	}

	var sync bool
	if v := q.Get("process_sync"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, false, badParam("process_sync must be a boolean")
		}
		sync = b
	}

	p.ModelName = q.Get("model_name")

	if v := q.Get("sampling_factor"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, false, badParam("sampling_factor must be a number")
		}
		p.SamplingFactor = f
	}
	if v := q.Get("max_frames_per_video"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, false, badParam("max_frames_per_video must be an integer")
		}
		p.MaxFrames = n
	}
	if v := q.Get("frame_interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, false, badParam("frame_interval must be an integer")
		}
		p.FrameInterval = n
	}
	if v := q.Get("extensions"); v != "" {
		images, videos, err := splitExtensions(v, cfg.ImageExtensions, cfg.VideoExtensions)
		if err != nil {
			return p, false, err
		}
		p.ImageExtensions = images
		p.VideoExtensions = videos
	}

	if err := p.Validate(); err != nil {
		return p, false, err
	}
	return p, sync, nil
}

// splitExtensions sorts a comma separated allow-list into image and video
// extensions. Every entry must be one the server already accepts.
func splitExtensions(list string, imageExts, videoExts []string) ([]string, []string, error) {
	var images, videos []string
	for _, raw := range strings.Split(list, ",") {
		ext := strings.ToLower(strings.TrimSpace(raw))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		switch {
		case slices.Contains(imageExts, ext):
			images = append(images, ext)
		case slices.Contains(videoExts, ext):
			videos = append(videos, ext)
		default:
			return nil, nil, badParam(fmt.Sprintf("extension %s is not supported", ext))
		}
	}
	if len(images) == 0 && len(videos) == 0 {
		return nil, nil, badParam("extensions must name at least one extension")
	}
	return images, videos, nil
}

func badParam(msg string) error {
	return apperror.WithMessage(apperror.ErrBadRequest, msg)
}

func listUploadsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		objects, err := cfg.Archives.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		resp := UploadsResponse{Uploads: make([]string, 0, len(objects)), Objects: make([]storage.Object, 0, len(objects))}
		for _, obj := range objects {
			if !strings.HasSuffix(strings.ToLower(obj.Key), ".zip") {
				continue
			}
			resp.Uploads = append(resp.Uploads, obj.Key)
			resp.Objects = append(resp.Objects, obj)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteUploadHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("filename")
		if name == "" {
			writeError(w, r, badParam("filename is required"))
			return
		}
		if err := cfg.Archives.Delete(r.Context(), name); err != nil {
			writeError(w, r, err)
			return
		}
		recordAudit(cfg, r, audit.Entry{Action: audit.ActionArchiveDelete, Resource: name})
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": name})
	}
}
