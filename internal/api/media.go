package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/frameset/internal/apperror"
	"github.com/abdul-hamid-achik/frameset/internal/audit"
	"github.com/abdul-hamid-achik/frameset/internal/catalog"
	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/processor"
	imageproc "github.com/abdul-hamid-achik/frameset/internal/processor/image"
)

const staticPrefix = "/static/images/"

// Thumbnailer renders a cached square preview of a catalog image and
// returns its path on disk.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, src, rel string, size int, position string) (string, error)
}

type CatalogResponse struct {
	Entries []catalog.Entry `json:"entries"`
	Total   int             `json:"total"`
}

type ImagesResponse struct {
	Images  []string        `json:"images"`
	Entries []catalog.Entry `json:"entries"`
}

type FoldersResponse struct {
	Folders []catalog.Folder `json:"upload_folders"`
}

func catalogHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := cfg.Catalog.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		if jobID := r.URL.Query().Get("job_id"); jobID != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if e.JobID == jobID {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		if kind := r.URL.Query().Get("kind"); kind != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if string(e.Kind) == kind {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}

		writeJSON(w, http.StatusOK, CatalogResponse{Entries: entries, Total: len(entries)})
	}
}

func listImagesHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := cfg.Catalog.ListImages(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		urls := make([]string, len(entries))
		for i, e := range entries {
			urls[i] = staticPrefix + e.Path
		}
		writeJSON(w, http.StatusOK, ImagesResponse{Images: urls, Entries: entries})
	}
}

func listFoldersHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		folders, err := cfg.Catalog.Folders(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, FoldersResponse{Folders: folders})
	}
}

// deleteImageHandler accepts the catalog path with or without the static URL
// prefix, so URLs from /list_images can be passed back unchanged.
func deleteImageHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("filename")
		if name == "" {
			writeError(w, r, badParam("filename is required"))
			return
		}
		name = strings.TrimPrefix(name, staticPrefix)

		if err := cfg.Catalog.Delete(r.Context(), name); err != nil {
			writeError(w, r, err)
			return
		}
		recordAudit(cfg, r, audit.Entry{Action: audit.ActionImageDelete, Resource: name})
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": name})
	}
}

// deleteFolderHandler removes a job's output and its status record.
func deleteFolderHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		folderID := r.URL.Query().Get("folder_id")
		if folderID == "" {
			writeError(w, r, badParam("folder_id is required"))
			return
		}

		if err := cfg.Catalog.DeleteFolder(r.Context(), folderID); err != nil {
			writeError(w, r, err)
			return
		}

		if err := cfg.Service.Tracker().Forget(r.Context(), folderID); err != nil && !errors.Is(err, job.ErrNotFound) {
			log.Warn("failed to forget job", "job_id", folderID, "error", err)
		}

		recordAudit(cfg, r, audit.Entry{Action: audit.ActionFolderDelete, Resource: folderID})
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "folder_id": folderID})
	}
}

// staticHandler serves complete files from the media root. Directory
// listings and in-progress files are not exposed.
func staticHandler(c *catalog.Catalog) http.Handler {
	files := http.FileServer(http.Dir(c.Root()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := r.URL.Path
		if processor.IsPartial(rel) || strings.HasSuffix(rel, "/") {
			apperror.WriteJSON(w, r, apperror.ErrNotFound)
			return
		}
		p, err := c.Resolve(rel)
		if err != nil {
			writeError(w, r, err)
			return
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.FromContext(r.Context()).Warn("static file stat failed", "path", rel, "error", err)
			}
			apperror.WriteJSON(w, r, apperror.ErrNotFound)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}

// thumbnailHandler serves a square JPEG preview of one catalog image. Like
// deleteImageHandler it accepts URLs from /list_images unchanged.
func thumbnailHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		name := strings.TrimPrefix(q.Get("filename"), staticPrefix)
		if name == "" {
			writeError(w, r, badParam("filename is required"))
			return
		}

		size := imageproc.DefaultThumbnailSize
		if v := q.Get("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < imageproc.MinThumbnailSize || n > imageproc.MaxThumbnailSize {
				writeError(w, r, badParam(fmt.Sprintf("size must be between %d and %d", imageproc.MinThumbnailSize, imageproc.MaxThumbnailSize)))
				return
			}
			size = n
		}

		if processor.IsPartial(name) || !cfg.Catalog.IsImage(name) {
			writeError(w, r, badParam("filename must be a catalog image"))
			return
		}
		src, err := cfg.Catalog.Resolve(name)
		if err != nil {
			writeError(w, r, err)
			return
		}

		thumb, err := cfg.Thumbnails.Thumbnail(r.Context(), src, name, size, q.Get("position"))
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			apperror.WriteJSON(w, r, apperror.ErrNotFound)
			return
		case errors.Is(err, processor.ErrCorruptedFile):
			writeError(w, r, apperror.Wrap(err, apperror.ErrImageDecode))
			return
		default:
			writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		http.ServeFile(w, r, thumb)
	}
}
