package api

import (
	"net/http"
	"strconv"

	"github.com/abdul-hamid-achik/frameset/internal/apperror"
	"github.com/abdul-hamid-achik/frameset/internal/job"
)

type JobListResponse struct {
	Jobs    []job.Snapshot `json:"jobs"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

func listJobsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limitStr := r.URL.Query().Get("limit")
		offsetStr := r.URL.Query().Get("offset")
		statusStr := r.URL.Query().Get("status")

		limit := 20
		offset := 0

		if limitStr != "" {
			l, err := strconv.Atoi(limitStr)
			if err != nil || l < 1 || l > 100 {
				apperror.WriteJSON(w, r, apperror.WrapWithMessage(nil, "invalid_limit", "Invalid limit parameter", http.StatusBadRequest))
				return
			}
			limit = l
		}

		if offsetStr != "" {
			o, err := strconv.Atoi(offsetStr)
			if err != nil || o < 0 {
				apperror.WriteJSON(w, r, apperror.WrapWithMessage(nil, "invalid_offset", "Invalid offset parameter", http.StatusBadRequest))
				return
			}
			offset = o
		}

		switch job.Status(statusStr) {
		case "", job.StatusPending, job.StatusExtracting, job.StatusCompleted, job.StatusFailed:
		default:
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(nil, "invalid_status", "Invalid status parameter", http.StatusBadRequest))
			return
		}

		all, err := cfg.Service.Tracker().List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		filtered := all[:0]
		for _, s := range all {
			if statusStr == "" || s.Status == job.Status(statusStr) {
				filtered = append(filtered, s)
			}
		}

		page := []job.Snapshot{}
		if offset < len(filtered) {
			page = filtered[offset:min(offset+limit, len(filtered))]
		}
		for i := range page {
			page[i].Files = nil
		}

		writeJSON(w, http.StatusOK, JobListResponse{
			Jobs:    page,
			Total:   len(filtered),
			HasMore: offset+len(page) < len(filtered),
		})
	}
}

func getJobHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := cfg.Service.Tracker().Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func jobStatsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := cfg.Catalog.Stats(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
