package api

import (
	"net/http"
	"strconv"

	"github.com/abdul-hamid-achik/frameset/internal/logger"
)

type ImproveModelResponse struct {
	Status         string  `json:"status"`
	Dataset        string  `json:"dataset"`
	Model          string  `json:"model"`
	SamplingFactor float64 `json:"sampling_factor"`
}

// improveModelHandler validates and echoes the training parameters. Nothing
// is trained.
func improveModelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		dataset := q.Get("dataset_path")
		model := q.Get("model_name")
		if dataset == "" || model == "" {
			writeError(w, r, badParam("dataset_path and model_name are required"))
			return
		}

		factor, err := strconv.ParseFloat(q.Get("sampling_factor"), 64)
		if err != nil {
			writeError(w, r, badParam("sampling_factor must be a number"))
			return
		}
		if factor < 0 || factor > 1 {
			writeError(w, r, badParam("sampling_factor must be between 0 and 1"))
			return
		}

		logger.FromContext(r.Context()).Info("model improvement requested", "dataset", dataset, "model", model, "sampling_factor", factor)
		writeJSON(w, http.StatusOK, ImproveModelResponse{
			Status:         "success",
			Dataset:        dataset,
			Model:          model,
			SamplingFactor: factor,
		})
	}
}
