package api

import (
	"net/http"

	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/pkg/logger"
)

// JobsDependencies exposes the retained score jobs.
type JobsDependencies interface {
	ListJobs() []model.Job
	Job(id string) (model.Job, error)
}

// JobsHandler serves job diagnostics.
type JobsHandler struct {
	deps JobsDependencies
	log  logger.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobsDependencies, log logger.Logger) *JobsHandler {
	return &JobsHandler{deps: deps, log: log}
}

// HandleListJobs handles GET /jobs.
func (h *JobsHandler) HandleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, h.deps.ListJobs())
}

// HandleGetJob handles GET /jobs/{id}.
func (h *JobsHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Job(r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, h.log, "api.get_job", err)
		return
	}
	writeData(w, http.StatusOK, job)
}
