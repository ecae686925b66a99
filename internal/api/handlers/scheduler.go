package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/urdash/internal/scheduler"
	"github.com/wonny/urdash/pkg/logger"
)

// SchedulerHandler exposes job stats and manual triggers
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(sched *scheduler.Scheduler, log *logger.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
		logger:    log,
	}
}

// GetJobs returns stats for every registered job
// GET /api/scheduler/jobs
func (h *SchedulerHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.GetJobStats())
}

// GetJobHistory returns the recent runs of one job
// GET /api/scheduler/jobs/{name}/history
func (h *SchedulerHandler) GetJobHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	history, err := h.scheduler.GetJobHistory(name)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":     name,
		"results": history.GetLatestResults(20),
	})
}

// RunJob triggers a job in the background. The run belongs to the
// scheduler, so shutdown waits for it.
// POST /api/scheduler/jobs/{name}/run
func (h *SchedulerHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.scheduler.Trigger(name); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, scheduler.ErrJobRunning):
			respondError(w, http.StatusConflict, "job is already running")
		default:
			respondError(w, http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	h.logger.WithField("job", name).Info("Job triggered via API")

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"job":    name,
	})
}
