package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/service"
)

// JobRunner is a scheduled job that can also be triggered on demand.
type JobRunner interface {
	Name() string
	Run(ctx context.Context) (service.Report, error)
}

// JobHandler serves manual job triggers.
type JobHandler struct {
	jobs   map[string]JobRunner
	maxRun time.Duration
	logger *slog.Logger
}

// NewJobHandler creates a JobHandler for the given jobs, keyed by Name. A
// triggered pass outlives the request and is bounded by maxRun instead;
// maxRun <= 0 leaves it unbounded.
func NewJobHandler(logger *slog.Logger, maxRun time.Duration, jobs ...JobRunner) *JobHandler {
	m := make(map[string]JobRunner, len(jobs))
	for _, j := range jobs {
		m[j.Name()] = j
	}
	return &JobHandler{jobs: m, maxRun: maxRun, logger: logHandler(logger, "jobs")}
}

// RunJob runs one job synchronously and returns its report. A run skipped
// because another instance holds the job lock answers 409.
// POST /api/jobs/{job}/run
func (h *JobHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("job")
	job, ok := h.jobs[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job "+name)
		return
	}

	h.logger.InfoContext(r.Context(), "manual job trigger", slog.String("job", name))

	// A client disconnect or the write timeout must not abort a pass halfway.
	ctx := context.WithoutCancel(r.Context())
	if h.maxRun > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.maxRun)
		defer cancel()
	}
	report, err := job.Run(ctx)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "job failed")
		return
	}
	if report.SkippedLock {
		writeJSON(w, http.StatusConflict, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
