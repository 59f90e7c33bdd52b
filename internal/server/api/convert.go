package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/posebake/internal/animation"
	"github.com/ayusman/posebake/internal/app"
	"github.com/ayusman/posebake/internal/logging"
)

// ConverterFactory builds a converter that reports progress to observer.
type ConverterFactory func(observer app.Observer) *app.Converter

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is an asynchronous conversion started through the API.
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Videos     []string   `json:"videos"`
	Output     string     `json:"output,omitempty"`
	Clips      []jobClip  `json:"clips"`
	Progress   *app.Event `json:"progress,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type jobClip struct {
	Video  string `json:"video"`
	Clip   string `json:"clip"`
	ClipID string `json:"clip_id,omitempty"`
	Frames int    `json:"frames"`
	Error  string `json:"error,omitempty"`
}

type convertRequest struct {
	Videos []string `json:"videos"`
	Output string   `json:"output"`
	Append bool     `json:"append"`
}

type convertResponse struct {
	JobID string `json:"job_id"`
}

type listJobsResponse struct {
	Jobs []Job `json:"jobs"`
}

// ConvertHandler starts conversion jobs and reports their state.
type ConvertHandler struct {
	newConverter ConverterFactory
	publish      func(app.Event)
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewConvertHandler creates a ConvertHandler. publish, when set, receives
// every progress event tagged with its job ID.
func NewConvertHandler(factory ConverterFactory, publish func(app.Event), logger *slog.Logger) *ConvertHandler {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ConvertHandler{
		newConverter: factory,
		publish:      publish,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		jobs:         make(map[string]*Job),
	}
}

// ServeHTTP routes POST /api/convert, GET /api/jobs and GET /api/jobs/{id}.
func (h *ConvertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/convert" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.start(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/jobs"), "/")
	if id == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, id)
}

// start handles POST /api/convert.
func (h *ConvertHandler) start(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	videos := make([]string, 0, len(req.Videos))
	for _, v := range req.Videos {
		if v = strings.TrimSpace(v); v != "" {
			videos = append(videos, v)
		}
	}
	if len(videos) == 0 {
		writeError(w, http.StatusBadRequest, "At least one video is required")
		return
	}
	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobRunning,
		Videos:    videos,
		Output:    strings.TrimSpace(req.Output),
		Clips:     []jobClip{},
		StartedAt: time.Now(),
	}

	// Close cancels under h.mu, so no job is added to wg once Wait may run.
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	h.jobs[job.ID] = job
	h.wg.Add(1)
	h.mu.Unlock()

	go h.run(job.ID, videos, job.Output, req.Append)

	writeJSON(w, http.StatusAccepted, convertResponse{JobID: job.ID})
}

func (h *ConvertHandler) run(id string, videos []string, output string, appendOutput bool) {
	defer h.wg.Done()

	conv := h.newConverter(func(e app.Event) {
		e.Job = id
		h.mu.Lock()
		if job, ok := h.jobs[id]; ok {
			job.Progress = &e
		}
		h.mu.Unlock()
		if h.publish != nil {
			h.publish(e)
		}
	})

	logger := h.logger.With(slog.String("job", id))
	logger.Info("conversion job started", slog.Int("videos", len(videos)))

	doc, reports, err := conv.ConvertAll(h.ctx, videos)
	if err == nil && output != "" {
		err = animation.UpdateFile(output, appendOutput, func(existing *animation.Document) error {
			existing.Merge(doc)
			return nil
		})
	}

	finished := time.Now()
	h.mu.Lock()
	job := h.jobs[id]
	for _, rep := range reports {
		c := jobClip{Video: rep.Video, Clip: rep.Clip, ClipID: rep.ClipID, Frames: rep.Frames}
		if rep.Err != nil {
			c.Error = rep.Err.Error()
		}
		job.Clips = append(job.Clips, c)
	}
	job.FinishedAt = &finished
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	} else {
		job.Status = JobCompleted
	}
	h.mu.Unlock()

	if err != nil {
		logger.Error("conversion job failed", logging.Error(err))
		return
	}
	logger.Info("conversion job completed", slog.Duration("elapsed", finished.Sub(job.StartedAt)))
}

// list handles GET /api/jobs, newest first.
func (h *ConvertHandler) list(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	jobs := make([]Job, 0, len(h.jobs))
	for _, j := range h.jobs {
		jobs = append(jobs, snapshot(j))
	}
	h.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].StartedAt.After(jobs[b].StartedAt)
	})
	writeJSON(w, http.StatusOK, listJobsResponse{Jobs: jobs})
}

// get handles GET /api/jobs/{id}.
func (h *ConvertHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	h.mu.RLock()
	job, ok := h.jobs[id]
	var out Job
	if ok {
		out = snapshot(job)
	}
	h.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// snapshot copies a job so it can be encoded outside the lock.
func snapshot(j *Job) Job {
	out := *j
	out.Videos = append([]string(nil), j.Videos...)
	out.Clips = append([]jobClip{}, j.Clips...)
	if j.Progress != nil {
		p := *j.Progress
		out.Progress = &p
	}
	return out
}

// Wait blocks until every started job has finished.
func (h *ConvertHandler) Wait() {
	h.wg.Wait()
}

// Close cancels running jobs and waits for them to stop.
func (h *ConvertHandler) Close() error {
	h.mu.Lock()
	h.cancel()
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}
