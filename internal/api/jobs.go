package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/lifecycle"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

type JobsHandler struct {
	store  store.Store
	jobs   *lifecycle.JobManager
	logger *slog.Logger
}

func NewJobsHandler(s store.Store, jobs *lifecycle.JobManager, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{store: s, jobs: jobs, logger: logger}
}

type JobRequest struct {
	Title              string                    `json:"title"`
	Description        string                    `json:"description"`
	Category           string                    `json:"category,omitempty"`
	Tags               []string                  `json:"tags,omitempty"`
	JobType            store.JobType             `json:"job_type"`
	ExperienceLevel    store.ExperienceLevel     `json:"experience_level"`
	Budget             store.Budget              `json:"budget"`
	EstimatedHours     *int                      `json:"estimated_hours,omitempty"`
	Duration           string                    `json:"duration,omitempty"`
	Location           store.Location            `json:"location"`
	RequiredSkills     []string                  `json:"required_skills"`
	PreferredSkills    []string                  `json:"preferred_skills,omitempty"`
	ScreeningQuestions []store.ScreeningQuestion `json:"screening_questions,omitempty"`
	Visibility         store.Visibility          `json:"visibility,omitempty"`
	Embedding          *store.Embedding          `json:"embedding,omitempty"`
}

// UpdateJobRequest is a partial edit; absent fields are left unchanged.
type UpdateJobRequest struct {
	Title              *string                   `json:"title"`
	Description        *string                   `json:"description"`
	Category           *string                   `json:"category"`
	Tags               []string                  `json:"tags"`
	JobType            *store.JobType            `json:"job_type"`
	ExperienceLevel    *store.ExperienceLevel    `json:"experience_level"`
	Budget             *store.Budget             `json:"budget"`
	EstimatedHours     *int                      `json:"estimated_hours"`
	Duration           *string                   `json:"duration"`
	Location           *store.Location           `json:"location"`
	RequiredSkills     []string                  `json:"required_skills"`
	PreferredSkills    []string                  `json:"preferred_skills"`
	ScreeningQuestions []store.ScreeningQuestion `json:"screening_questions"`
	Visibility         *store.Visibility         `json:"visibility"`
	Embedding          *store.Embedding          `json:"embedding"`
}

func (u UpdateJobRequest) edit() lifecycle.JobEdit {
	return lifecycle.JobEdit{
		Title:              u.Title,
		Description:        u.Description,
		Category:           u.Category,
		Tags:               u.Tags,
		JobType:            u.JobType,
		ExperienceLevel:    u.ExperienceLevel,
		Budget:             u.Budget,
		EstimatedHours:     u.EstimatedHours,
		Duration:           u.Duration,
		Location:           u.Location,
		RequiredSkills:     u.RequiredSkills,
		PreferredSkills:    u.PreferredSkills,
		ScreeningQuestions: u.ScreeningQuestions,
		Visibility:         u.Visibility,
		Embedding:          u.Embedding,
	}
}

func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	job, err := h.jobs.Create(r.Context(), &store.JobPosting{
		OwnerID:            userID(r),
		Title:              req.Title,
		Description:        req.Description,
		Category:           req.Category,
		Tags:               req.Tags,
		JobType:            req.JobType,
		ExperienceLevel:    req.ExperienceLevel,
		Budget:             req.Budget,
		EstimatedHours:     req.EstimatedHours,
		Duration:           req.Duration,
		Location:           req.Location,
		RequiredSkills:     req.RequiredSkills,
		PreferredSkills:    req.PreferredSkills,
		ScreeningQuestions: req.ScreeningQuestions,
		Visibility:         req.Visibility,
		Embedding:          req.Embedding,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// List returns the caller's own postings, optionally narrowed by status.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := store.JobQuery{OwnerID: userID(r)}
	for _, s := range queryList(r, "status") {
		q.Statuses = append(q.Statuses, store.JobStatus(s))
	}
	jobs, err := h.store.QueryJobs(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*store.JobPosting{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// Get returns a posting. Drafts and private postings are visible to their
// owner only; other viewers bump the view counter.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := userID(r)
	if job.OwnerID != caller {
		if job.Status == store.JobStatusDraft || job.Visibility == store.VisibilityPrivate {
			writeError(w, bzerrors.NotFound("job %s not found", job.ID))
			return
		}
		if err := h.store.IncrementJobViews(r.Context(), job.ID); err != nil {
			h.logger.Warn("failed to count job view", "job_id", job.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobsHandler) Update(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	var req UpdateJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.jobs.Update(r.Context(), job, req.edit())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *JobsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.Publish)
}

func (h *JobsHandler) StartReview(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.StartReview)
}

func (h *JobsHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.Close)
}

func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.Cancel)
}

func (h *JobsHandler) MarkFilled(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.MarkFilled)
}

func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if err := h.jobs.Delete(r.Context(), job); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobsHandler) Save(w http.ResponseWriter, r *http.Request) {
	job, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.Status == store.JobStatusDraft && job.OwnerID != userID(r) {
		writeError(w, bzerrors.NotFound("job %s not found", job.ID))
		return
	}
	if err := h.store.SaveJobForUser(r.Context(), userID(r), job.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobsHandler) Unsave(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.UnsaveJobForUser(r.Context(), userID(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobsHandler) ListSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := h.store.ListSavedJobs(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if saved == nil {
		saved = []*store.SavedJob{}
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *JobsHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, *store.JobPosting) (*store.JobPosting, error)) {
	job, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	next, err := fn(r.Context(), job)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (h *JobsHandler) load(r *http.Request) (*store.JobPosting, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return loadJob(r.Context(), h.store, id)
}

// loadOwned loads the job for a mutation by its owner at the version the
// caller expects.
func (h *JobsHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*store.JobPosting, bool) {
	job, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if job.OwnerID != userID(r) {
		writeForbidden(w, "only the job owner may do this")
		return nil, false
	}
	if err := checkVersion(r, job.Version); err != nil {
		writeError(w, err)
		return nil, false
	}
	return job, true
}

func loadJob(ctx context.Context, s store.Store, id uuid.UUID) (*store.JobPosting, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, bzerrors.NotFound("job %s not found", id)
	}
	return job, nil
}
