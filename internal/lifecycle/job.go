package lifecycle

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/hermes"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// JobOp names an operation of the job state machine.
type JobOp string

const (
	JobOpPublish     JobOp = "publish"
	JobOpStartReview JobOp = "start_review"
	JobOpClose       JobOp = "close"
	JobOpCancel      JobOp = "cancel"
	JobOpMarkFilled  JobOp = "mark_filled"
	JobOpDelete      JobOp = "delete"
)

type jobEdge struct {
	from []store.JobStatus
	to   store.JobStatus
}

// jobTransitions is the single authoritative job state machine. Delete has
// no target state: the posting is removed.
var jobTransitions = map[JobOp]jobEdge{
	JobOpPublish:     {from: []store.JobStatus{store.JobStatusDraft}, to: store.JobStatusOpen},
	JobOpStartReview: {from: []store.JobStatus{store.JobStatusOpen}, to: store.JobStatusInReview},
	JobOpClose:       {from: []store.JobStatus{store.JobStatusDraft, store.JobStatusOpen, store.JobStatusInReview}, to: store.JobStatusClosed},
	JobOpCancel:      {from: []store.JobStatus{store.JobStatusOpen}, to: store.JobStatusCancelled},
	JobOpMarkFilled:  {from: []store.JobStatus{store.JobStatusOpen, store.JobStatusInReview}, to: store.JobStatusFilled},
	JobOpDelete:      {from: []store.JobStatus{store.JobStatusDraft, store.JobStatusClosed}},
}

// CanApplyJob reports whether op is a valid edge out of status.
func CanApplyJob(status store.JobStatus, op JobOp) bool {
	edge, ok := jobTransitions[op]
	if !ok {
		return false
	}
	for _, s := range edge.from {
		if s == status {
			return true
		}
	}
	return false
}

// JobEdit carries the mutable fields of a posting; nil leaves a field as is.
type JobEdit struct {
	Title              *string
	Description        *string
	Category           *string
	Tags               []string
	JobType            *store.JobType
	ExperienceLevel    *store.ExperienceLevel
	Budget             *store.Budget
	EstimatedHours     *int
	Duration           *string
	Location           *store.Location
	RequiredSkills     []string
	PreferredSkills    []string
	ScreeningQuestions []store.ScreeningQuestion
	Visibility         *store.Visibility
	Embedding          *store.Embedding
}

// JobManager enforces the job posting state machine. Every method takes the
// caller's snapshot, leaves it untouched, and returns the saved successor.
type JobManager struct {
	deps    Deps
	rules   Rules
	matches MatchInvalidator
}

func NewJobManager(d Deps, rules Rules, matches MatchInvalidator) *JobManager {
	return &JobManager{deps: d.withDefaults(), rules: rules, matches: matches}
}

// Create stores a new draft posting.
func (m *JobManager) Create(ctx context.Context, job *store.JobPosting) (*store.JobPosting, error) {
	j := job.Clone()
	j.Status = store.JobStatusDraft
	j.PostedAt = nil
	j.ProposalsCount = 0
	j.ViewsCount = 0
	applyJobDefaults(j)
	if err := validateJob(j); err != nil {
		return nil, err
	}
	if err := m.deps.Store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	m.deps.Logger.Info("job created", "job_id", j.ID, "owner_id", j.OwnerID)
	return j, nil
}

// Update edits a posting that is not terminal. Once published, a posting
// must keep at least one required skill.
func (m *JobManager) Update(ctx context.Context, job *store.JobPosting, edit JobEdit) (*store.JobPosting, error) {
	if job.Status.Terminal() {
		return nil, m.fail(job, "update", bzerrors.InvalidState("cannot edit job in %s", job.Status))
	}
	j := job.Clone()
	edit.apply(j)
	applyJobDefaults(j)
	if err := validateJob(j); err != nil {
		return nil, m.fail(job, "update", err)
	}
	if j.Status != store.JobStatusDraft && len(nonBlank(j.RequiredSkills)) == 0 {
		return nil, m.fail(job, "update", bzerrors.InvalidInput("published job needs at least one required skill"))
	}
	if err := m.deps.Store.SaveJob(ctx, j, job.Version); err != nil {
		return nil, m.fail(job, "update", err)
	}
	m.invalidate(ctx, j)
	m.deps.Logger.Info("job updated", "job_id", j.ID, "version", j.Version)
	return j, nil
}

// Publish moves a draft to open once it has required skills, a title and a
// description of sufficient length.
func (m *JobManager) Publish(ctx context.Context, job *store.JobPosting) (*store.JobPosting, error) {
	if err := m.checkEdge(job, JobOpPublish); err != nil {
		return nil, err
	}
	if len(nonBlank(job.RequiredSkills)) == 0 {
		return nil, m.fail(job, string(JobOpPublish), bzerrors.InvalidState("job %s has no required skills", job.ID))
	}
	if n := textLen(job.Title); n < m.rules.MinTitleLength {
		return nil, m.fail(job, string(JobOpPublish),
			bzerrors.InvalidState("title has %d characters, need at least %d", n, m.rules.MinTitleLength))
	}
	if n := textLen(job.Description); n < m.rules.MinDescriptionLength {
		return nil, m.fail(job, string(JobOpPublish),
			bzerrors.InvalidState("description has %d characters, need at least %d", n, m.rules.MinDescriptionLength))
	}
	if err := validateJob(job); err != nil {
		return nil, m.fail(job, string(JobOpPublish), err)
	}

	return m.transition(ctx, job, JobOpPublish, func(j *store.JobPosting) {
		now := m.deps.Now().UTC()
		j.PostedAt = &now
	})
}

// StartReview marks an open posting as under review of its proposals.
func (m *JobManager) StartReview(ctx context.Context, job *store.JobPosting) (*store.JobPosting, error) {
	if err := m.checkEdge(job, JobOpStartReview); err != nil {
		return nil, err
	}
	return m.transition(ctx, job, JobOpStartReview, nil)
}

// Close closes a draft, open or in-review posting.
func (m *JobManager) Close(ctx context.Context, job *store.JobPosting) (*store.JobPosting, error) {
	if err := m.checkEdge(job, JobOpClose); err != nil {
		return nil, err
	}
	return m.transition(ctx, job, JobOpClose, nil)
}

// Cancel cancels an open posting that has no accepted proposal.
func (m *JobManager) Cancel(ctx context.Context, job *store.JobPosting) (*store.JobPosting, error) {
	if err := m.checkEdge(job, JobOpCancel); err != nil {
		return nil, err
	}
	accepted, err := m.acceptedCount(ctx, job)
	if err != nil {
		return nil, err
	}
	if accepted > 0 {
		return nil, m.fail(job, string(JobOpCancel),
			bzerrors.ConflictingState("job %s has an accepted proposal", job.ID))
	}
	return m.transition(ctx, job, JobOpCancel, nil)
}

// MarkFilled fills an open or in-review posting with an accepted proposal.
func (m *JobManager) MarkFilled(ctx context.Context, job *store.JobPosting) (*store.JobPosting, error) {
	if err := m.checkEdge(job, JobOpMarkFilled); err != nil {
		return nil, err
	}
	accepted, err := m.acceptedCount(ctx, job)
	if err != nil {
		return nil, err
	}
	if accepted == 0 {
		return nil, m.fail(job, string(JobOpMarkFilled),
			bzerrors.InvalidState("job %s has no accepted proposal", job.ID))
	}
	return m.transition(ctx, job, JobOpMarkFilled, nil)
}

// Delete removes a draft or closed posting that never received proposals.
// Any other case is a conflict; closing is the only way to retire it.
func (m *JobManager) Delete(ctx context.Context, job *store.JobPosting) error {
	if !CanApplyJob(job.Status, JobOpDelete) {
		return m.fail(job, string(JobOpDelete),
			bzerrors.ConflictingState("cannot delete job in %s", job.Status))
	}
	proposals, err := m.deps.Store.ListProposalsForJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if len(proposals) > 0 {
		return m.fail(job, string(JobOpDelete),
			bzerrors.ConflictingState("job %s has %d proposals", job.ID, len(proposals)))
	}
	if err := m.deps.Store.DeleteJob(ctx, job.ID, job.Version); err != nil {
		return m.fail(job, string(JobOpDelete), err)
	}

	m.invalidate(ctx, job)
	m.deps.Metrics.Transition("job", string(job.Status), "deleted")
	m.deps.Logger.Info("job deleted", "job_id", job.ID)
	publish(m.deps, hermes.SubjectJobDeleted(job.ID.String()), m.event("job.deleted", job, string(job.Status), "deleted", job.Version))
	return nil
}

func (m *JobManager) checkEdge(job *store.JobPosting, op JobOp) error {
	if CanApplyJob(job.Status, op) {
		return nil
	}
	return m.fail(job, string(op), bzerrors.InvalidState("cannot %s job in %s", op, job.Status))
}

// transition applies op to a copy of job and saves it against job.Version.
// Nothing is emitted unless the save succeeds.
func (m *JobManager) transition(ctx context.Context, job *store.JobPosting, op JobOp, mutate func(*store.JobPosting)) (*store.JobPosting, error) {
	edge := jobTransitions[op]
	from := job.Status

	j := job.Clone()
	j.Status = edge.to
	if mutate != nil {
		mutate(j)
	}
	if err := m.deps.Store.SaveJob(ctx, j, job.Version); err != nil {
		return nil, m.fail(job, string(op), err)
	}

	if op == JobOpPublish || op == JobOpClose {
		m.invalidate(ctx, j)
	}
	m.deps.Metrics.Transition("job", string(from), string(j.Status))
	m.deps.Logger.Info("job transition",
		"job_id", j.ID,
		"op", op,
		"from", from,
		"to", j.Status,
		"version", j.Version,
	)
	event := "job." + string(j.Status)
	publish(m.deps, jobSubject(j.Status, j.ID.String()), m.event(event, j, string(from), string(j.Status), j.Version))
	return j, nil
}

func (m *JobManager) event(name string, j *store.JobPosting, from, to string, version int) hermes.JobEvent {
	return hermes.JobEvent{
		Event:     name,
		JobID:     j.ID.String(),
		OwnerID:   j.OwnerID,
		From:      from,
		To:        to,
		Version:   version,
		Timestamp: m.deps.Now().UTC(),
	}
}

func (m *JobManager) acceptedCount(ctx context.Context, job *store.JobPosting) (int, error) {
	proposals, err := m.deps.Store.ListProposalsForJob(ctx, job.ID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range proposals {
		if p.Status == store.ProposalStatusAccepted {
			n++
		}
	}
	return n, nil
}

func (m *JobManager) invalidate(ctx context.Context, j *store.JobPosting) {
	if m.matches == nil {
		return
	}
	if err := m.matches.InvalidateJob(ctx, j.ID); err != nil {
		m.deps.Logger.Warn("failed to invalidate cached matches", "job_id", j.ID, "error", err)
	}
}

func (m *JobManager) fail(job *store.JobPosting, op string, err error) error {
	m.deps.Metrics.TransitionFailed("job", op, err)
	return err
}

func jobSubject(status store.JobStatus, id string) string {
	switch status {
	case store.JobStatusOpen:
		return hermes.SubjectJobPublished(id)
	case store.JobStatusInReview:
		return hermes.SubjectJobInReview(id)
	case store.JobStatusCancelled:
		return hermes.SubjectJobCancelled(id)
	case store.JobStatusFilled:
		return hermes.SubjectJobFilled(id)
	default:
		return hermes.SubjectJobClosed(id)
	}
}

func (e JobEdit) apply(j *store.JobPosting) {
	if e.Title != nil {
		j.Title = *e.Title
	}
	if e.Description != nil {
		j.Description = *e.Description
	}
	if e.Category != nil {
		j.Category = *e.Category
	}
	if e.Tags != nil {
		j.Tags = append([]string(nil), e.Tags...)
	}
	if e.JobType != nil {
		j.JobType = *e.JobType
	}
	if e.ExperienceLevel != nil {
		j.ExperienceLevel = *e.ExperienceLevel
	}
	if e.Budget != nil {
		j.Budget = (&store.JobPosting{Budget: *e.Budget}).Clone().Budget
	}
	if e.EstimatedHours != nil {
		h := *e.EstimatedHours
		j.EstimatedHours = &h
	}
	if e.Duration != nil {
		j.Duration = *e.Duration
	}
	if e.Location != nil {
		j.Location = *e.Location
	}
	if e.RequiredSkills != nil {
		j.RequiredSkills = append([]string(nil), e.RequiredSkills...)
	}
	if e.PreferredSkills != nil {
		j.PreferredSkills = append([]string(nil), e.PreferredSkills...)
	}
	if e.ScreeningQuestions != nil {
		j.ScreeningQuestions = append([]store.ScreeningQuestion(nil), e.ScreeningQuestions...)
	}
	if e.Visibility != nil {
		j.Visibility = *e.Visibility
	}
	if e.Embedding != nil {
		j.Embedding = e.Embedding.Clone()
	}
}

func applyJobDefaults(j *store.JobPosting) {
	if j.Visibility == "" {
		j.Visibility = store.VisibilityPublic
	}
	if j.Location.Type == "" {
		j.Location.Type = store.LocationRemote
	}
	if j.Budget.Currency == "" {
		j.Budget.Currency = "USD"
	}
}

// validateJob checks field-level invariants that hold in every state.
func validateJob(j *store.JobPosting) error {
	if strings.TrimSpace(j.OwnerID) == "" {
		return bzerrors.InvalidInput("owner_id is required")
	}
	if strings.TrimSpace(j.Title) == "" {
		return bzerrors.InvalidInput("title is required")
	}
	if !j.JobType.Valid() {
		return bzerrors.InvalidInput("invalid job_type %q", j.JobType)
	}
	if !j.ExperienceLevel.Valid() {
		return bzerrors.InvalidInput("invalid experience_level %q", j.ExperienceLevel)
	}
	switch j.Location.Type {
	case store.LocationRemote, store.LocationOnsite, store.LocationHybrid:
	default:
		return bzerrors.InvalidInput("invalid location type %q", j.Location.Type)
	}
	switch j.Visibility {
	case store.VisibilityPublic, store.VisibilityInviteOnly, store.VisibilityPrivate:
	default:
		return bzerrors.InvalidInput("invalid visibility %q", j.Visibility)
	}
	return validateBudget(j.Budget)
}

func validateBudget(b store.Budget) error {
	switch b.Type {
	case store.BudgetFixed, store.BudgetHourly, store.BudgetNegotiable:
	default:
		return bzerrors.InvalidInput("invalid budget type %q", b.Type)
	}
	for _, v := range []*decimal.Decimal{b.Min, b.Max} {
		if v != nil && v.IsNegative() {
			return bzerrors.InvalidInput("budget bounds must not be negative")
		}
	}
	if b.Min != nil && b.Max != nil && b.Max.LessThan(*b.Min) {
		return bzerrors.InvalidInput("budget max %s below min %s", b.Max, b.Min)
	}
	return nil
}

func nonBlank(names []string) []string {
	var out []string
	for _, n := range names {
		if strings.TrimSpace(n) != "" {
			out = append(out, n)
		}
	}
	return out
}

func textLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
