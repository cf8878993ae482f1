package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Job postings ---

type JobStatus string

const (
	JobStatusDraft     JobStatus = "draft"
	JobStatusOpen      JobStatus = "open"
	JobStatusInReview  JobStatus = "in_review"
	JobStatusFilled    JobStatus = "filled"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusClosed    JobStatus = "closed"
)

// Terminal reports whether no transition may leave s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFilled || s == JobStatusCancelled || s == JobStatusClosed
}

type JobType string

const (
	JobTypeOneTime  JobType = "one_time"
	JobTypeOngoing  JobType = "ongoing"
	JobTypeFullTime JobType = "full_time"
	JobTypePartTime JobType = "part_time"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTypeOneTime, JobTypeOngoing, JobTypeFullTime, JobTypePartTime:
		return true
	}
	return false
}

type ExperienceLevel string

const (
	LevelEntry        ExperienceLevel = "entry"
	LevelIntermediate ExperienceLevel = "intermediate"
	LevelExpert       ExperienceLevel = "expert"
)

// Rank orders levels entry < intermediate < expert. Unknown levels rank -1.
func (l ExperienceLevel) Rank() int {
	switch l {
	case LevelEntry:
		return 0
	case LevelIntermediate:
		return 1
	case LevelExpert:
		return 2
	}
	return -1
}

func (l ExperienceLevel) Valid() bool { return l.Rank() >= 0 }

type BudgetType string

const (
	BudgetFixed      BudgetType = "fixed"
	BudgetHourly     BudgetType = "hourly"
	BudgetNegotiable BudgetType = "negotiable"
)

type Budget struct {
	Type     BudgetType       `json:"type"`
	Min      *decimal.Decimal `json:"min,omitempty"`
	Max      *decimal.Decimal `json:"max,omitempty"`
	Currency string           `json:"currency"`
}

type LocationType string

const (
	LocationRemote LocationType = "remote"
	LocationOnsite LocationType = "onsite"
	LocationHybrid LocationType = "hybrid"
)

type Location struct {
	Type    LocationType `json:"type"`
	Country string       `json:"country,omitempty"`
}

type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityInviteOnly Visibility = "invite_only"
	VisibilityPrivate    Visibility = "private"
)

type ScreeningQuestion struct {
	Text     string `json:"text"`
	Required bool   `json:"required"`
}

type JobPosting struct {
	ID              uuid.UUID       `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	JobType         JobType         `json:"job_type"`
	ExperienceLevel ExperienceLevel `json:"experience_level"`
	Budget          Budget          `json:"budget"`
	EstimatedHours  *int            `json:"estimated_hours,omitempty"`
	Duration        string          `json:"duration,omitempty"`
	Location        Location        `json:"location"`

	RequiredSkills     []string            `json:"required_skills"`
	PreferredSkills    []string            `json:"preferred_skills,omitempty"`
	ScreeningQuestions []ScreeningQuestion `json:"screening_questions,omitempty"`
	Visibility         Visibility          `json:"visibility"`

	// Opaque representation for similarity; derived from description and tags when empty.
	Embedding *Embedding `json:"embedding,omitempty"`

	// State
	Status         JobStatus `json:"status"`
	ProposalsCount int       `json:"proposals_count"`
	ViewsCount     int       `json:"views_count"`
	IsFeatured     bool      `json:"is_featured"`

	// Timestamps
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`

	// Optimistic concurrency
	Version int `json:"version"`
}

// Clone returns a deep copy so transitions never alias the caller's value.
func (j *JobPosting) Clone() *JobPosting {
	c := *j
	c.Tags = append([]string(nil), j.Tags...)
	c.RequiredSkills = append([]string(nil), j.RequiredSkills...)
	c.PreferredSkills = append([]string(nil), j.PreferredSkills...)
	c.ScreeningQuestions = append([]ScreeningQuestion(nil), j.ScreeningQuestions...)
	if j.Budget.Min != nil {
		v := *j.Budget.Min
		c.Budget.Min = &v
	}
	if j.Budget.Max != nil {
		v := *j.Budget.Max
		c.Budget.Max = &v
	}
	if j.EstimatedHours != nil {
		v := *j.EstimatedHours
		c.EstimatedHours = &v
	}
	if j.PostedAt != nil {
		v := *j.PostedAt
		c.PostedAt = &v
	}
	if j.Embedding != nil {
		c.Embedding = j.Embedding.Clone()
	}
	return &c
}

// --- Profiles ---

type Skill struct {
	Name        string `json:"name"`
	Proficiency int    `json:"proficiency"` // self-rated 1-5
}

// Embedding is an opaque comparable representation: a dense vector, a token
// set, or both.
type Embedding struct {
	Vector []float64 `json:"vector,omitempty"`
	Tokens []string  `json:"tokens,omitempty"`
}

func (e *Embedding) Clone() *Embedding {
	return &Embedding{
		Vector: append([]float64(nil), e.Vector...),
		Tokens: append([]string(nil), e.Tokens...),
	}
}

type RateRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

type FreelancerProfile struct {
	ID                 string          `json:"id"`
	Skills             []Skill         `json:"skills"`
	ExperienceLevel    ExperienceLevel `json:"experience_level"`
	HourlyRateRange    RateRange       `json:"hourly_rate_range"`
	Rating             float64         `json:"rating"`
	CompletedJobsCount int             `json:"completed_jobs_count"`
	BioEmbedding       Embedding       `json:"bio_embedding"`
	Version            int             `json:"version"`
}

type ClientProfile struct {
	ID              string  `json:"id"`
	Company         string  `json:"company,omitempty"`
	Country         string  `json:"country,omitempty"`
	Rating          float64 `json:"rating"`
	JobsPosted      int     `json:"jobs_posted"`
	HireRate        float64 `json:"hire_rate"`
	PaymentVerified bool    `json:"payment_verified"`
}

// --- Matches ---

// RecommendedRate is a bid range with the freelancer's take-home after fees.
type RecommendedRate struct {
	Min        decimal.Decimal `json:"min"`
	Optimal    decimal.Decimal `json:"optimal"`
	Max        decimal.Decimal `json:"max"`
	NetMin     decimal.Decimal `json:"net_min"`
	NetOptimal decimal.Decimal `json:"net_optimal"`
	NetMax     decimal.Decimal `json:"net_max"`
}

// Match is a derived value: recomputed on demand, cacheable, never a source of truth.
type Match struct {
	JobID                uuid.UUID        `json:"job_id"`
	FreelancerID         string           `json:"freelancer_id"`
	SkillMatchScore      float64          `json:"skill_match_score"`
	ExperienceMatchScore float64          `json:"experience_match_score"`
	SimilarityScore      float64          `json:"similarity_score"`
	MatchScore           int              `json:"match_score"`
	MatchReasons         []string         `json:"match_reasons"`
	RecommendedRate      *RecommendedRate `json:"recommended_rate,omitempty"`
	JobVersion           int              `json:"job_version"`
	ProfileVersion       int              `json:"profile_version"`
	ComputedAt           time.Time        `json:"computed_at"`
}

// --- Proposals ---

type ProposalStatus string

const (
	ProposalStatusDraft        ProposalStatus = "draft"
	ProposalStatusSubmitted    ProposalStatus = "submitted"
	ProposalStatusViewed       ProposalStatus = "viewed"
	ProposalStatusShortlisted  ProposalStatus = "shortlisted"
	ProposalStatusInterviewing ProposalStatus = "interviewing"
	ProposalStatusOfferSent    ProposalStatus = "offer_sent"
	ProposalStatusAccepted     ProposalStatus = "accepted"
	ProposalStatusRejected     ProposalStatus = "rejected"
	ProposalStatusWithdrawn    ProposalStatus = "withdrawn"
)

func (s ProposalStatus) Terminal() bool {
	return s == ProposalStatusAccepted || s == ProposalStatusRejected || s == ProposalStatusWithdrawn
}

type RateType string

const (
	RateFixed  RateType = "fixed"
	RateHourly RateType = "hourly"
)

type Milestone struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Days        int             `json:"days"`
}

type Proposal struct {
	ID           uuid.UUID       `json:"id"`
	JobID        uuid.UUID       `json:"job_id"`
	FreelancerID string          `json:"freelancer_id"`
	CoverLetter  string          `json:"cover_letter"`
	ProposedRate decimal.Decimal `json:"proposed_rate"`
	RateType     RateType        `json:"rate_type"`
	Milestones   []Milestone     `json:"milestones,omitempty"`

	// State
	Status     ProposalStatus `json:"status"`
	MatchScore *int           `json:"match_score,omitempty"`

	// Fees quoted at submission; accepted fees recorded separately at acceptance.
	QuotedFee          *decimal.Decimal `json:"quoted_fee,omitempty"`
	QuotedNet          *decimal.Decimal `json:"quoted_net,omitempty"`
	FeeScheduleVersion string           `json:"fee_schedule_version,omitempty"`
	AcceptedFee        *decimal.Decimal `json:"accepted_fee,omitempty"`
	AcceptedNet        *decimal.Decimal `json:"accepted_net,omitempty"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	Version int `json:"version"`
}

func (p *Proposal) Clone() *Proposal {
	c := *p
	c.Milestones = append([]Milestone(nil), p.Milestones...)
	c.MatchScore = clonePtr(p.MatchScore)
	c.QuotedFee = clonePtr(p.QuotedFee)
	c.QuotedNet = clonePtr(p.QuotedNet)
	c.AcceptedFee = clonePtr(p.AcceptedFee)
	c.AcceptedNet = clonePtr(p.AcceptedNet)
	c.SubmittedAt = clonePtr(p.SubmittedAt)
	c.ClosedAt = clonePtr(p.ClosedAt)
	return &c
}

// ProposalUpdate pairs a proposal with the version it was read at.
type ProposalUpdate struct {
	Proposal        *Proposal
	ExpectedVersion int
}

// JobGuard pins the parent job of a proposal batch to the version the batch
// was decided against. The save bumps that version, so a job transition
// racing the batch fails with STALE_STATE and vice versa.
type JobGuard struct {
	JobID           uuid.UUID
	ExpectedVersion int
}

// --- Invitations ---

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	ID           uuid.UUID        `json:"id"`
	JobID        uuid.UUID        `json:"job_id"`
	FreelancerID string           `json:"freelancer_id"`
	Message      string           `json:"message,omitempty"`
	Status       InvitationStatus `json:"status"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	RespondedAt  *time.Time       `json:"responded_at,omitempty"`
	Version      int              `json:"version"`
}

func (i *Invitation) Clone() *Invitation {
	c := *i
	c.ExpiresAt = clonePtr(i.ExpiresAt)
	c.RespondedAt = clonePtr(i.RespondedAt)
	return &c
}

// --- Saved jobs ---

type SavedJob struct {
	UserID    string    `json:"user_id"`
	JobID     uuid.UUID `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Queries ---

type JobQuery struct {
	Statuses   []JobStatus
	OwnerID    string
	Visibility *Visibility
	Limit      int
	Offset     int
}

type Store interface {
	// Jobs. Save methods compare-and-set on Version and bump it on success;
	// a mismatch returns a STALE_STATE error.
	CreateJob(ctx context.Context, job *JobPosting) error
	GetJob(ctx context.Context, id uuid.UUID) (*JobPosting, error)
	SaveJob(ctx context.Context, job *JobPosting, expectedVersion int) error
	DeleteJob(ctx context.Context, id uuid.UUID, expectedVersion int) error
	QueryJobs(ctx context.Context, q JobQuery) ([]*JobPosting, error)
	IncrementJobViews(ctx context.Context, id uuid.UUID) error

	// Proposals
	CreateProposal(ctx context.Context, p *Proposal) error
	GetProposal(ctx context.Context, id uuid.UUID) (*Proposal, error)
	SaveProposal(ctx context.Context, p *Proposal, expectedVersion int) error
	// SaveProposals applies every update or none of them. A non-nil guard
	// also compare-and-sets the parent job's version in the same unit.
	SaveProposals(ctx context.Context, guard *JobGuard, updates []ProposalUpdate) error
	ListProposalsForJob(ctx context.Context, jobID uuid.UUID) ([]*Proposal, error)
	ListProposalsForFreelancer(ctx context.Context, freelancerID string) ([]*Proposal, error)

	// Invitations
	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error)
	SaveInvitation(ctx context.Context, inv *Invitation, expectedVersion int) error
	ListExpiredInvitations(ctx context.Context, now time.Time) ([]*Invitation, error)

	// Saved jobs; add and remove are idempotent.
	SaveJobForUser(ctx context.Context, userID string, jobID uuid.UUID) error
	UnsaveJobForUser(ctx context.Context, userID string, jobID uuid.UUID) error
	ListSavedJobs(ctx context.Context, userID string) ([]*SavedJob, error)

	Close() error
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
