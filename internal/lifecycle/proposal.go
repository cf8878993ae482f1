package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/fees"
	"github.com/MikeSquared-Agency/Bazaar/internal/hermes"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// ProposalOp names an operation of the proposal state machine.
type ProposalOp string

const (
	ProposalOpSubmit            ProposalOp = "submit"
	ProposalOpMarkViewed        ProposalOp = "mark_viewed"
	ProposalOpShortlist         ProposalOp = "shortlist"
	ProposalOpScheduleInterview ProposalOp = "schedule_interview"
	ProposalOpSendOffer         ProposalOp = "send_offer"
	ProposalOpAcceptOffer       ProposalOp = "accept_offer"
	ProposalOpReject            ProposalOp = "reject"
	ProposalOpWithdraw          ProposalOp = "withdraw"
)

type proposalEdge struct {
	from []store.ProposalStatus
	to   store.ProposalStatus
}

var (
	reviewable = []store.ProposalStatus{
		store.ProposalStatusSubmitted,
		store.ProposalStatusViewed,
		store.ProposalStatusShortlisted,
		store.ProposalStatusInterviewing,
		store.ProposalStatusOfferSent,
	}
	withdrawable = append([]store.ProposalStatus{store.ProposalStatusDraft}, reviewable...)
)

var proposalTransitions = map[ProposalOp]proposalEdge{
	ProposalOpSubmit:            {from: []store.ProposalStatus{store.ProposalStatusDraft}, to: store.ProposalStatusSubmitted},
	ProposalOpMarkViewed:        {from: []store.ProposalStatus{store.ProposalStatusSubmitted}, to: store.ProposalStatusViewed},
	ProposalOpShortlist:         {from: []store.ProposalStatus{store.ProposalStatusViewed}, to: store.ProposalStatusShortlisted},
	ProposalOpScheduleInterview: {from: []store.ProposalStatus{store.ProposalStatusShortlisted}, to: store.ProposalStatusInterviewing},
	ProposalOpSendOffer:         {from: []store.ProposalStatus{store.ProposalStatusInterviewing}, to: store.ProposalStatusOfferSent},
	ProposalOpAcceptOffer:       {from: []store.ProposalStatus{store.ProposalStatusOfferSent}, to: store.ProposalStatusAccepted},
	ProposalOpReject:            {from: reviewable, to: store.ProposalStatusRejected},
	ProposalOpWithdraw:          {from: withdrawable, to: store.ProposalStatusWithdrawn},
}

// CanApplyProposal reports whether op is a valid edge out of status.
func CanApplyProposal(status store.ProposalStatus, op ProposalOp) bool {
	edge, ok := proposalTransitions[op]
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

const WarningRateChanged = "RATE_CHANGED_SINCE_SUBMISSION"

// Warning is a non-fatal condition surfaced alongside a successful transition.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AcceptResult is the outcome of AcceptOffer.
type AcceptResult struct {
	Proposal         *store.Proposal   `json:"proposal"`
	RejectedSiblings []*store.Proposal `json:"rejected_siblings"`
	Warnings         []Warning         `json:"warnings,omitempty"`
	// JobFillable is true once the parent job may be marked filled.
	JobFillable bool `json:"job_fillable"`
}

// ProposalEdit carries draft fields; nil leaves a field as is.
type ProposalEdit struct {
	CoverLetter  *string
	ProposedRate *decimal.Decimal
	RateType     *store.RateType
	Milestones   []store.Milestone
}

// ProposalManager enforces the proposal state machine. Client operations
// are MarkViewed, Shortlist, ScheduleInterview, SendOffer and Reject; the
// rest are the freelancer's.
type ProposalManager struct {
	deps     Deps
	rules    Rules
	fees     *fees.Calculator
	matches  MatchSource
	profiles ProfileSource
}

// NewProposalManager builds a manager. matches and profiles may be nil, in
// which case submissions carry no match snapshot.
func NewProposalManager(d Deps, rules Rules, calc *fees.Calculator, matches MatchSource, profiles ProfileSource) *ProposalManager {
	if calc == nil {
		calc = fees.Default()
	}
	return &ProposalManager{
		deps:     d.withDefaults(),
		rules:    rules,
		fees:     calc,
		matches:  matches,
		profiles: profiles,
	}
}

// Create stores a draft proposal against an open or in-review job.
func (m *ProposalManager) Create(ctx context.Context, p *store.Proposal) (*store.Proposal, error) {
	if strings.TrimSpace(p.FreelancerID) == "" {
		return nil, bzerrors.InvalidInput("freelancer_id is required")
	}
	if p.ProposedRate.IsNegative() {
		return nil, bzerrors.InvalidAmount("proposed rate must not be negative, got %s", p.ProposedRate)
	}
	job, err := m.loadJob(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	if !acceptingProposals(job) {
		return nil, bzerrors.InvalidState("job %s is %s and not accepting proposals", job.ID, job.Status)
	}

	c := p.Clone()
	c.Status = store.ProposalStatusDraft
	if c.RateType == "" {
		c.RateType = rateTypeFor(job)
	}
	if c.RateType != store.RateFixed && c.RateType != store.RateHourly {
		return nil, bzerrors.InvalidInput("invalid rate_type %q", c.RateType)
	}
	c.MatchScore = nil
	c.QuotedFee, c.QuotedNet, c.FeeScheduleVersion = nil, nil, ""
	c.AcceptedFee, c.AcceptedNet = nil, nil
	c.SubmittedAt, c.ClosedAt = nil, nil

	if err := m.deps.Store.CreateProposal(ctx, c); err != nil {
		m.deps.Metrics.TransitionFailed("proposal", "create", err)
		return nil, err
	}
	m.deps.Logger.Info("proposal created", "proposal_id", c.ID, "job_id", c.JobID, "freelancer_id", c.FreelancerID)
	publish(m.deps, hermes.SubjectProposalCreated(c.ID.String()),
		m.event("proposal.created", c, "", string(c.Status)))
	return c, nil
}

// Edit changes a draft before it is submitted.
func (m *ProposalManager) Edit(ctx context.Context, p *store.Proposal, edit ProposalEdit) (*store.Proposal, error) {
	if p.Status != store.ProposalStatusDraft {
		return nil, m.fail("edit", bzerrors.InvalidTransition("cannot edit proposal in %s", p.Status))
	}
	c := p.Clone()
	if edit.CoverLetter != nil {
		c.CoverLetter = *edit.CoverLetter
	}
	if edit.ProposedRate != nil {
		c.ProposedRate = *edit.ProposedRate
	}
	if edit.RateType != nil {
		c.RateType = *edit.RateType
	}
	if edit.Milestones != nil {
		c.Milestones = append([]store.Milestone(nil), edit.Milestones...)
	}
	if c.ProposedRate.IsNegative() {
		return nil, m.fail("edit", bzerrors.InvalidAmount("proposed rate must not be negative, got %s", c.ProposedRate))
	}
	if err := m.deps.Store.SaveProposal(ctx, c, p.Version); err != nil {
		return nil, m.fail("edit", err)
	}
	return c, nil
}

// Submit sends a draft to the client. The fee quote is persisted so that a
// later schedule change is detectable at acceptance.
func (m *ProposalManager) Submit(ctx context.Context, p *store.Proposal) (*store.Proposal, error) {
	op := ProposalOpSubmit
	if err := m.checkEdge(p, op); err != nil {
		return nil, err
	}
	if n := textLen(p.CoverLetter); n < m.rules.MinCoverLetterLength || n > m.rules.MaxCoverLetterLength {
		return nil, m.fail(string(op), bzerrors.InvalidInput("cover letter has %d characters, must be between %d and %d",
			n, m.rules.MinCoverLetterLength, m.rules.MaxCoverLetterLength))
	}
	if !p.ProposedRate.IsPositive() {
		return nil, m.fail(string(op), bzerrors.InvalidAmount("proposed rate must be positive, got %s", p.ProposedRate))
	}
	if err := validateMilestones(p); err != nil {
		return nil, m.fail(string(op), err)
	}
	job, err := m.loadJob(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	if !acceptingProposals(job) {
		return nil, m.fail(string(op), bzerrors.InvalidState("job %s is %s and not accepting proposals", job.ID, job.Status))
	}
	quote, err := m.fees.Quote(p.ProposedRate)
	if err != nil {
		return nil, m.fail(string(op), err)
	}
	m.deps.Metrics.FeeQuoted()
	snapshot := m.matchSnapshot(ctx, p.FreelancerID, job)

	return m.transition(ctx, p, op, func(c *store.Proposal, now time.Time) {
		c.QuotedFee = &quote.Fee
		c.QuotedNet = &quote.Net
		c.FeeScheduleVersion = quote.ScheduleVersion
		c.MatchScore = snapshot
		c.SubmittedAt = &now
	})
}

func (m *ProposalManager) MarkViewed(ctx context.Context, p *store.Proposal) (*store.Proposal, error) {
	if err := m.checkEdge(p, ProposalOpMarkViewed); err != nil {
		return nil, err
	}
	return m.transition(ctx, p, ProposalOpMarkViewed, nil)
}

func (m *ProposalManager) Shortlist(ctx context.Context, p *store.Proposal) (*store.Proposal, error) {
	if err := m.checkEdge(p, ProposalOpShortlist); err != nil {
		return nil, err
	}
	return m.transition(ctx, p, ProposalOpShortlist, nil)
}

func (m *ProposalManager) ScheduleInterview(ctx context.Context, p *store.Proposal) (*store.Proposal, error) {
	if err := m.checkEdge(p, ProposalOpScheduleInterview); err != nil {
		return nil, err
	}
	return m.transition(ctx, p, ProposalOpScheduleInterview, nil)
}

// SendOffer extends an offer; the parent job must still be open or in review.
func (m *ProposalManager) SendOffer(ctx context.Context, p *store.Proposal) (*store.Proposal, error) {
	op := ProposalOpSendOffer
	if err := m.checkEdge(p, op); err != nil {
		return nil, err
	}
	job, err := m.loadJob(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	if !acceptingProposals(job) {
		return nil, m.fail(string(op), bzerrors.InvalidState("job %s is %s", job.ID, job.Status))
	}
	return m.transition(ctx, p, op, nil)
}

func (m *ProposalManager) Reject(ctx context.Context, p *store.Proposal) (*store.Proposal, error) {
	if err := m.checkEdge(p, ProposalOpReject); err != nil {
		return nil, err
	}
	return m.transition(ctx, p, ProposalOpReject, func(c *store.Proposal, now time.Time) {
		c.ClosedAt = &now
	})
}

func (m *ProposalManager) Withdraw(ctx context.Context, p *store.Proposal) (*store.Proposal, error) {
	if err := m.checkEdge(p, ProposalOpWithdraw); err != nil {
		return nil, err
	}
	return m.transition(ctx, p, ProposalOpWithdraw, func(c *store.Proposal, now time.Time) {
		c.ClosedAt = &now
	})
}

// AcceptOffer accepts an offer and rejects every other non-terminal proposal
// on the same job in one atomic save. The save also bumps the job's version,
// so it cannot interleave with a Cancel or MarkFilled decided on the same job
// snapshot. The fee is recomputed with the live
// schedule; a difference from the submission quote is reported as a warning.
func (m *ProposalManager) AcceptOffer(ctx context.Context, p *store.Proposal) (*AcceptResult, error) {
	op := ProposalOpAcceptOffer
	if err := m.checkEdge(p, op); err != nil {
		return nil, err
	}
	job, err := m.loadJob(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	if !acceptingProposals(job) {
		return nil, m.fail(string(op), bzerrors.InvalidState("job %s is %s", job.ID, job.Status))
	}
	siblings, err := m.deps.Store.ListProposalsForJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range siblings {
		if s.ID != p.ID && s.Status == store.ProposalStatusAccepted {
			return nil, m.fail(string(op), bzerrors.ConflictingState("job %s already has accepted proposal %s", job.ID, s.ID))
		}
	}

	quote, err := m.fees.Quote(p.ProposedRate)
	if err != nil {
		return nil, m.fail(string(op), err)
	}
	m.deps.Metrics.FeeQuoted()

	now := m.deps.Now().UTC()
	accepted := p.Clone()
	accepted.Status = store.ProposalStatusAccepted
	accepted.AcceptedFee = &quote.Fee
	accepted.AcceptedNet = &quote.Net
	accepted.ClosedAt = &now

	updates := []store.ProposalUpdate{{Proposal: accepted, ExpectedVersion: p.Version}}
	var rejected []*store.Proposal
	var rejectedFrom []store.ProposalStatus
	for _, s := range siblings {
		if s.ID == p.ID || s.Status.Terminal() {
			continue
		}
		rejectedFrom = append(rejectedFrom, s.Status)
		r := s.Clone()
		r.Status = store.ProposalStatusRejected
		r.ClosedAt = &now
		updates = append(updates, store.ProposalUpdate{Proposal: r, ExpectedVersion: s.Version})
		rejected = append(rejected, r)
	}
	guard := &store.JobGuard{JobID: job.ID, ExpectedVersion: job.Version}
	if err := m.deps.Store.SaveProposals(ctx, guard, updates); err != nil {
		return nil, m.fail(string(op), err)
	}

	result := &AcceptResult{
		Proposal:         accepted,
		RejectedSiblings: rejected,
		JobFillable:      true,
	}
	if rateChanged(p, quote) {
		result.Warnings = append(result.Warnings, Warning{
			Code: WarningRateChanged,
			Message: "service fee changed since submission: quoted " + decString(p.QuotedFee) +
				" under " + orUnknown(p.FeeScheduleVersion) + ", now " + quote.Fee.StringFixed(fees.Precision) +
				" under " + quote.ScheduleVersion,
		})
	}

	siblingIDs := make([]string, 0, len(rejected))
	for i, r := range rejected {
		siblingIDs = append(siblingIDs, r.ID.String())
		m.deps.Metrics.Transition("proposal", string(rejectedFrom[i]), string(r.Status))
		publish(m.deps, hermes.SubjectProposalRejected(r.ID.String()),
			m.event("proposal.rejected", r, string(rejectedFrom[i]), string(r.Status)))
	}
	m.deps.Metrics.Transition("proposal", string(p.Status), string(accepted.Status))
	m.deps.Logger.Info("proposal accepted",
		"proposal_id", accepted.ID,
		"job_id", accepted.JobID,
		"rejected_siblings", len(rejected),
		"rate_changed", len(result.Warnings) > 0,
	)
	ev := m.event("proposal.accepted", accepted, string(p.Status), string(accepted.Status))
	ev.RejectedSiblings = siblingIDs
	ev.RateChanged = len(result.Warnings) > 0
	publish(m.deps, hermes.SubjectProposalAccepted(accepted.ID.String()), ev)
	return result, nil
}

func (m *ProposalManager) checkEdge(p *store.Proposal, op ProposalOp) error {
	if CanApplyProposal(p.Status, op) {
		return nil
	}
	return m.fail(string(op), bzerrors.InvalidTransition("cannot %s proposal in %s", op, p.Status))
}

func (m *ProposalManager) transition(ctx context.Context, p *store.Proposal, op ProposalOp, mutate func(*store.Proposal, time.Time)) (*store.Proposal, error) {
	edge := proposalTransitions[op]
	from := p.Status

	c := p.Clone()
	c.Status = edge.to
	if mutate != nil {
		mutate(c, m.deps.Now().UTC())
	}
	if err := m.deps.Store.SaveProposal(ctx, c, p.Version); err != nil {
		return nil, m.fail(string(op), err)
	}

	m.deps.Metrics.Transition("proposal", string(from), string(c.Status))
	m.deps.Logger.Info("proposal transition",
		"proposal_id", c.ID,
		"job_id", c.JobID,
		"op", op,
		"from", from,
		"to", c.Status,
		"version", c.Version,
	)
	publish(m.deps, proposalSubject(c.Status, c.ID.String()),
		m.event("proposal."+string(c.Status), c, string(from), string(c.Status)))
	return c, nil
}

// matchSnapshot scores the freelancer against the job at submission time.
// A missing profile or scorer leaves the snapshot empty.
func (m *ProposalManager) matchSnapshot(ctx context.Context, freelancerID string, job *store.JobPosting) *int {
	if m.matches == nil || m.profiles == nil {
		return nil
	}
	f, err := m.profiles.GetFreelancerProfile(ctx, freelancerID)
	if err != nil || f == nil {
		m.deps.Logger.Warn("no profile for match snapshot", "freelancer_id", freelancerID, "error", err)
		return nil
	}
	match, err := m.matches.Match(ctx, f, job)
	if err != nil {
		m.deps.Logger.Warn("match snapshot failed", "freelancer_id", freelancerID, "job_id", job.ID, "error", err)
		return nil
	}
	score := match.MatchScore
	return &score
}

func (m *ProposalManager) loadJob(ctx context.Context, id uuid.UUID) (*store.JobPosting, error) {
	job, err := m.deps.Store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, bzerrors.NotFound("job %s not found", id)
	}
	return job, nil
}

func (m *ProposalManager) event(name string, p *store.Proposal, from, to string) hermes.ProposalEvent {
	return hermes.ProposalEvent{
		Event:        name,
		ProposalID:   p.ID.String(),
		JobID:        p.JobID.String(),
		FreelancerID: p.FreelancerID,
		From:         from,
		To:           to,
		Version:      p.Version,
		Timestamp:    m.deps.Now().UTC(),
	}
}

func (m *ProposalManager) fail(op string, err error) error {
	m.deps.Metrics.TransitionFailed("proposal", op, err)
	return err
}

func proposalSubject(status store.ProposalStatus, id string) string {
	switch status {
	case store.ProposalStatusSubmitted:
		return hermes.SubjectProposalSubmitted(id)
	case store.ProposalStatusViewed:
		return hermes.SubjectProposalViewed(id)
	case store.ProposalStatusShortlisted:
		return hermes.SubjectProposalShortlisted(id)
	case store.ProposalStatusInterviewing:
		return hermes.SubjectProposalInterviewing(id)
	case store.ProposalStatusOfferSent:
		return hermes.SubjectProposalOfferSent(id)
	case store.ProposalStatusAccepted:
		return hermes.SubjectProposalAccepted(id)
	case store.ProposalStatusRejected:
		return hermes.SubjectProposalRejected(id)
	default:
		return hermes.SubjectProposalWithdrawn(id)
	}
}

func acceptingProposals(job *store.JobPosting) bool {
	return job.Status == store.JobStatusOpen || job.Status == store.JobStatusInReview
}

func rateTypeFor(job *store.JobPosting) store.RateType {
	if job.Budget.Type == store.BudgetHourly {
		return store.RateHourly
	}
	return store.RateFixed
}

// validateMilestones requires positive amounts and durations; a fixed-rate
// plan must add up to the proposed rate.
func validateMilestones(p *store.Proposal) error {
	if p.RateType != store.RateFixed && p.RateType != store.RateHourly {
		return bzerrors.InvalidInput("invalid rate_type %q", p.RateType)
	}
	if len(p.Milestones) == 0 {
		return nil
	}
	total := decimal.Zero
	for i, ms := range p.Milestones {
		if !ms.Amount.IsPositive() {
			return bzerrors.InvalidAmount("milestone %d amount must be positive, got %s", i+1, ms.Amount)
		}
		if ms.Days <= 0 {
			return bzerrors.InvalidInput("milestone %d must last at least one day", i+1)
		}
		total = total.Add(ms.Amount)
	}
	if p.RateType == store.RateFixed && !total.Equal(p.ProposedRate) {
		return bzerrors.InvalidAmount("milestones total %s, proposed rate is %s", total, p.ProposedRate)
	}
	return nil
}

func rateChanged(p *store.Proposal, live fees.Quote) bool {
	if p.QuotedFee == nil {
		return false
	}
	return !p.QuotedFee.Equal(live.Fee) || p.FeeScheduleVersion != live.ScheduleVersion
}

func decString(d *decimal.Decimal) string {
	if d == nil {
		return "nothing"
	}
	return d.StringFixed(fees.Precision)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown schedule"
	}
	return s
}
