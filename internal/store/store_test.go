package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
)

func TestStatusValues(t *testing.T) {
	jobStatuses := []JobStatus{
		JobStatusDraft, JobStatusOpen, JobStatusInReview,
		JobStatusFilled, JobStatusCancelled, JobStatusClosed,
	}
	expected := []string{"draft", "open", "in_review", "filled", "cancelled", "closed"}
	for i, s := range jobStatuses {
		assert.Equal(t, expected[i], string(s))
	}

	assert.False(t, JobStatusOpen.Terminal())
	assert.True(t, JobStatusFilled.Terminal())
	assert.True(t, ProposalStatusWithdrawn.Terminal())
	assert.False(t, ProposalStatusOfferSent.Terminal())
}

func TestExperienceLevelRank(t *testing.T) {
	assert.Equal(t, 0, LevelEntry.Rank())
	assert.Equal(t, 1, LevelIntermediate.Rank())
	assert.Equal(t, 2, LevelExpert.Rank())
	assert.Equal(t, -1, ExperienceLevel("guru").Rank())
	assert.False(t, ExperienceLevel("").Valid())
}

func TestJobCloneIsDeep(t *testing.T) {
	min := decimal.NewFromInt(100)
	j := &JobPosting{
		Tags:           []string{"go"},
		RequiredSkills: []string{"Go"},
		Budget:         Budget{Type: BudgetFixed, Min: &min},
		Embedding:      &Embedding{Tokens: []string{"api"}},
	}
	c := j.Clone()
	c.Tags[0] = "rust"
	c.RequiredSkills = append(c.RequiredSkills, "SQL")
	*c.Budget.Min = decimal.NewFromInt(5)
	c.Embedding.Tokens[0] = "ui"

	assert.Equal(t, "go", j.Tags[0])
	assert.Len(t, j.RequiredSkills, 1)
	assert.True(t, j.Budget.Min.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "api", j.Embedding.Tokens[0])
}

func newJob(owner string) *JobPosting {
	return &JobPosting{
		OwnerID:        owner,
		Title:          "Build a REST API",
		JobType:        JobTypeOneTime,
		Status:         JobStatusDraft,
		Visibility:     VisibilityPublic,
		RequiredSkills: []string{"Go"},
	}
}

func TestMemoryJobVersioning(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, job))
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, 1, job.Version)

	loaded, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	loaded.Status = JobStatusOpen
	require.NoError(t, s.SaveJob(ctx, loaded, 1))
	assert.Equal(t, 2, loaded.Version)

	// A writer holding the old version loses.
	job.Status = JobStatusClosed
	err = s.SaveJob(ctx, job, 1)
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeStaleState))

	current, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusOpen, current.Status)
}

func TestMemoryGetMissingReturnsNil(t *testing.T) {
	s := NewMemoryStore()
	j, err := s.GetJob(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, j)

	p, err := s.GetProposal(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemoryReturnedValuesAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, job))

	loaded, _ := s.GetJob(ctx, job.ID)
	loaded.Title = "mutated"
	loaded.RequiredSkills[0] = "COBOL"

	again, _ := s.GetJob(ctx, job.ID)
	assert.Equal(t, "Build a REST API", again.Title)
	assert.Equal(t, "Go", again.RequiredSkills[0])
}

func TestMemoryProposalPairUniqueness(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, job))

	first := &Proposal{JobID: job.ID, FreelancerID: "fl-1", Status: ProposalStatusDraft, ProposedRate: decimal.NewFromInt(50)}
	require.NoError(t, s.CreateProposal(ctx, first))

	dup := &Proposal{JobID: job.ID, FreelancerID: "fl-1", Status: ProposalStatusDraft, ProposedRate: decimal.NewFromInt(60)}
	err := s.CreateProposal(ctx, dup)
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeConflictingState))

	// Once withdrawn, the pair is free again.
	first.Status = ProposalStatusWithdrawn
	require.NoError(t, s.SaveProposal(ctx, first, first.Version))
	require.NoError(t, s.CreateProposal(ctx, dup))

	// Reviving the withdrawn one would create a second active proposal.
	first.Status = ProposalStatusDraft
	err = s.SaveProposal(ctx, first, first.Version)
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeConflictingState))
}

func TestMemorySaveProposalsIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, job))

	a := &Proposal{JobID: job.ID, FreelancerID: "fl-a", Status: ProposalStatusSubmitted}
	b := &Proposal{JobID: job.ID, FreelancerID: "fl-b", Status: ProposalStatusSubmitted}
	require.NoError(t, s.CreateProposal(ctx, a))
	require.NoError(t, s.CreateProposal(ctx, b))

	a.Status = ProposalStatusAccepted
	b.Status = ProposalStatusRejected
	err := s.SaveProposals(ctx, nil, []ProposalUpdate{
		{Proposal: a, ExpectedVersion: 1},
		{Proposal: b, ExpectedVersion: 7},
	})
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeStaleState))

	got, _ := s.GetProposal(ctx, a.ID)
	assert.Equal(t, ProposalStatusSubmitted, got.Status, "first update must not be applied")
	assert.Equal(t, 1, got.Version)
}

func TestMemorySaveProposalsJobGuard(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, job))

	p := &Proposal{JobID: job.ID, FreelancerID: "fl-a", Status: ProposalStatusOfferSent}
	require.NoError(t, s.CreateProposal(ctx, p))

	p.Status = ProposalStatusAccepted
	err := s.SaveProposals(ctx, &JobGuard{JobID: job.ID, ExpectedVersion: 3},
		[]ProposalUpdate{{Proposal: p, ExpectedVersion: 1}})
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeStaleState))
	got, _ := s.GetProposal(ctx, p.ID)
	assert.Equal(t, ProposalStatusOfferSent, got.Status)

	require.NoError(t, s.SaveProposals(ctx, &JobGuard{JobID: job.ID, ExpectedVersion: 1},
		[]ProposalUpdate{{Proposal: p, ExpectedVersion: 1}}))
	assert.Equal(t, 2, p.Version)

	// The job moved under the guard, so a save against the old job version fails.
	stale, _ := s.GetJob(ctx, job.ID)
	assert.Equal(t, 2, stale.Version)
	job.Status = JobStatusCancelled
	err = s.SaveJob(ctx, job, 1)
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeStaleState))

	err = s.SaveProposals(ctx, &JobGuard{JobID: uuid.New(), ExpectedVersion: 1}, nil)
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeNotFound))
}

func TestMemoryCreateDefaultsToDraft(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := newJob("client-1")
	job.Status = ""
	require.NoError(t, s.CreateJob(ctx, job))
	assert.Equal(t, JobStatusDraft, job.Status)
	got, _ := s.GetJob(ctx, job.ID)
	assert.Equal(t, JobStatusDraft, got.Status)

	p := &Proposal{JobID: job.ID, FreelancerID: "fl-a"}
	require.NoError(t, s.CreateProposal(ctx, p))
	gotP, _ := s.GetProposal(ctx, p.ID)
	assert.Equal(t, ProposalStatusDraft, gotP.Status)
}

func TestMemoryProposalsCountDerived(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.CreateProposal(ctx, &Proposal{JobID: job.ID, FreelancerID: "a", Status: ProposalStatusDraft}))
	require.NoError(t, s.CreateProposal(ctx, &Proposal{JobID: job.ID, FreelancerID: "b", Status: ProposalStatusSubmitted}))

	got, _ := s.GetJob(ctx, job.ID)
	assert.Equal(t, 1, got.ProposalsCount)
}

func TestMemoryDeleteJob(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	empty := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, empty))
	assert.True(t, bzerrors.Is(s.DeleteJob(ctx, empty.ID, 9), bzerrors.ErrTypeStaleState))
	require.NoError(t, s.DeleteJob(ctx, empty.ID, 1))
	assert.True(t, bzerrors.Is(s.DeleteJob(ctx, empty.ID, 1), bzerrors.ErrTypeNotFound))

	withProposal := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, withProposal))
	require.NoError(t, s.CreateProposal(ctx, &Proposal{JobID: withProposal.ID, FreelancerID: "a", Status: ProposalStatusDraft}))
	assert.True(t, bzerrors.Is(s.DeleteJob(ctx, withProposal.ID, 1), bzerrors.ErrTypeConflictingState))
}

func TestMemoryQueryJobs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	for i, owner := range []string{"a", "b", "a"} {
		j := newJob(owner)
		if i == 1 {
			j.Status = JobStatusOpen
		}
		require.NoError(t, s.CreateJob(ctx, j))
	}

	all, err := s.QueryJobs(ctx, JobQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt), "newest first")

	open, _ := s.QueryJobs(ctx, JobQuery{Statuses: []JobStatus{JobStatusOpen}})
	assert.Len(t, open, 1)

	owned, _ := s.QueryJobs(ctx, JobQuery{OwnerID: "a"})
	assert.Len(t, owned, 2)

	page, _ := s.QueryJobs(ctx, JobQuery{Limit: 1, Offset: 1})
	require.Len(t, page, 1)
	assert.Equal(t, all[1].ID, page[0].ID)

	past, _ := s.QueryJobs(ctx, JobQuery{Offset: 5})
	assert.Empty(t, past)
}

func TestMemoryInvitationsExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, job))

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	expired := &Invitation{JobID: job.ID, FreelancerID: "a", Status: InvitationPending, ExpiresAt: &past}
	live := &Invitation{JobID: job.ID, FreelancerID: "b", Status: InvitationPending, ExpiresAt: &future}
	open := &Invitation{JobID: job.ID, FreelancerID: "c", Status: InvitationPending}
	for _, inv := range []*Invitation{expired, live, open} {
		require.NoError(t, s.CreateInvitation(ctx, inv))
	}

	dup := &Invitation{JobID: job.ID, FreelancerID: "a", Status: InvitationPending}
	assert.True(t, bzerrors.Is(s.CreateInvitation(ctx, dup), bzerrors.ErrTypeConflictingState))

	due, err := s.ListExpiredInvitations(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expired.ID, due[0].ID)
}

func TestMemorySavedJobsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob("client-1")
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.SaveJobForUser(ctx, "fl-1", job.ID))
	require.NoError(t, s.SaveJobForUser(ctx, "fl-1", job.ID))
	saved, _ := s.ListSavedJobs(ctx, "fl-1")
	assert.Len(t, saved, 1)

	require.NoError(t, s.UnsaveJobForUser(ctx, "fl-1", job.ID))
	require.NoError(t, s.UnsaveJobForUser(ctx, "fl-1", job.ID))
	saved, _ = s.ListSavedJobs(ctx, "fl-1")
	assert.Empty(t, saved)

	err := s.SaveJobForUser(ctx, "fl-1", uuid.New())
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeNotFound))
}
