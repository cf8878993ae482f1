package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
)

// MemoryStore is an in-process Store. Every value crossing its boundary is
// deep-copied, so callers can never mutate stored state without a Save.
type MemoryStore struct {
	mu          sync.RWMutex
	jobs        map[uuid.UUID]*JobPosting
	proposals   map[uuid.UUID]*Proposal
	invitations map[uuid.UUID]*Invitation
	saved       map[string]map[uuid.UUID]time.Time
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[uuid.UUID]*JobPosting),
		proposals:   make(map[uuid.UUID]*Proposal),
		invitations: make(map[uuid.UUID]*Invitation),
		saved:       make(map[string]map[uuid.UUID]time.Time),
		now:         time.Now,
	}
}

func (s *MemoryStore) Close() error { return nil }

// --- Jobs ---

func (s *MemoryStore) CreateJob(_ context.Context, job *JobPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, ok := s.jobs[job.ID]; ok {
		return bzerrors.ConflictingState("job %s already exists", job.ID)
	}
	if job.Status == "" {
		job.Status = JobStatusDraft
	}
	now := s.now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Version = 1
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return s.withCounts(j), nil
}

func (s *MemoryStore) SaveJob(_ context.Context, job *JobPosting, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[job.ID]
	if !ok {
		return bzerrors.NotFound("job %s not found", job.ID)
	}
	if cur.Version != expectedVersion {
		return bzerrors.StaleState("job %s at version %d, expected %d", job.ID, cur.Version, expectedVersion)
	}
	job.Version = expectedVersion + 1
	job.UpdatedAt = s.now().UTC()
	job.CreatedAt = cur.CreatedAt
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) DeleteJob(_ context.Context, id uuid.UUID, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[id]
	if !ok {
		return bzerrors.NotFound("job %s not found", id)
	}
	if cur.Version != expectedVersion {
		return bzerrors.StaleState("job %s at version %d, expected %d", id, cur.Version, expectedVersion)
	}
	for _, p := range s.proposals {
		if p.JobID == id {
			return bzerrors.ConflictingState("job %s has proposals", id)
		}
	}
	delete(s.jobs, id)
	for _, m := range s.saved {
		delete(m, id)
	}
	return nil
}

func (s *MemoryStore) QueryJobs(_ context.Context, q JobQuery) ([]*JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*JobPosting
	for _, j := range s.jobs {
		if len(q.Statuses) > 0 && !containsStatus(q.Statuses, j.Status) {
			continue
		}
		if q.OwnerID != "" && j.OwnerID != q.OwnerID {
			continue
		}
		if q.Visibility != nil && j.Visibility != *q.Visibility {
			continue
		}
		out = append(out, s.withCounts(j))
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) IncrementJobViews(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return bzerrors.NotFound("job %s not found", id)
	}
	// Counters are not lifecycle state and do not bump the version.
	j.ViewsCount++
	return nil
}

// withCounts returns a copy of j with ProposalsCount derived from live
// proposals. Callers must hold mu.
func (s *MemoryStore) withCounts(j *JobPosting) *JobPosting {
	c := j.Clone()
	c.ProposalsCount = 0
	for _, p := range s.proposals {
		if p.JobID == j.ID && p.Status != ProposalStatusDraft && p.Status != ProposalStatusWithdrawn {
			c.ProposalsCount++
		}
	}
	return c
}

// --- Proposals ---

func (s *MemoryStore) CreateProposal(_ context.Context, p *Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, ok := s.proposals[p.ID]; ok {
		return bzerrors.ConflictingState("proposal %s already exists", p.ID)
	}
	if existing := s.activeProposal(p.JobID, p.FreelancerID, uuid.Nil); existing != nil {
		return bzerrors.ConflictingState("freelancer %s already has proposal %s on job %s",
			p.FreelancerID, existing.ID, p.JobID)
	}
	if p.Status == "" {
		p.Status = ProposalStatusDraft
	}
	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1
	s.proposals[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) GetProposal(_ context.Context, id uuid.UUID) (*Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (s *MemoryStore) SaveProposal(ctx context.Context, p *Proposal, expectedVersion int) error {
	return s.SaveProposals(ctx, nil, []ProposalUpdate{{Proposal: p, ExpectedVersion: expectedVersion}})
}

func (s *MemoryStore) SaveProposals(_ context.Context, guard *JobGuard, updates []ProposalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every precondition before writing anything.
	if guard != nil {
		job, ok := s.jobs[guard.JobID]
		if !ok {
			return bzerrors.NotFound("job %s not found", guard.JobID)
		}
		if job.Version != guard.ExpectedVersion {
			return bzerrors.StaleState("job %s at version %d, expected %d",
				guard.JobID, job.Version, guard.ExpectedVersion)
		}
	}
	for _, u := range updates {
		cur, ok := s.proposals[u.Proposal.ID]
		if !ok {
			return bzerrors.NotFound("proposal %s not found", u.Proposal.ID)
		}
		if cur.Version != u.ExpectedVersion {
			return bzerrors.StaleState("proposal %s at version %d, expected %d",
				u.Proposal.ID, cur.Version, u.ExpectedVersion)
		}
		if u.Proposal.Status != ProposalStatusWithdrawn {
			if other := s.activeProposal(u.Proposal.JobID, u.Proposal.FreelancerID, u.Proposal.ID); other != nil {
				return bzerrors.ConflictingState("freelancer %s already has proposal %s on job %s",
					u.Proposal.FreelancerID, other.ID, u.Proposal.JobID)
			}
		}
	}

	now := s.now().UTC()
	for _, u := range updates {
		cur := s.proposals[u.Proposal.ID]
		u.Proposal.Version = u.ExpectedVersion + 1
		u.Proposal.UpdatedAt = now
		u.Proposal.CreatedAt = cur.CreatedAt
		s.proposals[u.Proposal.ID] = u.Proposal.Clone()
	}
	if guard != nil {
		job := s.jobs[guard.JobID]
		job.Version++
		job.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) ListProposalsForJob(_ context.Context, jobID uuid.UUID) ([]*Proposal, error) {
	return s.listProposals(func(p *Proposal) bool { return p.JobID == jobID }), nil
}

func (s *MemoryStore) ListProposalsForFreelancer(_ context.Context, freelancerID string) ([]*Proposal, error) {
	return s.listProposals(func(p *Proposal) bool { return p.FreelancerID == freelancerID }), nil
}

func (s *MemoryStore) listProposals(keep func(*Proposal) bool) []*Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Proposal
	for _, p := range s.proposals {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return out
}

// activeProposal returns the non-withdrawn proposal for the pair other than
// exclude, if any. Callers must hold mu.
func (s *MemoryStore) activeProposal(jobID uuid.UUID, freelancerID string, exclude uuid.UUID) *Proposal {
	for _, p := range s.proposals {
		if p.ID == exclude || p.JobID != jobID || p.FreelancerID != freelancerID {
			continue
		}
		if p.Status != ProposalStatusWithdrawn {
			return p
		}
	}
	return nil
}

// --- Invitations ---

func (s *MemoryStore) CreateInvitation(_ context.Context, inv *Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	for _, other := range s.invitations {
		if other.JobID == inv.JobID && other.FreelancerID == inv.FreelancerID && other.Status == InvitationPending {
			return bzerrors.ConflictingState("freelancer %s already has a pending invitation to job %s",
				inv.FreelancerID, inv.JobID)
		}
	}
	inv.CreatedAt = s.now().UTC()
	inv.Version = 1
	s.invitations[inv.ID] = inv.Clone()
	return nil
}

func (s *MemoryStore) GetInvitation(_ context.Context, id uuid.UUID) (*Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invitations[id]
	if !ok {
		return nil, nil
	}
	return inv.Clone(), nil
}

func (s *MemoryStore) SaveInvitation(_ context.Context, inv *Invitation, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.invitations[inv.ID]
	if !ok {
		return bzerrors.NotFound("invitation %s not found", inv.ID)
	}
	if cur.Version != expectedVersion {
		return bzerrors.StaleState("invitation %s at version %d, expected %d", inv.ID, cur.Version, expectedVersion)
	}
	inv.Version = expectedVersion + 1
	inv.CreatedAt = cur.CreatedAt
	s.invitations[inv.ID] = inv.Clone()
	return nil
}

func (s *MemoryStore) ListExpiredInvitations(_ context.Context, now time.Time) ([]*Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Invitation
	for _, inv := range s.invitations {
		if inv.Status == InvitationPending && inv.ExpiresAt != nil && !inv.ExpiresAt.After(now) {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ExpiresAt.Before(*out[b].ExpiresAt) })
	return out, nil
}

// --- Saved jobs ---

func (s *MemoryStore) SaveJobForUser(_ context.Context, userID string, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return bzerrors.NotFound("job %s not found", jobID)
	}
	m, ok := s.saved[userID]
	if !ok {
		m = make(map[uuid.UUID]time.Time)
		s.saved[userID] = m
	}
	if _, ok := m[jobID]; !ok {
		m[jobID] = s.now().UTC()
	}
	return nil
}

func (s *MemoryStore) UnsaveJobForUser(_ context.Context, userID string, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.saved[userID], jobID)
	return nil
}

func (s *MemoryStore) ListSavedJobs(_ context.Context, userID string) ([]*SavedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*SavedJob
	for jobID, at := range s.saved[userID] {
		out = append(out, &SavedJob{UserID: userID, JobID: jobID, CreatedAt: at})
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].JobID.String() < out[b].JobID.String()
	})
	return out, nil
}

func containsStatus(list []JobStatus, s JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
