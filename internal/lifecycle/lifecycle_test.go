package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type recordedEvent struct {
	subject string
	data    interface{}
}

type recordingHermes struct {
	mu        sync.Mutex
	published []recordedEvent
}

func (r *recordingHermes) Publish(subject string, data interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, recordedEvent{subject, data})
	return nil
}

func (r *recordingHermes) Subscribe(_ string, _ func(string, []byte)) error { return nil }
func (r *recordingHermes) Close()                                          {}

func (r *recordingHermes) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.published))
	for _, e := range r.published {
		out = append(out, e.subject)
	}
	return out
}

func (r *recordingHermes) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = nil
}

type fixture struct {
	store     *store.MemoryStore
	hermes    *recordingHermes
	deps      Deps
	jobs      *JobManager
	proposals *ProposalManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	h := &recordingHermes{}
	d := Deps{
		Store:  s,
		Hermes: h,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return testNow },
	}
	return &fixture{
		store:     s,
		hermes:    h,
		deps:      d,
		jobs:      NewJobManager(d, DefaultRules(), nil),
		proposals: NewProposalManager(d, DefaultRules(), nil, nil, nil),
	}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func draftJob() *store.JobPosting {
	return &store.JobPosting{
		OwnerID:         "client-1",
		Title:           "Build a React dashboard",
		Description:     "We need a responsive analytics dashboard backed by a Node API and Postgres.",
		Category:        "web",
		Tags:            []string{"react", "dashboard"},
		JobType:         store.JobTypeOneTime,
		ExperienceLevel: store.LevelIntermediate,
		Budget:          store.Budget{Type: store.BudgetFixed, Min: dec("1000"), Max: dec("2000"), Currency: "USD"},
		Location:        store.Location{Type: store.LocationRemote},
		RequiredSkills:  []string{"React", "Node"},
		Visibility:      store.VisibilityPublic,
		Status:          store.JobStatusDraft,
	}
}

// jobIn stores a job directly in the given state, bypassing the manager.
func (f *fixture) jobIn(t *testing.T, status store.JobStatus) *store.JobPosting {
	t.Helper()
	j := draftJob()
	j.Status = status
	if status != store.JobStatusDraft {
		posted := testNow.Add(-time.Hour)
		j.PostedAt = &posted
	}
	require.NoError(t, f.store.CreateJob(context.Background(), j))
	return j
}

// proposalIn stores a proposal directly in the given state.
func (f *fixture) proposalIn(t *testing.T, job *store.JobPosting, freelancer string, status store.ProposalStatus) *store.Proposal {
	t.Helper()
	p := &store.Proposal{
		JobID:        job.ID,
		FreelancerID: freelancer,
		CoverLetter:  coverLetter(150),
		ProposedRate: decimal.NewFromInt(1500),
		RateType:     store.RateFixed,
		Status:       status,
	}
	require.NoError(t, f.store.CreateProposal(context.Background(), p))
	return p
}

func (f *fixture) reloadJob(t *testing.T, j *store.JobPosting) *store.JobPosting {
	t.Helper()
	got, err := f.store.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func (f *fixture) reloadProposal(t *testing.T, p *store.Proposal) *store.Proposal {
	t.Helper()
	got, err := f.store.GetProposal(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func coverLetter(n int) string {
	return strings.Repeat("a", n)
}
