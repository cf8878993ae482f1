package scoring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/matchcache"
	"github.com/MikeSquared-Agency/Bazaar/internal/metrics"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// Matcher serves matches lazily through the cache. A cached match is only
// reused while both the job and profile versions it was computed from are
// still current.
type Matcher struct {
	scorer  *MatchScorer
	cache   matchcache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewMatcher wraps scorer. A nil cache disables caching.
func NewMatcher(scorer *MatchScorer, cache matchcache.Cache, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{scorer: scorer, cache: cache, ttl: ttl, metrics: m, logger: logger}
}

func (m *Matcher) Scorer() *MatchScorer { return m.scorer }

// Match returns the cached match for the pair or computes and caches a fresh
// one. Cache failures degrade to recomputation.
func (m *Matcher) Match(ctx context.Context, f *store.FreelancerProfile, job *store.JobPosting) (*store.Match, error) {
	if m.cache != nil {
		cached, err := m.cache.Get(ctx, job.ID, f.ID)
		switch {
		case err == nil && cached.JobVersion == job.Version && cached.ProfileVersion == f.Version:
			m.metrics.CacheHit()
			return cached, nil
		case err != nil && !errors.Is(err, matchcache.ErrNotFound):
			m.logger.Warn("match cache get failed", "job_id", job.ID, "freelancer_id", f.ID, "error", err)
		}
		m.metrics.CacheMiss()
	}

	match, err := m.scorer.Score(f, job)
	if err != nil {
		return nil, err
	}
	m.metrics.MatchComputed()

	if m.cache != nil {
		if err := m.cache.Put(ctx, match, m.ttl); err != nil {
			m.logger.Warn("match cache put failed", "job_id", job.ID, "freelancer_id", f.ID, "error", err)
		}
	}
	return match, nil
}

// MatchAll scores the freelancer against every job. Jobs that cannot be
// scored for lack of required skills are left out of the result.
func (m *Matcher) MatchAll(ctx context.Context, f *store.FreelancerProfile, jobs []*store.JobPosting) (map[uuid.UUID]*store.Match, error) {
	out := make(map[uuid.UUID]*store.Match, len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		match, err := m.Match(ctx, f, job)
		if bzerrors.Is(err, bzerrors.ErrTypeIncompleteJobData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[job.ID] = match
	}
	return out, nil
}

// InvalidateJob drops every cached match for the job.
func (m *Matcher) InvalidateJob(ctx context.Context, jobID uuid.UUID) error {
	if m.cache == nil {
		return nil
	}
	return m.cache.InvalidateJob(ctx, jobID)
}

// InvalidateFreelancer drops every cached match for the freelancer.
func (m *Matcher) InvalidateFreelancer(ctx context.Context, freelancerID string) error {
	if m.cache == nil {
		return nil
	}
	return m.cache.InvalidateFreelancer(ctx, freelancerID)
}
