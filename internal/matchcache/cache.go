package matchcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

var (
	ErrNotFound = errors.New("match not found in cache")
	ErrClosed   = errors.New("cache is closed")
)

// DefaultTTL applies when Put is called with a zero ttl.
const DefaultTTL = time.Hour

// Cache stores derived Match values keyed by (job, freelancer). Entries are
// dropped explicitly when either side changes; the ttl only bounds memory.
type Cache interface {
	// Get returns ErrNotFound on a miss.
	Get(ctx context.Context, jobID uuid.UUID, freelancerID string) (*store.Match, error)
	Put(ctx context.Context, m *store.Match, ttl time.Duration) error
	InvalidateJob(ctx context.Context, jobID uuid.UUID) error
	InvalidateFreelancer(ctx context.Context, freelancerID string) error
	Close() error
}

func matchKey(jobID uuid.UUID, freelancerID string) string {
	return fmt.Sprintf("bazaar:match:%s:%s", jobID, freelancerID)
}

func jobIndexKey(jobID uuid.UUID) string {
	return "bazaar:match-index:job:" + jobID.String()
}

func freelancerIndexKey(freelancerID string) string {
	return "bazaar:match-index:freelancer:" + freelancerID
}

func cloneMatch(m *store.Match) *store.Match {
	c := *m
	c.MatchReasons = append([]string(nil), m.MatchReasons...)
	if m.RecommendedRate != nil {
		r := *m.RecommendedRate
		c.RecommendedRate = &r
	}
	return &c
}
