package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Bazaar/internal/config"
	"github.com/MikeSquared-Agency/Bazaar/internal/hermes"
	"github.com/MikeSquared-Agency/Bazaar/internal/metrics"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// Deps are the collaborators shared by both managers. Hermes and Metrics are
// optional.
type Deps struct {
	Store   store.Store
	Hermes  hermes.Client
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// MatchInvalidator drops cached matches for a job.
type MatchInvalidator interface {
	InvalidateJob(ctx context.Context, jobID uuid.UUID) error
}

// MatchSource computes (or serves cached) matches.
type MatchSource interface {
	Match(ctx context.Context, f *store.FreelancerProfile, job *store.JobPosting) (*store.Match, error)
}

// ProfileSource loads freelancer profiles.
type ProfileSource interface {
	GetFreelancerProfile(ctx context.Context, id string) (*store.FreelancerProfile, error)
}

// Rules are the text-length preconditions of job publishing and proposal
// submission.
type Rules struct {
	MinTitleLength       int
	MinDescriptionLength int
	MinCoverLetterLength int
	MaxCoverLetterLength int
}

func DefaultRules() Rules {
	return RulesFromConfig(config.Default().Lifecycle)
}

func RulesFromConfig(cfg config.LifecycleConfig) Rules {
	return Rules{
		MinTitleLength:       cfg.MinTitleLength,
		MinDescriptionLength: cfg.MinDescriptionLength,
		MinCoverLetterLength: cfg.MinCoverLetterLength,
		MaxCoverLetterLength: cfg.MaxCoverLetterLength,
	}
}

// publish emits an event and only logs on failure; transitions never fail
// because notification delivery did.
func publish(d Deps, subject string, event interface{}) {
	if d.Hermes == nil {
		return
	}
	if err := d.Hermes.Publish(subject, event); err != nil {
		d.Logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
