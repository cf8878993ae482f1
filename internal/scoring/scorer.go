package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/fees"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// Explanation is the full factor breakdown behind a match score.
type Explanation struct {
	JobID        string         `json:"job_id"`
	FreelancerID string         `json:"freelancer_id"`
	Composite    float64        `json:"composite"`
	MatchScore   int            `json:"match_score"`
	Factors      []FactorResult `json:"factors"`
}

// MatchScorer computes the weighted skill/experience/similarity composite
// for a freelancer–job pair. It holds no mutable state; identical inputs
// always yield identical scores and reasons.
type MatchScorer struct {
	settings   Settings
	fees       *fees.Calculator
	similarity SimilarityProvider
	logger     *slog.Logger
	now        func() time.Time
}

// NewMatchScorer validates settings and builds a scorer. A nil provider
// selects DefaultSimilarity.
func NewMatchScorer(settings Settings, calc *fees.Calculator, sim SimilarityProvider, logger *slog.Logger) (*MatchScorer, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("scoring settings: %w", err)
	}
	if calc == nil {
		calc = fees.Default()
	}
	if sim == nil {
		sim = DefaultSimilarity{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchScorer{
		settings:   settings,
		fees:       calc,
		similarity: sim,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Score computes the Match for one freelancer–job pair.
func (s *MatchScorer) Score(f *store.FreelancerProfile, job *store.JobPosting) (*store.Match, error) {
	factors, composite, err := s.evaluate(f, job)
	if err != nil {
		return nil, err
	}

	rate, err := RecommendRate(job.Budget, factors[0].Score, s.settings.RateBand, s.fees)
	if err != nil {
		return nil, err
	}

	m := &store.Match{
		JobID:                job.ID,
		FreelancerID:         f.ID,
		SkillMatchScore:      factors[0].Score,
		ExperienceMatchScore: factors[1].Score,
		SimilarityScore:      factors[2].Score,
		MatchScore:           toMatchScore(composite),
		MatchReasons:         s.reasons(factors),
		RecommendedRate:      rate,
		JobVersion:           job.Version,
		ProfileVersion:       f.Version,
		ComputedAt:           s.now().UTC(),
	}

	s.logger.Debug("match scored",
		"job_id", job.ID,
		"freelancer_id", f.ID,
		"match_score", m.MatchScore,
	)
	return m, nil
}

// Explain returns the weighted factor breakdown without rate recommendation.
func (s *MatchScorer) Explain(f *store.FreelancerProfile, job *store.JobPosting) (*Explanation, error) {
	factors, composite, err := s.evaluate(f, job)
	if err != nil {
		return nil, err
	}
	return &Explanation{
		JobID:        job.ID.String(),
		FreelancerID: f.ID,
		Composite:    composite,
		MatchScore:   toMatchScore(composite),
		Factors:      factors,
	}, nil
}

func (s *MatchScorer) evaluate(f *store.FreelancerProfile, job *store.JobPosting) ([]FactorResult, float64, error) {
	if !hasRequiredSkills(job) {
		return nil, 0, bzerrors.IncompleteJobData("job %s has no required skills", job.ID)
	}

	mc := &MatchContext{Job: job, Freelancer: f}
	factors := []FactorResult{
		SkillFactor(mc, s.settings.PreferredCredit),
		ExperienceFactor(mc),
		SimilarityFactor(mc, s.similarity),
	}

	weights := s.settings.Weights.asList()
	var total float64
	for i := range factors {
		factors[i].Weight = weights[i]
		factors[i].Weighted = factors[i].Score * weights[i]
		total += factors[i].Weighted
	}
	return factors, clamp(total, 0, 1), nil
}

// reasons lists a sentence for each factor above the threshold, always in
// skill, experience, similarity order.
func (s *MatchScorer) reasons(factors []FactorResult) []string {
	out := []string{}
	t := s.settings.ReasonThreshold
	if sk := factors[0]; sk.Score > t {
		out = append(out, "Matches skills: "+strings.Join(sk.Matched, ", "))
	}
	if ex := factors[1]; ex.Score > t {
		if len(ex.Matched) > 0 {
			out = append(out, "Experience level matches: "+ex.Matched[0])
		} else {
			out = append(out, "Experience level is close: "+ex.Reason)
		}
	}
	if sim := factors[2]; sim.Score > t {
		out = append(out, fmt.Sprintf("Profile closely matches the job description (%.0f%% similar)", sim.Score*100))
	}
	return out
}

func toMatchScore(composite float64) int {
	// Guard against float noise such as 0.7099999999 before rounding.
	v := math.Round(composite*1e9) / 1e9
	return int(math.Round(100 * v))
}
