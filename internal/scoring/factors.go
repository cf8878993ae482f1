package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// FactorResult captures one factor's contribution to the total score.
type FactorResult struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
	Reason   string  `json:"reason"`

	// Matched names the skills or level behind the score, in job order.
	Matched []string `json:"matched,omitempty"`
}

// MatchContext bundles all inputs needed to score a single freelancer–job pair.
type MatchContext struct {
	Job        *store.JobPosting
	Freelancer *store.FreelancerProfile
}

// --- Individual factor calculators ---

// SkillFactor scores required-skill coverage with partial credit for
// preferred skills, capped at 1.0. Skill names compare case-insensitively.
// The caller guarantees the job has required skills.
func SkillFactor(mc *MatchContext, preferredCredit float64) FactorResult {
	have := make(map[string]struct{}, len(mc.Freelancer.Skills))
	for _, s := range mc.Freelancer.Skills {
		have[normalizeSkill(s.Name)] = struct{}{}
	}

	required := distinctSkills(mc.Job.RequiredSkills, nil)
	preferred := distinctSkills(mc.Job.PreferredSkills, required)

	var matchedRequired, matchedPreferred []string
	for _, r := range required.order {
		if _, ok := have[normalizeSkill(r)]; ok {
			matchedRequired = append(matchedRequired, r)
		}
	}
	for _, p := range preferred.order {
		if _, ok := have[normalizeSkill(p)]; ok {
			matchedPreferred = append(matchedPreferred, p)
		}
	}

	score := (float64(len(matchedRequired)) + preferredCredit*float64(len(matchedPreferred))) /
		float64(len(required.order))
	score = math.Min(score, 1.0)

	reason := fmt.Sprintf("%d of %d required skills", len(matchedRequired), len(required.order))
	if len(matchedPreferred) > 0 {
		reason += fmt.Sprintf(", %d preferred", len(matchedPreferred))
	}
	return FactorResult{
		Name:    "skill",
		Score:   score,
		Reason:  reason,
		Matched: append(matchedRequired, matchedPreferred...),
	}
}

// ExperienceFactor scores level alignment: 1.0 equal, 0.6 adjacent, 0.2 two
// levels apart. An unknown level on either side scores 0.
func ExperienceFactor(mc *MatchContext) FactorResult {
	jl, fl := mc.Job.ExperienceLevel, mc.Freelancer.ExperienceLevel
	if !jl.Valid() || !fl.Valid() {
		return FactorResult{Name: "experience", Score: 0, Reason: "experience level unknown"}
	}
	diff := jl.Rank() - fl.Rank()
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 0:
		return FactorResult{Name: "experience", Score: 1.0, Reason: "same level", Matched: []string{string(jl)}}
	case 1:
		return FactorResult{Name: "experience", Score: 0.6, Reason: fmt.Sprintf("adjacent level (%s vs %s)", fl, jl)}
	default:
		return FactorResult{Name: "experience", Score: 0.2, Reason: fmt.Sprintf("distant level (%s vs %s)", fl, jl)}
	}
}

// SimilarityFactor compares the freelancer's bio against the job through the
// provider. Provider output is clamped to [0,1]; NaN scores 0.
func SimilarityFactor(mc *MatchContext, sim SimilarityProvider) FactorResult {
	v := sim.Similarity(mc.Freelancer.BioEmbedding, JobRepresentation(mc.Job))
	if math.IsNaN(v) {
		v = 0
	}
	v = clamp(v, 0, 1)
	return FactorResult{Name: "similarity", Score: v, Reason: fmt.Sprintf("%.0f%% profile similarity", v*100)}
}

type skillList struct {
	order []string
	seen  map[string]struct{}
}

// distinctSkills dedupes names case-insensitively, keeping first spelling,
// and drops any already present in exclude.
func distinctSkills(names []string, exclude *skillList) *skillList {
	l := &skillList{seen: make(map[string]struct{})}
	for _, n := range names {
		k := normalizeSkill(n)
		if k == "" {
			continue
		}
		if exclude != nil {
			if _, ok := exclude.seen[k]; ok {
				continue
			}
		}
		if _, ok := l.seen[k]; ok {
			continue
		}
		l.seen[k] = struct{}{}
		l.order = append(l.order, n)
	}
	return l
}

func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// hasRequiredSkills reports whether the job lists at least one non-blank required skill.
func hasRequiredSkills(job *store.JobPosting) bool {
	return len(distinctSkills(job.RequiredSkills, nil).order) > 0
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
