package ranking

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// SkillMode selects how the Skills filter matches a job's skills.
type SkillMode string

const (
	// SkillsAny keeps jobs that list at least one of the skills.
	SkillsAny SkillMode = "any"
	// SkillsAll keeps jobs that list every one of the skills.
	SkillsAll SkillMode = "all"
)

// Filters are AND-combined predicates over a job. Zero-valued fields do not
// constrain. Invert negates the combined predicate, so a search and its
// inverse partition any pool.
type Filters struct {
	Query           string
	Category        string
	ExperienceLevel store.ExperienceLevel
	JobType         store.JobType
	LocationType    store.LocationType
	BudgetMin       *decimal.Decimal
	BudgetMax       *decimal.Decimal
	Skills          []string
	SkillMode       SkillMode
	PostedWithin    time.Duration
	Invert          bool
}

// Validate rejects filters that could never be evaluated.
func (f Filters) Validate() error {
	switch f.SkillMode {
	case "", SkillsAny, SkillsAll:
	default:
		return bzerrors.InvalidInput("unknown skill mode %q", f.SkillMode)
	}
	if f.ExperienceLevel != "" && !f.ExperienceLevel.Valid() {
		return bzerrors.InvalidInput("unknown experience level %q", f.ExperienceLevel)
	}
	if f.JobType != "" && !f.JobType.Valid() {
		return bzerrors.InvalidInput("unknown job type %q", f.JobType)
	}
	if f.BudgetMin != nil && f.BudgetMax != nil && f.BudgetMax.LessThan(*f.BudgetMin) {
		return bzerrors.InvalidInput("budget max %s below min %s", f.BudgetMax, f.BudgetMin)
	}
	if f.PostedWithin < 0 {
		return bzerrors.InvalidInput("posted_within must not be negative")
	}
	return nil
}

// Matches evaluates the filters against job at time now.
func (f Filters) Matches(job *store.JobPosting, now time.Time) bool {
	return f.matchesAll(job, now) != f.Invert
}

func (f Filters) matchesAll(job *store.JobPosting, now time.Time) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" && !matchesText(job, q) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, job.Category) {
		return false
	}
	if f.ExperienceLevel != "" && f.ExperienceLevel != job.ExperienceLevel {
		return false
	}
	if f.JobType != "" && f.JobType != job.JobType {
		return false
	}
	if f.LocationType != "" && f.LocationType != job.Location.Type {
		return false
	}
	if (f.BudgetMin != nil || f.BudgetMax != nil) && !budgetOverlaps(job.Budget, f.BudgetMin, f.BudgetMax) {
		return false
	}
	if len(f.Skills) > 0 && !matchesSkills(job, f.Skills, f.SkillMode) {
		return false
	}
	if f.PostedWithin > 0 {
		if job.PostedAt == nil || now.Sub(*job.PostedAt) > f.PostedWithin {
			return false
		}
	}
	return true
}

func matchesText(job *store.JobPosting, q string) bool {
	if strings.Contains(strings.ToLower(job.Title), q) || strings.Contains(strings.ToLower(job.Description), q) {
		return true
	}
	for _, tag := range job.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// budgetOverlaps tests [lo, hi] against the job's budget range. A missing
// bound on either side is unbounded; negotiable budgets overlap everything.
func budgetOverlaps(b store.Budget, lo, hi *decimal.Decimal) bool {
	if b.Type == store.BudgetNegotiable {
		return true
	}
	if hi != nil && b.Min != nil && b.Min.GreaterThan(*hi) {
		return false
	}
	if lo != nil && b.Max != nil && b.Max.LessThan(*lo) {
		return false
	}
	return true
}

func matchesSkills(job *store.JobPosting, wanted []string, mode SkillMode) bool {
	have := make(map[string]struct{}, len(job.RequiredSkills)+len(job.PreferredSkills))
	for _, s := range job.RequiredSkills {
		have[normalize(s)] = struct{}{}
	}
	for _, s := range job.PreferredSkills {
		have[normalize(s)] = struct{}{}
	}

	matched, considered := 0, 0
	for _, s := range wanted {
		n := normalize(s)
		if n == "" {
			continue
		}
		considered++
		if _, ok := have[n]; ok {
			matched++
		}
	}
	if considered == 0 {
		return true
	}
	if mode == SkillsAll {
		return matched == considered
	}
	return matched > 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
