package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/fees"
	"github.com/MikeSquared-Agency/Bazaar/internal/profiles"
	"github.com/MikeSquared-Agency/Bazaar/internal/ranking"
	"github.com/MikeSquared-Agency/Bazaar/internal/scoring"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// MatchesHandler serves the freelancer-facing read side: match scores,
// score explanations, job search and fee quotes.
type MatchesHandler struct {
	store    store.Store
	matcher  *scoring.Matcher
	ranking  *ranking.Engine
	profiles profiles.Client
	fees     *fees.Calculator
	logger   *slog.Logger
}

func NewMatchesHandler(s store.Store, m *scoring.Matcher, rk *ranking.Engine, p profiles.Client, calc *fees.Calculator, logger *slog.Logger) *MatchesHandler {
	return &MatchesHandler{store: s, matcher: m, ranking: rk, profiles: p, fees: calc, logger: logger}
}

func (h *MatchesHandler) Match(w http.ResponseWriter, r *http.Request) {
	f, job, err := h.pair(r)
	if err != nil {
		writeError(w, err)
		return
	}
	match, err := h.matcher.Match(r.Context(), f, job)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (h *MatchesHandler) Explain(w http.ResponseWriter, r *http.Request) {
	f, job, err := h.pair(r)
	if err != nil {
		writeError(w, err)
		return
	}
	exp, err := h.matcher.Scorer().Explain(f, job)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// ClientProfile returns the public profile of the client who owns the job.
func (h *MatchesHandler) ClientProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := loadJob(r.Context(), h.store, id)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.profiles.GetClientProfile(r.Context(), job.OwnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeError(w, bzerrors.NotFound("client profile %s not found", job.OwnerID))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Search lists open public postings. When the caller has a freelancer
// profile every result carries their match score.
func (h *MatchesHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := searchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	public := store.VisibilityPublic
	pool, err := h.store.QueryJobs(r.Context(), store.JobQuery{
		Statuses:   []store.JobStatus{store.JobStatusOpen, store.JobStatusInReview},
		Visibility: &public,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	f, err := h.profiles.GetFreelancerProfile(r.Context(), userID(r))
	if err != nil {
		h.logger.Warn("profile lookup failed, searching without scores", "user", userID(r), "error", err)
	}
	if f != nil {
		matches, err := h.matcher.MatchAll(r.Context(), f, pool)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Scores = make(map[uuid.UUID]int, len(matches))
		for id, m := range matches {
			req.Scores[id] = m.MatchScore
		}
	}

	res, err := h.ranking.Search(pool, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Quote previews the service fee on an amount.
func (h *MatchesHandler) Quote(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, bzerrors.InvalidAmount("amount must be a decimal number"))
		return
	}
	q, err := h.fees.Quote(amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *MatchesHandler) pair(r *http.Request) (*store.FreelancerProfile, *store.JobPosting, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, nil, err
	}
	job, err := loadJob(r.Context(), h.store, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := h.profiles.GetFreelancerProfile(r.Context(), userID(r))
	if err != nil {
		return nil, nil, err
	}
	if f == nil {
		return nil, nil, bzerrors.NotFound("freelancer profile %s not found", userID(r))
	}
	return f, job, nil
}

func searchRequest(r *http.Request) (ranking.Request, error) {
	q := r.URL.Query()
	req := ranking.Request{
		Filters: ranking.Filters{
			Query:           q.Get("q"),
			Category:        q.Get("category"),
			ExperienceLevel: store.ExperienceLevel(q.Get("experience_level")),
			JobType:         store.JobType(q.Get("job_type")),
			LocationType:    store.LocationType(q.Get("location_type")),
			Skills:          queryList(r, "skills"),
			SkillMode:       ranking.SkillMode(q.Get("skill_mode")),
		},
		Sort: ranking.SortKey(q.Get("sort")),
	}

	var err error
	if req.Filters.BudgetMin, err = queryDecimal(r, "budget_min"); err != nil {
		return req, err
	}
	if req.Filters.BudgetMax, err = queryDecimal(r, "budget_max"); err != nil {
		return req, err
	}
	if raw := q.Get("posted_within"); raw != "" {
		if req.Filters.PostedWithin, err = time.ParseDuration(raw); err != nil {
			return req, bzerrors.InvalidInput("posted_within must be a duration such as 72h")
		}
	}
	if raw := q.Get("invert"); raw != "" {
		if req.Filters.Invert, err = strconv.ParseBool(raw); err != nil {
			return req, bzerrors.InvalidInput("invert must be a boolean")
		}
	}
	if req.Page, err = queryInt(r, "page"); err != nil {
		return req, err
	}
	if req.PageSize, err = queryInt(r, "page_size"); err != nil {
		return req, err
	}
	return req, nil
}

func queryDecimal(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, bzerrors.InvalidAmount("%s must be a decimal number", name)
	}
	return &d, nil
}
