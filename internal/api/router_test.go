package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Bazaar/internal/config"
	"github.com/MikeSquared-Agency/Bazaar/internal/fees"
	"github.com/MikeSquared-Agency/Bazaar/internal/invitations"
	"github.com/MikeSquared-Agency/Bazaar/internal/lifecycle"
	"github.com/MikeSquared-Agency/Bazaar/internal/matchcache"
	"github.com/MikeSquared-Agency/Bazaar/internal/metrics"
	"github.com/MikeSquared-Agency/Bazaar/internal/profiles"
	"github.com/MikeSquared-Agency/Bazaar/internal/ranking"
	"github.com/MikeSquared-Agency/Bazaar/internal/scoring"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

const adminToken = "admin-secret"

type testServer struct {
	handler http.Handler
	store   *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	calc := fees.Default()

	scorer, err := scoring.NewMatchScorer(scoring.DefaultSettings(), calc, nil, logger)
	require.NoError(t, err)
	matcher := scoring.NewMatcher(scorer, matchcache.NewMemoryCache(), 0, m, logger)

	profs := profiles.NewStaticClient()
	profs.PutFreelancer(store.FreelancerProfile{
		ID:                 "fl-1",
		Skills:             []store.Skill{{Name: "Go", Proficiency: 5}, {Name: "PostgreSQL", Proficiency: 4}},
		ExperienceLevel:    store.LevelExpert,
		HourlyRateRange:    store.RateRange{Min: decimal.NewFromInt(40), Max: decimal.NewFromInt(90)},
		Rating:             4.8,
		CompletedJobsCount: 31,
		BioEmbedding:       store.Embedding{Tokens: []string{"go", "api", "postgresql", "backend"}},
		Version:            1,
	})
	profs.PutClient(store.ClientProfile{ID: "client-1", Company: "Acme", PaymentVerified: true})

	deps := lifecycle.Deps{Store: s, Metrics: m, Logger: logger}
	rules := lifecycle.DefaultRules()

	h := NewRouter(Deps{
		Store:       s,
		Jobs:        lifecycle.NewJobManager(deps, rules, matcher),
		Proposals:   lifecycle.NewProposalManager(deps, rules, calc, matcher, profs),
		Invitations: invitations.NewManager(s, nil, m, 0, logger),
		Matcher:     matcher,
		Ranking:     ranking.NewEngine(config.Default().Search, m),
		Profiles:    profs,
		Fees:        calc,
		AdminToken:  adminToken,
		Logger:      logger,
	})
	return &testServer{handler: h, store: s}
}

func (ts *testServer) do(t *testing.T, method, path, user string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorResponse](t, w).Code
}

func jobBody() JobRequest {
	lo, hi := decimal.NewFromInt(1000), decimal.NewFromInt(2000)
	return JobRequest{
		Title:           "Build a Go billing API",
		Description:     strings.Repeat("We need a backend engineer for a billing service. ", 2),
		Category:        "development",
		Tags:            []string{"backend", "api"},
		JobType:         store.JobTypeOneTime,
		ExperienceLevel: store.LevelExpert,
		Budget:          store.Budget{Type: store.BudgetFixed, Min: &lo, Max: &hi},
		RequiredSkills:  []string{"Go", "PostgreSQL"},
	}
}

func coverLetter(n int) string {
	return strings.Repeat("x", n)
}

// openJob creates and publishes a job owned by client-1.
func (ts *testServer) openJob(t *testing.T) *store.JobPosting {
	t.Helper()
	w := ts.do(t, "POST", "/api/v1/jobs", "client-1", jobBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	job := decode[store.JobPosting](t, w)

	w = ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/publish", "client-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	job = decode[store.JobPosting](t, w)
	return &job
}

func (ts *testServer) submitProposal(t *testing.T, job *store.JobPosting, freelancer string) store.Proposal {
	t.Helper()
	w := ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/proposals", freelancer, ProposalRequest{
		CoverLetter:  coverLetter(120),
		ProposedRate: decimal.NewFromInt(1500),
		RateType:     store.RateFixed,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[store.Proposal](t, w)

	w = ts.do(t, "POST", "/api/v1/proposals/"+p.ID.String()+"/submit", freelancer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[store.Proposal](t, w)
}

func TestRequiresUserID(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "GET", "/api/v1/jobs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJobLifecycle(t *testing.T) {
	ts := newTestServer(t)
	job := ts.openJob(t)
	assert.Equal(t, store.JobStatusOpen, job.Status)
	assert.NotNil(t, job.PostedAt)

	w := ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/review", "client-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.JobStatusInReview, decode[store.JobPosting](t, w).Status)

	// Filling requires an accepted proposal.
	w = ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/fill", "client-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", errCode(t, w))

	w = ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/close", "client-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.JobStatusClosed, decode[store.JobPosting](t, w).Status)

	w = ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/cancel", "client-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", errCode(t, w))
}

func TestJobOwnership(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "POST", "/api/v1/jobs", "client-1", jobBody())
	require.Equal(t, http.StatusCreated, w.Code)
	job := decode[store.JobPosting](t, w)
	path := "/api/v1/jobs/" + job.ID.String()

	w = ts.do(t, "POST", path+"/publish", "client-2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Drafts are invisible to everyone but the owner.
	w = ts.do(t, "GET", path, "fl-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, "GET", path, "client-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, "GET", "/api/v1/jobs/not-a-uuid", "client-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCountsViews(t *testing.T) {
	ts := newTestServer(t)
	job := ts.openJob(t)
	path := "/api/v1/jobs/" + job.ID.String()

	ts.do(t, "GET", path, "fl-1", nil)
	ts.do(t, "GET", path, "fl-2", nil)
	ts.do(t, "GET", path, "client-1", nil)

	w := ts.do(t, "GET", path, "client-1", nil)
	assert.Equal(t, 2, decode[store.JobPosting](t, w).ViewsCount)
}

func TestUpdateWithStaleVersion(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "POST", "/api/v1/jobs", "client-1", jobBody())
	job := decode[store.JobPosting](t, w)
	path := "/api/v1/jobs/" + job.ID.String()

	title := "Build a Go invoicing API"
	w = ts.do(t, "PATCH", path, "client-1", UpdateJobRequest{Title: &title}, "If-Match", "1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[store.JobPosting](t, w)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 2, updated.Version)

	w = ts.do(t, "PATCH", path, "client-1", UpdateJobRequest{Title: &title}, "If-Match", "1")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	resp := decode[errorResponse](t, w)
	assert.Equal(t, "STALE_STATE", resp.Code)
	assert.True(t, resp.Retryable)
}

func TestDeleteDraft(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "POST", "/api/v1/jobs", "client-1", jobBody())
	job := decode[store.JobPosting](t, w)
	path := "/api/v1/jobs/" + job.ID.String()

	w = ts.do(t, "DELETE", path, "client-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, "GET", path, "client-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHiringFlow(t *testing.T) {
	ts := newTestServer(t)
	job := ts.openJob(t)

	winner := ts.submitProposal(t, job, "fl-1")
	loser := ts.submitProposal(t, job, "fl-2")
	assert.Equal(t, store.ProposalStatusSubmitted, winner.Status)
	require.NotNil(t, winner.QuotedFee)
	assert.True(t, decimal.NewFromInt(200).Equal(*winner.QuotedFee), winner.QuotedFee.String())
	require.NotNil(t, winner.MatchScore, "fl-1 has a profile")
	assert.Nil(t, loser.MatchScore, "fl-2 has no profile")

	path := "/api/v1/proposals/" + winner.ID.String()
	// Client steps are the job owner's alone.
	w := ts.do(t, "POST", path+"/view", "fl-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	for _, step := range []string{"view", "shortlist", "interview", "offer"} {
		w = ts.do(t, "POST", path+"/"+step, "client-1", nil)
		require.Equal(t, http.StatusOK, w.Code, "%s: %s", step, w.Body.String())
	}
	assert.Equal(t, store.ProposalStatusOfferSent, decode[store.Proposal](t, w).Status)

	// Accepting is the freelancer's.
	w = ts.do(t, "POST", path+"/accept", "client-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, "POST", path+"/accept", "fl-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[lifecycle.AcceptResult](t, w)
	assert.Equal(t, store.ProposalStatusAccepted, res.Proposal.Status)
	assert.True(t, res.JobFillable)
	require.Len(t, res.RejectedSiblings, 1)
	assert.Equal(t, loser.ID, res.RejectedSiblings[0].ID)
	assert.Empty(t, res.Warnings)

	w = ts.do(t, "GET", "/api/v1/proposals/"+loser.ID.String(), "fl-2", nil)
	assert.Equal(t, store.ProposalStatusRejected, decode[store.Proposal](t, w).Status)

	w = ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/fill", "client-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, store.JobStatusFilled, decode[store.JobPosting](t, w).Status)
}

func TestSubmitValidation(t *testing.T) {
	ts := newTestServer(t)
	job := ts.openJob(t)

	w := ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/proposals", "fl-1", ProposalRequest{
		CoverLetter:  coverLetter(80),
		ProposedRate: decimal.NewFromInt(1500),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	p := decode[store.Proposal](t, w)
	path := "/api/v1/proposals/" + p.ID.String()

	w = ts.do(t, "POST", path+"/submit", "fl-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", errCode(t, w))

	letter := coverLetter(100)
	w = ts.do(t, "PATCH", path, "fl-1", UpdateProposalRequest{CoverLetter: &letter})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, "POST", path+"/submit", "fl-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, store.ProposalStatusSubmitted, decode[store.Proposal](t, w).Status)

	// A second live proposal for the same pair is refused.
	w = ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/proposals", "fl-1", ProposalRequest{
		CoverLetter:  coverLetter(120),
		ProposedRate: decimal.NewFromInt(1200),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICTING_STATE", errCode(t, w))
}

func TestProposalVisibility(t *testing.T) {
	ts := newTestServer(t)
	job := ts.openJob(t)

	w := ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/proposals", "fl-1", ProposalRequest{
		CoverLetter:  coverLetter(120),
		ProposedRate: decimal.NewFromInt(1500),
	})
	draft := decode[store.Proposal](t, w)

	w = ts.do(t, "GET", "/api/v1/proposals/"+draft.ID.String(), "client-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, "GET", "/api/v1/proposals/"+draft.ID.String(), "fl-9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	submitted := ts.submitProposal(t, job, "fl-2")
	w = ts.do(t, "GET", "/api/v1/proposals/"+submitted.ID.String(), "client-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, "GET", "/api/v1/proposals", "fl-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]store.Proposal](t, w), 1)
}

func TestListProposalsForJob(t *testing.T) {
	ts := newTestServer(t)
	job := ts.openJob(t)
	ts.submitProposal(t, job, "fl-1")
	ts.submitProposal(t, job, "fl-2")
	path := "/api/v1/jobs/" + job.ID.String() + "/proposals"

	w := ts.do(t, "GET", path, "fl-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, "GET", path+"?sort=match_score", "client-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[ranking.ProposalResult](t, w)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "fl-1", res.Items[0].Proposal.FreelancerID, "scored proposal ranks first")
	assert.Equal(t, 2, res.Pagination.TotalCount)

	w = ts.do(t, "GET", path+"?sort=bogus", "client-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, "GET", path+"?frontier=maybe", "client-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchAndExplain(t *testing.T) {
	ts := newTestServer(t)
	job := ts.openJob(t)
	path := "/api/v1/jobs/" + job.ID.String()

	w := ts.do(t, "GET", path+"/match", "fl-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	match := decode[store.Match](t, w)
	assert.Equal(t, job.ID, match.JobID)
	assert.GreaterOrEqual(t, match.MatchScore, 0)
	assert.LessOrEqual(t, match.MatchScore, 100)
	assert.Equal(t, 1.0, match.SkillMatchScore)

	w = ts.do(t, "GET", path+"/match/explain", "fl-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	exp := decode[scoring.Explanation](t, w)
	assert.Equal(t, match.MatchScore, exp.MatchScore)
	assert.Len(t, exp.Factors, 3)

	w = ts.do(t, "GET", path+"/match", "fl-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, "GET", path+"/client", "fl-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Acme", decode[store.ClientProfile](t, w).Company)
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t)
	open := ts.openJob(t)
	ts.do(t, "POST", "/api/v1/jobs", "client-1", jobBody()) // stays draft

	w := ts.do(t, "GET", "/api/v1/jobs/search?skills=go&sort=match_score", "fl-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[ranking.Result](t, w)
	require.Len(t, res.Items, 1)
	assert.Equal(t, open.ID, res.Items[0].Job.ID)
	require.NotNil(t, res.Items[0].MatchScore)

	// Without a profile there are no scores to sort by.
	w = ts.do(t, "GET", "/api/v1/jobs/search?sort=match_score", "fl-2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, "GET", "/api/v1/jobs/search?skills=go&invert=true", "fl-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[ranking.Result](t, w).Items)

	w = ts.do(t, "GET", "/api/v1/jobs/search?budget_min=abc", "fl-2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, "GET", "/api/v1/jobs/search?posted_within=soon", "fl-2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSavedJobs(t *testing.T) {
	ts := newTestServer(t)
	job := ts.openJob(t)
	path := "/api/v1/jobs/" + job.ID.String() + "/save"

	assert.Equal(t, http.StatusNoContent, ts.do(t, "PUT", path, "fl-1", nil).Code)
	assert.Equal(t, http.StatusNoContent, ts.do(t, "PUT", path, "fl-1", nil).Code)

	w := ts.do(t, "GET", "/api/v1/jobs/saved", "fl-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	saved := decode[[]store.SavedJob](t, w)
	require.Len(t, saved, 1)
	assert.Equal(t, job.ID, saved[0].JobID)

	assert.Equal(t, http.StatusNoContent, ts.do(t, "DELETE", path, "fl-1", nil).Code)
	w = ts.do(t, "GET", "/api/v1/jobs/saved", "fl-1", nil)
	assert.Empty(t, decode[[]store.SavedJob](t, w))
}

func TestFeeQuote(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/api/v1/fees/quote?amount=1500", "fl-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	q := decode[fees.Quote](t, w)
	assert.True(t, decimal.NewFromInt(200).Equal(q.Fee), q.Fee.String())
	assert.True(t, decimal.NewFromInt(1300).Equal(q.Net), q.Net.String())

	w = ts.do(t, "GET", "/api/v1/fees/quote?amount=0", "fl-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_AMOUNT", errCode(t, w))
}

func TestInvitations(t *testing.T) {
	ts := newTestServer(t)
	job := ts.openJob(t)

	w := ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/invitations", "fl-1", InviteRequest{FreelancerID: "fl-2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, "POST", "/api/v1/jobs/"+job.ID.String()+"/invitations", "client-1", InviteRequest{FreelancerID: "fl-2", Message: "Interested?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	inv := decode[store.Invitation](t, w)
	path := "/api/v1/invitations/" + inv.ID.String()

	assert.Equal(t, http.StatusOK, ts.do(t, "GET", path, "client-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, "GET", path, "fl-3", nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, "POST", path+"/accept", "client-1", nil).Code)

	w = ts.do(t, "POST", path+"/accept", "fl-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.InvitationAccepted, decode[store.Invitation](t, w).Status)

	w = ts.do(t, "POST", path+"/decline", "fl-2", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminExpire(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "POST", "/api/v1/admin/invitations/expire", "ops", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, "POST", "/api/v1/admin/invitations/expire", "ops", nil, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int{"expired": 0}, decode[map[string]int](t, w))
}

func TestMetricsRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).FeeQuoted()
	h := NewMetricsRouter(reg)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bazaar_")
}

func TestWriteError_UntypedIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
