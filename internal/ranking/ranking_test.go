package ranking

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Bazaar/internal/config"
	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func id(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

func hoursAgo(h int) *time.Time {
	t := now.Add(-time.Duration(h) * time.Hour)
	return &t
}

func newTestEngine() *Engine {
	e := NewEngine(config.Default().Search, nil)
	e.now = func() time.Time { return now }
	return e
}

func testPool() []*store.JobPosting {
	return []*store.JobPosting{
		{
			ID: id(1), Title: "React dashboard", Description: "Analytics UI", Category: "web",
			Tags: []string{"frontend"}, JobType: store.JobTypeOneTime, ExperienceLevel: store.LevelIntermediate,
			Budget:         store.Budget{Type: store.BudgetFixed, Min: dec("1000"), Max: dec("2000")},
			Location:       store.Location{Type: store.LocationRemote},
			RequiredSkills: []string{"React", "Node"}, PostedAt: hoursAgo(2),
		},
		{
			ID: id(2), Title: "Go microservice", Description: "Payments backend in Go", Category: "backend",
			Tags: []string{"golang", "api"}, JobType: store.JobTypeOngoing, ExperienceLevel: store.LevelExpert,
			Budget:         store.Budget{Type: store.BudgetHourly, Min: dec("60"), Max: dec("120")},
			Location:       store.Location{Type: store.LocationHybrid, Country: "DE"},
			RequiredSkills: []string{"Go"}, PreferredSkills: []string{"Postgres"}, PostedAt: hoursAgo(30),
		},
		{
			ID: id(3), Title: "Logo design", Description: "Brand refresh", Category: "design",
			JobType: store.JobTypeOneTime, ExperienceLevel: store.LevelEntry,
			Budget:         store.Budget{Type: store.BudgetNegotiable},
			Location:       store.Location{Type: store.LocationRemote},
			RequiredSkills: []string{"Illustrator"}, PostedAt: hoursAgo(2),
		},
		{
			ID: id(4), Title: "Data pipeline", Description: "Kafka to Postgres ETL", Category: "backend",
			Tags: []string{"REACT-free"}, JobType: store.JobTypeFullTime, ExperienceLevel: store.LevelExpert,
			Budget:         store.Budget{Type: store.BudgetFixed, Min: dec("15000"), Max: dec("30000")},
			Location:       store.Location{Type: store.LocationOnsite, Country: "US"},
			RequiredSkills: []string{"Postgres", "Kafka"}, PostedAt: hoursAgo(200),
		},
		{
			ID: id(5), Title: "Landing page", Description: "Static site with React", Category: "web",
			JobType: store.JobTypePartTime, ExperienceLevel: store.LevelEntry,
			Budget:         store.Budget{Type: store.BudgetFixed, Min: dec("300")},
			Location:       store.Location{Type: store.LocationRemote},
			RequiredSkills: []string{"HTML"}, PreferredSkills: []string{"react"},
		},
	}
}

func ids(r *Result) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, it.Job.ID)
	}
	return out
}

func TestSearch_DefaultSortPostedAtDescWithIDTieBreak(t *testing.T) {
	res, err := newTestEngine().Search(testPool(), Request{})
	require.NoError(t, err)
	// 1 and 3 share posted_at; 5 was never posted.
	assert.Equal(t, []uuid.UUID{id(1), id(3), id(2), id(4), id(5)}, ids(res))
	assert.Equal(t, Pagination{Page: 1, PageSize: 20, TotalCount: 5, TotalPages: 1}, res.Pagination)
}

func TestSearch_Filters(t *testing.T) {
	tests := []struct {
		name    string
		filters Filters
		want    []uuid.UUID
	}{
		{"text in title", Filters{Query: "DASHBOARD"}, []uuid.UUID{id(1)}},
		{"text in description", Filters{Query: "postgres etl"}, []uuid.UUID{id(4)}},
		{"text in tags", Filters{Query: "golang"}, []uuid.UUID{id(2)}},
		{"text spans fields", Filters{Query: "react"}, []uuid.UUID{id(1), id(4), id(5)}},
		{"category", Filters{Category: "Backend"}, []uuid.UUID{id(2), id(4)}},
		{"experience", Filters{ExperienceLevel: store.LevelEntry}, []uuid.UUID{id(3), id(5)}},
		{"job type", Filters{JobType: store.JobTypeOneTime}, []uuid.UUID{id(1), id(3)}},
		{"location", Filters{LocationType: store.LocationRemote}, []uuid.UUID{id(1), id(3), id(5)}},
		{"budget overlap", Filters{BudgetMin: dec("1500"), BudgetMax: dec("5000")}, []uuid.UUID{id(1), id(3), id(5)}},
		{"budget floor only", Filters{BudgetMin: dec("20000")}, []uuid.UUID{id(3), id(4), id(5)}},
		{"budget ceiling only", Filters{BudgetMax: dec("100")}, []uuid.UUID{id(2), id(3)}},
		{"skills any", Filters{Skills: []string{"react", "kafka"}}, []uuid.UUID{id(1), id(4), id(5)}},
		{"skills all", Filters{Skills: []string{"go", "postgres"}, SkillMode: SkillsAll}, []uuid.UUID{id(2)}},
		{"posted within", Filters{PostedWithin: 24 * time.Hour}, []uuid.UUID{id(1), id(3)}},
		{"combined", Filters{Category: "web", Query: "react", LocationType: store.LocationRemote}, []uuid.UUID{id(1), id(5)}},
		{"inverted", Filters{Category: "web", Invert: true}, []uuid.UUID{id(3), id(2), id(4)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestEngine().Search(testPool(), Request{Filters: tt.filters})
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(res))
			assert.Equal(t, len(tt.want), res.Pagination.TotalCount)
		})
	}
}

func TestSearch_FilterAndNegationPartitionPool(t *testing.T) {
	pool := testPool()
	filters := []Filters{
		{},
		{Query: "react"},
		{Category: "backend", ExperienceLevel: store.LevelExpert},
		{BudgetMin: dec("500"), BudgetMax: dec("1200")},
		{Skills: []string{"postgres", "html"}, SkillMode: SkillsAny},
		{Skills: []string{"postgres", "kafka"}, SkillMode: SkillsAll},
		{PostedWithin: 48 * time.Hour, LocationType: store.LocationRemote},
		{JobType: store.JobTypeOngoing, Query: "nothing matches this"},
	}
	e := newTestEngine()
	for i, f := range filters {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			pos, err := e.Search(pool, Request{Filters: f, PageSize: 100})
			require.NoError(t, err)
			f.Invert = true
			neg, err := e.Search(pool, Request{Filters: f, PageSize: 100})
			require.NoError(t, err)

			seen := map[uuid.UUID]int{}
			for _, j := range append(ids(pos), ids(neg)...) {
				seen[j]++
			}
			assert.Len(t, seen, len(pool))
			for j, n := range seen {
				assert.Equal(t, 1, n, "job %s", j)
			}
		})
	}
}

func TestSearch_SortByMatchScore(t *testing.T) {
	e := newTestEngine()

	_, err := e.Search(testPool(), Request{Sort: SortMatchScore})
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeInvalidInput), "got %v", err)

	scores := map[uuid.UUID]int{id(1): 71, id(2): 90, id(3): 71, id(4): 10}
	res, err := e.Search(testPool(), Request{Sort: SortMatchScore, Scores: scores})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id(2), id(1), id(3), id(4), id(5)}, ids(res))
	require.NotNil(t, res.Items[0].MatchScore)
	assert.Equal(t, 90, *res.Items[0].MatchScore)
	assert.Nil(t, res.Items[4].MatchScore)
}

func TestSearch_SortByBudget(t *testing.T) {
	e := newTestEngine()

	desc, err := e.Search(testPool(), Request{Sort: SortBudgetDesc})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id(4), id(1), id(2), id(3), id(5)}, ids(desc))

	asc, err := e.Search(testPool(), Request{Sort: SortBudgetAsc})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id(2), id(1), id(4), id(3), id(5)}, ids(asc))
}

func TestSearch_Pagination(t *testing.T) {
	e := newTestEngine()
	pool := testPool()

	var all []uuid.UUID
	for page := 1; page <= 3; page++ {
		res, err := e.Search(pool, Request{Page: page, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Pagination.TotalCount)
		assert.Equal(t, 3, res.Pagination.TotalPages)
		all = append(all, ids(res)...)
	}
	assert.Equal(t, []uuid.UUID{id(1), id(3), id(2), id(4), id(5)}, all)

	beyond, err := e.Search(pool, Request{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)

	capped, err := e.Search(pool, Request{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, capped.Pagination.PageSize)

	_, err = e.Search(pool, Request{Page: -1})
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeInvalidInput))
}

func TestSearch_StableAcrossInputOrder(t *testing.T) {
	e := newTestEngine()
	pool := testPool()
	reversed := make([]*store.JobPosting, len(pool))
	for i, j := range pool {
		reversed[len(pool)-1-i] = j
	}

	a, err := e.Search(pool, Request{Sort: SortBudgetAsc})
	require.NoError(t, err)
	b, err := e.Search(reversed, Request{Sort: SortBudgetAsc})
	require.NoError(t, err)
	assert.Equal(t, ids(a), ids(b))
}

func TestSearch_InvalidRequests(t *testing.T) {
	e := newTestEngine()
	bad := []Request{
		{Sort: "popularity"},
		{Filters: Filters{SkillMode: "most"}},
		{Filters: Filters{ExperienceLevel: "guru"}},
		{Filters: Filters{BudgetMin: dec("10"), BudgetMax: dec("5")}},
		{Filters: Filters{PostedWithin: -time.Hour}},
	}
	for _, req := range bad {
		_, err := e.Search(testPool(), req)
		assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeInvalidInput), "request %+v: %v", req, err)
	}
}

func proposal(n int, score *int, rate string, status store.ProposalStatus, submittedHoursAgo int) *store.Proposal {
	return &store.Proposal{
		ID:           id(n),
		ProposedRate: decimal.RequireFromString(rate),
		MatchScore:   score,
		Status:       status,
		SubmittedAt:  hoursAgo(submittedHoursAgo),
	}
}

func intPtr(v int) *int { return &v }

func proposalIDs(r *ProposalResult) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, it.Proposal.ID)
	}
	return out
}

func TestRankProposals(t *testing.T) {
	pool := []*store.Proposal{
		proposal(1, intPtr(80), "1500", store.ProposalStatusSubmitted, 5),
		proposal(2, intPtr(90), "2000", store.ProposalStatusShortlisted, 3),
		proposal(3, intPtr(70), "1800", store.ProposalStatusViewed, 9), // dominated by 1
		proposal(4, nil, "900", store.ProposalStatusSubmitted, 1),
		proposal(5, intPtr(95), "1000", store.ProposalStatusDraft, 0),
	}
	e := newTestEngine()

	res, err := e.RankProposals(pool, ProposalRequest{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id(2), id(1), id(3), id(4)}, proposalIDs(res))
	assert.False(t, res.Items[2].OnFrontier)
	assert.True(t, res.Items[0].OnFrontier)

	frontier, err := e.RankProposals(pool, ProposalRequest{FrontierOnly: true, Sort: ProposalSortRateAsc})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id(4), id(1), id(2)}, proposalIDs(frontier))

	bySubmission, err := e.RankProposals(pool, ProposalRequest{Sort: ProposalSortSubmitted})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id(3), id(1), id(2), id(4)}, proposalIDs(bySubmission))

	shortlisted, err := e.RankProposals(pool, ProposalRequest{Statuses: []store.ProposalStatus{store.ProposalStatusShortlisted}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id(2)}, proposalIDs(shortlisted))

	_, err = e.RankProposals(pool, ProposalRequest{Sort: "vibes"})
	assert.True(t, bzerrors.Is(err, bzerrors.ErrTypeInvalidInput))
}
