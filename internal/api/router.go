package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Bazaar/internal/fees"
	"github.com/MikeSquared-Agency/Bazaar/internal/invitations"
	"github.com/MikeSquared-Agency/Bazaar/internal/lifecycle"
	"github.com/MikeSquared-Agency/Bazaar/internal/profiles"
	"github.com/MikeSquared-Agency/Bazaar/internal/ranking"
	"github.com/MikeSquared-Agency/Bazaar/internal/scoring"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// Deps is everything the HTTP surface dispatches to.
type Deps struct {
	Store       store.Store
	Jobs        *lifecycle.JobManager
	Proposals   *lifecycle.ProposalManager
	Invitations *invitations.Manager
	Matcher     *scoring.Matcher
	Ranking     *ranking.Engine
	Profiles    profiles.Client
	Fees        *fees.Calculator
	AdminToken  string
	RateLimit   int
	Logger      *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.RateLimit <= 0 {
		d.RateLimit = 120
	}
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(d.Logger))
	r.Use(RateLimitMiddleware(d.RateLimit))

	jobs := NewJobsHandler(d.Store, d.Jobs, d.Logger)
	proposals := NewProposalsHandler(d.Store, d.Proposals, d.Ranking, d.Logger)
	matches := NewMatchesHandler(d.Store, d.Matcher, d.Ranking, d.Profiles, d.Fees, d.Logger)
	invites := NewInvitationsHandler(d.Store, d.Invitations)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(UserIDMiddleware)

		r.Post("/jobs", jobs.Create)
		r.Get("/jobs", jobs.List)
		r.Get("/jobs/search", matches.Search)
		r.Get("/jobs/saved", jobs.ListSaved)
		r.Get("/jobs/{id}", jobs.Get)
		r.Patch("/jobs/{id}", jobs.Update)
		r.Delete("/jobs/{id}", jobs.Delete)
		r.Post("/jobs/{id}/publish", jobs.Publish)
		r.Post("/jobs/{id}/review", jobs.StartReview)
		r.Post("/jobs/{id}/close", jobs.Close)
		r.Post("/jobs/{id}/cancel", jobs.Cancel)
		r.Post("/jobs/{id}/fill", jobs.MarkFilled)
		r.Put("/jobs/{id}/save", jobs.Save)
		r.Delete("/jobs/{id}/save", jobs.Unsave)

		r.Get("/jobs/{id}/match", matches.Match)
		r.Get("/jobs/{id}/match/explain", matches.Explain)
		r.Get("/jobs/{id}/client", matches.ClientProfile)
		r.Get("/fees/quote", matches.Quote)

		r.Post("/jobs/{id}/proposals", proposals.Create)
		r.Get("/jobs/{id}/proposals", proposals.ListForJob)
		r.Get("/proposals", proposals.ListMine)
		r.Get("/proposals/{id}", proposals.Get)
		r.Patch("/proposals/{id}", proposals.Update)
		r.Post("/proposals/{id}/submit", proposals.Submit)
		r.Post("/proposals/{id}/withdraw", proposals.Withdraw)
		r.Post("/proposals/{id}/accept", proposals.Accept)
		r.Post("/proposals/{id}/view", proposals.MarkViewed)
		r.Post("/proposals/{id}/shortlist", proposals.Shortlist)
		r.Post("/proposals/{id}/interview", proposals.ScheduleInterview)
		r.Post("/proposals/{id}/offer", proposals.SendOffer)
		r.Post("/proposals/{id}/reject", proposals.Reject)

		r.Post("/jobs/{id}/invitations", invites.Invite)
		r.Get("/invitations/{id}", invites.Get)
		r.Post("/invitations/{id}/accept", invites.Accept)
		r.Post("/invitations/{id}/decline", invites.Decline)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminToken))
			r.Post("/admin/invitations/expire", invites.Expire)
		})
	})

	return r
}

// NewMetricsRouter serves health and Prometheus metrics from gatherer.
func NewMetricsRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
