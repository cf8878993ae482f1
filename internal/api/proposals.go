package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/lifecycle"
	"github.com/MikeSquared-Agency/Bazaar/internal/ranking"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

type ProposalsHandler struct {
	store     store.Store
	proposals *lifecycle.ProposalManager
	ranking   *ranking.Engine
	logger    *slog.Logger
}

func NewProposalsHandler(s store.Store, pm *lifecycle.ProposalManager, rk *ranking.Engine, logger *slog.Logger) *ProposalsHandler {
	return &ProposalsHandler{store: s, proposals: pm, ranking: rk, logger: logger}
}

type ProposalRequest struct {
	CoverLetter  string            `json:"cover_letter"`
	ProposedRate decimal.Decimal   `json:"proposed_rate"`
	RateType     store.RateType    `json:"rate_type,omitempty"`
	Milestones   []store.Milestone `json:"milestones,omitempty"`
}

type UpdateProposalRequest struct {
	CoverLetter  *string           `json:"cover_letter"`
	ProposedRate *decimal.Decimal  `json:"proposed_rate"`
	RateType     *store.RateType   `json:"rate_type"`
	Milestones   []store.Milestone `json:"milestones"`
}

// proposalTransition is a single-proposal state change.
type proposalTransition func(context.Context, *store.Proposal) (*store.Proposal, error)

// Create starts a draft proposal by the caller on the job.
func (h *ProposalsHandler) Create(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req ProposalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.proposals.Create(r.Context(), &store.Proposal{
		JobID:        jobID,
		FreelancerID: userID(r),
		CoverLetter:  req.CoverLetter,
		ProposedRate: req.ProposedRate,
		RateType:     req.RateType,
		Milestones:   req.Milestones,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListForJob ranks the proposals on a job for its owner.
func (h *ProposalsHandler) ListForJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := loadJob(r.Context(), h.store, jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.OwnerID != userID(r) {
		writeForbidden(w, "only the job owner may list its proposals")
		return
	}

	req := ranking.ProposalRequest{Sort: ranking.ProposalSort(r.URL.Query().Get("sort"))}
	for _, s := range queryList(r, "status") {
		req.Statuses = append(req.Statuses, store.ProposalStatus(s))
	}
	if raw := r.URL.Query().Get("frontier"); raw != "" {
		if req.FrontierOnly, err = strconv.ParseBool(raw); err != nil {
			writeError(w, bzerrors.InvalidInput("frontier must be a boolean"))
			return
		}
	}
	if req.Page, err = queryInt(r, "page"); err != nil {
		writeError(w, err)
		return
	}
	if req.PageSize, err = queryInt(r, "page_size"); err != nil {
		writeError(w, err)
		return
	}

	pool, err := h.store.ListProposalsForJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.ranking.RankProposals(pool, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListMine returns the caller's proposals across all jobs.
func (h *ProposalsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ps, err := h.store.ListProposalsForFreelancer(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if ps == nil {
		ps = []*store.Proposal{}
	}
	writeJSON(w, http.StatusOK, ps)
}

// Get is open to the proposal's freelancer and, once submitted, to the job owner.
func (h *ProposalsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := userID(r)
	if p.FreelancerID != caller {
		job, err := loadJob(r.Context(), h.store, p.JobID)
		if err != nil {
			writeError(w, err)
			return
		}
		if job.OwnerID != caller || p.Status == store.ProposalStatusDraft {
			writeError(w, bzerrors.NotFound("proposal %s not found", p.ID))
			return
		}
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProposalsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadAsFreelancer(w, r)
	if !ok {
		return
	}
	var req UpdateProposalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.proposals.Edit(r.Context(), p, lifecycle.ProposalEdit{
		CoverLetter:  req.CoverLetter,
		ProposedRate: req.ProposedRate,
		RateType:     req.RateType,
		Milestones:   req.Milestones,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Freelancer actions.

func (h *ProposalsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.freelancerAction(w, r, h.proposals.Submit)
}

func (h *ProposalsHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.freelancerAction(w, r, h.proposals.Withdraw)
}

func (h *ProposalsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadAsFreelancer(w, r)
	if !ok {
		return
	}
	res, err := h.proposals.AcceptOffer(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Client actions.

func (h *ProposalsHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	h.clientAction(w, r, h.proposals.MarkViewed)
}

func (h *ProposalsHandler) Shortlist(w http.ResponseWriter, r *http.Request) {
	h.clientAction(w, r, h.proposals.Shortlist)
}

func (h *ProposalsHandler) ScheduleInterview(w http.ResponseWriter, r *http.Request) {
	h.clientAction(w, r, h.proposals.ScheduleInterview)
}

func (h *ProposalsHandler) SendOffer(w http.ResponseWriter, r *http.Request) {
	h.clientAction(w, r, h.proposals.SendOffer)
}

func (h *ProposalsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.clientAction(w, r, h.proposals.Reject)
}

func (h *ProposalsHandler) freelancerAction(w http.ResponseWriter, r *http.Request, fn proposalTransition) {
	p, ok := h.loadAsFreelancer(w, r)
	if !ok {
		return
	}
	h.apply(w, r, p, fn)
}

func (h *ProposalsHandler) clientAction(w http.ResponseWriter, r *http.Request, fn proposalTransition) {
	p, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := loadJob(r.Context(), h.store, p.JobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.OwnerID != userID(r) {
		writeForbidden(w, "only the job owner may do this")
		return
	}
	if err := checkVersion(r, p.Version); err != nil {
		writeError(w, err)
		return
	}
	h.apply(w, r, p, fn)
}

func (h *ProposalsHandler) apply(w http.ResponseWriter, r *http.Request, p *store.Proposal, fn proposalTransition) {
	next, err := fn(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (h *ProposalsHandler) load(r *http.Request) (*store.Proposal, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	p, err := h.store.GetProposal(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, bzerrors.NotFound("proposal %s not found", id)
	}
	return p, nil
}

func (h *ProposalsHandler) loadAsFreelancer(w http.ResponseWriter, r *http.Request) (*store.Proposal, bool) {
	p, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if p.FreelancerID != userID(r) {
		writeForbidden(w, "only the proposing freelancer may do this")
		return nil, false
	}
	if err := checkVersion(r, p.Version); err != nil {
		writeError(w, err)
		return nil, false
	}
	return p, true
}
