package api

import (
	"context"
	"net/http"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/invitations"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

type InvitationsHandler struct {
	store       store.Store
	invitations *invitations.Manager
}

func NewInvitationsHandler(s store.Store, m *invitations.Manager) *InvitationsHandler {
	return &InvitationsHandler{store: s, invitations: m}
}

type InviteRequest struct {
	FreelancerID string `json:"freelancer_id"`
	Message      string `json:"message,omitempty"`
}

// Invite lets a job owner ask a freelancer to propose.
func (h *InvitationsHandler) Invite(w http.ResponseWriter, r *http.Request) {
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
		writeForbidden(w, "only the job owner may invite")
		return
	}
	var req InviteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	inv, err := h.invitations.Invite(r.Context(), job, req.FreelancerID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// Get is open to the invited freelancer and the job owner.
func (h *InvitationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if inv.FreelancerID != userID(r) {
		job, err := loadJob(r.Context(), h.store, inv.JobID)
		if err != nil {
			writeError(w, err)
			return
		}
		if job.OwnerID != userID(r) {
			writeError(w, bzerrors.NotFound("invitation %s not found", inv.ID))
			return
		}
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvitationsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.invitations.Accept)
}

func (h *InvitationsHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.invitations.Decline)
}

// Expire runs the expiry sweep immediately.
func (h *InvitationsHandler) Expire(w http.ResponseWriter, r *http.Request) {
	n, err := h.invitations.ExpireDue(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}

func (h *InvitationsHandler) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context, *store.Invitation) (*store.Invitation, error)) {
	inv, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if inv.FreelancerID != userID(r) {
		writeForbidden(w, "only the invited freelancer may respond")
		return
	}
	if err := checkVersion(r, inv.Version); err != nil {
		writeError(w, err)
		return
	}
	next, err := fn(r.Context(), inv)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (h *InvitationsHandler) load(r *http.Request) (*store.Invitation, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	inv, err := h.store.GetInvitation(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, bzerrors.NotFound("invitation %s not found", id)
	}
	return inv, nil
}
