package invitations

import (
	"context"
	"log/slog"
	"strings"
	"time"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/hermes"
	"github.com/MikeSquared-Agency/Bazaar/internal/metrics"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// Manager runs the invitation lifecycle: pending to accepted, declined or
// expired. Only pending invitations move.
type Manager struct {
	store      store.Store
	hermes     hermes.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

// NewManager builds a Manager. A ttl of zero sends invitations that never
// expire.
func NewManager(s store.Store, h hermes.Client, m *metrics.Metrics, ttl time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      s,
		hermes:     h,
		metrics:    m,
		logger:     logger,
		defaultTTL: ttl,
		now:        time.Now,
	}
}

// Invite asks a freelancer to propose on a job that is accepting proposals.
func (m *Manager) Invite(ctx context.Context, job *store.JobPosting, freelancerID, message string) (*store.Invitation, error) {
	if strings.TrimSpace(freelancerID) == "" {
		return nil, bzerrors.InvalidInput("freelancer_id is required")
	}
	if job.Status != store.JobStatusOpen && job.Status != store.JobStatusInReview {
		return nil, bzerrors.InvalidState("cannot invite to job in %s", job.Status)
	}

	inv := &store.Invitation{
		JobID:        job.ID,
		FreelancerID: freelancerID,
		Message:      message,
		Status:       store.InvitationPending,
	}
	if m.defaultTTL > 0 {
		exp := m.now().UTC().Add(m.defaultTTL)
		inv.ExpiresAt = &exp
	}
	if err := m.store.CreateInvitation(ctx, inv); err != nil {
		m.metrics.TransitionFailed("invitation", "invite", err)
		return nil, err
	}
	m.logger.Info("invitation sent", "invitation_id", inv.ID, "job_id", job.ID, "freelancer_id", freelancerID)
	m.publish(hermes.SubjectInvitationSent(inv.ID.String()), "invitation.sent", inv)
	return inv, nil
}

func (m *Manager) Accept(ctx context.Context, inv *store.Invitation) (*store.Invitation, error) {
	return m.respond(ctx, inv, store.InvitationAccepted)
}

func (m *Manager) Decline(ctx context.Context, inv *store.Invitation) (*store.Invitation, error) {
	return m.respond(ctx, inv, store.InvitationDeclined)
}

func (m *Manager) respond(ctx context.Context, inv *store.Invitation, to store.InvitationStatus) (*store.Invitation, error) {
	op := "accept"
	if to == store.InvitationDeclined {
		op = "decline"
	}
	if inv.Status != store.InvitationPending {
		err := bzerrors.InvalidTransition("cannot %s invitation in %s", op, inv.Status)
		m.metrics.TransitionFailed("invitation", op, err)
		return nil, err
	}
	now := m.now().UTC()
	if inv.ExpiresAt != nil && !now.Before(*inv.ExpiresAt) {
		err := bzerrors.InvalidState("invitation %s expired at %s", inv.ID, inv.ExpiresAt.Format(time.RFC3339))
		m.metrics.TransitionFailed("invitation", op, err)
		return nil, err
	}

	c := inv.Clone()
	c.Status = to
	c.RespondedAt = &now
	if err := m.store.SaveInvitation(ctx, c, inv.Version); err != nil {
		m.metrics.TransitionFailed("invitation", op, err)
		return nil, err
	}
	m.metrics.Transition("invitation", string(inv.Status), string(to))
	m.logger.Info("invitation answered", "invitation_id", c.ID, "status", to)
	subject := hermes.SubjectInvitationAccepted(c.ID.String())
	if to == store.InvitationDeclined {
		subject = hermes.SubjectInvitationDeclined(c.ID.String())
	}
	m.publish(subject, "invitation."+string(to), c)
	return c, nil
}

// ExpireDue moves every pending invitation past its expiry to expired and
// returns how many moved. An invitation answered concurrently is skipped.
func (m *Manager) ExpireDue(ctx context.Context) (int, error) {
	now := m.now().UTC()
	due, err := m.store.ListExpiredInvitations(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, inv := range due {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		c := inv.Clone()
		c.Status = store.InvitationExpired
		if err := m.store.SaveInvitation(ctx, c, inv.Version); err != nil {
			if bzerrors.Is(err, bzerrors.ErrTypeStaleState) || bzerrors.Is(err, bzerrors.ErrTypeNotFound) {
				m.logger.Debug("invitation changed before expiry", "invitation_id", inv.ID)
				continue
			}
			m.logger.Error("failed to expire invitation", "invitation_id", inv.ID, "error", err)
			continue
		}
		expired++
		m.metrics.Transition("invitation", string(store.InvitationPending), string(store.InvitationExpired))
		m.publish(hermes.SubjectInvitationExpired(c.ID.String()), "invitation.expired", c)
	}
	m.metrics.InvitationsExpired(expired)
	if expired > 0 {
		m.logger.Info("invitations expired", "count", expired)
	}
	return expired, nil
}

func (m *Manager) publish(subject, name string, inv *store.Invitation) {
	if m.hermes == nil {
		return
	}
	evt := hermes.InvitationEvent{
		Event:        name,
		InvitationID: inv.ID.String(),
		JobID:        inv.JobID.String(),
		FreelancerID: inv.FreelancerID,
		Status:       string(inv.Status),
		Timestamp:    m.now().UTC(),
	}
	if err := m.hermes.Publish(subject, evt); err != nil {
		m.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
