package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/Bazaar/internal/hermes"
)

// Expirer moves overdue invitations to expired.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// FreelancerInvalidator drops cached matches for a freelancer.
type FreelancerInvalidator interface {
	InvalidateFreelancer(ctx context.Context, freelancerID string) error
}

// Broker runs the engine's background work: the invitation expiry sweep and
// the reaction to profile changes published by the profile service.
type Broker struct {
	invitations Expirer
	matches     FreelancerInvalidator
	hermes      hermes.Client
	interval    time.Duration
	logger      *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(inv Expirer, matches FreelancerInvalidator, h hermes.Client, sweepInterval time.Duration, logger *slog.Logger) *Broker {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Broker{
		invitations: inv,
		matches:     matches,
		hermes:      h,
		interval:    sweepInterval,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

func (b *Broker) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.expiryLoop(ctx)
}

func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

// SetupSubscriptions listens for profile updates. A changed freelancer
// profile makes every cached match for that freelancer stale.
func (b *Broker) SetupSubscriptions() {
	if b.hermes == nil {
		return
	}

	_ = b.hermes.Subscribe(hermes.SubjectProfileUpdated, func(subject string, data []byte) {
		var evt hermes.ProfileUpdatedEvent
		if len(data) > 0 {
			if err := json.Unmarshal(data, &evt); err != nil {
				b.logger.Warn("invalid profile updated event", "subject", subject, "error", err)
				return
			}
		}
		if evt.ProfileID == "" {
			parts := splitSubject(subject)
			if len(parts) >= 3 {
				evt.ProfileID = parts[2]
			}
		}
		b.HandleProfileUpdated(context.Background(), evt)
	})
}

func (b *Broker) HandleProfileUpdated(ctx context.Context, evt hermes.ProfileUpdatedEvent) {
	if evt.ProfileID == "" || evt.Kind == "client" || b.matches == nil {
		return
	}
	if err := b.matches.InvalidateFreelancer(ctx, evt.ProfileID); err != nil {
		b.logger.Error("failed to invalidate matches", "freelancer_id", evt.ProfileID, "error", err)
		return
	}
	b.logger.Info("profile updated, matches invalidated", "freelancer_id", evt.ProfileID, "version", evt.Version)
}

func splitSubject(subject string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(subject); i++ {
		if subject[i] == '.' {
			parts = append(parts, subject[start:i])
			start = i + 1
		}
	}
	parts = append(parts, subject[start:])
	return parts
}
