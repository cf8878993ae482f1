package broker

import (
	"context"
	"time"
)

func (b *Broker) expiryLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep(ctx)
		}
	}
}

func (b *Broker) sweep(ctx context.Context) {
	if b.invitations == nil {
		return
	}
	n, err := b.invitations.ExpireDue(ctx)
	if err != nil {
		b.logger.Error("invitation expiry sweep failed", "expired", n, "error", err)
		return
	}
	if n > 0 {
		b.logger.Debug("invitation expiry sweep", "expired", n)
	}
}
