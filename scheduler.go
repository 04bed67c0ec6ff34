package fireauth

import (
	"context"
	"time"
)

// refreshLoop is the recurring refresh scheduler. It is started once by
// Mount on the provider's background context and runs until Done cancels
// it, so no timer outlives its Provider.
func (p *Provider) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.refreshInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one scheduler pass: no-op without an active session; with one,
// a single refresh attempt is issued once remaining validity drops below
// the threshold. A failed refresh is swallowed here and left for the next
// tick, with the session otherwise expiring naturally.
func (p *Provider) tick(ctx context.Context) {
	if !p.store.LoggedIn() {
		return
	}
	if p.clock.Remaining() >= p.config.refreshThreshold() {
		return
	}
	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("scheduled token refresh failed", "provider", p.config.Name, "err", err)
	}
}
