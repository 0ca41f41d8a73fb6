package policy

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Ticker runs a full policy pass on a fixed interval until its context is
// cancelled, for deployments that want run_policies driven by a background
// loop rather than an external scheduler invoking the CLI repeatedly.
// Adapted from the teacher's ticking EpisodicTTLService: same Start/runOnce
// shape, generalized to run a whole Executor pass instead of a single TTL
// sweep.
type Ticker struct {
	executor *Executor
	interval time.Duration
}

// NewTicker builds a Ticker. interval <= 0 makes Start a no-op, matching
// the teacher's "disabled when interval is zero" convention.
func NewTicker(executor *Executor, interval time.Duration) *Ticker {
	return &Ticker{executor: executor, interval: interval}
}

// Start runs a policy pass immediately, then again on every tick, until ctx
// is cancelled.
func (t *Ticker) Start(ctx context.Context) {
	if t == nil || t.executor == nil || t.interval <= 0 {
		return
	}

	t.runOnce(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runOnce(ctx)
		}
	}
}

func (t *Ticker) runOnce(ctx context.Context) {
	report, err := t.executor.RunPolicies(ctx, time.Now())
	if err != nil {
		log.Error("policy: ticker run failed", "err", err)
		return
	}
	log.Info("policy: ticker run complete",
		"users_processed", len(report.Users),
		"users_skipped", len(report.UsersSkipped),
	)
}
