package symbolmeta

import (
	"context"
	"time"

	"pricefeed/internal/binance/snapshot"

	"go.uber.org/zap"
)

// MidnightLoader re-runs symbol discovery once at startup and then at every
// UTC midnight, so newly listed symbols get subscribed.
type MidnightLoader struct {
	Load func() <-chan string
}

func DefaultLoadFn(loader *snapshot.SymbolLoader) func() <-chan string {
	return func() <-chan string {
		symbolCh := make(chan string, 100)

		go func() {
			// a failed refresh keeps the current subscriptions; the next run retries
			if err := loader.LoadSymbols(symbolCh); err != nil {
				loader.Logger.Error("failed to load symbols", zap.Error(err))
			}
		}()

		return symbolCh
	}
}

// Start runs proc immediately and then every UTC midnight until ctx is done.
func (m *MidnightLoader) Start(ctx context.Context, proc func(<-chan string)) {
	go func() {
		m.runOnce(proc)

		timer := time.NewTimer(untilNextMidnight(time.Now()))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				m.runOnce(proc)
				timer.Reset(untilNextMidnight(time.Now()))
			}
		}
	}()
}

func (m *MidnightLoader) runOnce(proc func(<-chan string)) {
	symbolCh := m.Load()
	proc(symbolCh)
}

func untilNextMidnight(now time.Time) time.Duration {
	now = now.UTC()
	next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return next.Sub(now)
}
