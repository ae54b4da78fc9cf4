package region

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"vehicle-anpr/internal/domain/anpr"
)

// Source returns every row of the remote RTO code table.
type Source interface {
	ListRTOEntries(ctx context.Context) ([]anpr.RTOEntry, error)
}

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
}

// Delay is the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	m := p.Multiplier
	if m < 1 {
		m = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(m, float64(attempt-1)))
}

// Load fetches the code table with retries. When every attempt fails it
// returns an empty table together with a RegionTableLoadFailure error, so the
// caller can report the error once and keep serving "Unknown Region".
func Load(ctx context.Context, src Source, policy RetryPolicy, log zerolog.Logger) (*Table, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		entries, err := src.ListRTOEntries(ctx)
		if err == nil {
			table := NewTable(entries)
			states, districts := table.Len()
			log.Info().
				Int("rows", len(entries)).
				Int("states", states).
				Int("districts", districts).
				Int("attempt", attempt).
				Msg("loaded region code table")
			return table, nil
		}
		lastErr = err

		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).Msg("region code table fetch failed")
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(policy.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Empty(), anpr.NewError(anpr.KindRegionTableLoadFailure, "load", ctx.Err())
		case <-timer.C:
		}
	}

	return Empty(), anpr.NewError(anpr.KindRegionTableLoadFailure, "load",
		fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr))
}
