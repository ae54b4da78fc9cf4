package region

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"vehicle-anpr/internal/domain/anpr"
)

// Store is a region table that can also be written to.
type Store interface {
	Source
	CountRTOEntries(ctx context.Context) (int64, error)
	CreateRTOEntries(ctx context.Context, entries []anpr.RTOEntry) error
}

// Seed fills an empty region table with entries and reports how many rows it
// wrote. A table that already has rows is left untouched.
func Seed(ctx context.Context, store Store, entries []anpr.RTOEntry, log zerolog.Logger) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	n, err := store.CountRTOEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("count region rows: %w", err)
	}
	if n > 0 {
		log.Debug().Int64("rows", n).Msg("region table already populated, skipping seed")
		return 0, nil
	}

	if err := store.CreateRTOEntries(ctx, entries); err != nil {
		return 0, fmt.Errorf("seed region rows: %w", err)
	}
	log.Info().Int("rows", len(entries)).Msg("seeded region table")
	return len(entries), nil
}
