package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vehicle-anpr/internal/domain/anpr"
	"vehicle-anpr/internal/repository"
)

const timestampLayout = "15:04:05 02-01-2006"

// RecordWriter persists finished analyses with a sequential display id.
//
// The id is derived from the current maximum inside one transaction. The
// sequence is the table's primary key, so two concurrent writers that read the
// same maximum cannot both commit: the loser gets a PersistenceFailure instead
// of a duplicate id.
type RecordWriter struct {
	repo *repository.ANPRRepository
	loc  *time.Location
	now  func() time.Time
	log  zerolog.Logger
}

func NewRecordWriter(repo *repository.ANPRRepository, loc *time.Location, log zerolog.Logger) *RecordWriter {
	if loc == nil {
		loc = time.Local
	}
	return &RecordWriter{
		repo: repo,
		loc:  loc,
		now:  time.Now,
		log:  log,
	}
}

func FormatID(seq int64) string {
	return fmt.Sprintf("%03d", seq)
}

func FormatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(timestampLayout)
}

// Write stores res. Only results with a read plate are accepted.
func (w *RecordWriter) Write(ctx context.Context, res *anpr.AnalysisResult, extras repository.DetectionExtras) (*anpr.DetectionRecord, error) {
	if res == nil || res.PlateStatus != anpr.PlateRead {
		return nil, anpr.NewError(anpr.KindInvalidInput, "save detection", errors.New("plate was not read"))
	}

	rec := &anpr.DetectionRecord{
		VehicleClass: res.VehicleClass,
		ColorClass:   res.ColorClass,
		PlateText:    res.Plate,
		Region:       res.Region,
	}

	err := w.repo.Transaction(ctx, func(tx *repository.ANPRRepository) error {
		last, err := tx.LastDetectionSeq(ctx)
		if err != nil {
			return fmt.Errorf("read last detection id: %w", err)
		}

		rec.Seq = last + 1
		rec.ID = FormatID(rec.Seq)
		rec.Timestamp = FormatTimestamp(w.now(), w.loc)

		if err := tx.CreateDetection(ctx, rec, extras); err != nil {
			return fmt.Errorf("insert detection %s: %w", rec.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, anpr.NewError(anpr.KindPersistenceFailure, "save detection", err)
	}

	w.log.Info().
		Str("detection_id", rec.ID).
		Str("plate", rec.PlateText).
		Str("rto", rec.Region).
		Msg("saved detection")
	return rec, nil
}
