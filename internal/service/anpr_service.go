package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/rs/zerolog"

	"vehicle-anpr/internal/domain/anpr"
	"vehicle-anpr/internal/imaging"
	"vehicle-anpr/internal/inference"
	"vehicle-anpr/internal/ocr"
	"vehicle-anpr/internal/region"
	"vehicle-anpr/internal/repository"
)

// RegionStatus describes the region code table loaded at startup.
type RegionStatus struct {
	States    int    `json:"states"`
	Districts int    `json:"districts"`
	LoadError string `json:"load_error,omitempty"`
}

type Deps struct {
	Orchestrator *inference.Orchestrator
	Preprocessor *imaging.Preprocessor
	Extractor    *ocr.Extractor
	Resolver     *region.Resolver
	Writer       *RecordWriter
	Repo         *repository.ANPRRepository
	Runs         *Runs
	Region       RegionStatus
}

type ANPRService struct {
	orchestrator *inference.Orchestrator
	preprocessor *imaging.Preprocessor
	extractor    *ocr.Extractor
	resolver     *region.Resolver
	writer       *RecordWriter
	repo         *repository.ANPRRepository
	runs         *Runs
	region       RegionStatus
	log          zerolog.Logger
}

func NewANPRService(deps Deps, log zerolog.Logger) *ANPRService {
	runs := deps.Runs
	if runs == nil {
		runs = NewRuns()
	}
	return &ANPRService{
		orchestrator: deps.Orchestrator,
		preprocessor: deps.Preprocessor,
		extractor:    deps.Extractor,
		resolver:     deps.Resolver,
		writer:       deps.Writer,
		repo:         deps.Repo,
		runs:         runs,
		region:       deps.Region,
		log:          log,
	}
}

type AnalyzeOptions struct {
	// SessionID groups runs from one caller; a new run supersedes the old one.
	SessionID string
	Debug     bool
}

// plateReading is what the plate branch produces.
type plateReading struct {
	status     anpr.PlateStatus
	candidate  *anpr.PlateCandidate
	cleaned    string
	debugImage string
}

// Analyze runs the full pipeline on one photo and persists the result when a
// plate was read. A failed save is reported in SaveError; the result is
// still returned. A superseded or aborted run returns an error and is never saved.
func (s *ANPRService) Analyze(ctx context.Context, photo []byte, opts AnalyzeOptions) (*anpr.AnalysisResult, error) {
	img, format, err := imaging.Decode(photo)
	if err != nil {
		return nil, anpr.NewError(anpr.KindInvalidInput, "analyze", err)
	}

	ctx, runID, end := s.runs.Begin(ctx, opts.SessionID)
	defer end()

	log := s.log.With().Str("run_id", runID).Str("session_id", opts.SessionID).Logger()
	log.Debug().
		Str("format", format).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("analysis started")

	payload := base64.StdEncoding.EncodeToString(photo)

	var reading plateReading
	det, err := s.orchestrator.Detect(ctx, payload, func(ctx context.Context, box *anpr.BoundingBox) error {
		var err error
		reading, err = s.readPlate(ctx, img, box, opts.Debug, log)
		return err
	})
	if err != nil {
		err = runError(ctx, err)
		log.Warn().Err(err).Msg("analysis failed")
		return nil, err
	}

	res := &anpr.AnalysisResult{
		RunID:        runID,
		VehicleClass: det.VehicleClass,
		ColorClass:   det.ColorClass,
		PlateStatus:  reading.status,
		Candidate:    reading.candidate,
		PlateBox:     det.PlateBox,
		RawOCR:       reading.cleaned,
		DebugImage:   reading.debugImage,
	}
	if opts.Debug {
		res.Predictions = det.Raw
	}

	switch reading.status {
	case anpr.PlateRead:
		res.Plate = reading.candidate.Text
		res.Region = s.resolver.Resolve(reading.candidate.Text)
	case anpr.PlateUnclear:
		res.Plate = string(anpr.PlateUnclear)
		res.Region = s.resolver.Resolve(reading.cleaned)
	default:
		res.Plate = string(anpr.PlateNotFound)
		res.Region = anpr.RegionNA
	}

	if err := ctx.Err(); err != nil {
		return nil, runError(ctx, err)
	}

	log.Info().
		Str("vehicle", res.VehicleClass).
		Str("color", res.ColorClass).
		Str("plate", res.Plate).
		Str("rto", res.Region).
		Str("plate_model", det.PlateModel).
		Msg("analysis complete")

	if res.PlateStatus != anpr.PlateRead {
		return res, nil
	}

	extras := repository.DetectionExtras{
		PlateConfidence: reading.candidate.Confidence,
		RawOCR:          reading.cleaned,
		Predictions:     det.Raw,
	}
	rec, err := s.writer.Write(ctx, res, extras)
	if err != nil {
		if ctx.Err() != nil {
			return nil, runError(ctx, ctx.Err())
		}
		log.Error().Err(err).Str("plate", res.Plate).Msg("failed to save detection")
		res.SaveError = err.Error()
		return res, nil
	}
	res.Record = rec
	return res, nil
}

// readPlate crops, preprocesses and reads the plate. Only cancellation is
// returned as an error; every other failure degrades to Unclear.
func (s *ANPRService) readPlate(ctx context.Context, img image.Image, box *anpr.BoundingBox, debug bool, log zerolog.Logger) (plateReading, error) {
	if box == nil {
		return plateReading{status: anpr.PlateNotFound}, nil
	}
	unclear := plateReading{status: anpr.PlateUnclear}

	crop, err := imaging.Crop(img, *box)
	if err != nil {
		log.Warn().Err(err).Interface("box", box).Msg("plate box outside image")
		return unclear, nil
	}

	processed, err := s.preprocessor.Process(crop)
	if err != nil {
		log.Warn().Err(err).Msg("plate preprocessing failed")
		return unclear, nil
	}
	encoded, err := imaging.EncodePNG(processed.Image)
	if err != nil {
		log.Warn().Err(err).Msg("plate preprocessing failed")
		return unclear, nil
	}
	if debug {
		unclear.debugImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(encoded)
	}

	ext, err := s.extractor.Extract(ctx, encoded)
	if err != nil {
		if ctx.Err() != nil {
			return plateReading{}, ctx.Err()
		}
		log.Warn().Err(err).Msg("plate text unreadable")
		return unclear, nil
	}

	return plateReading{
		status:     ext.Status(),
		candidate:  ext.Candidate,
		cleaned:    ext.Cleaned,
		debugImage: unclear.debugImage,
	}, nil
}

// Abort cancels the in-flight analysis of a session.
func (s *ANPRService) Abort(session string) bool {
	aborted := s.runs.Cancel(session)
	if aborted {
		s.log.Info().Str("session_id", session).Msg("analysis aborted")
	}
	return aborted
}

func (s *ANPRService) ResolveRegion(code string) string {
	return s.resolver.Resolve(ocr.Clean(strings.ToUpper(code)))
}

func (s *ANPRService) RegionStatus() RegionStatus {
	return s.region
}

// ActiveRuns counts sessions with an analysis in flight.
func (s *ANPRService) ActiveRuns() int {
	return s.runs.Active()
}

func (s *ANPRService) FindDetections(ctx context.Context, plateQuery *string, limit, offset int) ([]anpr.DetectionRecord, error) {
	var plate *string
	if plateQuery != nil {
		if p := strings.ToUpper(strings.TrimSpace(*plateQuery)); p != "" {
			plate = &p
		}
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.FindDetections(ctx, plate, limit, offset)
	if err != nil {
		return nil, anpr.NewError(anpr.KindPersistenceFailure, "find detections", fmt.Errorf("query: %w", err))
	}
	return records, nil
}

// IsRunCancelled reports whether err means the run was superseded or aborted.
func IsRunCancelled(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}
