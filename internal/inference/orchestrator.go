package inference

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vehicle-anpr/internal/domain/anpr"
)

type Models struct {
	Vehicle  string
	Color    string
	Plate    string
	Fallback string
}

// PlateStage continues the plate branch once localization is done. box is nil
// when neither plate model found anything.
type PlateStage func(ctx context.Context, box *anpr.BoundingBox) error

// Orchestrator runs the vehicle, color and plate models for one image.
//
// Vehicle and color run concurrently with the plate branch. The plate branch is
// a chain: the fallback model is only asked when the primary finds no box.
type Orchestrator struct {
	detector Detector
	models   Models
	log      zerolog.Logger
}

func NewOrchestrator(detector Detector, models Models, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		detector: detector,
		models:   models,
		log:      log,
	}
}

// Detect returns the aggregated result. A failing vehicle or color call
// aborts the run with ServiceUnreachable and cancels the other branches;
// plate model failures only mean "no box". next, when set, runs inside the
// plate branch so cropping and OCR overlap with classification.
func (o *Orchestrator) Detect(ctx context.Context, imageBase64 string, next PlateStage) (anpr.DetectionResult, error) {
	var (
		vehicle    string
		color      string
		vehicleRaw []byte
		box        *anpr.BoundingBox
		plateModel string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		list, raw, err := o.detector.Detect(gctx, o.models.Vehicle, imageBase64)
		if err != nil {
			return err
		}
		vehicle, vehicleRaw = list.TopClass(), raw
		return nil
	})

	g.Go(func() error {
		list, _, err := o.detector.Detect(gctx, o.models.Color, imageBase64)
		if err != nil {
			return err
		}
		color = list.TopClass()
		return nil
	})

	g.Go(func() error {
		box, plateModel = o.LocatePlate(gctx, imageBase64)
		if err := gctx.Err(); err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return next(gctx, box)
	})

	if err := g.Wait(); err != nil {
		return anpr.DetectionResult{}, err
	}

	return anpr.DetectionResult{
		VehicleClass: vehicle,
		ColorClass:   color,
		PlateBox:     box,
		PlateModel:   plateModel,
		Raw:          vehicleRaw,
	}, nil
}

// LocatePlate asks the primary plate model and, when it fails or finds
// nothing, the fallback model. It returns the box and the model that found it.
func (o *Orchestrator) LocatePlate(ctx context.Context, imageBase64 string) (*anpr.BoundingBox, string) {
	if box := o.locate(ctx, o.models.Plate, imageBase64); box != nil {
		return box, o.models.Plate
	}
	if ctx.Err() != nil || o.models.Fallback == "" {
		return nil, ""
	}

	o.log.Debug().Str("model", o.models.Fallback).Msg("primary plate model found nothing, trying fallback")
	if box := o.locate(ctx, o.models.Fallback, imageBase64); box != nil {
		return box, o.models.Fallback
	}
	return nil, ""
}

func (o *Orchestrator) locate(ctx context.Context, model, imageBase64 string) *anpr.BoundingBox {
	list, _, err := o.detector.Detect(ctx, model, imageBase64)
	if err != nil {
		if ctx.Err() == nil {
			o.log.Warn().Err(err).Str("model", model).Msg("plate model call failed")
		}
		return nil
	}
	return list.TopBox()
}
