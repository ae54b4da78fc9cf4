package service

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vehicle-anpr/internal/domain/anpr"
	"vehicle-anpr/internal/imaging"
	"vehicle-anpr/internal/inference"
	"vehicle-anpr/internal/ocr"
	"vehicle-anpr/internal/region"
	"vehicle-anpr/internal/repository"
)

var testModels = inference.Models{Vehicle: "vehicle/1", Color: "color/1", Plate: "plate/1", Fallback: "fallback/1"}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(repository.Models()...))
	return db
}

func newTestRepo(t *testing.T) *repository.ANPRRepository {
	t.Helper()
	return repository.NewANPRRepository(newTestDB(t))
}

type fakeResponse struct {
	list anpr.PredictionList
	err  error
}

type fakeDetector struct {
	responses map[string]fakeResponse
}

func (f *fakeDetector) Detect(ctx context.Context, model, _ string) (anpr.PredictionList, []byte, error) {
	if err := ctx.Err(); err != nil {
		return anpr.PredictionList{}, nil, err
	}
	resp := f.responses[model]
	if resp.err != nil {
		return anpr.PredictionList{}, nil, resp.err
	}
	return resp.list, []byte(`{"predictions":[{"class":"` + resp.list.TopClass() + `"}]}`), nil
}

func classes(name string) fakeResponse {
	return fakeResponse{list: anpr.PredictionList{Predictions: []anpr.Prediction{{Class: name, Confidence: 0.9}}}}
}

func plateAt(x, y, w, h float64) fakeResponse {
	return fakeResponse{list: anpr.PredictionList{Predictions: []anpr.Prediction{
		{Class: "plate", Confidence: 0.8, X: x, Y: y, Width: w, Height: h},
	}}}
}

// scriptedRecognizer returns text for every call. When block is set, the
// first call waits for its context and signals started.
type scriptedRecognizer struct {
	text    string
	err     error
	block   bool
	started chan struct{}

	mu    sync.Mutex
	calls int
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, _ []byte) (string, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()

	if r.block && first {
		close(r.started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

type fixture struct {
	svc  *ANPRService
	db   *gorm.DB
	repo *repository.ANPRRepository
	runs *Runs
}

func newFixture(t *testing.T, detector inference.Detector, recognizer ocr.Recognizer) fixture {
	t.Helper()
	log := zerolog.Nop()
	db := newTestDB(t)
	repo := repository.NewANPRRepository(db)
	runs := NewRuns()

	table := region.NewTable([]anpr.RTOEntry{
		{Code: "MH12", State: "Maharashtra", District: "Pune"},
		{Code: "KA19", State: "Karnataka", District: "Mangalore"},
	})

	svc := NewANPRService(Deps{
		Orchestrator: inference.NewOrchestrator(detector, testModels, log),
		Preprocessor: imaging.NewPreprocessor(imaging.Options{}),
		Extractor:    ocr.NewExtractor(recognizer, 0, log),
		Resolver:     region.NewResolver(table),
		Writer:       NewRecordWriter(repo, nil, log),
		Repo:         repo,
		Runs:         runs,
		Region:       RegionStatus{States: 2, Districts: 2},
	}, log)
	return fixture{svc: svc, db: db, repo: repo, runs: runs}
}

// testPhoto is a grey 200x100 PNG with a dark bar where the plate sits.
func testPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{R: 200, G: 200, B: 200, A: 255}
			if y >= 40 && y < 60 && x >= 70 && x < 130 && (x/5)%2 == 0 {
				c = color.RGBA{R: 20, G: 20, B: 20, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	data, err := imaging.EncodePNG(img)
	require.NoError(t, err)
	return data
}
