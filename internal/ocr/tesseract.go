package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/semaphore"
)

const (
	PlateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	DefaultMaxConcurrent = 4
)

// Recognizer reads a single line of text from an encoded raster image.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

type TesseractConfig struct {
	Language    string
	AllowHyphen bool
	// MaxConcurrent bounds running engine calls. A call abandoned by its
	// caller keeps its slot until the engine returns.
	MaxConcurrent int
}

// Tesseract runs the local Tesseract engine restricted to the plate alphabet in
// single-line segmentation mode. A gosseract client is not safe for concurrent
// use, so each call gets its own.
type Tesseract struct {
	language  string
	whitelist string
	slots     *semaphore.Weighted
	run       func(img []byte) (string, error)
}

func NewTesseract(cfg TesseractConfig) *Tesseract {
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	whitelist := PlateAlphabet
	if cfg.AllowHyphen {
		whitelist += "-"
	}
	limit := cfg.MaxConcurrent
	if limit < 1 {
		limit = DefaultMaxConcurrent
	}
	t := &Tesseract{
		language:  lang,
		whitelist: whitelist,
		slots:     semaphore.NewWeighted(int64(limit)),
	}
	t.run = t.recognize
	return t
}

type recognition struct {
	text string
	err  error
}

// Recognize waits for a free engine slot and returns as soon as ctx is done.
// The engine call itself cannot be interrupted; it finishes in the background
// and only then releases its slot.
func (t *Tesseract) Recognize(ctx context.Context, img []byte) (string, error) {
	if err := t.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}

	done := make(chan recognition, 1)
	go func() {
		defer t.slots.Release(1)
		text, err := t.run(img)
		done <- recognition{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (t *Tesseract) recognize(img []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return "", fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetWhitelist(t.whitelist); err != nil {
		return "", fmt.Errorf("failed to set character whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to recognize text: %w", err)
	}
	return text, nil
}
