package ocr

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vehicle-anpr/internal/domain/anpr"
)

const (
	minUncertainLen = 4
	maxUncertainLen = 12
)

// Two letters, one or two digits, up to three letters, three or four digits.
var platePattern = regexp.MustCompile(`[A-Z]{2}[0-9]{1,2}[A-Z]{0,3}[0-9]{3,4}`)

// Extraction is the outcome of reading one plate image.
type Extraction struct {
	Raw       string
	Cleaned   string
	Candidate *anpr.PlateCandidate
}

// Status is PlateRead when a candidate exists and PlateUnclear otherwise.
func (e Extraction) Status() anpr.PlateStatus {
	if e.Candidate == nil {
		return anpr.PlateUnclear
	}
	return anpr.PlateRead
}

type Extractor struct {
	recognizer Recognizer
	timeout    time.Duration
	log        zerolog.Logger
}

func NewExtractor(recognizer Recognizer, timeout time.Duration, log zerolog.Logger) *Extractor {
	return &Extractor{
		recognizer: recognizer,
		timeout:    timeout,
		log:        log,
	}
}

// Extract runs OCR on a preprocessed plate image and resolves the text to a
// candidate. Engine errors and empty output are returned as OcrFailure.
func (e *Extractor) Extract(ctx context.Context, img []byte) (Extraction, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.recognizer.Recognize(ctx, img)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Extraction{}, err
		}
		return Extraction{}, anpr.NewError(anpr.KindOcrFailure, "recognize", err)
	}
	if strings.TrimSpace(raw) == "" {
		return Extraction{Raw: raw}, anpr.NewError(anpr.KindOcrFailure, "recognize", errors.New("empty result"))
	}

	ext := Resolve(raw)
	e.log.Debug().
		Str("raw", strings.TrimSpace(raw)).
		Str("cleaned", ext.Cleaned).
		Str("status", string(ext.Status())).
		Msg("ocr text resolved")
	return ext, nil
}

// Clean drops every character outside A-Z and 0-9.
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Match resolves cleaned text to a candidate: the first strict plate match is
// Certain, otherwise text of 4 to 12 characters is Uncertain and marked.
func Match(cleaned string) *anpr.PlateCandidate {
	if m := platePattern.FindString(cleaned); m != "" {
		return &anpr.PlateCandidate{Text: m, Confidence: anpr.Certain}
	}
	if n := len(cleaned); n >= minUncertainLen && n <= maxUncertainLen {
		return &anpr.PlateCandidate{Text: cleaned + anpr.UncertainMarker, Confidence: anpr.Uncertain}
	}
	return nil
}

func Resolve(raw string) Extraction {
	cleaned := Clean(raw)
	return Extraction{
		Raw:       raw,
		Cleaned:   cleaned,
		Candidate: Match(cleaned),
	}
}
