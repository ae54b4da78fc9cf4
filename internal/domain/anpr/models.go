package anpr

import (
	"encoding/json"
	"strings"
)

const (
	UnknownClass  = "Unknown"
	RegionNA      = "N/A"
	RegionUnknown = "Unknown Region"

	// UncertainMarker is appended to plate text recovered by the length heuristic.
	UncertainMarker = "?"
)

// BoundingBox is a model box in center format. It may extend past the image bounds.
type BoundingBox struct {
	CenterX float64 `json:"x"`
	CenterY float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Valid reports whether the box has a positive area.
func (b BoundingBox) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

func (p Prediction) Box() BoundingBox {
	return BoundingBox{CenterX: p.X, CenterY: p.Y, Width: p.Width, Height: p.Height}
}

type PredictionList struct {
	Predictions []Prediction `json:"predictions"`
}

// TopClass returns the class of the highest ranked prediction or UnknownClass.
func (l PredictionList) TopClass() string {
	if len(l.Predictions) == 0 || l.Predictions[0].Class == "" {
		return UnknownClass
	}
	return l.Predictions[0].Class
}

// TopBox returns the box of the highest ranked prediction, nil when nothing was found.
func (l PredictionList) TopBox() *BoundingBox {
	if len(l.Predictions) == 0 {
		return nil
	}
	box := l.Predictions[0].Box()
	if !box.Valid() {
		return nil
	}
	return &box
}

// DetectionResult aggregates the vehicle, color and plate model outputs of one run.
type DetectionResult struct {
	VehicleClass string          `json:"vehicle_class"`
	ColorClass   string          `json:"color_class"`
	PlateBox     *BoundingBox    `json:"plate_box,omitempty"`
	PlateModel   string          `json:"plate_model,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

type Confidence string

const (
	Certain   Confidence = "certain"
	Uncertain Confidence = "uncertain"
)

// PlateCandidate is the plate text recovered from OCR output. Uncertain text
// carries a trailing UncertainMarker.
type PlateCandidate struct {
	Text       string     `json:"text"`
	Confidence Confidence `json:"confidence"`
}

// Bare returns the candidate text without the uncertainty marker.
func (c PlateCandidate) Bare() string {
	return strings.TrimSuffix(c.Text, UncertainMarker)
}

type PlateStatus string

const (
	PlateRead     PlateStatus = "read"
	PlateUnclear  PlateStatus = "Unclear"
	PlateNotFound PlateStatus = "Not Found"
)

type RTOEntry struct {
	Code     string `json:"code"`
	State    string `json:"state"`
	District string `json:"district"`
}

// DetectionRecord is a persisted analysis. ID is the zero-padded sequence.
type DetectionRecord struct {
	ID           string `json:"detection_id"`
	Seq          int64  `json:"-"`
	VehicleClass string `json:"car_name"`
	ColorClass   string `json:"color"`
	PlateText    string `json:"plate_number"`
	Region       string `json:"rto"`
	Timestamp    string `json:"detected_at"`
}

// AnalysisResult is what a caller sees for one run, persisted or not.
type AnalysisResult struct {
	RunID        string           `json:"run_id"`
	VehicleClass string           `json:"vehicle"`
	ColorClass   string           `json:"color"`
	Plate        string           `json:"plate"`
	PlateStatus  PlateStatus      `json:"plate_status"`
	Candidate    *PlateCandidate  `json:"candidate,omitempty"`
	Region       string           `json:"rto"`
	PlateBox     *BoundingBox     `json:"plate_box,omitempty"`
	RawOCR       string           `json:"raw_ocr,omitempty"`
	Record       *DetectionRecord `json:"record,omitempty"`
	SaveError    string           `json:"save_error,omitempty"`
	DebugImage   string           `json:"debug_image,omitempty"`
	Predictions  json.RawMessage  `json:"predictions,omitempty"`
}
