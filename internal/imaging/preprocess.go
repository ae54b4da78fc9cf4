package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	DefaultScaleFactor = 4
	DefaultPaddingPx   = 40
)

type Options struct {
	ScaleFactor int
	PaddingPx   int
}

// Preprocessor turns a plate crop into a padded black-on-white image for OCR.
//
// Binarization assumes dark characters on a light plate: pixels brighter than
// the Otsu threshold become white, everything else black.
type Preprocessor struct {
	opts Options
}

func NewPreprocessor(opts Options) *Preprocessor {
	if opts.ScaleFactor < 1 {
		opts.ScaleFactor = DefaultScaleFactor
	}
	if opts.PaddingPx < 0 {
		opts.PaddingPx = 0
	}
	return &Preprocessor{opts: opts}
}

type Processed struct {
	Image     *image.Gray
	Threshold uint8
}

func (p *Preprocessor) Process(src image.Image) (*Processed, error) {
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("preprocess: empty image")
	}

	scaled := Upscale(src, p.opts.ScaleFactor)
	gray, lo, hi := Grayscale(scaled)
	ContrastStretch(gray.Pix, lo, hi)

	hist := Histogram(gray.Pix)
	threshold := OtsuThreshold(&hist)
	Binarize(gray.Pix, threshold)

	return &Processed{
		Image:     Pad(gray, p.opts.PaddingPx),
		Threshold: threshold,
	}, nil
}

// Upscale resizes src by an integer factor with a Catmull-Rom filter.
func Upscale(src image.Image, factor int) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	if factor == 1 {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Grayscale applies BT.709 luminance weights, truncating to an integer, and
// returns the minimum and maximum gray value seen.
func Grayscale(src *image.RGBA) (*image.Gray, uint8, uint8) {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	lo, hi := uint8(255), uint8(0)

	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+b.Dx()*4]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x := range out {
			r, g, bl := row[x*4], row[x*4+1], row[x*4+2]
			v := uint8(0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(bl))
			out[x] = v
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return dst, lo, hi
}

// ContrastStretch remaps [lo, hi] onto [0, 255] in place. A flat image is left untouched.
func ContrastStretch(pix []uint8, lo, hi uint8) {
	span := int(hi) - int(lo)
	if span <= 0 {
		return
	}
	for i, v := range pix {
		pix[i] = uint8((int(v) - int(lo)) * 255 / span)
	}
}

func Histogram(pix []uint8) [256]int {
	var hist [256]int
	for _, v := range pix {
		hist[v]++
	}
	return hist
}

// OtsuThreshold picks the threshold maximising between-class variance. When a
// range of thresholds ties for the maximum (empty bins between two modes) the
// midpoint of that range is returned.
func OtsuThreshold(hist *[256]int) uint8 {
	total := 0
	sum := 0.0
	for i, c := range hist {
		total += c
		sum += float64(i * c)
	}

	var (
		wB     int
		sumB   float64
		maxVar float64
		first  int
		last   int
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}

		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)

		switch {
		case between > maxVar:
			maxVar = between
			first, last = t, t
		case between == maxVar && maxVar > 0:
			last = t
		}
	}
	return uint8((first + last) / 2)
}

// Binarize sets values above threshold to 255 and the rest to 0, in place.
func Binarize(pix []uint8, threshold uint8) {
	for i, v := range pix {
		if v > threshold {
			pix[i] = 255
		} else {
			pix[i] = 0
		}
	}
}

// Pad places src on a white canvas with a margin of px on every side.
func Pad(src *image.Gray, px int) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()+2*px, b.Dy()+2*px))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(px, px, px+b.Dx(), px+b.Dy()), src, b.Min, draw.Src)
	return dst
}

// EncodePNG encodes img losslessly for the OCR engine.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
