package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/jzx17/cropflow/pkg/types"
)

// Format is the encoding of a rendered blob
type Format string

const (
	// FormatPNG encodes lossless PNG
	FormatPNG Format = "png"
	// FormatJPEG encodes JPEG at RendererConfig.JPEGQuality
	FormatJPEG Format = "jpeg"
)

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Quality selects the resampling kernel
type Quality string

const (
	// QualityNearest samples the nearest source pixel
	QualityNearest Quality = "nearest"
	QualityLow     Quality = "low"
	QualityMedium  Quality = "medium"
	// QualityHigh uses Catmull-Rom, the default
	QualityHigh Quality = "high"
)

func (q Quality) interpolator() draw.Interpolator {
	switch q {
	case QualityNearest:
		return draw.NearestNeighbor
	case QualityLow:
		return draw.ApproxBiLinear
	case QualityMedium:
		return draw.BiLinear
	default:
		return draw.CatmullRom
	}
}

// Blob is an encoded render result
type Blob struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Size returns the encoded size in bytes
func (b Blob) Size() int {
	return len(b.Data)
}

// RendererConfig defines configuration for Renderer
type RendererConfig struct {
	// Format is the output encoding
	Format Format

	// JPEGQuality is used when Format is FormatJPEG (1-100)
	JPEGQuality int

	// Quality selects the resampling kernel
	Quality Quality

	// MaxOutputSide caps either output dimension; 0 means DefaultMaxSide
	MaxOutputSide int

	// MaxOutputPixels caps the output pixel count; 0 means DefaultMaxPixels
	MaxOutputPixels int
}

// DefaultRendererConfig returns default configuration
func DefaultRendererConfig() *RendererConfig {
	return &RendererConfig{
		Format:      FormatPNG,
		JPEGQuality:     90,
		Quality:         QualityHigh,
		MaxOutputSide:   DefaultMaxSide,
		MaxOutputPixels: DefaultMaxPixels,
	}
}

// Renderer draws the transformed crop region of a source into a new image and encodes it
type Renderer struct {
	config *RendererConfig
}

// NewRenderer creates a Renderer; nil config uses defaults
func NewRenderer(config *RendererConfig) *Renderer {
	if config == nil {
		config = DefaultRendererConfig()
	}
	if config.JPEGQuality < 1 || config.JPEGQuality > 100 {
		config.JPEGQuality = 90
	}
	if config.MaxOutputSide <= 0 {
		config.MaxOutputSide = DefaultMaxSide
	}
	if config.MaxOutputPixels <= 0 {
		config.MaxOutputPixels = DefaultMaxPixels
	}
	return &Renderer{config: config}
}

// Render crops, scales and rotates img according to p and encodes the result
func (r *Renderer) Render(ctx context.Context, img image.Image, p Params) (Blob, error) {
	if img == nil {
		return Blob{}, fmt.Errorf("%w: nil image", types.ErrInvalidInput)
	}
	out, err := r.Draw(ctx, img, p)
	if err != nil {
		return Blob{}, err
	}
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}

	data, err := encode(out, r.config.Format, r.config.JPEGQuality)
	if err != nil {
		return Blob{}, err
	}
	b := out.Bounds()
	return Blob{
		Data:        data,
		ContentType: r.config.Format.ContentType(),
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}

// Draw renders the transformed region without encoding it
func (r *Renderer) Draw(ctx context.Context, img image.Image, p Params) (*image.RGBA, error) {
	bounds := img.Bounds()
	p, err := p.Normalize(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}
	fw, fh := p.outputExtent()
	if !(fw >= 1 && fh >= 1) {
		return nil, fmt.Errorf("%w: output size %.0fx%.0f", types.ErrInvalidInput, fw, fh)
	}
	if err := checkDimensions(fw, fh, r.config.MaxOutputSide, r.config.MaxOutputPixels); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	w, h := int(fw), int(fh)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	m := mul(p.Matrix(), translate(-float64(bounds.Min.X), -float64(bounds.Min.Y)))
	r.config.Quality.interpolator().Transform(dst, m, img, bounds, draw.Over, nil)
	return dst, nil
}

// Matrix maps natural source coordinates onto output pixels. Applied to a source
// point it scales around the center, rotates around the center, shifts by the
// crop origin and finally multiplies by the pixel ratio.
func (p Params) Matrix() f64.Aff3 {
	sx, sy := p.ratio()
	cx := float64(p.NaturalWidth) / 2
	cy := float64(p.NaturalHeight) / 2

	m := scale(p.PixelRatio, p.PixelRatio)
	m = mul(m, translate(-p.Crop.X*sx, -p.Crop.Y*sy))
	m = mul(m, translate(cx, cy))
	m = mul(m, rotate(p.Rotate))
	m = mul(m, scale(p.Scale, p.Scale))
	m = mul(m, translate(-cx, -cy))
	return m
}

// mul returns a∘b: b is applied first
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func translate(tx, ty float64) f64.Aff3 {
	return f64.Aff3{1, 0, tx, 0, 1, ty}
}

func scale(sx, sy float64) f64.Aff3 {
	return f64.Aff3{sx, 0, 0, 0, sy, 0}
}

func rotate(deg float64) f64.Aff3 {
	sin, cos := sincos(deg)
	return f64.Aff3{cos, -sin, 0, sin, cos, 0}
}

// sincos is exact for quarter turns
func sincos(deg float64) (float64, float64) {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	switch d {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	return math.Sincos(d * math.Pi / 180)
}

var bufPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func encode(img image.Image, format Format, quality int) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	var err error
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	default:
		err = png.Encode(buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
