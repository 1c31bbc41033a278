// Package transform implements the crop/scale/rotate draw capability used by
// the worker execution contexts.
package transform

import (
	"fmt"
	"math"

	"github.com/jzx17/cropflow/pkg/types"
)

// Rect is a crop rectangle in displayed-image coordinates
type Rect struct {
	X      float64 `json:"x" mapstructure:"x"`
	Y      float64 `json:"y" mapstructure:"y"`
	Width  float64 `json:"width" mapstructure:"width"`
	Height float64 `json:"height" mapstructure:"height"`
}

// Params carries every scalar input of a crop request
type Params struct {
	// Crop is the selection in displayed coordinates
	Crop Rect `json:"crop" mapstructure:"crop"`

	// Scale zooms the source around its center; 0 means 1
	Scale float64 `json:"scale" mapstructure:"scale"`

	// Rotate is a clockwise rotation in degrees around the source center
	Rotate float64 `json:"rotate" mapstructure:"rotate"`

	// PixelRatio multiplies the output resolution; 0 means 1
	PixelRatio float64 `json:"pixel_ratio" mapstructure:"pixel_ratio"`

	// NaturalWidth and NaturalHeight are the source pixel dimensions; 0 means taken from the image
	NaturalWidth  int `json:"natural_width" mapstructure:"natural_width"`
	NaturalHeight int `json:"natural_height" mapstructure:"natural_height"`

	// DisplayWidth and DisplayHeight are the on-screen dimensions the crop was drawn against; 0 means natural
	DisplayWidth  float64 `json:"display_width" mapstructure:"display_width"`
	DisplayHeight float64 `json:"display_height" mapstructure:"display_height"`
}

// Normalize fills defaults from the source bounds and validates the result
func (p Params) Normalize(naturalW, naturalH int) (Params, error) {
	if p.NaturalWidth <= 0 {
		p.NaturalWidth = naturalW
	}
	if p.NaturalHeight <= 0 {
		p.NaturalHeight = naturalH
	}
	if p.DisplayWidth <= 0 {
		p.DisplayWidth = float64(p.NaturalWidth)
	}
	if p.DisplayHeight <= 0 {
		p.DisplayHeight = float64(p.NaturalHeight)
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	if p.PixelRatio == 0 {
		p.PixelRatio = 1
	}

	switch {
	case p.NaturalWidth <= 0 || p.NaturalHeight <= 0:
		return p, fmt.Errorf("%w: natural size %dx%d", types.ErrInvalidInput, p.NaturalWidth, p.NaturalHeight)
	case p.Crop.Width <= 0 || p.Crop.Height <= 0:
		return p, fmt.Errorf("%w: crop size %gx%g", types.ErrInvalidInput, p.Crop.Width, p.Crop.Height)
	case p.Scale < 0 || isBad(p.Scale):
		return p, fmt.Errorf("%w: scale %g", types.ErrInvalidInput, p.Scale)
	case p.PixelRatio < 0 || isBad(p.PixelRatio):
		return p, fmt.Errorf("%w: pixel ratio %g", types.ErrInvalidInput, p.PixelRatio)
	case isBad(p.Rotate) || isBad(p.Crop.X) || isBad(p.Crop.Y) || isBad(p.Crop.Width) || isBad(p.Crop.Height):
		return p, fmt.Errorf("%w: non-finite geometry", types.ErrInvalidInput)
	}

	return p, nil
}

const (
	// DefaultMaxSide bounds either dimension of a decoded source or a rendered output
	DefaultMaxSide = 16384

	// DefaultMaxPixels bounds the pixel count of a decoded source or a rendered output
	DefaultMaxPixels = 64 << 20
)

// OutputSize returns the pixel dimensions of the rendered region. The result
// is only meaningful for sizes that pass the renderer limits.
func (p Params) OutputSize() (int, int) {
	w, h := p.outputExtent()
	return int(w), int(h)
}

func (p Params) outputExtent() (float64, float64) {
	sx, sy := p.ratio()
	return math.Floor(p.Crop.Width * sx * p.PixelRatio), math.Floor(p.Crop.Height * sy * p.PixelRatio)
}

// checkDimensions rejects a w×h image above maxSide on either axis or above
// maxPixels in total, before anything is allocated for it
func checkDimensions(w, h float64, maxSide, maxPixels int) error {
	if w > float64(maxSide) || h > float64(maxSide) {
		return fmt.Errorf("%w: %.0fx%.0f exceeds %d pixels per side", types.ErrInvalidInput, w, h, maxSide)
	}
	if w*h > float64(maxPixels) {
		return fmt.Errorf("%w: %.0fx%.0f exceeds %d pixels", types.ErrInvalidInput, w, h, maxPixels)
	}
	return nil
}

// ratio maps displayed coordinates onto natural pixels
func (p Params) ratio() (float64, float64) {
	return float64(p.NaturalWidth) / p.DisplayWidth, float64(p.NaturalHeight) / p.DisplayHeight
}

func isBad(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}
