package transform

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/cropflow/internal/testutils"
	"github.com/jzx17/cropflow/pkg/types"
)

func nearest() *Renderer {
	return NewRenderer(&RendererConfig{Format: FormatPNG, Quality: QualityNearest})
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestParams_Normalize(t *testing.T) {
	t.Run("fills defaults from source", func(t *testing.T) {
		p, err := Params{Crop: Rect{Width: 10, Height: 5}}.Normalize(40, 20)
		require.NoError(t, err)
		assert.Equal(t, 40, p.NaturalWidth)
		assert.Equal(t, 20, p.NaturalHeight)
		assert.Equal(t, 40.0, p.DisplayWidth)
		assert.Equal(t, 20.0, p.DisplayHeight)
		assert.Equal(t, 1.0, p.Scale)
		assert.Equal(t, 1.0, p.PixelRatio)
	})

	tests := []struct {
		name   string
		params Params
	}{
		{"zero crop width", Params{Crop: Rect{Width: 0, Height: 5}}},
		{"negative crop height", Params{Crop: Rect{Width: 5, Height: -1}}},
		{"negative scale", Params{Crop: Rect{Width: 5, Height: 5}, Scale: -2}},
		{"negative pixel ratio", Params{Crop: Rect{Width: 5, Height: 5}, PixelRatio: -1}},
		{"infinite crop width", Params{Crop: Rect{Width: math.Inf(1), Height: 5}}},
		{"NaN crop height", Params{Crop: Rect{Width: 5, Height: math.NaN()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.params.Normalize(40, 20)
			assert.ErrorIs(t, err, types.ErrInvalidInput)
		})
	}
}

func TestParams_OutputSize(t *testing.T) {
	p, err := Params{
		Crop:          Rect{X: 0, Y: 0, Width: 50, Height: 25.7},
		PixelRatio:    2,
		DisplayWidth:  100,
		DisplayHeight: 100,
	}.Normalize(200, 200)
	require.NoError(t, err)

	w, h := p.OutputSize()
	assert.Equal(t, 200, w)
	assert.Equal(t, 102, h)
}

func TestRenderer_Draw(t *testing.T) {
	src := testutils.Gradient(8, 8)
	ctx := context.Background()

	tests := []struct {
		name   string
		img    image.Image
		params Params
		width  int
		height int
		points map[image.Point]image.Point
	}{
		{
			name:   "plain crop",
			img:    src,
			params: Params{Crop: Rect{X: 2, Y: 3, Width: 4, Height: 2}},
			width:  4,
			height: 2,
			points: map[image.Point]image.Point{{0, 0}: {2, 3}, {3, 1}: {5, 4}},
		},
		{
			name:   "display coordinates are mapped to natural pixels",
			img:    src,
			params: Params{Crop: Rect{X: 1, Y: 1, Width: 2, Height: 2}, DisplayWidth: 4, DisplayHeight: 4},
			width:  4,
			height: 4,
			points: map[image.Point]image.Point{{0, 0}: {2, 2}, {3, 3}: {5, 5}},
		},
		{
			name:   "pixel ratio doubles resolution",
			img:    src,
			params: Params{Crop: Rect{Width: 2, Height: 2}, PixelRatio: 2},
			width:  4,
			height: 4,
			points: map[image.Point]image.Point{{1, 1}: {0, 0}, {2, 2}: {1, 1}},
		},
		{
			name:   "half turn around the center",
			img:    testutils.Gradient(4, 4),
			params: Params{Crop: Rect{Width: 4, Height: 4}, Rotate: 180},
			width:  4,
			height: 4,
			points: map[image.Point]image.Point{{0, 0}: {3, 3}, {3, 0}: {0, 3}},
		},
		{
			name:   "negative quarter turns normalize",
			img:    testutils.Gradient(4, 4),
			params: Params{Crop: Rect{Width: 4, Height: 4}, Rotate: -180},
			width:  4,
			height: 4,
			points: map[image.Point]image.Point{{0, 0}: {3, 3}},
		},
		{
			name:   "scale zooms around the center",
			img:    testutils.Gradient(4, 4),
			params: Params{Crop: Rect{Width: 4, Height: 4}, Scale: 2},
			width:  4,
			height: 4,
			points: map[image.Point]image.Point{{0, 0}: {1, 1}, {3, 3}: {2, 2}},
		},
		{
			name:   "sub image origin is honoured",
			img:    src.SubImage(image.Rect(2, 2, 6, 6)),
			params: Params{Crop: Rect{Width: 2, Height: 2}},
			width:  2,
			height: 2,
			points: map[image.Point]image.Point{{0, 0}: {2, 2}, {1, 1}: {3, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := nearest().Draw(ctx, tt.img, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.width, out.Bounds().Dx())
			assert.Equal(t, tt.height, out.Bounds().Dy())

			for dst, from := range tt.points {
				assert.Equal(t, rgbaAt(src, from.X, from.Y), rgbaAt(out, dst.X, dst.Y), "dst %v", dst)
			}
		})
	}
}

func TestRenderer_OutputLimits(t *testing.T) {
	src := testutils.Gradient(16, 16)
	ctx := context.Background()

	tests := []struct {
		name    string
		config  *RendererConfig
		params  Params
		wantErr bool
	}{
		{
			name:    "huge pixel ratio",
			config:  &RendererConfig{},
			params:  Params{Crop: Rect{Width: 16, Height: 16}, PixelRatio: 200000},
			wantErr: true,
		},
		{
			name:    "natural size far above display size",
			config:  &RendererConfig{},
			params:  Params{Crop: Rect{Width: 16, Height: 16}, NaturalWidth: 1000, NaturalHeight: 1000, PixelRatio: 1000},
			wantErr: true,
		},
		{
			name:    "one side over the limit",
			config:  &RendererConfig{MaxOutputSide: 10},
			params:  Params{Crop: Rect{Width: 11, Height: 1}},
			wantErr: true,
		},
		{
			name:    "pixel count over the limit",
			config:  &RendererConfig{MaxOutputPixels: 50},
			params:  Params{Crop: Rect{Width: 8, Height: 8}},
			wantErr: true,
		},
		{
			name:   "pixel count at the limit",
			config: &RendererConfig{MaxOutputPixels: 49},
			params: Params{Crop: Rect{Width: 7, Height: 7}},
		},
		{
			name:   "defaults allow ordinary retina crops",
			config: nil,
			params: Params{Crop: Rect{Width: 16, Height: 16}, PixelRatio: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewRenderer(tt.config).Draw(ctx, src, tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidInput)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, out)
		})
	}
}

func TestRenderer_Render(t *testing.T) {
	src := testutils.Gradient(16, 16)

	t.Run("png blob", func(t *testing.T) {
		blob, err := NewRenderer(nil).Render(context.Background(), src, Params{Crop: Rect{Width: 8, Height: 4}})
		require.NoError(t, err)
		assert.Equal(t, "image/png", blob.ContentType)
		assert.Equal(t, 8, blob.Width)
		assert.Equal(t, 4, blob.Height)

		decoded := testutils.DecodePNG(t, blob.Data)
		assert.Equal(t, image.Rect(0, 0, 8, 4), decoded.Bounds())
	})

	t.Run("jpeg blob", func(t *testing.T) {
		r := NewRenderer(&RendererConfig{Format: FormatJPEG, JPEGQuality: 0})
		blob, err := r.Render(context.Background(), src, Params{Crop: Rect{Width: 8, Height: 8}})
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", blob.ContentType)
		assert.Equal(t, []byte{0xFF, 0xD8}, blob.Data[:2])
	})

	t.Run("degenerate output size", func(t *testing.T) {
		_, err := nearest().Render(context.Background(), src, Params{Crop: Rect{Width: 0.4, Height: 4}})
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("nil image", func(t *testing.T) {
		_, err := nearest().Render(context.Background(), nil, Params{Crop: Rect{Width: 1, Height: 1}})
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := nearest().Render(ctx, src, Params{Crop: Rect{Width: 4, Height: 4}})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBitmap(t *testing.T) {
	data := testutils.EncodePNG(t, testutils.Gradient(6, 3))

	t.Run("decodes once and snapshots share pixels", func(t *testing.T) {
		bmp := NewBitmap(data)
		assert.Equal(t, "image/png", bmp.ContentType())
		assert.Equal(t, len(data), bmp.Size())

		first, err := bmp.Snapshot()
		require.NoError(t, err)
		second, err := bmp.Snapshot()
		require.NoError(t, err)

		assert.NotSame(t, first, second)
		assert.Same(t, first.Image(), second.Image())
		w, h := first.Bounds()
		assert.Equal(t, 6, w)
		assert.Equal(t, 3, h)
	})

	t.Run("rejects non image content", func(t *testing.T) {
		_, err := NewBitmap([]byte("definitely not pixels")).Snapshot()
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("rejects empty source", func(t *testing.T) {
		_, err := NewBitmap(nil).Snapshot()
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("truncated image", func(t *testing.T) {
		_, err := NewBitmap(data[:len(data)/2]).Snapshot()
		assert.Error(t, err)
	})

	t.Run("rejects oversized dimensions before decoding", func(t *testing.T) {
		for _, size := range []image.Point{{100000, 100000}, {DefaultMaxSide + 1, 1}, {8193, 8193}} {
			_, err := NewBitmap(testutils.PNGWithSize(t, size.X, size.Y)).Snapshot()
			assert.ErrorIs(t, err, types.ErrInvalidInput, "size %v", size)
		}
	})

	t.Run("pre-decoded image", func(t *testing.T) {
		img := testutils.Gradient(2, 2)
		frame, err := NewBitmapFromImage(img).Snapshot()
		require.NoError(t, err)
		assert.Same(t, img, frame.Image().(*image.RGBA))
	})
}

func TestFrame_Transfer(t *testing.T) {
	img := testutils.Gradient(4, 2)
	frame := NewFrame(img)

	same, err := frame.Snapshot()
	require.NoError(t, err)
	assert.Same(t, frame, same)

	got, err := frame.Transfer()
	require.NoError(t, err)
	assert.Same(t, img, got.(*image.RGBA))

	assert.True(t, frame.Detached())
	assert.Nil(t, frame.Image())
	w, h := frame.Bounds()
	assert.Equal(t, 4, w)
	assert.Equal(t, 2, h)

	_, err = frame.Transfer()
	assert.ErrorIs(t, err, types.ErrDetached)
	_, err = frame.Snapshot()
	assert.ErrorIs(t, err, types.ErrDetached)
}
