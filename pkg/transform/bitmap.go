package transform

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/jzx17/cropflow/pkg/types"
)

// Source is anything a pool task can snapshot into a transferable frame
type Source interface {
	Snapshot() (*Frame, error)
}

// Bitmap is an encoded source image that decodes lazily and can be snapshotted
// any number of times
type Bitmap struct {
	data        []byte
	contentType string

	once    sync.Once
	decoded image.Image
	err     error
}

// NewBitmap wraps encoded image bytes
func NewBitmap(data []byte) *Bitmap {
	return &Bitmap{data: data, contentType: mimetype.Detect(data).String()}
}

// NewBitmapFromImage wraps an already decoded image
func NewBitmapFromImage(img image.Image) *Bitmap {
	b := &Bitmap{decoded: img}
	b.once.Do(func() {})
	return b
}

// ContentType returns the sniffed MIME type of the encoded bytes
func (b *Bitmap) ContentType() string {
	return b.contentType
}

// Size returns the encoded size in bytes
func (b *Bitmap) Size() int {
	return len(b.data)
}

// Decode decodes the source once and caches the result
func (b *Bitmap) Decode() (image.Image, error) {
	b.once.Do(func() {
		b.decoded, b.err = decode(b.data, b.ContentType())
	})
	return b.decoded, b.err
}

// Snapshot returns a zero-copy frame over the decoded pixels. The decoded image
// is shared read-only between frames.
func (b *Bitmap) Snapshot() (*Frame, error) {
	img, err := b.Decode()
	if err != nil {
		return nil, err
	}
	return NewFrame(img), nil
}

func decode(data []byte, contentType string) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty source", types.ErrInvalidInput)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: unsupported content type %q", types.ErrInvalidInput, contentType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", contentType, err)
	}
	if err := checkDimensions(float64(cfg.Width), float64(cfg.Height), DefaultMaxSide, DefaultMaxPixels); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", contentType, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", types.ErrInvalidInput)
	}
	return img, nil
}

// Frame is a transferable handle over decoded pixels. Ownership moves exactly
// once; after Transfer the frame is detached and its pixels unreachable through it.
type Frame struct {
	img      image.Image
	width    int
	height   int
	detached atomic.Bool
	mu       sync.Mutex
}

// NewFrame wraps img in a transferable frame
func NewFrame(img image.Image) *Frame {
	b := img.Bounds()
	return &Frame{img: img, width: b.Dx(), height: b.Dy()}
}

// Snapshot lets a frame be submitted directly. Detached frames fail with ErrDetached.
func (f *Frame) Snapshot() (*Frame, error) {
	if f.Detached() {
		return nil, types.ErrDetached
	}
	return f, nil
}

// Transfer hands the pixels to the receiver and detaches the frame
func (f *Frame) Transfer() (image.Image, error) {
	if !f.detached.CompareAndSwap(false, true) {
		return nil, types.ErrDetached
	}
	f.mu.Lock()
	img := f.img
	f.img = nil
	f.mu.Unlock()
	return img, nil
}

// Image returns the pixels, or nil once the frame has been transferred
func (f *Frame) Image() image.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.img
}

// Detached reports whether ownership has been transferred
func (f *Frame) Detached() bool {
	return f.detached.Load()
}

// Bounds returns the frame dimensions; valid after detachment
func (f *Frame) Bounds() (int, int) {
	return f.width, f.height
}
