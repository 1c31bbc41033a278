// Package testutils provides fixtures and helpers shared by package tests
package testutils

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// Gradient returns a w×h image whose pixel (x, y) has R=x, G=y, B=x+y, A=255,
// so every pixel position is recoverable from its color
func Gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	return img
}

// EncodePNG encodes img as PNG, failing the test on error
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// PNGWithSize returns a valid 1×1 PNG whose header declares w×h pixels, so
// only the header can be read without error
func PNGWithSize(t testing.TB, w, h int) []byte {
	t.Helper()
	data := EncodePNG(t, image.NewGray(image.Rect(0, 0, 1, 1)))
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc over type+data
	binary.BigEndian.PutUint32(data[16:20], uint32(w))
	binary.BigEndian.PutUint32(data[20:24], uint32(h))
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

// DecodePNG decodes a PNG blob, failing the test on error
func DecodePNG(t testing.TB, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

// Gauge tracks the number of concurrently running operations and the peak observed
type Gauge struct {
	current atomic.Int64
	peak    atomic.Int64

	mu     sync.Mutex
	events []Event
}

// Event records a start or finish of an indexed operation
type Event struct {
	Index   int
	Started bool
}

// Enter marks an operation as started
func (g *Gauge) Enter(index int) {
	n := g.current.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.record(Event{Index: index, Started: true})
}

// Leave marks an operation as finished
func (g *Gauge) Leave(index int) {
	g.record(Event{Index: index, Started: false})
	g.current.Add(-1)
}

// Current returns the number of running operations
func (g *Gauge) Current() int64 {
	return g.current.Load()
}

// Peak returns the highest number of simultaneously running operations
func (g *Gauge) Peak() int64 {
	return g.peak.Load()
}

// Events returns the recorded start/finish sequence
func (g *Gauge) Events() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Event, len(g.events))
	copy(out, g.events)
	return out
}

func (g *Gauge) record(e Event) {
	g.mu.Lock()
	g.events = append(g.events, e)
	g.mu.Unlock()
}
