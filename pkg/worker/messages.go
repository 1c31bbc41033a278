package worker

import (
	"context"
	"image"

	"github.com/jzx17/cropflow/pkg/transform"
)

// MessageType tags pool <-> execution context messages
type MessageType string

const (
	// MessageCrop requests a crop/scale/rotate render
	MessageCrop MessageType = "crop"
	// MessageSuccess carries a rendered blob
	MessageSuccess MessageType = "success"
	// MessageError carries the failure of a render
	MessageError MessageType = "error"
)

// Request is the message posted to an execution context. Image is the
// transferred pixel buffer; the sender holds no reference to it afterwards.
type Request struct {
	Type   MessageType
	TaskID string
	Image  image.Image

	Crop          transform.Rect
	Scale         float64
	Rotate        float64
	PixelRatio    float64
	NaturalWidth  int
	NaturalHeight int
	DisplayWidth  float64
	DisplayHeight float64

	ctx   context.Context
	reply chan Response
}

// Params reassembles the scalar transform parameters
func (r *Request) Params() transform.Params {
	return transform.Params{
		Crop:          r.Crop,
		Scale:         r.Scale,
		Rotate:        r.Rotate,
		PixelRatio:    r.PixelRatio,
		NaturalWidth:  r.NaturalWidth,
		NaturalHeight: r.NaturalHeight,
		DisplayWidth:  r.DisplayWidth,
		DisplayHeight: r.DisplayHeight,
	}
}

// Context returns the request context; it is cancelled once the task settles
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

func newCropRequest(ctx context.Context, task Task, img image.Image, naturalW, naturalH int) *Request {
	p := task.Params
	if p.NaturalWidth <= 0 {
		p.NaturalWidth = naturalW
	}
	if p.NaturalHeight <= 0 {
		p.NaturalHeight = naturalH
	}
	return &Request{
		Type:          MessageCrop,
		TaskID:        task.ID,
		Image:         img,
		Crop:          p.Crop,
		Scale:         p.Scale,
		Rotate:        p.Rotate,
		PixelRatio:    p.PixelRatio,
		NaturalWidth:  p.NaturalWidth,
		NaturalHeight: p.NaturalHeight,
		DisplayWidth:  p.DisplayWidth,
		DisplayHeight: p.DisplayHeight,
		ctx:           ctx,
		reply:         make(chan Response, 1),
	}
}

// Response is the single reply of an execution context to a Request
type Response struct {
	Type  MessageType
	Blob  transform.Blob
	Error error
}
