package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/jzx17/cropflow/internal/cpu"
	"github.com/jzx17/cropflow/pkg/transform"
)

// Renderer is the draw capability an execution context runs requests against
type Renderer interface {
	Render(ctx context.Context, img image.Image, p transform.Params) (transform.Blob, error)
}

// errBusy is returned when a request is posted to a context that already holds one
var errBusy = errors.New("execution context busy")

// execContext is an isolated goroutine that processes one request at a time
type execContext struct {
	slot     int
	renderer Renderer
	pin      bool
	logger   *slog.Logger

	inbox    chan *Request
	quit     chan struct{}
	stopOnce sync.Once
}

func newExecContext(slot int, renderer Renderer, pin bool, logger *slog.Logger) *execContext {
	c := &execContext{
		slot:     slot,
		renderer: renderer,
		pin:      pin,
		logger:   logger,
		inbox:    make(chan *Request, 1),
		quit:     make(chan struct{}),
	}
	go c.run()
	return c
}

// post hands a request to the context without blocking
func (c *execContext) post(req *Request) error {
	select {
	case <-c.quit:
		return errors.New("execution context destroyed")
	default:
	}
	select {
	case c.inbox <- req:
		return nil
	default:
		return errBusy
	}
}

// destroy stops the context. A render already in progress finishes on its own
// but its reply is never read.
func (c *execContext) destroy() {
	c.stopOnce.Do(func() {
		close(c.quit)
	})
}

func (c *execContext) run() {
	if c.pin {
		release, err := cpu.Pin(c.slot)
		defer release()
		if err != nil {
			c.logger.Debug("cpu pinning unavailable", "slot", c.slot, "error", err)
		}
	}

	for {
		select {
		case <-c.quit:
			return
		case req := <-c.inbox:
			resp := c.process(req)
			// reply is buffered(1) and written once
			select {
			case req.reply <- resp:
			default:
			}
		}
	}
}

func (c *execContext) process(req *Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Response{Type: MessageError, Error: fmt.Errorf("panic in execution context: %v", r)}
		}
	}()

	if req.Type != MessageCrop {
		return Response{Type: MessageError, Error: fmt.Errorf("unsupported message type %q", req.Type)}
	}

	blob, err := c.renderer.Render(req.Context(), req.Image, req.Params())
	// drop the pixel reference as soon as the draw is done
	req.Image = nil
	if err != nil {
		return Response{Type: MessageError, Error: err}
	}
	return Response{Type: MessageSuccess, Blob: blob}
}
