package worker

import (
	"context"
	"image"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/cropflow/internal/testutils"
	"github.com/jzx17/cropflow/pkg/transform"
)

func TestExecContext_Process(t *testing.T) {
	tests := []struct {
		name        string
		renderer    Renderer
		msgType     MessageType
		expectType  MessageType
		errContains string
	}{
		{
			name:       "success",
			renderer:   okRenderer,
			msgType:    MessageCrop,
			expectType: MessageSuccess,
		},
		{
			name:        "unsupported message",
			renderer:    okRenderer,
			msgType:     MessageType("resize"),
			expectType:  MessageError,
			errContains: "unsupported message type",
		},
		{
			name: "panic is reported",
			renderer: renderFunc(func(ctx context.Context, img image.Image, p transform.Params) (transform.Blob, error) {
				panic("bad pixel")
			}),
			msgType:     MessageCrop,
			expectType:  MessageError,
			errContains: "bad pixel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newExecContext(0, tt.renderer, false, slog.Default())
			defer c.destroy()

			req := newCropRequest(context.Background(), gradientTask("t"), testutils.Gradient(4, 4), 4, 4)
			req.Type = tt.msgType
			require.NoError(t, c.post(req))

			select {
			case resp := <-req.reply:
				assert.Equal(t, tt.expectType, resp.Type)
				if tt.errContains != "" {
					require.Error(t, resp.Error)
					assert.Contains(t, resp.Error.Error(), tt.errContains)
				} else {
					assert.NoError(t, resp.Error)
				}
			case <-waitCtx(t).Done():
				t.Fatal("no response")
			}
		})
	}
}

func TestExecContext_RendersWithRealRenderer(t *testing.T) {
	c := newExecContext(0, transform.NewRenderer(nil), false, slog.Default())
	defer c.destroy()

	task := gradientTask("real")
	task.Params.Crop = transform.Rect{X: 4, Y: 4, Width: 4, Height: 2}
	req := newCropRequest(context.Background(), task, testutils.Gradient(16, 16), 16, 16)
	require.NoError(t, c.post(req))

	resp := <-req.reply
	require.NoError(t, resp.Error)
	assert.Equal(t, 4, resp.Blob.Width)
	assert.Equal(t, 2, resp.Blob.Height)
	assert.Nil(t, req.Image)
}

func TestExecContext_Destroy(t *testing.T) {
	c := newExecContext(0, okRenderer, false, slog.Default())
	c.destroy()
	c.destroy()

	req := newCropRequest(context.Background(), gradientTask("t"), testutils.Gradient(2, 2), 2, 2)
	assert.Error(t, c.post(req))
}
