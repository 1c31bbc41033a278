package worker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/cropflow/internal/testutils"
	"github.com/jzx17/cropflow/pkg/transform"
)

func TestNewTask(t *testing.T) {
	src := transform.NewBitmapFromImage(testutils.Gradient(2, 2))
	a := NewTask(src, transform.Params{})
	b := NewTask(src, transform.Params{})

	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Same(t, src, a.Source)
}

func TestNewCropRequest(t *testing.T) {
	params := transform.Params{
		Crop:          transform.Rect{X: 1, Y: 2, Width: 3, Height: 4},
		Scale:         1.5,
		Rotate:        90,
		PixelRatio:    2,
		DisplayWidth:  50,
		DisplayHeight: 25,
	}
	task := Task{ID: "t1", Params: params}

	req := newCropRequest(context.Background(), task, testutils.Gradient(100, 50), 100, 50)
	assert.Equal(t, MessageCrop, req.Type)
	assert.Equal(t, "t1", req.TaskID)
	assert.Equal(t, 100, req.NaturalWidth)
	assert.Equal(t, 50, req.NaturalHeight)

	want := params
	want.NaturalWidth = 100
	want.NaturalHeight = 50
	assert.Equal(t, want, req.Params())
	assert.Equal(t, 1, cap(req.reply))

	params.NaturalWidth = 10
	params.NaturalHeight = 5
	req = newCropRequest(context.Background(), Task{Params: params}, nil, 100, 50)
	assert.Equal(t, 10, req.NaturalWidth)
	assert.Equal(t, 5, req.NaturalHeight)
}

func TestRequest_ContextDefaults(t *testing.T) {
	var req Request
	assert.NotNil(t, req.Context())
}
