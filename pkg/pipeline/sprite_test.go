package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/cropflow/pkg/transform"
)

func TestSpriteJobs(t *testing.T) {
	jobs := SpriteJobs(Sprite{
		ID:         "emoji",
		Source:     "s3://assets/emoji.png",
		KeyPrefix:  "sprites/emoji",
		TileWidth:  32,
		TileHeight: 16,
		Columns:    3,
		Rows:       2,
		Count:      5,
		PixelRatio: 2,
	})

	require.Len(t, jobs, 5)
	for _, job := range jobs {
		assert.Equal(t, "s3://assets/emoji.png", job.Source)
		assert.Equal(t, 2.0, job.Params.PixelRatio)
	}
	assert.Equal(t, "emoji-000", jobs[0].ID)
	assert.Equal(t, "sprites/emoji/emoji-004", jobs[4].Key)
	assert.Equal(t, transform.Rect{X: 64, Y: 0, Width: 32, Height: 16}, jobs[2].Params.Crop)
	assert.Equal(t, transform.Rect{X: 32, Y: 16, Width: 32, Height: 16}, jobs[4].Params.Crop)
}

func TestSpriteJobs_Invalid(t *testing.T) {
	assert.Empty(t, SpriteJobs(Sprite{ID: "x", Columns: 0, Rows: 2, TileWidth: 1, TileHeight: 1}))
	assert.Empty(t, SpriteJobs(Sprite{ID: "x", Columns: 2, Rows: 2, TileWidth: 0, TileHeight: 1}))
	assert.Len(t, SpriteJobs(Sprite{ID: "x", Columns: 2, Rows: 2, TileWidth: 1, TileHeight: 1}), 4)
}
