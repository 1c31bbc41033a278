package pipeline

import (
	"fmt"
	"path"

	"github.com/jzx17/cropflow/pkg/transform"
)

// Sprite describes a sheet of equally sized tiles laid out in a grid
type Sprite struct {
	ID         string  `json:"id" mapstructure:"id"`
	Source     string  `json:"source" mapstructure:"source"`
	KeyPrefix  string  `json:"key_prefix" mapstructure:"key_prefix"`
	TileWidth  float64 `json:"tile_width" mapstructure:"tile_width"`
	TileHeight float64 `json:"tile_height" mapstructure:"tile_height"`
	Columns    int     `json:"columns" mapstructure:"columns"`
	Rows       int     `json:"rows" mapstructure:"rows"`

	// Count limits the number of tiles taken in row-major order; 0 means all
	Count int `json:"count" mapstructure:"count"`

	PixelRatio float64 `json:"pixel_ratio" mapstructure:"pixel_ratio"`
}

// SpriteJobs fans a sprite sheet out into one job per tile. All jobs share the
// sheet's source, which Run loads once.
func SpriteJobs(s Sprite) []Job {
	if s.Columns <= 0 || s.Rows <= 0 || s.TileWidth <= 0 || s.TileHeight <= 0 {
		return nil
	}
	n := s.Columns * s.Rows
	if s.Count > 0 && s.Count < n {
		n = s.Count
	}

	jobs := make([]Job, 0, n)
	for i := 0; i < n; i++ {
		col, row := i%s.Columns, i/s.Columns
		id := fmt.Sprintf("%s-%03d", s.ID, i)
		jobs = append(jobs, Job{
			ID:     id,
			Source: s.Source,
			Key:    path.Join(s.KeyPrefix, id),
			Params: transform.Params{
				Crop: transform.Rect{
					X:      float64(col) * s.TileWidth,
					Y:      float64(row) * s.TileHeight,
					Width:  s.TileWidth,
					Height: s.TileHeight,
				},
				PixelRatio: s.PixelRatio,
			},
		})
	}
	return jobs
}
