// Package terrain loads arena maps: static walls and power-up spawn points.
//
// Two formats are understood. YAML maps list walls and power-ups directly.
// SVG maps, as drawn in Inkscape, turn every <rect> into a wall and every
// element tagged game-tag="engine-force-powerup" into an engine power-up at
// its sodipodi:cx/cy centre.
package terrain

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"spacecraft-server/internal/world"
)

const (
	PowerUpEngineForce = "engine-force"
	PowerUpPlain       = "plain"
)

// Map is a loaded arena description.
type Map struct {
	Name     string    `yaml:"name"`
	XSize    float64   `yaml:"xsize"`
	YSize    float64   `yaml:"ysize"`
	Walls    []Wall    `yaml:"walls"`
	PowerUps []PowerUp `yaml:"powerups"`
}

// Wall is an axis-aligned rectangle with its top-left corner at X, Y.
type Wall struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// PowerUp is a spawn point. A missing coordinate is drawn at random when
// the map is applied.
type PowerUp struct {
	Type     string   `yaml:"type"`
	X        *float64 `yaml:"x"`
	Y        *float64 `yaml:"y"`
	Increase float64  `yaml:"increase"`
}

// Builder is the part of the game a map is applied to.
type Builder interface {
	AddWall(x, y, width, height float64) world.EntityID
	AddPowerUp(x, y, increase float64) world.EntityID
	Size() (float64, float64)
}

// Load reads a map, choosing the format by extension.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read map")
	}
	var m *Map
	switch strings.ToLower(filepath.Ext(path)) {
	case ".svg":
		m, err = ParseSVG(data)
	default:
		m, err = ParseYAML(data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load map %s", path)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// ParseYAML decodes and validates a YAML map.
func ParseYAML(data []byte) (*Map, error) {
	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse yaml map")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate rejects degenerate geometry and unknown power-up types.
func (m *Map) Validate() error {
	if m.XSize < 0 || m.YSize < 0 {
		return errors.Errorf("negative map size %vx%v", m.XSize, m.YSize)
	}
	for i, w := range m.Walls {
		if w.Width <= 0 || w.Height <= 0 {
			return errors.Errorf("wall %d: width and height must be positive", i)
		}
	}
	for i, p := range m.PowerUps {
		switch p.Type {
		case "", PowerUpEngineForce, PowerUpPlain:
		default:
			return errors.Errorf("powerup %d: unknown type %q", i, p.Type)
		}
		if p.Increase < 0 {
			return errors.Errorf("powerup %d: negative increase", i)
		}
	}
	return nil
}

// Apply creates every wall and power-up of the map in b.
func (m *Map) Apply(b Builder, rng *rand.Rand) (walls, powerups int) {
	xsize, ysize := b.Size()
	for _, w := range m.Walls {
		b.AddWall(w.X, w.Y, w.Width, w.Height)
		walls++
	}
	for _, p := range m.PowerUps {
		x, y := rng.Float64()*xsize, rng.Float64()*ysize
		if p.X != nil {
			x = *p.X
		}
		if p.Y != nil {
			y = *p.Y
		}
		b.AddPowerUp(x, y, p.increase())
		powerups++
	}
	return walls, powerups
}

func (p PowerUp) increase() float64 {
	if p.Type == PowerUpPlain {
		return 0
	}
	if p.Increase > 0 {
		return p.Increase
	}
	return world.EngineIncrease
}
