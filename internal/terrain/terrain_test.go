package terrain

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacecraft-server/internal/world"
)

type fakeBuilder struct {
	walls    []Wall
	powerups [][3]float64
}

func (f *fakeBuilder) AddWall(x, y, w, h float64) world.EntityID {
	f.walls = append(f.walls, Wall{X: x, Y: y, Width: w, Height: h})
	return world.EntityID(len(f.walls))
}

func (f *fakeBuilder) AddPowerUp(x, y, increase float64) world.EntityID {
	f.powerups = append(f.powerups, [3]float64{x, y, increase})
	return world.EntityID(len(f.powerups))
}

func (f *fakeBuilder) Size() (float64, float64) { return 100, 50 }

const arenaYAML = `
name: cross
xsize: 100
ysize: 100
walls:
  - {x: 45, y: 10, width: 10, height: 80}
  - {x: 10, y: 45, width: 80, height: 10}
powerups:
  - {x: 20, y: 20}
  - {x: 80, y: 80, increase: 1.5}
  - {type: plain}
`

func TestParseYAML(t *testing.T) {
	m, err := ParseYAML([]byte(arenaYAML))
	require.NoError(t, err)
	assert.Equal(t, "cross", m.Name)
	assert.Len(t, m.Walls, 2)
	assert.Len(t, m.PowerUps, 3)

	b := &fakeBuilder{}
	walls, powerups := m.Apply(b, rand.New(rand.NewSource(1)))
	assert.Equal(t, 2, walls)
	assert.Equal(t, 3, powerups)
	assert.Equal(t, Wall{X: 45, Y: 10, Width: 10, Height: 80}, b.walls[0])
	assert.Equal(t, [3]float64{20, 20, world.EngineIncrease}, b.powerups[0])
	assert.Equal(t, [3]float64{80, 80, 1.5}, b.powerups[1])

	random := b.powerups[2]
	assert.Equal(t, 0.0, random[2])
	assert.True(t, random[0] >= 0 && random[0] < 100)
	assert.True(t, random[1] >= 0 && random[1] < 50)
}

func TestParseYAMLRejectsBadMaps(t *testing.T) {
	for name, body := range map[string]string{
		"syntax":       "walls: [",
		"flat wall":    "walls: [{x: 1, y: 1, width: 0, height: 3}]",
		"unknown type": "powerups: [{type: shield}]",
		"negative":     "powerups: [{increase: -1}]",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYAML([]byte(body))
			assert.Error(t, err)
		})
	}
}

const crossSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg"
     xmlns:sodipodi="http://sodipodi.sourceforge.net/DTD/sodipodi-0.dtd"
     width="100" height="100px">
  <g>
    <rect x="45" y="10" width="10" height="80"/>
    <rect x="10" y="45" width="80" height="10"/>
    <path game-tag="engine-force-powerup" sodipodi:cx="25" sodipodi:cy="75" d="M 0 0"/>
  </g>
</svg>`

func TestParseSVG(t *testing.T) {
	m, err := ParseSVG([]byte(crossSVG))
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.XSize)
	assert.Equal(t, 100.0, m.YSize)
	require.Len(t, m.Walls, 2)
	assert.Equal(t, Wall{X: 10, Y: 45, Width: 80, Height: 10}, m.Walls[1])
	require.Len(t, m.PowerUps, 1)
	assert.Equal(t, 25.0, *m.PowerUps[0].X)
	assert.Equal(t, 75.0, *m.PowerUps[0].Y)
	assert.Equal(t, world.EngineIncrease, m.PowerUps[0].increase())
}

func TestParseSVGErrors(t *testing.T) {
	_, err := ParseSVG([]byte(`<svg xmlns="http://www.w3.org/2000/svg"><rect x="a" y="1" width="1" height="1"/></svg>`))
	assert.Error(t, err)

	_, err = ParseSVG([]byte(`<svg xmlns="http://www.w3.org/2000/svg"><circle game-tag="engine-force-powerup"/></svg>`))
	assert.Error(t, err)

	_, err = ParseSVG([]byte(`<svg><rect`))
	assert.Error(t, err)
}

func TestLoadAppliesToGame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cross.yaml")
	require.NoError(t, os.WriteFile(path, []byte("walls: [{x: 0, y: 0, width: 100, height: 2}]\npowerups: [{x: 50, y: 50}]\n"), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cross", m.Name)

	g := world.NewGame(world.Options{Seed: 3, Logger: log.New(io.Discard)})
	m.Apply(g, rand.New(rand.NewSource(3)))

	desc := g.MapDescription()
	require.Len(t, desc.Terrain, 1)
	assert.Equal(t, 100.0, desc.Terrain[0].Width)
	assert.Equal(t, 2, g.ObjectCount())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBundledArena(t *testing.T) {
	m, err := Load(filepath.Join("..", "..", "maps", "arena.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.XSize)

	b := &fakeBuilder{}
	walls, powerups := m.Apply(b, rand.New(rand.NewSource(1)))
	assert.Equal(t, 8, walls)
	assert.Equal(t, 4, powerups)
	assert.Equal(t, 0.0, b.powerups[3][2])
}
