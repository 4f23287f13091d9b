package recording

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacecraft-server/internal/protocol"
	"spacecraft-server/internal/world"
)

func TestRecordAndReplayGame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "match.rec")

	g := world.NewGame(world.Options{Seed: 1, Logger: log.New(io.Discard)})
	g.AddWall(0, 0, 100, 1)
	id := g.AddPlayerAt(nil, "ace", mgl64.Vec2{50, 50})

	rec, err := Create(path, g.MatchID(), g.MapDescription(), nil)
	require.NoError(t, err)
	g.AddMonitor(rec)

	require.NoError(t, g.StartGame())
	require.NoError(t, g.SetThrottle(id, 1))
	for i := 0; i < 5; i++ {
		g.Tick()
	}
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	// frames after close are ignored
	g.Tick()

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	assert.Equal(t, g.MatchID(), h.Match)
	assert.Equal(t, protocol.TypeMapDescription, h.Map.Type)
	require.Len(t, h.Map.Terrain, 1)
	assert.Equal(t, 100.0, h.Map.Terrain[0].Width)

	var steps []uint64
	var last Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		steps = append(steps, rec.Step)
		last = rec
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, steps)
	assert.Equal(t, protocol.StatusRunning, last.Status)

	require.Len(t, last.Objects, 2)
	ship := last.Objects[1]
	assert.Equal(t, "player", ship.Type)
	assert.Equal(t, "ace", ship.Name)
	require.NotNil(t, ship.Health)
	assert.Equal(t, world.PlayerHealth, *ship.Health)
	assert.Greater(t, ship.Position.X(), 50.0)
	assert.Nil(t, last.Objects[0].Health)

	batch, err := last.MonitorBatch()
	require.NoError(t, err)
	lines := protocol.SplitLines(batch)
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"type":"time","step":5}`, string(lines[2]))
}

func TestReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0xc1, 0x00}))
	assert.Error(t, err)

	_, err = NewReader(bytes.NewReader(nil))
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing.rec"))
	assert.Error(t, err)
}
