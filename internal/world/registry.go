package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"spacecraft-server/internal/physics"
	"spacecraft-server/internal/protocol"
)

// AddMonitor registers a full-view client. It receives the map description
// and the current status before its first frame.
func (g *Game) AddMonitor(c Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hello(c)
	g.clients = append(g.clients, c)
}

// AddPlayer spawns a ship at a random position, binds it to c and registers
// c for frames.
func (g *Game) AddPlayer(c Client, name string) EntityID {
	g.mu.Lock()
	defer g.mu.Unlock()
	pos := mgl64.Vec2{g.rng.Float64() * g.opts.XSize, g.rng.Float64() * g.opts.YSize}
	return g.addPlayerLocked(c, name, pos)
}

// AddPlayerAt is AddPlayer with a fixed spawn position.
func (g *Game) AddPlayerAt(c Client, name string, pos mgl64.Vec2) EntityID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addPlayerLocked(c, name, pos)
}

func (g *Game) addPlayerLocked(c Client, name string, pos mgl64.Vec2) EntityID {
	e := g.spawn(KindPlayer, physics.Dynamic, pos, 0, physics.Circle(PlayerRadius))
	if name == "" {
		name = fmt.Sprintf("player-%d", e.ID)
	}
	e.Player = newPlayer(name)
	g.players = append(g.players, e.ID)
	g.results[e.ID] = &PlayerResult{ID: e.ID, Name: name}
	g.joined = append(g.joined, e.ID)

	if c != nil {
		g.hello(c)
		g.clients = append(g.clients, c)
		g.playerOf[c] = e.ID
	}
	g.log.Info("player joined", "entity", e.ID, "name", name, "pos", pos)
	g.track(Event{Type: EventPlayerJoined, Player: e.ID, Name: name})
	return e.ID
}

func (g *Game) hello(c Client) {
	c.Notify(g.mapDescription())
	c.Notify(g.statusMessage())
}

// RemoveClient unregisters c and destroys the ship it controlled, if any.
// It runs outside the tick and takes effect before the next one.
func (g *Game) RemoveClient(c Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, other := range g.clients {
		if other == c {
			g.clients = append(g.clients[:i], g.clients[i+1:]...)
			break
		}
	}
	id, ok := g.playerOf[c]
	if !ok {
		return
	}
	delete(g.playerOf, c)
	if e, ok := g.entities[id]; ok {
		g.destroy(e)
	}
}

// AddWall places a static rectangle whose top-left corner is at x, y.
func (g *Game) AddWall(x, y, width, height float64) EntityID {
	g.mu.Lock()
	defer g.mu.Unlock()

	center := mgl64.Vec2{x + width/2, y + height/2}
	e := g.spawn(KindWall, physics.Static, center, 0, physics.Box(width, height))
	e.Wall = &Wall{X: x, Y: y, Width: width, Height: height}
	g.terrain = append(g.terrain, protocol.Terrain{
		Type: KindWall.String(), X: x, Y: y, Width: width, Height: height,
	})
	return e.ID
}

// AddPowerUp places a power-up at x, y. A positive increase makes it an
// engine-force power-up.
func (g *Game) AddPowerUp(x, y, increase float64) EntityID {
	g.mu.Lock()
	defer g.mu.Unlock()

	e := g.spawn(KindPowerUp, physics.Dynamic, mgl64.Vec2{x, y}, 0, physics.Circle(PowerUpRadius))
	e.PowerUp = &PowerUp{Increase: increase}
	return e.ID
}

// spawn allocates an entity and its body. Caller holds mu.
func (g *Game) spawn(kind Kind, bodyKind physics.BodyKind, pos mgl64.Vec2, angle float64, shape physics.Shape) *Entity {
	g.nextID++
	e := &Entity{ID: g.nextID, Kind: kind}
	e.body = g.physics.CreateBody(bodyKind, pos, angle, shape, e)
	g.entities[e.ID] = e
	g.order = append(g.order, e.ID)
	return e
}

// destroy releases the entity and its body. Destroying twice is a no-op.
// Caller holds mu.
func (g *Game) destroy(e *Entity) {
	if e == nil || e.destroyed {
		return
	}
	e.destroyed = true
	g.physics.DestroyBody(e.body)
	delete(g.entities, e.ID)
	g.order = removeID(g.order, e.ID)

	if e.Kind == KindPlayer {
		g.unregisterPlayer(e)
	}
}

// unregisterPlayer drops a dead or disconnected ship and ends a running
// game once a single player is left.
func (g *Game) unregisterPlayer(e *Entity) {
	g.players = removeID(g.players, e.ID)
	g.log.Info("player removed", "entity", e.ID, "name", e.Player.Name, "remaining", len(g.players))
	g.track(Event{Type: EventPlayerLeft, Player: e.ID, Name: e.Player.Name})

	if g.status == Running && len(g.players) == 1 {
		g.finish(g.players[0])
	}
}

func removeID(ids []EntityID, id EntityID) []EntityID {
	for i, other := range ids {
		if other == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// player looks up a live ship. Caller holds mu.
func (g *Game) player(id EntityID) (*Entity, error) {
	e, ok := g.entities[id]
	if !ok || e.Kind != KindPlayer {
		return nil, ErrUnknownEntity
	}
	return e, nil
}

// SetThrottle queues a throttle in [0, 1] for the next tick.
func (g *Game) SetThrottle(id EntityID, v float64) error {
	if math.IsNaN(v) {
		return protocol.ErrBadValue
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.player(id)
	if err != nil {
		return err
	}
	e.Player.Throttle = Clamp(v, 0, 1)
	return nil
}

// SetTurn queues a turn in [-1, 1] for the next tick.
func (g *Game) SetTurn(id EntityID, v float64) error {
	if math.IsNaN(v) {
		return protocol.ErrBadValue
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.player(id)
	if err != nil {
		return err
	}
	e.Player.Turn = Clamp(v, -1, 1)
	return nil
}

// Fire raises the fire flag; it stays set until a bullet is spawned.
func (g *Game) Fire(id EntityID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.player(id)
	if err != nil {
		return err
	}
	e.Player.Fire = true
	return nil
}

// SetName renames a ship.
func (g *Game) SetName(id EntityID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.player(id)
	if err != nil {
		return err
	}
	if name == "" {
		return nil
	}
	e.Player.Name = name
	if r, ok := g.results[id]; ok {
		r.Name = name
	}
	return nil
}

// PlayerSnapshot is a copy of a ship's state for inspection.
type PlayerSnapshot struct {
	ID       EntityID
	Player   Player
	Position mgl64.Vec2
	Angle    float64
	Velocity mgl64.Vec2
}

// Player returns a copy of a live ship.
func (g *Game) Player(id EntityID) (PlayerSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.player(id)
	if err != nil {
		return PlayerSnapshot{}, false
	}
	return PlayerSnapshot{
		ID:       id,
		Player:   *e.Player,
		Position: e.Position(),
		Angle:    e.Angle(),
		Velocity: e.Velocity(),
	}, true
}

// Alive reports whether an entity is still in the world.
func (g *Game) Alive(id EntityID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entities[id]
	return ok
}
