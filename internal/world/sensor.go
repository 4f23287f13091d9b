package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"spacecraft-server/internal/protocol"
)

const (
	RadarRays  = 360
	RadarRange = 30.0
)

// Sensor turns a live player's view of the world into readings. Sensors run
// inside the tick with the game lock held.
type Sensor interface {
	Readings(g *Game, e *Entity) []any
}

// GPSSensor reports the player's own position, heading and motion.
type GPSSensor struct{}

func (GPSSensor) Readings(_ *Game, e *Entity) []any {
	return []any{protocol.GPSReading{
		Type:     protocol.TypeSensor,
		Sensor:   protocol.SensorGPS,
		Position: e.Position(),
		Angle:    e.Angle(),
		Velocity: e.Velocity(),
		Throttle: e.Player.CurrentThrottle,
		Health:   e.Player.Health,
	}}
}

// RadarSensor casts Rays equally spaced rays of length Range around the
// player and reports the closest entity hit by each one.
type RadarSensor struct {
	Rays  int
	Range float64
}

func (r RadarSensor) Readings(g *Game, e *Entity) []any {
	rays := r.Rays
	if rays <= 0 {
		rays = RadarRays
	}
	origin := e.Position()
	var out []any
	for i := 0; i < rays; i++ {
		a := 2 * math.Pi * float64(i) / float64(rays)
		target := origin.Add(mgl64.Vec2{math.Cos(a), math.Sin(a)}.Mul(r.Range))
		body, ok := g.physics.RayCast(origin, target, e.body)
		if !ok {
			continue
		}
		hit, ok := body.Owner().(*Entity)
		if !ok || hit.destroyed {
			continue
		}
		out = append(out, protocol.RadarReading{
			Type:       protocol.TypeSensor,
			Sensor:     protocol.SensorRadar,
			ObjectType: hit.Kind.String(),
			ID:         uint64(hit.ID),
			Position:   hit.Position(),
			Angle:      hit.Angle(),
			Velocity:   hit.Velocity(),
		})
	}
	return out
}

// StatusSensor reports health.
type StatusSensor struct{}

func (StatusSensor) Readings(_ *Game, e *Entity) []any {
	return []any{protocol.StatusReading{
		Type:   protocol.TypeSensor,
		Sensor: protocol.SensorStatus,
		Health: e.Player.Health,
	}}
}
