package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"spacecraft-server/internal/physics"
	"spacecraft-server/internal/protocol"
)

const (
	PlayerRadius   = 1.0
	PlayerHealth   = 100.0
	MaxForce       = 40.0
	MaxTurn        = math.Pi / 8
	ReloadDelay    = 10
	BulletRadius   = 0.1
	BulletTTL      = 100
	BulletDamage   = 10.0
	MuzzleOffset   = 1.5 // spawn distance from ship centre
	MuzzleSpeed    = 30.0
	PowerUpRadius  = 1.0
	EngineIncrease = 1.2
)

// EntityID is a stable, monotonically assigned identity.
type EntityID uint64

// Kind tags the variant stored in an Entity.
type Kind uint8

const (
	KindWall Kind = iota + 1
	KindPlayer
	KindBullet
	KindPowerUp
)

var kindNames = map[Kind]string{
	KindWall:    "wall",
	KindPlayer:  "player",
	KindBullet:  "bullet",
	KindPowerUp: "powerup",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Entity is one simulated object. Exactly one of the variant payloads is
// set, matching Kind. The entity owns its physics body.
type Entity struct {
	ID   EntityID
	Kind Kind

	Wall    *Wall
	Player  *Player
	Bullet  *Bullet
	PowerUp *PowerUp

	body      *physics.Body
	destroyed bool
}

// Wall is a static rectangle with its top-left corner at X, Y.
type Wall struct {
	X, Y, Width, Height float64
}

// Player is a ship driven by a network client. Throttle, Turn and Fire are
// queued by commands and consumed by the next tick.
type Player struct {
	Name            string
	Health          float64
	MaxForce        float64
	MaxTurn         float64
	ReloadDelay     uint
	Reloading       uint
	Throttle        float64
	Turn            float64
	Fire            bool
	CurrentThrottle float64
	Kills           int
}

// Bullet ages one TTL unit per tick and dies on any contact.
type Bullet struct {
	TTL     uint
	Damage  float64
	Shooter EntityID
}

// PowerUp disappears on first contact. A non-zero Increase makes it an
// engine-force power-up that multiplies the toucher's MaxForce.
type PowerUp struct {
	Increase float64
}

func newPlayer(name string) *Player {
	return &Player{
		Name:        name,
		Health:      PlayerHealth,
		MaxForce:    MaxForce,
		MaxTurn:     MaxTurn,
		ReloadDelay: ReloadDelay,
	}
}

func (e *Entity) Destroyed() bool { return e.destroyed }

func (e *Entity) Position() mgl64.Vec2 { return e.body.Position() }

func (e *Entity) Angle() float64 { return e.body.Angle() }

func (e *Entity) Velocity() mgl64.Vec2 { return e.body.Velocity() }

// State renders the monitor view of the entity.
func (e *Entity) State() protocol.ObjectState {
	st := protocol.ObjectState{
		Type:     e.Kind.String(),
		ID:       uint64(e.ID),
		Position: e.body.Position(),
		Angle:    e.body.Angle(),
		Velocity: e.body.Velocity(),
	}
	if p := e.Player; p != nil {
		health, throttle := p.Health, p.CurrentThrottle
		st.Health = &health
		st.Throttle = &throttle
		st.Name = p.Name
	}
	return st
}

// heading returns the unit vector the entity is facing.
func heading(angle float64) mgl64.Vec2 {
	return mgl64.Rotate2D(angle).Mul2x1(mgl64.Vec2{1, 0})
}
