package physics

import (
	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl64"
)

// Body is a handle on one rigid body. Accessors on a destroyed body return
// zero values.
type Body struct {
	b2        *box2d.B2Body
	kind      BodyKind
	owner     any
	destroyed bool
}

func (b *Body) Kind() BodyKind  { return b.kind }
func (b *Body) Owner() any      { return b.owner }
func (b *Body) Destroyed() bool { return b.destroyed }

func (b *Body) Position() mgl64.Vec2 {
	if b.destroyed {
		return mgl64.Vec2{}
	}
	return fromB2(b.b2.GetPosition())
}

func (b *Body) Angle() float64 {
	if b.destroyed {
		return 0
	}
	return b.b2.GetAngle()
}

func (b *Body) Velocity() mgl64.Vec2 {
	if b.destroyed {
		return mgl64.Vec2{}
	}
	return fromB2(b.b2.GetLinearVelocity())
}

// SetPosition teleports the body, keeping its angle.
func (b *Body) SetPosition(p mgl64.Vec2) {
	if b.destroyed {
		return
	}
	b.b2.SetTransform(toB2(p), b.b2.GetAngle())
}

// SetAngle rotates the body in place.
func (b *Body) SetAngle(angle float64) {
	if b.destroyed {
		return
	}
	b.b2.SetTransform(b.b2.GetPosition(), angle)
}

func (b *Body) SetVelocity(v mgl64.Vec2) {
	if b.destroyed {
		return
	}
	b.b2.SetLinearVelocity(toB2(v))
}

// StopRotation zeroes any residual angular velocity.
func (b *Body) StopRotation() {
	if b.destroyed {
		return
	}
	b.b2.SetAngularVelocity(0)
}

// ApplyForce pushes the body through its centre of mass, waking it.
func (b *Body) ApplyForce(f mgl64.Vec2) {
	if b.destroyed {
		return
	}
	b.b2.ApplyForceToCenter(toB2(f), true)
}

// SetBullet enables continuous collision detection for fast movers.
func (b *Body) SetBullet(on bool) {
	if b.destroyed {
		return
	}
	b.b2.SetBullet(on)
}
