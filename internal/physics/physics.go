// Package physics wraps the box2d rigid-body world behind the small set of
// operations the game engine needs: body lifecycle, forces, stepping,
// touching contacts and closest-hit ray casts.
package physics

import (
	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl64"
)

// BodyKind selects how a body takes part in the simulation.
type BodyKind int

const (
	Static BodyKind = iota
	Kinematic
	Dynamic
)

func (k BodyKind) String() string {
	switch k {
	case Static:
		return "static"
	case Kinematic:
		return "kinematic"
	case Dynamic:
		return "dynamic"
	}
	return "unknown"
}

// Shape describes the single fixture attached to a body.
type Shape struct {
	radius  float64
	halfW   float64
	halfH   float64
	box     bool
	density float64
}

// Circle returns a circular shape of radius r with unit density.
func Circle(r float64) Shape {
	return Shape{radius: r, density: 1}
}

// Box returns a w x h rectangle centred on the body position.
func Box(w, h float64) Shape {
	return Shape{halfW: w / 2, halfH: h / 2, box: true, density: 1}
}

// Contact is a touching pair of bodies reported after a step.
type Contact struct {
	A, B *Body
}

// World is a zero-gravity box2d world. It is not safe for concurrent use;
// the game engine serialises access.
type World struct {
	b2       *box2d.B2World
	velIters int
	posIters int
	bodies   []*Body
}

// NewWorld creates an empty world stepped with the given solver iterations.
func NewWorld(velocityIterations, positionIterations int) *World {
	w := box2d.MakeB2World(box2d.MakeB2Vec2(0, 0)) // seen from the top
	return &World{
		b2:       &w,
		velIters: velocityIterations,
		posIters: positionIterations,
	}
}

// CreateBody adds a body with one fixture and attaches owner as its user data.
func (w *World) CreateBody(kind BodyKind, position mgl64.Vec2, angle float64, shape Shape, owner any) *Body {
	bodydef := box2d.MakeB2BodyDef()
	bodydef.Position.Set(position.X(), position.Y())
	bodydef.Angle = angle
	switch kind {
	case Static:
		bodydef.Type = box2d.B2BodyType.B2_staticBody
	case Kinematic:
		bodydef.Type = box2d.B2BodyType.B2_kinematicBody
	default:
		bodydef.Type = box2d.B2BodyType.B2_dynamicBody
	}

	b2body := w.b2.CreateBody(&bodydef)

	fixturedef := box2d.MakeB2FixtureDef()
	if shape.box {
		poly := box2d.MakeB2PolygonShape()
		poly.SetAsBox(shape.halfW, shape.halfH)
		fixturedef.Shape = &poly
	} else {
		circle := box2d.MakeB2CircleShape()
		circle.SetRadius(shape.radius)
		fixturedef.Shape = &circle
	}
	if kind == Dynamic {
		fixturedef.Density = shape.density
	}
	b2body.CreateFixtureFromDef(&fixturedef)

	body := &Body{b2: b2body, kind: kind, owner: owner}
	b2body.SetUserData(body)
	w.bodies = append(w.bodies, body)
	return body
}

// DestroyBody removes the body from the world. Destroying twice is a no-op.
func (w *World) DestroyBody(b *Body) {
	if b == nil || b.destroyed {
		return
	}
	w.b2.DestroyBody(b.b2)
	b.destroyed = true
	b.b2 = nil
	for i, other := range w.bodies {
		if other == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			break
		}
	}
}

// Step integrates the world by dt seconds.
func (w *World) Step(dt float64) {
	w.b2.Step(dt, w.velIters, w.posIters)
}

// ClearForces resets the forces accumulated since the last step.
func (w *World) ClearForces() {
	w.b2.ClearForces()
}

// Contacts collects every touching pair known to the world. The slice is a
// snapshot: callers may destroy bodies while walking it.
func (w *World) Contacts() []Contact {
	var contacts []Contact
	for c := w.b2.GetContactList(); c != nil; c = c.GetNext() {
		if !c.IsTouching() {
			continue
		}
		a := bodyOf(c.GetFixtureA())
		b := bodyOf(c.GetFixtureB())
		if a == nil || b == nil {
			continue
		}
		contacts = append(contacts, Contact{A: a, B: b})
	}
	return contacts
}

// RayCast returns the body closest to from along the segment from -> to,
// skipping ignore.
func (w *World) RayCast(from, to mgl64.Vec2, ignore *Body) (*Body, bool) {
	if from == to {
		return nil, false
	}
	var hit *Body
	w.b2.RayCast(
		func(fixture *box2d.B2Fixture, point box2d.B2Vec2, normal box2d.B2Vec2, fraction float64) float64 {
			body := bodyOf(fixture)
			if body == nil || body == ignore {
				return -1 // filter
			}
			hit = body
			return fraction // clip the ray to this hit
		},
		toB2(from),
		toB2(to),
	)
	return hit, hit != nil
}

// Bodies returns the live bodies in creation order.
func (w *World) Bodies() []*Body {
	out := make([]*Body, len(w.bodies))
	copy(out, w.bodies)
	return out
}

// BodyCount reports the number of live bodies.
func (w *World) BodyCount() int {
	return len(w.bodies)
}

func bodyOf(f *box2d.B2Fixture) *Body {
	if f == nil || f.GetBody() == nil {
		return nil
	}
	body, ok := f.GetBody().GetUserData().(*Body)
	if !ok || body.destroyed {
		return nil
	}
	return body
}

func toB2(v mgl64.Vec2) box2d.B2Vec2 {
	return box2d.MakeB2Vec2(v.X(), v.Y())
}

func fromB2(v box2d.B2Vec2) mgl64.Vec2 {
	return mgl64.Vec2{v.X, v.Y}
}
