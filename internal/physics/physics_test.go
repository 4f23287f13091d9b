package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndDestroyBody(t *testing.T) {
	w := NewWorld(10, 10)
	b := w.CreateBody(Dynamic, mgl64.Vec2{10, 20}, 0.5, Circle(1), "ship")

	assert.Equal(t, "ship", b.Owner())
	assert.Equal(t, Dynamic, b.Kind())
	assert.InDelta(t, 10, b.Position().X(), 1e-9)
	assert.InDelta(t, 20, b.Position().Y(), 1e-9)
	assert.InDelta(t, 0.5, b.Angle(), 1e-9)
	assert.Equal(t, 1, w.BodyCount())

	w.DestroyBody(b)
	assert.True(t, b.Destroyed())
	assert.Equal(t, 0, w.BodyCount())

	// second destroy is a no-op
	w.DestroyBody(b)
	assert.Equal(t, mgl64.Vec2{}, b.Position())
}

func TestApplyForceMovesBody(t *testing.T) {
	w := NewWorld(10, 10)
	b := w.CreateBody(Dynamic, mgl64.Vec2{50, 50}, 0, Circle(1), nil)

	b.ApplyForce(mgl64.Vec2{40, 0})
	w.Step(1.0 / 20)
	w.ClearForces()

	assert.Greater(t, b.Velocity().X(), 0.0)
	assert.InDelta(t, 0, b.Velocity().Y(), 1e-9)

	// forces were cleared, velocity is kept
	v := b.Velocity().X()
	w.Step(1.0 / 20)
	assert.InDelta(t, v, b.Velocity().X(), 1e-6)
}

func TestContactsReportTouchingPairs(t *testing.T) {
	w := NewWorld(10, 10)
	w.CreateBody(Dynamic, mgl64.Vec2{10, 10}, 0, Circle(1), "a")
	w.CreateBody(Dynamic, mgl64.Vec2{11, 10}, 0, Circle(1), "b")
	w.CreateBody(Dynamic, mgl64.Vec2{80, 80}, 0, Circle(1), "far")

	w.Step(1.0 / 20)
	contacts := w.Contacts()
	require.Len(t, contacts, 1)

	pair := []any{contacts[0].A.Owner(), contacts[0].B.Owner()}
	assert.ElementsMatch(t, []any{"a", "b"}, pair)
}

func TestContactsSnapshotSurvivesDestroy(t *testing.T) {
	w := NewWorld(10, 10)
	w.CreateBody(Dynamic, mgl64.Vec2{10, 10}, 0, Circle(1), "a")
	w.CreateBody(Dynamic, mgl64.Vec2{11, 10}, 0, Circle(1), "b")
	w.Step(1.0 / 20)

	contacts := w.Contacts()
	require.Len(t, contacts, 1)
	w.DestroyBody(contacts[0].A)
	w.DestroyBody(contacts[0].B)

	assert.True(t, contacts[0].A.Destroyed())
	assert.Empty(t, w.Contacts())
}

func TestRayCastReturnsClosestHit(t *testing.T) {
	w := NewWorld(10, 10)
	self := w.CreateBody(Dynamic, mgl64.Vec2{10, 50}, 0, Circle(1), "self")
	w.CreateBody(Static, mgl64.Vec2{21, 50}, 0, Box(2, 10), "wall")
	w.CreateBody(Dynamic, mgl64.Vec2{30, 50}, 0, Circle(1), "powerup")

	hit, ok := w.RayCast(mgl64.Vec2{10, 50}, mgl64.Vec2{40, 50}, self)
	require.True(t, ok)
	assert.Equal(t, "wall", hit.Owner())

	_, ok = w.RayCast(mgl64.Vec2{10, 50}, mgl64.Vec2{10, 80}, self)
	assert.False(t, ok)
}

func TestBodiesInCreationOrder(t *testing.T) {
	w := NewWorld(10, 10)
	a := w.CreateBody(Static, mgl64.Vec2{1, 1}, 0, Box(1, 1), 1)
	b := w.CreateBody(Dynamic, mgl64.Vec2{5, 5}, 0, Circle(1), 2)
	c := w.CreateBody(Dynamic, mgl64.Vec2{9, 9}, 0, Circle(1), 3)

	w.DestroyBody(b)
	assert.Equal(t, []*Body{a, c}, w.Bodies())
}

func TestSetPositionKeepsAngle(t *testing.T) {
	w := NewWorld(10, 10)
	b := w.CreateBody(Dynamic, mgl64.Vec2{1, 1}, 1.25, Circle(1), nil)

	b.SetPosition(mgl64.Vec2{7, 8})
	assert.InDelta(t, 7, b.Position().X(), 1e-9)
	assert.InDelta(t, 1.25, b.Angle(), 1e-9)

	b.SetAngle(2)
	assert.InDelta(t, 2, b.Angle(), 1e-9)
	assert.InDelta(t, 8, b.Position().Y(), 1e-9)
}
