package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"spacecraft-server/internal/physics"
)

// execute runs the per-tick behaviour of one entity. Caller holds mu.
func (g *Game) execute(e *Entity) {
	switch e.Kind {
	case KindPlayer:
		g.executePlayer(e)
	case KindBullet:
		g.executeBullet(e)
	}
}

func (g *Game) executePlayer(e *Entity) {
	p := e.Player
	if p.Turn != 0 {
		e.body.StopRotation()
		e.body.SetAngle(NormalizeAngle(e.body.Angle() + p.MaxTurn*p.Turn))
		p.Turn = 0
	}

	p.CurrentThrottle = p.Throttle
	if p.Throttle != 0 {
		e.body.ApplyForce(heading(e.body.Angle()).Mul(p.MaxForce * p.Throttle))
		p.Throttle = 0
	}

	if p.Reloading > 0 {
		p.Reloading--
	} else if p.Fire {
		g.fireBullet(e)
		p.Reloading = p.ReloadDelay
		p.Fire = false
	}
}

func (g *Game) executeBullet(e *Entity) {
	b := e.Bullet
	if b.TTL > 0 {
		b.TTL--
	}
	if b.TTL == 0 {
		g.destroy(e)
	}
}

// fireBullet spawns a bullet ahead of the shooter, moving at the shooter's
// velocity plus the muzzle speed along its heading.
func (g *Game) fireBullet(shooter *Entity) *Entity {
	angle := shooter.body.Angle()
	rot := mgl64.Rotate2D(angle)
	pos := shooter.body.Position().Add(rot.Mul2x1(mgl64.Vec2{MuzzleOffset, 0}))
	vel := shooter.body.Velocity().Add(rot.Mul2x1(mgl64.Vec2{MuzzleSpeed, 0}))
	return g.spawnBullet(pos, vel, angle, shooter.ID)
}

func (g *Game) spawnBullet(pos, vel mgl64.Vec2, angle float64, shooter EntityID) *Entity {
	e := g.spawn(KindBullet, physics.Dynamic, pos, angle, physics.Circle(BulletRadius))
	e.Bullet = &Bullet{TTL: BulletTTL, Damage: BulletDamage, Shooter: shooter}
	e.body.SetVelocity(vel)
	e.body.SetBullet(true)
	return e
}

// contact applies self's reaction to touching other. Caller holds mu.
func (g *Game) contact(self, other *Entity) {
	if self.destroyed {
		return
	}
	switch self.Kind {
	case KindBullet:
		if other.Kind == KindPlayer && !other.destroyed {
			g.takeDamage(other, self.Bullet.Damage, self.Bullet.Shooter)
		}
		g.destroy(self)
	case KindPowerUp:
		if self.PowerUp.Increase > 0 && other.Kind == KindPlayer && !other.destroyed {
			other.Player.MaxForce *= self.PowerUp.Increase
			g.log.Debug("engine force boosted", "entity", other.ID, "max_force", other.Player.MaxForce)
		}
		g.destroy(self)
	}
}

// takeDamage lowers health and destroys the ship once it reaches zero,
// crediting the shooter.
func (g *Game) takeDamage(e *Entity, amount float64, by EntityID) {
	p := e.Player
	p.Health -= amount
	if p.Health > 0 {
		return
	}

	if r, ok := g.results[e.ID]; ok {
		r.Deaths++
	}
	if shooter, ok := g.entities[by]; ok && shooter.Kind == KindPlayer && by != e.ID {
		shooter.Player.Kills++
	}
	if r, ok := g.results[by]; ok && by != e.ID {
		r.Kills++
	}
	g.track(Event{Type: EventPlayerKilled, Player: e.ID, Name: p.Name, Other: by})
	g.destroy(e)
}
