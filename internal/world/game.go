// Package world runs the authoritative simulation: the tick pipeline, the
// WAITING -> RUNNING -> FINISHED state machine, the entity arena and the
// per-player sensors.
package world

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"spacecraft-server/internal/metrics"
	"spacecraft-server/internal/physics"
	"spacecraft-server/internal/protocol"
)

var (
	ErrNotWaiting    = errors.New("game is not waiting to start")
	ErrUnknownEntity = errors.New("unknown entity")
)

// Status is the game state machine position.
type Status int

const (
	Waiting Status = iota
	Running
	Finished
)

func (s Status) String() string {
	switch s {
	case Running:
		return protocol.StatusRunning
	case Finished:
		return protocol.StatusFinished
	}
	return protocol.StatusWaiting
}

// Client receives per-tick frames and out-of-band messages. Both methods
// are called with the game lock held or from the tick goroutine and must
// not block.
type Client interface {
	Update(f *Frame)
	Notify(msg any)
}

// Options configures a Game. Zero fields take the defaults of
// DefaultOptions.
type Options struct {
	XSize              float64
	YSize              float64
	TickPeriod         time.Duration
	VelocityIterations int
	PositionIterations int
	RadarRange         float64
	RadarRays          int
	// SkipStaticWrap leaves static bodies out of the wraparound pass.
	SkipStaticWrap bool
	Seed           int64

	Logger  *log.Logger
	Metrics *metrics.Metrics
	Events  EventSink
}

func DefaultOptions() Options {
	return Options{
		XSize:              100,
		YSize:              100,
		TickPeriod:         time.Second / 20,
		VelocityIterations: 10,
		PositionIterations: 10,
		RadarRange:         RadarRange,
		RadarRays:          RadarRays,
	}
}

// Game holds the whole simulation. All state is guarded by mu; the tick is
// the only place that advances it.
type Game struct {
	mu      sync.Mutex
	opts    Options
	log     *log.Logger
	metrics *metrics.Metrics
	events  EventSink
	rng     *rand.Rand
	physics *physics.World
	sensors []Sensor

	matchID   string
	status    Status
	winner    EntityID
	step      uint64
	startedAt time.Time

	nextID   EntityID
	entities map[EntityID]*Entity
	order    []EntityID // every live entity, registration order
	players  []EntityID // live players, registration order
	terrain  []protocol.Terrain

	clients  []Client
	playerOf map[Client]EntityID
	results  map[EntityID]*PlayerResult
	joined   []EntityID
}

// NewGame creates an empty world in the WAITING state.
func NewGame(opts Options) *Game {
	def := DefaultOptions()
	if opts.XSize <= 0 {
		opts.XSize = def.XSize
	}
	if opts.YSize <= 0 {
		opts.YSize = def.YSize
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = def.TickPeriod
	}
	if opts.VelocityIterations <= 0 {
		opts.VelocityIterations = def.VelocityIterations
	}
	if opts.PositionIterations <= 0 {
		opts.PositionIterations = def.PositionIterations
	}
	if opts.RadarRange <= 0 {
		opts.RadarRange = def.RadarRange
	}
	if opts.RadarRays <= 0 {
		opts.RadarRays = def.RadarRays
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Game{
		opts:    opts,
		log:     logger,
		metrics: opts.Metrics,
		events:  opts.Events,
		rng:     rand.New(rand.NewSource(opts.Seed)),
		physics: physics.NewWorld(opts.VelocityIterations, opts.PositionIterations),
		sensors: []Sensor{
			GPSSensor{},
			RadarSensor{Rays: opts.RadarRays, Range: opts.RadarRange},
			StatusSensor{},
		},
		matchID:  uuid.NewString(),
		entities: make(map[EntityID]*Entity),
		playerOf: make(map[Client]EntityID),
		results:  make(map[EntityID]*PlayerResult),
	}
}

// Run ticks the game at the configured period until ctx is done.
func (g *Game) Run(ctx context.Context) {
	ticker := time.NewTicker(g.opts.TickPeriod)
	defer ticker.Stop()

	g.log.Info("tick loop started", "period", g.opts.TickPeriod, "match", g.matchID)
	for {
		select {
		case <-ticker.C:
			g.Tick()
		case <-ctx.Done():
			g.log.Info("tick loop stopped", "step", g.Step())
			return
		}
	}
}

// Tick runs one pass of the pipeline: execute, step, contacts, wraparound,
// step counter, then one frame to every client.
func (g *Game) Tick() {
	start := time.Now()

	g.mu.Lock()
	running := g.status == Running
	if running {
		snapshot := make([]EntityID, len(g.order))
		copy(snapshot, g.order)
		for _, id := range snapshot {
			e, ok := g.entities[id]
			if !ok || e.destroyed {
				continue
			}
			g.safely("execute", e, func() { g.execute(e) })
		}
	}

	g.physics.Step(g.opts.TickPeriod.Seconds())
	g.physics.ClearForces()

	for _, c := range g.physics.Contacts() {
		a, okA := c.A.Owner().(*Entity)
		b, okB := c.B.Owner().(*Entity)
		if !okA || !okB {
			continue
		}
		g.safely("contact", a, func() { g.contact(a, b) })
		g.safely("contact", b, func() { g.contact(b, a) })
	}

	g.wrapAround()

	if running {
		g.step++
	}

	frame := g.buildFrame()
	clients := make([]Client, len(g.clients))
	copy(clients, g.clients)
	g.updateEntityMetrics()
	g.mu.Unlock()

	for _, c := range clients {
		c.Update(frame)
	}
	g.metrics.ObserveTick(time.Since(start), frame.Step)
}

// safely isolates a panic inside one entity handler from the rest of the
// tick.
func (g *Game) safely(phase string, e *Entity, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.metrics.EntityFault()
			g.log.Error("entity fault", "phase", phase, "entity", e.ID, "kind", e.Kind, "panic", r)
		}
	}()
	fn()
}

func (g *Game) wrapAround() {
	for _, body := range g.physics.Bodies() {
		if g.opts.SkipStaticWrap && body.Kind() == physics.Static {
			continue
		}
		p := body.Position()
		wrapped := mgl64.Vec2{Wrap(p.X(), g.opts.XSize), Wrap(p.Y(), g.opts.YSize)}
		if wrapped != p {
			body.SetPosition(wrapped)
		}
	}
}

func (g *Game) buildFrame() *Frame {
	f := &Frame{
		Step:     g.step,
		Status:   g.status,
		Objects:  make([]protocol.ObjectState, 0, len(g.order)),
		Readings: make(map[EntityID][]any, len(g.players)),
		players:  make(map[Client]EntityID, len(g.playerOf)),
		log:      g.log,
		metrics:  g.metrics,
	}
	for c, id := range g.playerOf {
		f.players[c] = id
	}
	for _, id := range g.order {
		f.Objects = append(f.Objects, g.entities[id].State())
	}
	for _, id := range g.players {
		e := g.entities[id]
		var readings []any
		for _, s := range g.sensors {
			readings = append(readings, s.Readings(g, e)...)
		}
		f.Readings[id] = readings
	}
	return f
}

func (g *Game) updateEntityMetrics() {
	if g.metrics == nil {
		return
	}
	counts := make(map[Kind]int, len(kindNames))
	for _, e := range g.entities {
		counts[e.Kind]++
	}
	for k, name := range kindNames {
		g.metrics.SetEntities(name, counts[k])
	}
}

// StartGame moves WAITING to RUNNING.
func (g *Game) StartGame() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != Waiting {
		return ErrNotWaiting
	}
	g.status = Running
	g.startedAt = time.Now()
	g.log.Info("game started", "match", g.matchID, "players", len(g.players))
	g.broadcast(g.statusMessage())
	g.track(Event{Type: EventGameStarted})
	return nil
}

// finish moves to the terminal FINISHED state. Caller holds mu.
func (g *Game) finish(winner EntityID) {
	if g.status == Finished {
		return
	}
	g.status = Finished
	g.winner = winner

	name := ""
	if r, ok := g.results[winner]; ok {
		r.Winner = true
		name = r.Name
	}
	g.log.Info("game finished", "match", g.matchID, "winner", winner, "name", name, "step", g.step)
	g.broadcast(g.statusMessage())
	g.track(Event{
		Type:    EventGameFinished,
		Player:  winner,
		Name:    name,
		Other:   winner,
		Results: g.resultsLocked(),
	})
}

func (g *Game) statusMessage() protocol.GameStatus {
	msg := protocol.GameStatus{Type: protocol.TypeGameStatus, Current: g.status.String()}
	if g.status == Finished && g.winner != 0 {
		w := uint64(g.winner)
		msg.Winner = &w
		if r, ok := g.results[g.winner]; ok {
			msg.WinnerName = r.Name
		}
	}
	return msg
}

func (g *Game) broadcast(msg any) {
	for _, c := range g.clients {
		c.Notify(msg)
	}
}

func (g *Game) track(e Event) {
	if g.events == nil {
		return
	}
	e.Match = g.matchID
	e.Step = g.step
	e.At = time.Now().UTC()
	g.events.Track(e)
}

func (g *Game) resultsLocked() []PlayerResult {
	out := make([]PlayerResult, 0, len(g.joined))
	for _, id := range g.joined {
		out = append(out, *g.results[id])
	}
	return out
}

// Status returns the current state.
func (g *Game) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Winner returns the winning player once FINISHED.
func (g *Game) Winner() (EntityID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner, g.status == Finished && g.winner != 0
}

// Step returns the tick counter.
func (g *Game) Step() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.step
}

// MatchID identifies this game in persisted results.
func (g *Game) MatchID() string { return g.matchID }

// Results lists every player that took part, in join order.
func (g *Game) Results() []PlayerResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resultsLocked()
}

// MapDescription is the hello sent to new connections.
func (g *Game) MapDescription() protocol.MapDescription {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mapDescription()
}

func (g *Game) mapDescription() protocol.MapDescription {
	terrain := make([]protocol.Terrain, len(g.terrain))
	copy(terrain, g.terrain)
	return protocol.MapDescription{
		Type:    protocol.TypeMapDescription,
		XSize:   g.opts.XSize,
		YSize:   g.opts.YSize,
		Terrain: terrain,
	}
}

// Size returns the world extent.
func (g *Game) Size() (float64, float64) {
	return g.opts.XSize, g.opts.YSize
}

// PlayerCount returns the number of live players.
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// ObjectCount returns the number of live entities.
func (g *Game) ObjectCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

// ClientCount returns the number of registered clients.
func (g *Game) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}
