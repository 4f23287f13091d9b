// Package protocol defines the newline-delimited JSON messages exchanged
// with player and monitor connections.
package protocol

import "github.com/go-gl/mathgl/mgl64"

// Client -> Server message types
const (
	TypeThrottle  = "throttle"
	TypeTurn      = "turn"
	TypeFire      = "fire"
	TypeName      = "name"
	TypeStartGame = "start_game"
	TypeAuth      = "auth"
)

// Server -> Client message types
const (
	TypeTime           = "time"
	TypeMapDescription = "map_description"
	TypeGameStatus     = "game_status"
	TypeSensor         = "sensor"
	TypeAuthOK         = "auth_ok"
	TypeError          = "error"
)

// Sensor names carried in sensor readings
const (
	SensorGPS    = "gps"
	SensorRadar  = "radar"
	SensorStatus = "status"
)

// Game status values
const (
	StatusWaiting  = "waiting"
	StatusRunning  = "running"
	StatusFinished = "finished"
)

// Time closes every per-tick update.
type Time struct {
	Type string `json:"type"`
	Step uint64 `json:"step"`
}

func NewTime(step uint64) Time {
	return Time{Type: TypeTime, Step: step}
}

// Terrain is one static map feature.
type Terrain struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MapDescription is the one-time hello sent on connect.
type MapDescription struct {
	Type    string    `json:"type"`
	XSize   float64   `json:"xsize"`
	YSize   float64   `json:"ysize"`
	Terrain []Terrain `json:"terrain"`
}

// GameStatus announces a state machine transition.
type GameStatus struct {
	Type       string  `json:"type"`
	Current    string  `json:"current"`
	Winner     *uint64 `json:"winner,omitempty"`
	WinnerName string  `json:"winner_name,omitempty"`
}

// GPSReading reports the player's own kinematics.
type GPSReading struct {
	Type     string     `json:"type"`
	Sensor   string     `json:"sensor"`
	Position mgl64.Vec2 `json:"position"`
	Angle    float64    `json:"angle"`
	Velocity mgl64.Vec2 `json:"velocity"`
	Throttle float64    `json:"throttle"`
	Health   float64    `json:"health"`
}

// RadarReading reports one entity hit by one radar ray.
type RadarReading struct {
	Type       string     `json:"type"`
	Sensor     string     `json:"sensor"`
	ObjectType string     `json:"object_type"`
	ID         uint64     `json:"id"`
	Position   mgl64.Vec2 `json:"position"`
	Angle      float64    `json:"angle"`
	Velocity   mgl64.Vec2 `json:"velocity"`
}

// StatusReading reports the player's health.
type StatusReading struct {
	Type   string  `json:"type"`
	Sensor string  `json:"sensor"`
	Health float64 `json:"health"`
}

// ObjectState is the monitor view of a live entity. Type carries the entity
// kind, e.g. "player" or "wall".
type ObjectState struct {
	Type     string     `json:"type"`
	ID       uint64     `json:"id"`
	Position mgl64.Vec2 `json:"position"`
	Angle    float64    `json:"angle"`
	Velocity mgl64.Vec2 `json:"velocity"`
	Health   *float64   `json:"health,omitempty"`
	Throttle *float64   `json:"throttle,omitempty"`
	Name     string     `json:"name,omitempty"`
}

// AuthOK answers a successful monitor auth.
type AuthOK struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Error reports a rejected request to the sender.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(msg string) Error {
	return Error{Type: TypeError, Message: msg}
}
