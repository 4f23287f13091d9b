package world

import "time"

// Event types reported to the EventSink
const (
	EventGameStarted  = "game_started"
	EventGameFinished = "game_finished"
	EventPlayerJoined = "player_joined"
	EventPlayerLeft   = "player_left"
	EventPlayerKilled = "player_killed"
)

// Event is a notable game transition. Results is set on game_finished.
type Event struct {
	Type    string
	Match   string
	Step    uint64
	Player  EntityID
	Name    string
	Other   EntityID // killer for player_killed, winner for game_finished
	Results []PlayerResult
	At      time.Time
}

// PlayerResult summarises one participant of a match.
type PlayerResult struct {
	ID     EntityID `json:"id"`
	Name   string   `json:"name"`
	Kills  int      `json:"kills"`
	Deaths int      `json:"deaths"`
	Winner bool     `json:"winner"`
}

// EventSink receives events from inside the tick. Track must not block.
type EventSink interface {
	Track(Event)
}
