package world

import (
	"sync"

	"github.com/charmbracelet/log"

	"spacecraft-server/internal/metrics"
	"spacecraft-server/internal/protocol"
)

// Frame is the immutable result of one tick. It is built with the game lock
// held and then handed to every client, so clients never see live entities.
type Frame struct {
	Step     uint64
	Status   Status
	Objects  []protocol.ObjectState
	Readings map[EntityID][]any

	// ship of every player client registered when the frame was built
	players map[Client]EntityID

	log     *log.Logger
	metrics *metrics.Metrics

	monitorOnce  sync.Once
	monitorBatch []byte
}

// EntityOf returns the ship bound to c when the frame was built, or zero
// for monitors and unknown clients.
func (f *Frame) EntityOf(c Client) EntityID {
	return f.players[c]
}

// MonitorBatch encodes every object state followed by the time message.
// The encoding is shared by all monitors.
func (f *Frame) MonitorBatch() []byte {
	f.monitorOnce.Do(func() {
		var err error
		f.monitorBatch, err = protocol.EncodeWorldView(f.Step, f.Objects)
		if err != nil {
			f.encodeFailed("monitor", err)
		}
	})
	return f.monitorBatch
}

// PlayerBatch encodes the sensor readings of one player followed by the time
// message. A player without a live entity only gets the time message.
func (f *Frame) PlayerBatch(id EntityID) []byte {
	readings := f.Readings[id]
	msgs := make([]any, 0, len(readings)+1)
	msgs = append(msgs, readings...)
	msgs = append(msgs, protocol.NewTime(f.Step))
	batch, err := protocol.EncodeAll(msgs...)
	if err != nil {
		f.encodeFailed("player", err)
	}
	return batch
}

// encodeFailed reports a message left out of a batch. The rest of the batch
// is still sent.
func (f *Frame) encodeFailed(view string, err error) {
	f.metrics.ProtocolError("encode")
	if f.log != nil {
		f.log.Error("frame message dropped", "view", view, "step", f.Step, "err", err)
	}
}
