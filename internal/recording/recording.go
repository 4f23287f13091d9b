// Package recording writes the god's-eye view of every tick to a compact
// msgpack file and reads it back for replay.
package recording

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"spacecraft-server/internal/protocol"
	"spacecraft-server/internal/world"
)

const (
	formatVersion = 1
	queueSize     = 256
)

// Header opens every recording.
type Header struct {
	Version int                     `json:"version"`
	Match   string                  `json:"match"`
	Map     protocol.MapDescription `json:"map"`
}

// Record is one tick.
type Record struct {
	Step    uint64                 `json:"step"`
	Status  string                 `json:"status"`
	Objects []protocol.ObjectState `json:"objects"`
}

// Recorder is a world.Client that persists each frame it receives. Encoding
// and disk writes happen on its own goroutine; frames are dropped rather
// than stalling the tick when the writer falls behind.
type Recorder struct {
	log    *log.Logger
	file   *os.File
	buf    *bufio.Writer
	enc    *msgpack.Encoder
	queue  chan Record
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool

	dropped int
	written int
	err     error
}

// Create opens path for writing and writes the header.
func Create(path, match string, desc protocol.MapDescription, logger *log.Logger) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create recording")
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	buf := bufio.NewWriter(f)
	enc := msgpack.NewEncoder(buf)
	enc.SetCustomStructTag("json")

	if err := enc.Encode(Header{Version: formatVersion, Match: match, Map: desc}); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "write recording header")
	}

	r := &Recorder{
		log:   logger,
		file:  f,
		buf:   buf,
		enc:   enc,
		queue: make(chan Record, queueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Update implements world.Client.
func (r *Recorder) Update(f *world.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- Record{Step: f.Step, Status: f.Status.String(), Objects: f.Objects}:
	default:
		r.dropped++
	}
}

// Notify implements world.Client. Status changes are already part of
// every record.
func (r *Recorder) Notify(any) {}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		if r.err != nil {
			continue
		}
		if err := r.enc.Encode(rec); err != nil {
			r.err = errors.Wrapf(err, "write step %d", rec.Step)
			r.log.Error("recording failed", "err", err)
			continue
		}
		r.written++
	}
}

// Close stops recording, flushes and closes the file.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done

		if err := r.buf.Flush(); err != nil && r.err == nil {
			r.err = errors.Wrap(err, "flush recording")
		}
		if err := r.file.Close(); err != nil && r.err == nil {
			r.err = errors.Wrap(err, "close recording")
		}
		r.log.Info("recording closed", "file", r.file.Name(), "frames", r.written, "dropped", r.dropped)
	})
	return r.err
}

// Reader replays a recording.
type Reader struct {
	dec    *msgpack.Decoder
	closer io.Closer
	header Header
}

// NewReader reads the header from rd.
func NewReader(rd io.Reader) (*Reader, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(rd))
	dec.SetCustomStructTag("json")

	r := &Reader{dec: dec}
	if err := dec.Decode(&r.header); err != nil {
		return nil, errors.Wrap(err, "read recording header")
	}
	if r.header.Version != formatVersion {
		return nil, errors.Errorf("unsupported recording version %d", r.header.Version)
	}
	return r, nil
}

// Open opens a recording file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open recording")
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Header returns the recording header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next record, or io.EOF at the end.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, errors.Wrap(err, "read record")
	}
	return rec, nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// MonitorBatch renders the record in monitor wire format: one line per
// object followed by the time message.
func (rec Record) MonitorBatch() ([]byte, error) {
	return protocol.EncodeWorldView(rec.Step, rec.Objects)
}
