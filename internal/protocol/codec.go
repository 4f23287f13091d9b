package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// MaxLineSize bounds a single inbound line.
const MaxLineSize = 4096

// Encode marshals msg as one newline-terminated line.
func Encode(msg any) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("trying to encode nil message")
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %T", msg)
	}
	return append(b, '\n'), nil
}

// EncodeAll concatenates the encoded lines of msgs. Messages that fail to
// encode are skipped and reported through the returned error.
func EncodeAll(msgs ...any) ([]byte, error) {
	var buf bytes.Buffer
	var firstErr error
	for _, m := range msgs {
		line, err := Encode(m)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		buf.Write(line)
	}
	return buf.Bytes(), firstErr
}

// EncodeWorldView renders the monitor view of one tick: every object state
// followed by the time message.
func EncodeWorldView(step uint64, objects []ObjectState) ([]byte, error) {
	msgs := make([]any, 0, len(objects)+1)
	for _, o := range objects {
		msgs = append(msgs, o)
	}
	msgs = append(msgs, NewTime(step))
	return EncodeAll(msgs...)
}

// NewLineScanner reads newline-delimited messages from r. Lines longer than
// MaxLineSize fail the scan.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 512), MaxLineSize)
	return sc
}

// SplitLines yields the non-empty lines of a batch produced by EncodeAll,
// without their terminators.
func SplitLines(batch []byte) [][]byte {
	var lines [][]byte
	for len(batch) > 0 {
		i := bytes.IndexByte(batch, '\n')
		if i < 0 {
			lines = append(lines, batch)
			break
		}
		if i > 0 {
			lines = append(lines, batch[:i])
		}
		batch = batch[i+1:]
	}
	return lines
}

// TrimLine strips a trailing CR and surrounding blanks.
func TrimLine(line []byte) []byte {
	return bytes.TrimSpace(line)
}
