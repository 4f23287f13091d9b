package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	ErrMalformed = errors.New("malformed message")
	ErrNoType    = errors.New("message has no type")
	ErrBadValue  = errors.New("value is not a number")
)

// CommandKind enumerates every inbound message the server understands.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdThrottle
	CmdTurn
	CmdFire
	CmdName
	CmdStartGame
	CmdAuth
)

var commandKinds = map[string]CommandKind{
	TypeThrottle:  CmdThrottle,
	TypeTurn:      CmdTurn,
	TypeFire:      CmdFire,
	TypeName:      CmdName,
	TypeStartGame: CmdStartGame,
	TypeAuth:      CmdAuth,
}

func (k CommandKind) String() string {
	for name, kind := range commandKinds {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Command is a decoded inbound message. Only the fields relevant to Kind
// are set.
type Command struct {
	Kind     CommandKind
	Type     string
	Value    float64
	Name     string
	Password string
	Token    string
}

// inMessage decodes the union of all inbound fields in one pass.
type inMessage struct {
	Type     *string         `json:"type"`
	Value    json.RawMessage `json:"value,omitempty"`
	Password string          `json:"password,omitempty"`
	Token    string          `json:"token,omitempty"`
}

// DecodeCommand parses one line. An unknown type is not an error: it comes
// back as CmdUnknown with Type set so the caller can log it.
func DecodeCommand(line []byte) (Command, error) {
	var msg inMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return Command{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if msg.Type == nil || *msg.Type == "" {
		return Command{}, ErrNoType
	}

	cmd := Command{Type: *msg.Type, Kind: commandKinds[*msg.Type]}
	switch cmd.Kind {
	case CmdThrottle, CmdTurn:
		v, err := numericValue(msg.Value)
		if err != nil {
			return cmd, errors.Wrapf(err, "%s value %s", cmd.Type, string(msg.Value))
		}
		cmd.Value = v
	case CmdName:
		var name string
		if len(msg.Value) > 0 {
			if err := json.Unmarshal(msg.Value, &name); err != nil {
				return cmd, errors.Wrap(ErrBadValue, "name must be a string")
			}
		}
		cmd.Name = name
	case CmdAuth:
		cmd.Password = msg.Password
		cmd.Token = msg.Token
	}
	return cmd, nil
}

// numericValue treats a missing value as zero and null as invalid.
func numericValue(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	if string(raw) == "null" {
		return 0, ErrBadValue
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, ErrBadValue
	}
	return v, nil
}
