package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"spacecraft-server/internal/protocol"
	"spacecraft-server/internal/world"
)

const (
	maxMessagesPerSec = 200
	maxNameLen        = 32
)

// Role tells players and monitors apart.
type Role int

const (
	RolePlayer Role = iota
	RoleMonitor
)

func (r Role) String() string {
	if r == RoleMonitor {
		return "monitor"
	}
	return "player"
}

// Client is one connected player or monitor. It implements world.Client:
// the game pushes frames and notifications, which are encoded and queued
// for the write loop.
type Client struct {
	srv    *Server
	conn   conn
	role   Role
	id     string
	remote string
	log    *log.Logger
	send   chan []byte

	// done is closed once the client leaves; send itself is never closed
	done     chan struct{}
	doneOnce sync.Once

	entity     atomic.Uint64
	authed     bool
	msgCount   int
	msgResetAt time.Time
}

func newClient(srv *Server, c conn, role Role, ip string) *Client {
	id := uuid.NewString()
	return &Client{
		srv:    srv,
		conn:   c,
		role:   role,
		id:     id,
		remote: ip,
		log:    srv.log.With("conn", id[:8], "role", role, "remote", c.RemoteAddr()),
		send:   make(chan []byte, srv.opts.SendBuffer),
		done:   make(chan struct{}),
		authed: !srv.auth.Required(),
	}
}

// Entity returns the ship bound to a player connection.
func (c *Client) Entity() world.EntityID {
	return world.EntityID(c.entity.Load())
}

// Update implements world.Client.
func (c *Client) Update(f *world.Frame) {
	if c.role == RoleMonitor {
		c.SendRaw(f.MonitorBatch())
		return
	}
	c.SendRaw(f.PlayerBatch(f.EntityOf(c)))
}

// Notify implements world.Client.
func (c *Client) Notify(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.log.Error("encode notification", "err", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw queues an encoded batch. A full queue drops the batch; sends
// after the client left are ignored.
func (c *Client) SendRaw(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.srv.metrics.Dropped()
	}
}

// shutdown stops the write loop. Safe to call more than once.
func (c *Client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
}

// serve joins the game, pumps messages until the connection fails and then
// removes every trace of the client. It blocks for the connection lifetime.
func (c *Client) serve() {
	c.srv.hub.register(c)
	c.srv.metrics.ConnectionOpened(c.role.String())

	if c.role == RolePlayer {
		c.entity.Store(uint64(c.srv.game.AddPlayer(c, "")))
	} else {
		c.srv.game.AddMonitor(c)
	}
	c.log.Info("connected", "entity", c.Entity())

	go c.writePump()
	c.readPump()

	c.srv.game.RemoveClient(c)
	c.srv.hub.unregister(c)
	c.srv.hub.TrackDisconnect(c.remote)
	c.srv.metrics.ConnectionClosed(c.role.String())
	c.conn.Close()
	c.log.Info("disconnected")
}

func (c *Client) readPump() {
	for {
		line, err := c.conn.ReadMessage()
		if err != nil {
			if !isClosedErr(err) {
				c.log.Warn("read failed", "err", err)
			}
			return
		}
		if !c.allow() {
			c.srv.metrics.ProtocolError("rate_limited")
			continue
		}
		c.handleLine(line)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case batch := <-c.send:
			if err := c.conn.WriteBatch(batch); err != nil {
				c.log.Debug("write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(); err != nil {
				return
			}
		}
	}
}

// allow applies the per-connection message rate limit.
func (c *Client) allow() bool {
	now := time.Now()
	if now.After(c.msgResetAt) {
		c.msgCount = 0
		c.msgResetAt = now.Add(time.Second)
	}
	c.msgCount++
	return c.msgCount <= maxMessagesPerSec
}

// handleLine decodes and dispatches one inbound message. Protocol errors
// are logged and the message dropped; the connection stays open.
func (c *Client) handleLine(line []byte) {
	line = protocol.TrimLine(line)
	if len(line) == 0 {
		return
	}
	cmd, err := protocol.DecodeCommand(line)
	if err != nil {
		c.srv.metrics.ProtocolError(errorReason(err))
		c.log.Warn("bad message", "type", cmd.Type, "err", err)
		return
	}
	c.srv.metrics.Command(cmd.Kind.String())

	if c.role == RoleMonitor {
		c.dispatchMonitor(cmd)
	} else {
		c.dispatchPlayer(cmd)
	}
}

func (c *Client) dispatchPlayer(cmd protocol.Command) {
	id := c.Entity()
	var err error
	switch cmd.Kind {
	case protocol.CmdThrottle:
		err = c.srv.game.SetThrottle(id, cmd.Value)
	case protocol.CmdTurn:
		err = c.srv.game.SetTurn(id, cmd.Value)
	case protocol.CmdFire:
		err = c.srv.game.Fire(id)
	case protocol.CmdName:
		name := cmd.Name
		if len(name) > maxNameLen {
			name = name[:maxNameLen]
		}
		err = c.srv.game.SetName(id, name)
	default:
		c.unknown(cmd)
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, world.ErrUnknownEntity):
		// the ship is gone; commands from a dead player are ignored
	default:
		c.srv.metrics.ProtocolError(errorReason(err))
		c.log.Warn("command rejected", "type", cmd.Type, "err", err)
	}
}

func (c *Client) dispatchMonitor(cmd protocol.Command) {
	switch cmd.Kind {
	case protocol.CmdStartGame:
		if !c.authed {
			c.Notify(protocol.NewError("authentication required"))
			c.log.Warn("start_game without auth")
			return
		}
		if err := c.srv.game.StartGame(); err != nil {
			c.log.Warn("start_game ignored", "err", err, "status", c.srv.game.Status())
		}
	case protocol.CmdAuth:
		c.authenticate(cmd)
	default:
		c.unknown(cmd)
	}
}

func (c *Client) authenticate(cmd protocol.Command) {
	var token string
	var err error
	if cmd.Token != "" {
		token, err = cmd.Token, c.srv.auth.Validate(cmd.Token)
	} else {
		token, err = c.srv.auth.Login(cmd.Password, c.remote)
	}
	if err != nil {
		c.log.Warn("auth failed", "err", err)
		c.Notify(protocol.NewError(errors.Cause(err).Error()))
		return
	}
	c.authed = true
	c.log.Info("monitor authenticated")
	c.Notify(protocol.AuthOK{Type: protocol.TypeAuthOK, Token: token})
}

func (c *Client) unknown(cmd protocol.Command) {
	c.srv.metrics.ProtocolError("unknown_type")
	c.log.Warn("unknown message type", "type", cmd.Type)
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformed):
		return "malformed"
	case errors.Is(err, protocol.ErrNoType):
		return "no_type"
	case errors.Is(err, protocol.ErrBadValue):
		return "bad_value"
	}
	return "other"
}
