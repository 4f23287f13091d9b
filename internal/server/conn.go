package server

import (
	"bufio"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"spacecraft-server/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// conn is a message-oriented view of one network connection. Reads return
// one inbound message; writes take a batch of newline-terminated lines.
type conn interface {
	ReadMessage() ([]byte, error)
	WriteBatch(batch []byte) error
	Ping() error
	Close() error
	RemoteAddr() string
}

// tcpConn carries newline-delimited JSON over a raw TCP stream.
type tcpConn struct {
	c       net.Conn
	scanner *bufio.Scanner
}

func newTCPConn(c net.Conn) *tcpConn {
	return &tcpConn{c: c, scanner: protocol.NewLineScanner(c)}
}

func (t *tcpConn) ReadMessage() ([]byte, error) {
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, net.ErrClosed
	}
	return t.scanner.Bytes(), nil
}

func (t *tcpConn) WriteBatch(batch []byte) error {
	t.c.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := t.c.Write(batch)
	return err
}

// Ping is a no-op: line clients have no keepalive frame.
func (t *tcpConn) Ping() error { return nil }

func (t *tcpConn) Close() error { return t.c.Close() }

func (t *tcpConn) RemoteAddr() string { return t.c.RemoteAddr().String() }

// wsConn carries one JSON message per WebSocket text frame.
type wsConn struct {
	c *websocket.Conn
}

func newWSConn(c *websocket.Conn) *wsConn {
	c.SetReadLimit(protocol.MaxLineSize)
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &wsConn{c: c}
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, message, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return message, nil
		}
	}
}

func (w *wsConn) WriteBatch(batch []byte) error {
	w.c.SetWriteDeadline(time.Now().Add(writeWait))
	for _, line := range protocol.SplitLines(batch) {
		if err := w.c.WriteMessage(websocket.TextMessage, line); err != nil {
			return err
		}
	}
	return nil
}

func (w *wsConn) Ping() error {
	w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteMessage(websocket.PingMessage, nil)
}

func (w *wsConn) Close() error { return w.c.Close() }

func (w *wsConn) RemoteAddr() string { return w.c.RemoteAddr().String() }
