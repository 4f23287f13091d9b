package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"spacecraft-server/internal/auth"
	"spacecraft-server/internal/metrics"
	"spacecraft-server/internal/protocol"
	"spacecraft-server/internal/store"
	"spacecraft-server/internal/world"
)

type testServer struct {
	srv     *Server
	game    *world.Game
	player  string
	monitor string
	http    string
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func startServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()
	game := world.NewGame(world.Options{Seed: 1, Logger: log.New(io.Discard)})
	opts := Options{
		MaxConnsPerIP: 10,
		MaxTotalConns: 100,
		SendBuffer:    64,
		Logger:        log.New(io.Discard),
		Metrics:       metrics.New(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	srv := New(game, opts)

	ls := Listeners{Player: listen(t), Monitor: listen(t), HTTP: listen(t)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ls) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return &testServer{
		srv:     srv,
		game:    game,
		player:  ls.Player.Addr().String(),
		monitor: ls.Monitor.Addr().String(),
		http:    ls.HTTP.Addr().String(),
	}
}

// lineClient speaks the newline-delimited protocol over TCP.
type lineClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialLine(t *testing.T, addr string) *lineClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &lineClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *lineClient) read() map[string]any {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadBytes('\n')
	require.NoError(c.t, err)
	var msg map[string]any
	require.NoError(c.t, json.Unmarshal(line, &msg), string(line))
	return msg
}

func (c *lineClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *lineClient) expectHello() {
	c.t.Helper()
	assert.Equal(c.t, protocol.TypeMapDescription, c.read()["type"])
	status := c.read()
	assert.Equal(c.t, protocol.TypeGameStatus, status["type"])
	assert.Equal(c.t, protocol.StatusWaiting, status["current"])
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestPlayerReceivesHelloAndReadings(t *testing.T) {
	ts := startServer(t)
	p := dialLine(t, ts.player)
	p.expectHello()
	waitFor(t, func() bool { return ts.game.PlayerCount() == 1 })

	ts.game.Tick()

	gps := p.read()
	assert.Equal(t, protocol.TypeSensor, gps["type"])
	assert.Equal(t, protocol.SensorGPS, gps["sensor"])
	assert.Equal(t, 100.0, gps["health"])
	assert.Len(t, gps["position"], 2)

	status := p.read()
	assert.Equal(t, protocol.SensorStatus, status["sensor"])

	tm := p.read()
	assert.Equal(t, protocol.TypeTime, tm["type"])
	assert.Equal(t, 0.0, tm["step"])
}

func TestMonitorStartsGameAndSeesWorld(t *testing.T) {
	ts := startServer(t)
	ts.game.AddWall(0, 0, 10, 2)

	m := dialLine(t, ts.monitor)
	desc := m.read()
	require.Equal(t, protocol.TypeMapDescription, desc["type"])
	assert.Len(t, desc["terrain"], 1)
	assert.Equal(t, protocol.StatusWaiting, m.read()["current"])

	m.send(`{"type": "start_game"}`)
	waitFor(t, func() bool { return ts.game.Status() == world.Running })
	assert.Equal(t, protocol.StatusRunning, m.read()["current"])

	ts.game.Tick()
	wall := m.read()
	assert.Equal(t, "wall", wall["type"])
	assert.Equal(t, 1.0, wall["id"])
	assert.NotContains(t, wall, "health")
	tm := m.read()
	assert.Equal(t, protocol.TypeTime, tm["type"])
	assert.Equal(t, 1.0, tm["step"])

	// a second start is ignored
	m.send(`{"type": "start_game"}`)
	ts.game.Tick()
	m.read()
	assert.Equal(t, 2.0, m.read()["step"])
}

func TestPlayerCommandsAreClampedAndBadInputIgnored(t *testing.T) {
	ts := startServer(t)
	p := dialLine(t, ts.player)
	p.expectHello()
	waitFor(t, func() bool { return ts.game.PlayerCount() == 1 })
	id := world.EntityID(1)

	queued := func() world.Player {
		snap, ok := ts.game.Player(id)
		require.True(t, ok)
		return snap.Player
	}

	p.send(`{"type": "throttle", "value": 5}`)
	waitFor(t, func() bool { return queued().Throttle == 1.0 })

	p.send(`{"type": "throttle", "value": "fast"}`)
	p.send(`{not json`)
	p.send(`{"value": 1}`)
	p.send(`{"type": "warp"}`)
	p.send(`{"type": "start_game"}`)
	p.send(`{"type": "turn", "value": -5}`)
	p.send(`{"type": "name", "value": "ace"}`)
	p.send(`{"type": "fire"}`)

	waitFor(t, func() bool { return queued().Fire })
	got := queued()
	assert.Equal(t, 1.0, got.Throttle)
	assert.Equal(t, -1.0, got.Turn)
	assert.Equal(t, "ace", got.Name)
	assert.Equal(t, world.Waiting, ts.game.Status())
}

func TestDisconnectRemovesPlayer(t *testing.T) {
	ts := startServer(t)
	p := dialLine(t, ts.player)
	p.expectHello()
	waitFor(t, func() bool { return ts.game.PlayerCount() == 1 })

	p.conn.Close()
	waitFor(t, func() bool {
		return ts.game.PlayerCount() == 0 &&
			ts.game.ClientCount() == 0 &&
			ts.srv.Hub().TotalConns() == 0 &&
			ts.srv.Hub().ClientCount() == 0
	})
	assert.Equal(t, 0, ts.game.ObjectCount())
}

func TestLastPlayerDisconnectFinishesGame(t *testing.T) {
	ts := startServer(t)
	m := dialLine(t, ts.monitor)
	m.expectHello()

	a := dialLine(t, ts.player)
	a.expectHello()
	b := dialLine(t, ts.player)
	b.expectHello()
	waitFor(t, func() bool { return ts.game.PlayerCount() == 2 })

	m.send(`{"type": "start_game"}`)
	waitFor(t, func() bool { return ts.game.Status() == world.Running })
	assert.Equal(t, protocol.StatusRunning, a.read()["current"])

	b.conn.Close()
	waitFor(t, func() bool { return ts.game.Status() == world.Finished })

	status := a.read()
	assert.Equal(t, protocol.StatusFinished, status["current"])
	assert.Equal(t, 1.0, status["winner"])
}

func TestConnectionLimitPerIP(t *testing.T) {
	ts := startServer(t, func(o *Options) { o.MaxConnsPerIP = 1 })
	first := dialLine(t, ts.player)
	first.expectHello()

	second := dialLine(t, ts.monitor)
	second.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := second.r.ReadBytes('\n')
	assert.Error(t, err)
	assert.Equal(t, 1, ts.srv.Hub().TotalConns())
}

func dialWS(t *testing.T, addr, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestWebSocketPlayer(t *testing.T) {
	ts := startServer(t)
	conn := dialWS(t, ts.http, "/ws/player")

	assert.Equal(t, protocol.TypeMapDescription, readWS(t, conn)["type"])
	assert.Equal(t, protocol.TypeGameStatus, readWS(t, conn)["type"])
	waitFor(t, func() bool { return ts.game.PlayerCount() == 1 })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"throttle","value":0.5}`)))
	waitFor(t, func() bool {
		snap, _ := ts.game.Player(1)
		return snap.Player.Throttle == 0.5
	})

	// each line of a frame arrives as its own text frame
	ts.game.Tick()
	assert.Equal(t, protocol.SensorGPS, readWS(t, conn)["sensor"])
	assert.Equal(t, protocol.SensorStatus, readWS(t, conn)["sensor"])
	assert.Equal(t, protocol.TypeTime, readWS(t, conn)["type"])

	conn.Close()
	waitFor(t, func() bool { return ts.game.PlayerCount() == 0 })
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	ts := startServer(t)
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+ts.http+"/ws/monitor", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	waitFor(t, func() bool { return ts.srv.Hub().TotalConns() == 0 })
}

func TestMonitorAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	a, err := auth.New(string(hash), "secret")
	require.NoError(t, err)
	ts := startServer(t, func(o *Options) { o.Auth = a })

	m := dialLine(t, ts.monitor)
	m.expectHello()

	m.send(`{"type": "start_game"}`)
	reply := m.read()
	assert.Equal(t, protocol.TypeError, reply["type"])
	assert.Equal(t, world.Waiting, ts.game.Status())

	m.send(`{"type": "auth", "password": "nope"}`)
	assert.Equal(t, protocol.TypeError, m.read()["type"])

	m.send(`{"type": "auth", "password": "letmein"}`)
	ok := m.read()
	require.Equal(t, protocol.TypeAuthOK, ok["type"])
	token, _ := ok["token"].(string)
	require.NotEmpty(t, token)

	other := dialLine(t, ts.monitor)
	other.expectHello()
	other.send(`{"type": "auth", "token": "` + token + `"}`)
	assert.Equal(t, protocol.TypeAuthOK, other.read()["type"])
	other.send(`{"type": "start_game"}`)
	waitFor(t, func() bool { return ts.game.Status() == world.Running })
}

type fakeMatches struct {
	rows  []store.MatchRow
	limit int
}

func (f *fakeMatches) RecentMatches(_ context.Context, limit int) ([]store.MatchRow, error) {
	f.limit = limit
	return f.rows, nil
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHTTPRoutes(t *testing.T) {
	lister := &fakeMatches{rows: []store.MatchRow{{ID: "m1", WinnerName: "ace", Steps: 42}}}
	ts := startServer(t, func(o *Options) { o.Matches = lister })
	base := "http://" + ts.http

	var health healthResponse
	require.Equal(t, http.StatusOK, getJSON(t, base+"/healthz", &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, protocol.StatusWaiting, health.Game)
	assert.Equal(t, ts.game.MatchID(), health.Match)

	var matches []store.MatchRow
	require.Equal(t, http.StatusOK, getJSON(t, base+"/matches?limit=500", &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, "ace", matches[0].WinnerName)
	assert.Equal(t, maxMatchesLimit, lister.limit)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, base+"/matches?limit=-1", nil))

	ts.game.Tick()
	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "spacecraft_ticks_total")
}

func TestMatchesDisabledWithoutStore(t *testing.T) {
	ts := startServer(t)
	assert.Equal(t, http.StatusNotFound, getJSON(t, "http://"+ts.http+"/matches", nil))
}

func TestConnectionChurnWhileTicking(t *testing.T) {
	ts := startServer(t, func(o *Options) {
		o.MaxConnsPerIP = 0
		o.MaxTotalConns = 0
		o.SendBuffer = 1
	})

	stop := make(chan struct{})
	ticking := make(chan struct{})
	go func() {
		defer close(ticking)
		for {
			select {
			case <-stop:
				return
			default:
				ts.game.Tick()
			}
		}
	}()

	for i := 0; i < 200; i++ {
		conn, err := net.Dial("tcp", ts.player)
		require.NoError(t, err)
		_, err = conn.Write([]byte(`{"type":"throttle","value":1}` + "\n"))
		require.NoError(t, err)
		conn.Close()
	}

	waitFor(t, func() bool {
		return ts.srv.Hub().ClientCount() == 0 && ts.game.PlayerCount() == 0 &&
			ts.srv.Hub().TotalConns() == 0
	})
	close(stop)
	<-ticking
}
