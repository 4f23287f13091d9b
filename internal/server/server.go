// Package server exposes the game over the network: line-delimited JSON on
// two TCP ports (players and monitors), the same sessions over WebSocket,
// and a small HTTP surface for metrics, health and match history.
package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"spacecraft-server/internal/auth"
	"spacecraft-server/internal/metrics"
	"spacecraft-server/internal/world"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	PlayerAddr  string
	MonitorAddr string
	HTTPAddr    string

	MaxConnsPerIP int
	MaxTotalConns int
	SendBuffer    int

	Logger  *log.Logger
	Metrics *metrics.Metrics
	Auth    *auth.Auth
	Matches MatchLister
}

// Listeners are the sockets Serve accepts on. A nil listener disables that
// surface.
type Listeners struct {
	Player  net.Listener
	Monitor net.Listener
	HTTP    net.Listener
}

// Server accepts connections and binds them to a game.
type Server struct {
	game     *world.Game
	hub      *Hub
	opts     Options
	log      *log.Logger
	metrics  *metrics.Metrics
	auth     *auth.Auth
	matches  MatchLister
	upgrader websocket.Upgrader
}

// New creates a server for game.
func New(game *world.Game, opts Options) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{
		game:    game,
		hub:     NewHub(opts.MaxConnsPerIP, opts.MaxTotalConns),
		opts:    opts,
		log:     logger,
		metrics: opts.Metrics,
		auth:    opts.Auth,
		matches: opts.Matches,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Hub exposes the connection registry.
func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe opens the configured addresses and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var ls Listeners
	var err error
	closeAll := func() {
		for _, ln := range []net.Listener{ls.Player, ls.Monitor, ls.HTTP} {
			if ln != nil {
				ln.Close()
			}
		}
	}

	if ls.Player, err = net.Listen("tcp", s.opts.PlayerAddr); err != nil {
		return errors.Wrap(err, "listen player")
	}
	if ls.Monitor, err = net.Listen("tcp", s.opts.MonitorAddr); err != nil {
		closeAll()
		return errors.Wrap(err, "listen monitor")
	}
	if s.opts.HTTPAddr != "" {
		if ls.HTTP, err = net.Listen("tcp", s.opts.HTTPAddr); err != nil {
			closeAll()
			return errors.Wrap(err, "listen http")
		}
	}
	return s.Serve(ctx, ls)
}

// Serve accepts on ls until ctx is done, then closes the listeners and
// every open connection.
func (s *Server) Serve(ctx context.Context, ls Listeners) error {
	g, ctx := errgroup.WithContext(ctx)

	if ls.Player != nil {
		g.Go(func() error { return s.serveTCP(ctx, ls.Player, RolePlayer) })
	}
	if ls.Monitor != nil {
		g.Go(func() error { return s.serveTCP(ctx, ls.Monitor, RoleMonitor) })
	}
	if ls.HTTP != nil {
		srv := &http.Server{Handler: s.Routes(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			s.log.Info("http listening", "addr", ls.HTTP.Addr())
			if err := srv.Serve(ls.HTTP); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "http serve")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		s.hub.CloseAll()
		return nil
	})

	return g.Wait()
}

func (s *Server) serveTCP(ctx context.Context, ln net.Listener, role Role) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("tcp listening", "role", role, "addr", ln.Addr())
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || isClosedErr(err) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return errors.Wrapf(err, "accept %s", role)
		}

		ip := hostOf(c.RemoteAddr().String())
		if !s.hub.TryConnect(ip) {
			s.log.Warn("connection refused, limit reached", "remote", ip, "role", role)
			c.Close()
			continue
		}
		client := newClient(s, newTCPConn(c), role, ip)
		go client.serve()
	}
}

func (s *Server) serveWS(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !s.hub.TryConnect(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.hub.TrackDisconnect(ip)
			s.log.Warn("upgrade failed", "remote", ip, "err", err)
			return
		}
		client := newClient(s, newWSConn(ws), role, ip)
		go client.serve()
	}
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Non-browser clients don't send Origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func extractIP(r *http.Request) string {
	return hostOf(r.RemoteAddr)
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func isClosedErr(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
