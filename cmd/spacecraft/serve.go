package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"spacecraft-server/internal/auth"
	"spacecraft-server/internal/config"
	"spacecraft-server/internal/metrics"
	"spacecraft-server/internal/recording"
	"spacecraft-server/internal/server"
	"spacecraft-server/internal/store"
	"spacecraft-server/internal/terrain"
	"spacecraft-server/internal/world"
)

func serveAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		return cli.NewExitError(err.Error(), 1)
	}
	logger.Info("shut down cleanly")
	return nil
}

// applyFlags lets command-line flags override the config file.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if v := c.Int("player-port"); v > 0 {
		cfg.PlayerPort = v
	}
	if v := c.Int("monitor-port"); v > 0 {
		cfg.MonitorPort = v
	}
	if v := c.String("http"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := c.String("map"); v != "" {
		cfg.MapFile = v
	}
	if v := c.String("database"); v != "" {
		cfg.Database = v
	}
	if v := c.String("record"); v != "" {
		cfg.Recording = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.Int64("seed"); v != 0 {
		cfg.Seed = v
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	var arena *terrain.Map
	if cfg.MapFile != "" {
		m, err := terrain.Load(cfg.MapFile)
		if err != nil {
			return err
		}
		if m.XSize > 0 && m.YSize > 0 {
			cfg.XSize, cfg.YSize = m.XSize, m.YSize
		}
		arena = m
	}

	m := metrics.New()

	var st *store.Store
	if cfg.Database != "" {
		var err error
		st, err = store.Open(cfg.Database, logger.WithPrefix("store"))
		if err != nil {
			return err
		}
		defer st.Close()
	}

	monitorAuth, err := auth.New(cfg.MonitorPasswordHash, cfg.JWTSecret)
	if err != nil {
		return err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	opts := world.Options{
		XSize:              cfg.XSize,
		YSize:              cfg.YSize,
		TickPeriod:         cfg.TickPeriod(),
		VelocityIterations: cfg.VelocityIterations,
		PositionIterations: cfg.PositionIterations,
		RadarRange:         cfg.RadarRange,
		SkipStaticWrap:     !cfg.WrapStatic(),
		Seed:               seed,
		Logger:             logger.WithPrefix("game"),
		Metrics:            m,
	}
	if st != nil {
		opts.Events = st
	}
	game := world.NewGame(opts)

	if arena != nil {
		walls, powerups := arena.Apply(game, rand.New(rand.NewSource(seed)))
		logger.Info("map loaded", "name", arena.Name, "walls", walls, "powerups", powerups)
	}

	if cfg.Recording != "" {
		rec, err := recording.Create(cfg.Recording, game.MatchID(), game.MapDescription(), logger.WithPrefix("recording"))
		if err != nil {
			return err
		}
		defer rec.Close()
		game.AddMonitor(rec)
	}

	srvOpts := server.Options{
		PlayerAddr:    fmt.Sprintf(":%d", cfg.PlayerPort),
		MonitorAddr:   fmt.Sprintf(":%d", cfg.MonitorPort),
		HTTPAddr:      cfg.HTTPAddr,
		MaxConnsPerIP: cfg.MaxConnsPerIP,
		MaxTotalConns: cfg.MaxTotalConns,
		SendBuffer:    cfg.SendBuffer,
		Logger:        logger.WithPrefix("server"),
		Metrics:       m,
		Auth:          monitorAuth,
	}
	if st != nil {
		srvOpts.Matches = st
	}
	srv := server.New(game, srvOpts)

	logger.Info("starting",
		"match", game.MatchID(),
		"size", fmt.Sprintf("%vx%v", cfg.XSize, cfg.YSize),
		"fps", cfg.Frames,
		"player_port", cfg.PlayerPort,
		"monitor_port", cfg.MonitorPort,
		"monitor_auth", monitorAuth.Required(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		game.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "serve")
	}
	return nil
}
