package server

import (
	"log/slog"

	"backend-alluviamaps/internal/auth"
	"backend-alluviamaps/internal/config"
	"backend-alluviamaps/internal/db"
	"backend-alluviamaps/internal/mapsync"
	"backend-alluviamaps/internal/records"
	"backend-alluviamaps/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Records  *records.DataService
	Sessions *mapsync.Sessions
	Log      *slog.Logger
}

// NewServer wires the HTTP surface. A nil pool leaves the record cache
// without a remote source, so every fetch degrades to an empty result.
func NewServer(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	var q db.Querier
	var source records.Source
	if pool != nil {
		q = pool
		source = records.NewPostgresSource(pool)
	} else {
		log.Warn("postgres not configured, record cache has no remote source")
	}

	hub := stream.NewHub(redisClient, log)
	data := records.NewDataService(source, records.Options{
		TTL:            cfg.CacheTTL,
		SplitFreshness: cfg.CacheSplitFreshness,
		Logger:         log,
	})
	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       pool,
		Redis:    redisClient,
		Stream:   hub,
		Records:  data,
		Sessions: mapsync.NewSessions(hub, mapsync.DefaultMapOptions(cfg.MapAccessToken, cfg.MapStyleURL), log),
		Log:      log,
	}

	registerRoutes(s, q)
	return s
}

// Close tears down open map sessions and stops the stream subscription.
func (s *Server) Close() {
	s.Sessions.CloseAll()
	s.Stream.Close()
}

func registerRoutes(s *Server, q db.Querier) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, q), jwtMiddleware)
	records.RegisterRoutes(s.App.Group("/records"), s.Records, jwtMiddleware)
	mapsync.RegisterRoutes(s.App.Group("/map/sessions"), s.Sessions, s.Records)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, s.Sessions.OnClientMessage)
}
