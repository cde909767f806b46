package server

import (
	"backend-postboard/internal/auth"
	"backend-postboard/internal/config"
	"backend-postboard/internal/db"
	"backend-postboard/internal/feed"
	"backend-postboard/internal/middleware"
	"backend-postboard/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// multipartOverhead is the body allowance on top of the media limit for form framing and text fields.
const multipartOverhead = 1 << 20

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Log    *zap.Logger
}

func NewServer(cfg config.Config, pool db.Pool, redisClient *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:      "postboard",
		BodyLimit:    cfg.MediaMaxBytes + multipartOverhead,
		ErrorHandler: middleware.ErrorHandler(log),
	})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, log.Named("stream")),
		Log:    log,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authSvc := auth.NewService(s.Cfg.JWTSecret, s.Cfg.JWTTTL, s.DB)
	jwtMiddleware := auth.JWTMiddleware(authSvc)
	limiter := middleware.NewRateLimiter(s.Cfg.AuthRatePerMinute)

	feedSvc := feed.NewService(s.DB, feed.Options{
		PageSize:      s.Cfg.PageSize,
		MediaMaxBytes: s.Cfg.MediaMaxBytes,
		Broadcaster:   s.Stream,
	})

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc, limiter.Handler(), jwtMiddleware)
	feed.RegisterRoutes(s.App.Group("/posts"), feedSvc, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, feed.Topic)
}

// Close releases the stream hub's redis subscription.
func (s *Server) Close() {
	s.Stream.Close()
}
