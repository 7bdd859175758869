package server

import (
	"backend-platego/internal/auth"
	"backend-platego/internal/car"
	"backend-platego/internal/chat"
	"backend-platego/internal/config"
	"backend-platego/internal/db"
	"backend-platego/internal/geocode"
	"backend-platego/internal/notification"
	"backend-platego/internal/rescue"
	"backend-platego/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Querier
	Redis  *redis.Client
	Stream *stream.Hub
}

func NewServer(cfg config.Config, querier db.Querier, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     querier,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	var geocoder rescue.Geocoder
	if s.Cfg.GeocoderBaseURL != "" {
		geocoder = geocode.New(s.Cfg.GeocoderBaseURL)
	}

	rescueSvc := rescue.NewService(s.DB, s.Stream, geocoder)
	s.Stream.SetLocationSink(rescueSvc)

	var recognizer *car.Recognizer
	if s.Cfg.PlateRecognizerURL != "" && s.Cfg.PlateRecognizerToken != "" {
		recognizer = car.NewRecognizer(s.Cfg.PlateRecognizerURL, s.Cfg.PlateRecognizerToken)
	}

	api := s.App.Group("/api")
	auth.RegisterRoutes(api.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB), jwtMiddleware)
	rescue.RegisterRoutes(api.Group("/rescue"), rescueSvc, jwtMiddleware)
	car.RegisterRoutes(api.Group("/cars"), car.NewService(s.DB, recognizer), jwtMiddleware)
	chat.RegisterRoutes(api.Group("/chats"), chat.NewService(s.DB, s.Stream), jwtMiddleware)
	notification.RegisterRoutes(api.Group("/notification"), notification.NewService(s.DB, s.Stream), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, s.Cfg.JWTSecret)
}
