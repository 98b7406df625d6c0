package config

import (
	"audiogami/database/postgres"
	recordingHandler "audiogami/internal/api/recording/handler"
	recordingService "audiogami/internal/api/recording/service"
	ticketHandler "audiogami/internal/api/ticket/handler"
	ticketRepository "audiogami/internal/api/ticket/repository"
	ticketService "audiogami/internal/api/ticket/service"
	"audiogami/internal/catalog"
	"audiogami/internal/middleware"
	"audiogami/pkg/notion"
	"audiogami/pkg/redis"
	"audiogami/pkg/s3"
	"audiogami/pkg/smtp"
	"audiogami/pkg/utils"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type ServerOption func(*Server) error

type Server struct {
	engine           *fiber.App
	db               *sqlx.DB
	log              *logrus.Logger
	middleware       middleware.Middleware
	validator        *validator.Validate
	utils            utils.IUtils
	handlers         []handler
	catalog          *catalog.Catalog
	redisServer      redis.IRedis
	smtpMailer       smtp.ItfSmtp
	s3Client         s3.ItfS3
	notionClient     notion.ItfNotion
	recordings       recordingService.Settings
	recordingService recordingService.IRecordingService
	stopReaper       context.CancelFunc
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if server.catalog == nil {
		return nil, fmt.Errorf("use-case catalog is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDatabase connects to Postgres and, when migrate is set, applies the
// embedded schema.
func WithDatabase(migrate bool) ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db

		if migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := postgres.Migrate(ctx, db); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			if s.log != nil {
				s.log.Info("Database schema applied")
			}
		}
		return nil
	}
}

func WithCatalog() ServerOption {
	return func(s *Server) error {
		cat, err := catalog.Load()
		if err != nil {
			return fmt.Errorf("failed to load use-case catalog: %w", err)
		}
		s.catalog = cat
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

// WithSMTPMailer leaves the mailer unset when no sender address is
// configured; the notify endpoint then answers 503.
func WithSMTPMailer() ServerOption {
	return func(s *Server) error {
		if os.Getenv("SMTP_MAIL") == "" {
			if s.log != nil {
				s.log.Warn("SMTP_MAIL is not set, confirmation e-mails are disabled")
			}
			return nil
		}
		s.smtpMailer = smtp.New()
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		if os.Getenv("AWS_BUCKET_NAME") == "" {
			if s.log != nil {
				s.log.Warn("AWS_BUCKET_NAME is not set, export archiving is disabled")
			}
			return nil
		}

		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithNotion() ServerOption {
	return func(s *Server) error {
		client := notion.New()
		if !client.Configured() && s.log != nil {
			s.log.Info("Notion is not configured")
		}
		s.notionClient = client
		return nil
	}
}

func WithRecordingSettings(settings recordingService.Settings) ServerOption {
	return func(s *Server) error {
		s.recordings = settings
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Ticket Domain
	ticketRepo := ticketRepository.New(s.db, s.log)
	ticketServices := ticketService.NewTicketService(s.log, ticketRepo, s.catalog, s.redisServer, s.s3Client, s.smtpMailer, s.notionClient, s.utils)
	ticketHandlers := ticketHandler.New(s.log, s.validator, s.middleware, ticketServices)

	// Recording Domain
	s.recordingService = recordingService.NewRecordingService(s.log, s.catalog, ticketServices, s.utils, s.recordings)
	recordingHandlers := recordingHandler.New(s.log, s.validator, s.middleware, s.recordingService)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, ticketHandlers, recordingHandlers)
}

func (s *Server) Run() error {
	s.engine.Use(recover.New())
	s.engine.Use(cors.New())
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}

	reaperCtx, cancel := context.WithCancel(context.Background())
	s.stopReaper = cancel
	go s.recordingService.Run(reaperCtx)

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown closes every live recording session, stops the HTTP engine and
// releases the database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopReaper != nil {
		s.stopReaper()
	}
	if s.recordingService != nil {
		s.recordingService.Shutdown(ctx)
	}

	if err := s.engine.ShutdownWithContext(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Server is Healthy!",
		})
	})
	s.engine.Get("/healthz", func(ctx *fiber.Ctx) error {
		c, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(c); err != nil {
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"database": "down"})
		}
		return ctx.JSON(fiber.Map{"database": "up"})
	})
}
