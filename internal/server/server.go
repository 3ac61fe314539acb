// Package server is the HTTP endpoint: a health probe, project diffs and
// Prometheus metrics.
package server

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/metrics"
	"github.com/keshon/sbvc/internal/service"
)

// Server is the HTTP Fiber application.
type Server struct {
	app    *fiber.App
	svc    *service.Service
	addr   string
	logger zerolog.Logger
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable kind code and a user-facing message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// New creates the HTTP server. m may be nil, in which case /metrics is not
// served.
func New(addr string, svc *service.Service, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		svc:    svc,
		addr:   addr,
		logger: logger.With().Str("component", "http").Logger(),
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use(func(c *fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("i am ok")
	})
	s.app.Get("/project_diff", s.projectDiff)
	s.app.Get("/projects", s.projects)
	s.app.Get("/projects/:project/log", s.projectLog)
	s.app.Get("/projects/:project/status", s.projectStatus)
	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}
	return s
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch {
	case errors.Is(err, errs.ErrMalformedArchive), errors.Is(err, errs.ErrInvalidProject):
		return fiber.StatusBadRequest
	case errors.Is(err, errs.ErrUnknownRevision), errors.Is(err, errs.ErrMissingAsset):
		return fiber.StatusNotFound
	case errors.Is(err, errs.ErrNothingToCommit), errors.Is(err, errs.ErrRemoteRejected):
		return fiber.StatusConflict
	case errors.Is(err, errs.ErrUnsupportedFormat):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, errs.ErrLockTimeout):
		return fiber.StatusLocked
	case errors.Is(err, errs.ErrNetwork):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	kind := errs.Kind(err)
	msg := errs.Message(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		kind, msg = "http", fe.Message
	}

	ev := s.logger.Warn()
	if code >= fiber.StatusInternalServerError {
		ev = s.logger.Error()
	}
	ev.Err(err).
		Int("status", code).
		Str("path", c.Path()).
		Str("method", c.Method()).
		Str("request_id", requestID(c)).
		Msg("request failed")

	return c.Status(code).JSON(ErrorBody{Error: ErrorDetail{Kind: kind, Message: msg}})
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

func (s *Server) projectDiff(c *fiber.Ctx) error {
	project := c.Query("project")
	if project == "" {
		return fiber.NewError(fiber.StatusBadRequest, "project is required")
	}
	r, err := s.svc.Diff(project, c.Query("a"), c.Query("b"))
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) projects(c *fiber.Ctx) error {
	list, err := s.svc.Projects()
	if err != nil {
		return err
	}
	if list == nil {
		list = []string{}
	}
	return c.JSON(fiber.Map{"projects": list})
}

func (s *Server) projectLog(c *fiber.Ctx) error {
	revs, err := s.svc.Log(c.Params("project"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"revisions": revs})
}

func (s *Server) projectStatus(c *fiber.Ctx) error {
	st, err := s.svc.Status(c.Params("project"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("http server starting")
	return s.app.Listen(s.addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("http server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
