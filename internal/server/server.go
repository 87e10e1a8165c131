package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/acs-lite/mikrotik-gateway/internal/bot"
	"github.com/acs-lite/mikrotik-gateway/internal/config"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/telegram"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Dispatcher executes one management action.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.ActionRequest) model.ActionResult
}

// UpdateProcessor handles a chat update pushed by the provider.
type UpdateProcessor interface {
	Process(ctx context.Context, u telegram.Update) (bot.Outcome, error)
}

// Server wires HTTP handlers.
type Server struct {
	app        *fiber.App
	dispatcher Dispatcher
	webhook    UpdateProcessor
	cfg        *config.Config
	log        zerolog.Logger
}

// New builds a server instance. webhook may be nil, in which case the chat
// webhook route is not registered.
func New(cfg *config.Config, dispatcher Dispatcher, webhook UpdateProcessor, log zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		IdleTimeout:           cfg.HTTP.ReadTimeout,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		AppName:               "mikrotik-gateway",
		DisableStartupMessage: true,
	})
	s := &Server{
		app:        app,
		dispatcher: dispatcher,
		webhook:    webhook,
		cfg:        cfg,
		log:        log,
	}
	s.registerRoutes()
	return s
}

// Start listens and serves HTTP traffic.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.HTTP.Addr).Msg("http server listening")
	return s.app.Listen(s.cfg.HTTP.Addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,X-API-Key",
	}))
	s.app.Use(s.logRequests)

	s.app.Get("/healthz", s.handleHealth)

	for _, path := range []string{"/api/mikrotik", "/api/mikrotik.php"} {
		s.app.Get(path, s.handleAction)
		s.app.Post(path, s.handleAction)
	}

	if s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	if s.webhook != nil {
		s.app.Post("/telegram/webhook", s.handleWebhook)
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAction serves the single action endpoint. Query values and body
// values are merged with the body winning; action and router may come from
// either.
func (s *Server) handleAction(c *fiber.Ctx) error {
	params := model.Params{}
	for k, v := range c.Queries() {
		params[k] = v
	}
	if c.Method() == fiber.MethodPost {
		for k, v := range parseBody(c) {
			params[k] = v
		}
	}

	req := model.ActionRequest{
		Action:   params.String("action"),
		DeviceID: params.String("router"),
		Source:   "http",
	}
	delete(params, "action")
	delete(params, "router")
	req.Params = params

	res := s.dispatcher.Dispatch(c.UserContext(), req)
	return c.Status(res.Status).JSON(res)
}

func (s *Server) handleWebhook(c *fiber.Ctx) error {
	if secret := s.cfg.Telegram.WebhookSecret; secret != "" {
		got := c.Get(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return c.SendStatus(http.StatusUnauthorized)
		}
	}
	var update telegram.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.Fail(http.StatusBadRequest, "Invalid update"))
	}
	// a non-2xx reply makes the provider redeliver the update
	if _, err := s.webhook.Process(c.UserContext(), update); err != nil {
		s.log.Error().Err(err).Int64("update_id", update.UpdateID).Msg("webhook update failed")
		return c.SendStatus(http.StatusInternalServerError)
	}
	return c.SendStatus(http.StatusOK)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("took", time.Since(start)).
		Msg("http request")
	return err
}

// parseBody decodes a JSON object body, falling back to form fields when the
// body is not valid JSON.
func parseBody(c *fiber.Ctx) model.Params {
	out := model.Params{}
	body := bytes.TrimSpace(c.Body())
	if len(body) > 0 && body[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&out); err == nil {
			return out
		}
		out = model.Params{}
	}

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		if form, err := c.MultipartForm(); err == nil {
			for k, v := range form.Value {
				if len(v) > 0 {
					out[k] = v[0]
				}
			}
		}
		return out
	}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		out[string(k)] = string(v)
	})
	return out
}
