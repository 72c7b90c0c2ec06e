// Package banchohttp exposes the Bancho protocol over HTTP: a single POST
// route carries both login requests (no osu-token header) and packet
// streams (token header present), matching the osu! client's long-poll
// transport.
package banchohttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/stlalpha/bancho3/internal/login"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/session"
)

// Handler processes one decoded client packet against the session that
// sent it. Errors are logged, never surfaced to the client: a single bad
// packet in a batch should not drop the rest of the stream.
type Handler func(ctx context.Context, sess *session.BanchoSession, payload []byte) error

// HandlerEntry pairs a handler with whether a restricted user may invoke
// it. Restricted users get a narrow packet map (ping, change-action,
// logout, stats-request, channel join/leave, presence filter); everyone
// else gets the full one.
type HandlerEntry struct {
	Handler           Handler
	RestrictedAllowed bool
}

// Server is the Bancho HTTP endpoint.
type Server struct {
	echo *echo.Echo
	log  *slog.Logger

	sessions *session.Registry
	login    login.Dependencies
	handlers map[uint16]HandlerEntry
}

// New builds a Server. handlers maps every supported client packet id to
// its entry; an id with no entry is silently ignored, matching the
// original's "unhandled packets are ignored" behavior.
func New(sessions *session.Registry, loginDeps login.Dependencies, handlers map[uint16]HandlerEntry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))

	s := &Server{echo: e, log: log, sessions: sessions, login: loginDeps, handlers: handlers}
	e.POST("/", s.handleBancho)
	e.GET("/_health", s.handleHealth)
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			if c.Request().URL.Path == "/_health" {
				return nil
			}
			log.Debug("bancho http request",
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", c.RealIP(),
			)
			return nil
		}
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Sessions: len(s.sessions.All())})
}

func (s *Server) handleBancho(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	token := req.Header.Get("osu-token")
	if token == "" {
		result := login.Pipeline(req.Context(), s.login, body, c.RealIP())
		c.Response().Header().Set("cho-token", result.Token)
		return c.Blob(http.StatusOK, "application/octet-stream", result.Body)
	}

	sess, ok := s.sessions.GetByToken(token)
	if !ok {
		reconnect := append(notifyFrame("Server has restarted."), restartFrame(0)...)
		return c.Blob(http.StatusOK, "application/octet-stream", reconnect)
	}

	frames, err := packet.Decode(body)
	if err != nil {
		s.log.Warn("banchohttp: malformed packet stream", "err", err, "user", sess.Name)
	}

	for _, f := range frames {
		entry, known := s.handlers[f.ID]
		if !known {
			continue
		}
		if sess.Restricted && !entry.RestrictedAllowed {
			continue
		}
		if err := entry.Handler(req.Context(), sess, f.Payload); err != nil {
			s.log.Error("banchohttp: handler failed", "packet", f.ID, "user", sess.Name, "err", err)
		}
	}

	sess.Touch()
	return c.Blob(http.StatusOK, "application/octet-stream", sess.DrainOutbound())
}

// Run starts the Echo server and blocks until ctx is cancelled or startup
// fails outright.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("banchohttp: shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		s.log.Info("banchohttp: stopped")
		return nil
	}
}

func notifyFrame(msg string) []byte {
	w := packet.NewWriter()
	w.WriteString(msg)
	return packet.Build(packet.Notification, w.Bytes())
}

func restartFrame(delayMS int32) []byte {
	w := packet.NewWriter()
	w.WriteI32(delayMS)
	return packet.Build(packet.Restart, w.Bytes())
}
