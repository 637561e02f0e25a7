package echoapi

import (
	"context"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/audit"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/dashboard"
	"github.com/studyhall/backend/core/notification"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/security"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
	"github.com/studyhall/backend/services/realtime"
)

type (
	Deps struct {
		Conf            *core.Config
		Logger          core.Logger
		UserSvc         *user.Service
		HallSvc         *studyhall.Service
		BookingSvc      *booking.Service
		PaymentSvc      *payment.Service
		SubscriptionSvc *subscription.Service
		AuditSvc        *audit.Service
		NotificationSvc *notification.Service
		DashboardSvc    *dashboard.Service
		Hub             *realtime.Hub
		UploadsDir      string // served under /uploads when set
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		address  string
		app      *echo.Echo
		deps     *Deps
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(address string, shutdown chan os.Signal, deps *Deps) Server {
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
	}
	s := &server{
		address:  address,
		app:      echo.New(),
		deps:     deps,
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	if s.deps.UploadsDir != "" {
		s.app.Static("/uploads", s.deps.UploadsDir)
	}

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf, "header:"+echo.HeaderAuthorization))
	authed := []echo.MiddlewareFunc{jwt, loadUserMiddleware(s.deps.UserSvc)}
	limiter := security.NewRateLimiter(conf.Server.LoginMaxAttempts, conf.Server.LoginAttemptsWindow)

	registerUserAPI(v1, authed, limiter, s.deps)
	registerHallAPI(v1, authed, s.deps)
	registerBookingAPI(v1, authed, s.deps)
	registerPaymentAPI(v1, authed, s.deps)
	registerSubscriptionAPI(v1, authed, s.deps)
	registerAuditAPI(v1, authed, s.deps)
	registerNotificationAPI(v1, authed, s.deps)
	registerDashboardAPI(v1, authed, s.deps)

	wsJWT := middleware.JWTWithConfig(jwtConfig(conf, "query:token"))
	registerRealtimeAPI(v1, []echo.MiddlewareFunc{wsJWT, loadUserMiddleware(s.deps.UserSvc)}, s.deps)
}

// Start listens and serves; any error other than a closed server is sent on Errors.
func (s *server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- os.Interrupt:
	default: // already signaled
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
