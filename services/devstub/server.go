// Package devstub runs a local, in-memory emulation of the hosted auth and
// data provider so the rest of the stack can be developed and tested offline.
// It speaks the same REST surface the hosted service does: the auth endpoints
// under /auth/v1 and the profile table under /rest/v1.
package devstub

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/profile"
	"github.com/uniteams/uniteams/services/email"
)

type (
	Options struct {
		Address        string
		SecretKey      []byte
		AnonKey        string
		ServiceKey     string
		AccessTokenTTL time.Duration

		// AutoConfirm skips email confirmation on signup.
		AutoConfirm    bool
		DisableReqLogs bool

		// BaseURL is used in confirmation links; defaults to http://<Address>.
		BaseURL string

		Logger   core.Logger
		EmailSvc email.Service
		Profiles profile.Repository
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		accounts *accountStore
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = time.Hour
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://" + opts.Address
	}
	if opts.Logger == nil {
		opts.Logger = core.NewStdLogger(nil)
	}
	s := &server{
		opts:     opts,
		app:      echo.New(),
		accounts: newAccountStore(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	if !(core.Conf != nil && (core.Conf.Debug || core.Conf.TestMode)) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = stubHTTPErrorHandler
	s.app.HideBanner = true

	s.app.GET("/", s.home)

	authv1 := s.app.Group("/auth/v1", s.requireAPIKey)
	authv1.POST("/signup", s.signup)
	authv1.POST("/token", s.token)
	authv1.POST("/logout", s.logout)
	authv1.GET("/verify", s.verify)
	authv1.GET("/user", s.getUser)
	authv1.PUT("/user", s.updateUser)

	restv1 := s.app.Group("/rest/v1", s.requireAPIKey)
	restv1.GET("/profiles", s.listProfiles)
	restv1.POST("/profiles", s.upsertProfile)
	restv1.POST("/rpc/update_current_profile", s.updateCurrentProfile)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Uniteams dev stub")
}

// requireAPIKey enforces the apikey header the hosted service expects on
// every request. The anon and service keys are both accepted here; handlers
// that need elevated rights check for the service key themselves.
func (s *server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		key := ctx.Request().Header.Get("apikey")
		if key == "" || (key != s.opts.AnonKey && key != s.opts.ServiceKey) {
			return errInvalidAPIKey
		}
		return next(ctx)
	}
}
