package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/dig"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/funding"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/partner"
	"github.com/uclouvain/osis-partnership-sub000/core/partnership"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/portal"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
	"github.com/uclouvain/osis-partnership-sub000/core/ume"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

const portalPrefix = "/portal/v1"

// ServerDeps holds everything the API handlers are built with.
type ServerDeps struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Cache      core.Cache
	Validate   *validator.Validate
	Translator ut.Translator
	Resolver   perms.Resolver

	UserSvc        user.Service
	ConfSvc        configuration.Service
	EntitySvc      entity.Service
	RefSvc         reference.Service
	PartnerSvc     partner.Service
	PartnershipSvc partnership.Service
	MediaSvc       media.Service
	UMESvc         ume.Service
	FundingSvc     funding.Service
	PortalSvc      portal.Service
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	jwt      middleware.JWTConfig
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Cache, "Cache"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.Resolver, "Resolver"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
		vala.IsNotNil(deps.ConfSvc, "ConfSvc"),
		vala.IsNotNil(deps.EntitySvc, "EntitySvc"),
		vala.IsNotNil(deps.RefSvc, "RefSvc"),
		vala.IsNotNil(deps.PartnerSvc, "PartnerSvc"),
		vala.IsNotNil(deps.PartnershipSvc, "PartnershipSvc"),
		vala.IsNotNil(deps.MediaSvc, "MediaSvc"),
		vala.IsNotNil(deps.UMESvc, "UMESvc"),
		vala.IsNotNil(deps.FundingSvc, "FundingSvc"),
		vala.IsNotNil(deps.PortalSvc, "PortalSvc"),
	).CheckAndPanic()

	s := &Server{
		deps:     deps,
		app:      echo.New(),
		jwt:      newJWTConfig(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	// app level so preflight requests, which match no route, get answered too
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper: func(ctx echo.Context) bool {
			return !strings.HasPrefix(ctx.Request().URL.Path, portalPrefix)
		},
		AllowOrigins: conf.Server.PortalAllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1", purgePortalCacheMiddleware(s.deps.Cache, s.deps.Logger))
	jwt := middleware.JWTWithConfig(s.jwt)
	authed := []echo.MiddlewareFunc{jwt, subjectMiddleware(s.deps.UserSvc, s.deps.Resolver)}

	registerUserAPI(v1, s.deps.Conf, s.jwt, authed, s.deps.UserSvc, s.deps.Validate)
	registerConfigurationAPI(v1, authed, s.deps.ConfSvc, s.deps.Validate)
	registerPartnerAPI(v1, authed, s.deps.PartnerSvc, s.deps.Validate)
	registerPartnershipAPI(v1, authed, s.deps.PartnershipSvc, s.deps.EntitySvc, s.deps.RefSvc, s.deps.Validate)
	registerMediaAPI(v1, s.jwt, s.deps.MediaSvc)
	registerUMEAPI(v1, authed, s.deps.UMESvc, s.deps.Validate)
	registerFundingAPI(v1, authed, s.deps.FundingSvc, s.deps.Validate)
	registerAutocompleteAPI(v1, authed, autocompleteDeps{
		partnerSvc: s.deps.PartnerSvc,
		entitySvc:  s.deps.EntitySvc,
		userSvc:    s.deps.UserSvc,
		fundingSvc: s.deps.FundingSvc,
		refSvc:     s.deps.RefSvc,
	})

	pg := s.app.Group(portalPrefix, portalCacheMiddleware(s.deps.Cache, conf.Redis.PortalTTL, s.deps.Logger))
	registerPortalAPI(pg, s.deps.PortalSvc)
}

// Start listens on the configured host; failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// GenerateToken signs the claims with the server secret.
func (s *Server) GenerateToken(claims *Claims) (string, error) {
	return generateToken(s.jwt, claims)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "OSIS Partnership API")
}
