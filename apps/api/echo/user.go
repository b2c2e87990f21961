package echoapi

import (
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

type userApi struct {
	conf     *core.Config
	jwt      middleware.JWTConfig
	svc      user.Service
	validate *validator.Validate
}

func registerUserAPI(
	g *echo.Group,
	conf *core.Config,
	jwt middleware.JWTConfig,
	authed []echo.MiddlewareFunc,
	svc user.Service,
	validate *validator.Validate,
) {
	api := userApi{
		conf:     conf,
		jwt:      jwt,
		svc:      svc,
		validate: validate,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", authed...)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := authenticate(ctx, data.Username, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := generateToken(api.jwt, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.jwt, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	s, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newMeResponse(s))
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	// MeResponse is the current user with the rights the interface is built from.
	MeResponse struct {
		user.User
		FullName             string   `json:"full_name"`
		IsADRI               bool     `json:"is_adri"`
		IsFacultyManager     bool     `json:"is_faculty_manager"`
		ManagedEntities      []int    `json:"managed_entities"`
		Scopes               []string `json:"scopes"`
		CanAddPartnership    bool     `json:"can_add_partnership"`
		CanManageFinancing   bool     `json:"can_manage_financing"`
		CanChangeConfig      bool     `json:"can_change_configuration"`
		CanAddPartner        bool     `json:"can_add_partner"`
		CanViewManagementEnt bool     `json:"can_view_ucl_management_entities"`
	}
)

func newMeResponse(s perms.Subject) MeResponse {
	scopes := perms.Scopes(s)
	if scopes == nil {
		scopes = []string{}
	}
	managed := s.EntityIDs()
	sort.Ints(managed)
	return MeResponse{
		User:                 s.User,
		FullName:             s.User.FullName(),
		IsADRI:               s.IsADRI(),
		IsFacultyManager:     s.IsFacultyManager(),
		ManagedEntities:      managed,
		Scopes:               scopes,
		CanAddPartnership:    perms.CanAddAnyPartnership(s),
		CanManageFinancing:   perms.CanManageFinancing(s),
		CanChangeConfig:      perms.CanChangeConfiguration(s),
		CanAddPartner:        perms.CanAddPartner(s),
		CanViewManagementEnt: perms.CanViewUME(s),
	}
}

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
