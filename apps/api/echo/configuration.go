package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
)

type configurationApi struct {
	svc      configuration.Service
	validate *validator.Validate
}

func registerConfigurationAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc configuration.Service, validate *validator.Validate) {
	api := configurationApi{svc: svc, validate: validate}

	cg := g.Group("/configuration", authed...)
	cg.GET("", api.retrieve, accessMiddleware())
	cg.PUT("", api.update, permMiddleware(perms.CanChangeConfiguration))
}

func (api *configurationApi) retrieve(ctx echo.Context) error {
	conf, err := api.svc.Get(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting configuration")
	}
	return ctx.JSON(http.StatusOK, conf)
}

func (api *configurationApi) update(ctx echo.Context) error {
	var data configuration.UpdateConfiguration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateConfiguration")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	conf, err := api.svc.Update(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "updating configuration")
	}
	return ctx.JSON(http.StatusOK, conf)
}
