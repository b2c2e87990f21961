package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core/portal"
)

type portalApi struct {
	svc portal.Service
}

// registerPortalAPI serves the read-only API of the public portal.
func registerPortalAPI(g *echo.Group, svc portal.Service) {
	api := portalApi{svc: svc}

	g.GET("/configuration", api.configuration)
	g.GET("/partners", api.partners)
	g.GET("/partnerships", api.partnerships)
	g.GET("/partnerships/:uuid", api.partnership)
}

func (api *portalApi) filter(ctx echo.Context) (*portal.Filter, error) {
	filter := new(portal.Filter)
	if err := ctx.Bind(filter); err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

func (api *portalApi) configuration(ctx echo.Context) error {
	conf, err := api.svc.Configuration(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building portal configuration")
	}
	return ctx.JSON(http.StatusOK, conf)
}

func (api *portalApi) partners(ctx echo.Context) error {
	filter, err := api.filter(ctx)
	if err != nil {
		return err
	}
	partners, err := api.svc.Partners(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing published partners")
	}
	if partners == nil {
		partners = []portal.PartnerItem{}
	}
	return ctx.JSON(http.StatusOK, partners)
}

func (api *portalApi) partnerships(ctx echo.Context) error {
	filter, err := api.filter(ctx)
	if err != nil {
		return err
	}
	partnerships, err := api.svc.Partnerships(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing published partnerships")
	}
	if partnerships == nil {
		partnerships = []portal.Partnership{}
	}
	return ctx.JSON(http.StatusOK, partnerships)
}

func (api *portalApi) partnership(ctx echo.Context) error {
	p, err := api.svc.Partnership(ctx.Request().Context(), ctx.Param("uuid"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}
